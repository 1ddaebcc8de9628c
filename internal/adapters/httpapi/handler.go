// Package httpapi exposes the capability research services over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"capresearch/internal/core"
	"capresearch/internal/entitymodel"
	"capresearch/internal/reports"
	"capresearch/internal/workflow"
	"capresearch/pkg/domain"
)

const apiPrefix = "/api/capabilities"

// Handler routes the REST surface to the core, workflow and report services.
type Handler struct {
	core        *core.Service
	workflow    *workflow.Service
	reports     *reports.Service
	metrics     http.Handler
	metricsPath string
	openapi     http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetricsHandler serves h on path, typically promhttp.HandlerFor.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(handler *Handler) {
		if h != nil && path != "" {
			handler.metrics = h
			handler.metricsPath = path
		}
	}
}

// NewHandler constructs the API handler.
func NewHandler(wf *workflow.Service, rep *reports.Service, opts ...Option) *Handler {
	h := &Handler{core: wf.Core(), workflow: wf, reports: rep, openapi: entitymodel.NewOpenAPIHandler()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model_version": entitymodel.Version()})
	case h.metrics != nil && path == h.metricsPath:
		h.metrics.ServeHTTP(w, r)
	case path == "/api/openapi.yaml":
		h.openapi.ServeHTTP(w, r)
	case path == "/api/vendors":
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vendors": h.core.Vendors()})
	case path == apiPrefix:
		h.handleCapabilities(w, r)
	case strings.HasPrefix(path, apiPrefix+"/reports/"):
		h.handleReports(w, r, strings.Split(strings.TrimPrefix(path, apiPrefix+"/reports/"), "/"))
	case strings.HasPrefix(path, apiPrefix+"/"):
		h.handleCapability(w, r, strings.Split(strings.TrimPrefix(path, apiPrefix+"/"), "/"))
	default:
		writeError(w, http.StatusNotFound, "endpoint not found")
	}
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		notFound    domain.ErrNotFound
		conflict    domain.ErrConflict
		parse       domain.ParseError
		invalid     domain.InvalidInputError
		schema      domain.SchemaValidationError
		mismatch    domain.TypeMismatchError
		referential domain.ReferentialError
		incomplete  domain.IncompleteResearchError
		rule        domain.RuleViolationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &incomplete):
		return http.StatusConflict
	case errors.As(err, &parse):
		return http.StatusBadRequest
	case errors.As(err, &invalid), errors.As(err, &schema), errors.As(err, &mismatch), errors.As(err, &referential), errors.As(err, &rule):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status, adding validation
// issues and rule violations when the error carries them.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.core.Logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	body := map[string]any{"error": err.Error()}
	var (
		schema   domain.SchemaValidationError
		mismatch domain.TypeMismatchError
		rule     domain.RuleViolationError
	)
	switch {
	case errors.As(err, &schema):
		body["issues"] = schema.Issues
	case errors.As(err, &mismatch):
		body["issues"] = mismatch.Issues
		body["detected_type"] = mismatch.Detected
	case errors.As(err, &rule):
		body["violations"] = rule.Result.Violations
	}
	writeJSON(w, status, body)
}

// writeResult wraps a write response with any non-blocking violations.
func writeResult(w http.ResponseWriter, status int, key string, value any, res core.Result) {
	body := map[string]any{key: value}
	if len(res.Violations) > 0 {
		body["violations"] = res.Violations
	}
	writeJSON(w, status, body)
}
