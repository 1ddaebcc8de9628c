package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"capresearch/internal/workflow"
)

type promptRequest struct {
	PromptType string `json:"prompt_type"`
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleWorkflow(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "workflow step not found")
		return
	}
	action := rest[0]
	if action == "initialize" {
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
	} else if !allow(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	switch action {
	case "initialize":
		wf, err := h.workflow.InitializeWorkflow(ctx, id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflow": wf})
	case "generate-prompt":
		req := promptRequest{PromptType: r.URL.Query().Get("prompt_type")}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid prompt request payload")
			return
		}
		kind, err := workflow.ParseResearchType(req.PromptType)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		doc, err := h.workflow.GeneratePrompt(ctx, id, kind)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"prompt": doc})
	case "upload":
		h.handleUpload(w, r, id)
	case "validate":
		kind, err := workflow.ParseResearchType(r.URL.Query().Get("expected_type"))
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		data, ok := h.readDocument(w, r)
		if !ok {
			return
		}
		result, err := h.workflow.ValidateResearchData(ctx, id, data, kind)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"validation": result})
	case "process-domain", "process-comprehensive":
		data, ok := h.readDocument(w, r)
		if !ok {
			return
		}
		process := h.workflow.ProcessDomainResults
		if action == "process-comprehensive" {
			process = h.workflow.ProcessComprehensiveResults
		}
		result, err := process(ctx, id, data)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	case "complete-review":
		var req reviewRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid review payload")
			return
		}
		result, err := h.workflow.CompleteReview(ctx, id, req.Notes)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	default:
		writeError(w, http.StatusNotFound, "workflow step not found")
	}
}

// readDocument reads a raw research document body within the upload limit.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := h.workflow.MaxUploadBytes()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("research document larger than %d bytes", limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return nil, false
	}
	return data, true
}

// handleUpload accepts a multipart form with a "file" part or a raw JSON
// body. The expected type comes from the expected_type form field or query.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, id string) {
	expected := r.URL.Query().Get("expected_type")
	filename := r.URL.Query().Get("filename")
	body := io.Reader(r.Body)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, h.workflow.MaxUploadBytes()+1<<20)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart upload")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file part")
			return
		}
		defer func() { _ = file.Close() }()
		if v := r.FormValue("expected_type"); v != "" {
			expected = v
		}
		filename = header.Filename
		body = file
	}

	kind, err := workflow.ParseResearchType(expected)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	result, err := h.workflow.UploadResearchFile(r.Context(), id, filename, body, kind)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upload": result})
}
