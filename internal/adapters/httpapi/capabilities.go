package httpapi

import (
	"net/http"

	"capresearch/pkg/domain"
)

type capabilityRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type statusRequest struct {
	Status domain.Status `json:"status"`
}

type attributeRequest struct {
	DomainName     *string `json:"domain_name"`
	AttributeName  *string `json:"attribute_name"`
	Definition     *string `json:"definition"`
	TMForumMapping *string `json:"tm_forum_mapping"`
	Importance     *string `json:"importance"`
	Weight         *int    `json:"weight"`
	IsActive       *bool   `json:"is_active"`
}

func (a attributeRequest) apply(attr *domain.Attribute) {
	if a.DomainName != nil {
		attr.DomainName = *a.DomainName
	}
	if a.AttributeName != nil {
		attr.AttributeName = *a.AttributeName
	}
	if a.Definition != nil {
		attr.Definition = *a.Definition
	}
	if a.TMForumMapping != nil {
		attr.TMForumMapping = *a.TMForumMapping
	}
	if a.Importance != nil {
		attr.Importance = *a.Importance
	}
	if a.Weight != nil {
		attr.Weight = *a.Weight
	}
	if a.IsActive != nil {
		attr.IsActive = *a.IsActive
	}
}

type trackerRequest struct {
	ReviewCompleted    *bool   `json:"review_completed"`
	ComprehensiveReady *bool   `json:"comprehensive_ready"`
	Notes              *string `json:"notes"`
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		overview, err := h.core.Overview(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
		return
	}
	var req capabilityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid capability payload")
		return
	}
	c := domain.Capability{}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	created, res, err := h.core.CreateCapability(r.Context(), c)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, "capability", created, res)
}

func (h *Handler) handleCapability(w http.ResponseWriter, r *http.Request, segments []string) {
	id := segments[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if len(segments) == 1 {
		h.handleCapabilityRecord(w, r, id)
		return
	}
	rest := segments[2:]
	switch segments[1] {
	case "status":
		h.handleStatus(w, r, id, rest)
	case "domains":
		h.handleDomains(w, r, id, rest)
	case "attributes":
		h.handleAttributes(w, r, id, rest)
	case "vendor-scores":
		h.handleVendorScores(w, r, id, rest)
	case "tracker":
		h.handleTracker(w, r, id, rest)
	case "workflow":
		h.handleWorkflow(w, r, id, rest)
	default:
		writeError(w, http.StatusNotFound, "endpoint not found")
	}
}

func (h *Handler) handleCapabilityRecord(w http.ResponseWriter, r *http.Request, id string) {
	if !allow(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		c, err := h.core.GetCapability(ctx, id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"capability": c})
	case http.MethodPut:
		var req capabilityRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid capability payload")
			return
		}
		updated, res, err := h.core.UpdateCapability(ctx, id, func(c *domain.Capability) error {
			if req.Name != nil {
				c.Name = *req.Name
			}
			if req.Description != nil {
				c.Description = *req.Description
			}
			return nil
		})
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeResult(w, http.StatusOK, "capability", updated, res)
	case http.MethodDelete:
		if _, err := h.core.DeleteCapability(ctx, id); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	if len(rest) != 0 {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if !allow(w, r, http.MethodPut, http.MethodDelete) {
		return
	}
	if r.Method == http.MethodDelete {
		update, _, err := h.core.ClearStatusOverride(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": update})
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid status payload")
		return
	}
	updated, res, err := h.core.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, "capability", updated, res)
}

func (h *Handler) handleDomains(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodGet {
			domains, err := h.core.ListDomains(ctx, id)
			if err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"domains": nonNil(domains)})
			return
		}
		var d domain.Domain
		if err := decodeBody(r, &d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid domain payload")
			return
		}
		saved, res, err := h.core.UpsertDomain(ctx, id, d)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeResult(w, http.StatusCreated, "domain", saved, res)
	case 1:
		if !allow(w, r, http.MethodDelete) {
			return
		}
		if _, err := h.core.DeleteDomain(ctx, id, rest[0]); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "endpoint not found")
	}
}

func (h *Handler) handleAttributes(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodGet {
			attrs, err := h.core.ListAttributes(ctx, id)
			if err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"attributes": nonNil(attrs)})
			return
		}
		var req attributeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid attribute payload")
			return
		}
		attr := domain.Attribute{IsActive: true}
		req.apply(&attr)
		saved, res, err := h.core.UpsertAttribute(ctx, id, attr)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeResult(w, http.StatusCreated, "attribute", saved, res)
	case 1:
		if !allow(w, r, http.MethodPut, http.MethodDelete) {
			return
		}
		if r.Method == http.MethodDelete {
			if _, err := h.core.DeleteAttribute(ctx, id, rest[0]); err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var req attributeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid attribute payload")
			return
		}
		updated, res, err := h.core.UpdateAttribute(ctx, id, rest[0], func(a *domain.Attribute) error {
			req.apply(a)
			return nil
		})
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeResult(w, http.StatusOK, "attribute", updated, res)
	default:
		writeError(w, http.StatusNotFound, "endpoint not found")
	}
}

func (h *Handler) handleVendorScores(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodGet {
			scores, err := h.core.ListVendorScores(ctx, id)
			if err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"vendor_scores": nonNil(scores)})
			return
		}
		var score domain.VendorScore
		if err := decodeBody(r, &score); err != nil {
			writeError(w, http.StatusBadRequest, "invalid vendor score payload")
			return
		}
		saved, res, err := h.core.UpsertVendorScore(ctx, id, score)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeResult(w, http.StatusCreated, "vendor_score", saved, res)
	case 1:
		if !allow(w, r, http.MethodDelete) {
			return
		}
		if _, err := h.core.DeleteVendorScore(ctx, id, rest[0]); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "endpoint not found")
	}
}

func (h *Handler) handleTracker(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	if len(rest) != 0 {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if !allow(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	ctx := r.Context()
	if r.Method == http.MethodGet {
		tracker, err := h.core.Tracker(ctx, id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracker": tracker})
		return
	}
	var req trackerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tracker payload")
		return
	}
	tracker, update, res, err := h.core.UpdateTracker(ctx, id, func(t *domain.CapabilityTracker) error {
		if req.ReviewCompleted != nil {
			t.ReviewCompleted = *req.ReviewCompleted
		}
		if req.ComprehensiveReady != nil {
			t.ComprehensiveReady = *req.ComprehensiveReady
		}
		if req.Notes != nil {
			t.Notes = *req.Notes
		}
		return nil
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	body := map[string]any{"tracker": tracker, "status": update}
	if len(res.Violations) > 0 {
		body["violations"] = res.Violations
	}
	writeJSON(w, http.StatusOK, body)
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
