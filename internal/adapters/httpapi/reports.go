package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"capresearch/internal/reports"
)

// handleReports serves /api/capabilities/reports/{id}/...
func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request, segments []string) {
	if h.reports == nil || len(segments) < 2 || segments[0] == "" {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, kind := segments[0], segments[1]
	ctx := r.Context()

	if len(segments) == 2 {
		var (
			report any
			err    error
		)
		switch kind {
		case "radar-chart":
			report, err = h.reports.RadarChart(ctx, id)
		case "vendor-comparison":
			report, err = h.reports.VendorComparison(ctx, id)
		case "score-distribution":
			report, err = h.reports.ScoreDistribution(ctx, id)
		case "summary":
			report, err = h.reports.Summary(ctx, id)
		case "exports":
			report, err = h.reports.ListExports(ctx, id)
			if err == nil {
				report = map[string]any{"exports": report}
			}
		default:
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if len(segments) != 3 {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	switch kind {
	case "export":
		h.handleExport(w, r, id, segments[2])
	case "exports":
		h.handleDownload(w, r, id, segments[2])
	default:
		writeError(w, http.StatusNotFound, "report not found")
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id, rawFormat string) {
	format, err := reports.ParseFormat(rawFormat)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	reportType, err := reports.ParseReportType(r.URL.Query().Get("report_type"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	exported, err := h.reports.Export(r.Context(), id, format, reportType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", exported.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exported.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(exported.Payload)))
	if exported.Artifact != nil {
		w.Header().Set("X-Archive-Key", exported.Artifact.Key)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exported.Payload)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request, id, filename string) {
	info, rc, err := h.reports.OpenExport(r.Context(), id, filename)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.core.Logger().Warn("export download interrupted", "capability", id, "file", filename, "error", err)
	}
}
