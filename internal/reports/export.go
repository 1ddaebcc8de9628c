package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"capresearch/internal/archive"
	"capresearch/internal/core"
	"capresearch/pkg/domain"

	"github.com/google/uuid"
)

// Format is an export document format.
type Format string

const (
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
)

// ParseFormat accepts excel, xlsx and pdf.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "excel", "xlsx":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", domain.InvalidInputError{Field: "format", Reason: fmt.Sprintf("%q is not excel or pdf", raw)}
}

// Extension returns the file extension of f.
func (f Format) Extension() string {
	if f == FormatPDF {
		return "pdf"
	}
	return "xlsx"
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ReportType names the report rendered by Export.
type ReportType string

const (
	ReportSummary           ReportType = "summary"
	ReportRadarChart        ReportType = "radar-chart"
	ReportVendorComparison  ReportType = "vendor-comparison"
	ReportScoreDistribution ReportType = "score-distribution"
)

// ParseReportType accepts dashed or underscored names. Empty means summary.
func ParseReportType(raw string) (ReportType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	switch ReportType(normalized) {
	case "":
		return ReportSummary, nil
	case ReportSummary, ReportRadarChart, ReportVendorComparison, ReportScoreDistribution:
		return ReportType(normalized), nil
	}
	return "", domain.InvalidInputError{Field: "report_type", Reason: fmt.Sprintf("unknown report type %q", raw)}
}

// ExportedReport is a rendered report document.
type ExportedReport struct {
	Filename    string        `json:"filename"`
	ContentType string        `json:"content_type"`
	Payload     []byte        `json:"-"`
	Artifact    *archive.Info `json:"artifact,omitempty"`
}

// table is the format-neutral layout every report renders through.
type table struct {
	Sheet  string
	Title  string
	Meta   [][2]string
	Header []string
	Rows   [][]any
}

func (s *Service) table(ctx context.Context, capabilityID string, reportType ReportType) (table, error) {
	switch reportType {
	case ReportSummary:
		sum, err := s.Summary(ctx, capabilityID)
		if err != nil {
			return table{}, err
		}
		t := table{
			Sheet: "Summary",
			Title: sum.Capability.Name + " vendor summary",
			Meta: [][2]string{
				{"Capability", sum.Capability.Name},
				{"Description", sum.Capability.Description},
				{"Status", string(sum.Capability.Status)},
				{"Domains", fmt.Sprint(sum.Capability.DomainsCount)},
				{"Attributes", fmt.Sprint(sum.Capability.AttributesCount)},
				{"Vendors", strings.Join(sum.Capability.Vendors, ", ")},
			},
			Header: []string{"Vendor", "Average", "Weighted average", "Max", "Min", "Attributes", "Range"},
		}
		for _, v := range sum.Vendors {
			t.Rows = append(t.Rows, []any{v.Vendor, v.AverageScore, v.WeightedAverage, v.MaxScore, v.MinScore, v.TotalAttributes, v.ScoreRange})
		}
		return t, nil
	case ReportRadarChart:
		radar, err := s.RadarChart(ctx, capabilityID)
		if err != nil {
			return table{}, err
		}
		t := table{Sheet: "Radar Chart", Title: radar.CapabilityName + " radar chart", Header: append([]string{"Attribute"}, radar.Vendors...)}
		for j, attribute := range radar.Attributes {
			row := []any{attribute}
			for i := range radar.Vendors {
				row = append(row, radar.Scores[i][j])
			}
			t.Rows = append(t.Rows, row)
		}
		return t, nil
	case ReportVendorComparison:
		cmp, err := s.VendorComparison(ctx, capabilityID)
		if err != nil {
			return table{}, err
		}
		t := table{Sheet: "Vendor Comparison", Title: cmp.CapabilityName + " vendor comparison", Header: append([]string{"Attribute", "Weight"}, cmp.Vendors...)}
		for j, attribute := range cmp.Attributes {
			row := []any{attribute, cmp.Weights[j]}
			for _, vendor := range cmp.Vendors {
				row = append(row, cmp.Scores[vendor][j])
			}
			t.Rows = append(t.Rows, row)
		}
		return t, nil
	case ReportScoreDistribution:
		dist, err := s.ScoreDistribution(ctx, capabilityID)
		if err != nil {
			return table{}, err
		}
		t := table{Sheet: "Score Distribution", Title: dist.CapabilityName + " score distribution", Header: append([]string{"Bucket"}, dist.Vendors...)}
		for _, bucket := range dist.Buckets {
			row := []any{bucket}
			for _, vendor := range dist.Vendors {
				row = append(row, dist.Distribution[vendor][bucket])
			}
			t.Rows = append(t.Rows, row)
		}
		return t, nil
	}
	return table{}, domain.InvalidInputError{Field: "report_type", Reason: fmt.Sprintf("unknown report type %q", reportType)}
}

// Export renders reportType as a format document and archives it under
// reports/<capability id>/<report type>-<timestamp>.<ext>.
func (s *Service) Export(ctx context.Context, capabilityID string, format Format, reportType ReportType) (ExportedReport, error) {
	if format != FormatExcel && format != FormatPDF {
		return ExportedReport{}, domain.InvalidInputError{Field: "format", Reason: fmt.Sprintf("%q is not excel or pdf", format)}
	}
	t, err := s.table(ctx, capabilityID, reportType)
	if err != nil {
		return ExportedReport{}, err
	}
	var payload []byte
	switch format {
	case FormatExcel:
		payload, err = renderExcel(t)
	case FormatPDF:
		payload, err = renderPDF(t, s.core.Now())
	}
	if err != nil {
		return ExportedReport{}, fmt.Errorf("render %s %s: %w", reportType, format, err)
	}

	stamp := s.core.Now().UTC().Format("20060102T150405Z")
	out := ExportedReport{
		Filename:    fmt.Sprintf("%s-%s.%s", reportType, stamp, format.Extension()),
		ContentType: format.ContentType(),
		Payload:     payload,
	}
	if s.archive == nil {
		return out, nil
	}
	opts := archive.PutOptions{
		ContentType: out.ContentType,
		Metadata:    map[string]string{"capability_id": capabilityID, "report_type": string(reportType), "format": string(format)},
	}
	info, err := s.archive.Put(ctx, exportKey(capabilityID, out.Filename), bytes.NewReader(payload), opts)
	if errors.Is(err, archive.ErrExists) {
		out.Filename = fmt.Sprintf("%s-%s-%s.%s", reportType, stamp, uuid.NewString()[:8], format.Extension())
		info, err = s.archive.Put(ctx, exportKey(capabilityID, out.Filename), bytes.NewReader(payload), opts)
	}
	if err != nil {
		s.core.Logger().Error("archive export failed", "capability", capabilityID, "report_type", reportType, "error", err)
		return ExportedReport{}, fmt.Errorf("archive export: %w", err)
	}
	s.core.Logger().Info("report exported", "capability", capabilityID, "key", info.Key, "size", info.Size)
	out.Artifact = &info
	return out, nil
}

func exportPrefix(capabilityID string) string {
	return path.Join("reports", capabilityID) + "/"
}

func exportKey(capabilityID, filename string) string {
	return exportPrefix(capabilityID) + filename
}

// ListExports returns the archived exports of a capability ordered by key.
// Each entry carries a download link when the archive can sign one.
func (s *Service) ListExports(ctx context.Context, capabilityID string) ([]archive.Info, error) {
	out := []archive.Info{}
	err := s.core.Observe(ctx, "list_exports", func(ctx context.Context) error {
		if err := s.requireCapability(ctx, capabilityID); err != nil {
			return err
		}
		if s.archive == nil {
			return nil
		}
		infos, err := s.archive.List(ctx, exportPrefix(capabilityID))
		if err != nil {
			return err
		}
		for _, info := range infos {
			link, err := s.archive.PresignURL(ctx, info.Key, archive.SignedURLOptions{Method: "GET", Expiry: s.urlExpiry})
			switch {
			case err == nil:
				info.URL = link
			case !errors.Is(err, archive.ErrUnsupported):
				s.core.Logger().Warn("sign export url failed", "key", info.Key, "error", err)
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

// OpenExport returns an archived export of a capability for download.
func (s *Service) OpenExport(ctx context.Context, capabilityID, filename string) (archive.Info, io.ReadCloser, error) {
	if err := s.requireCapability(ctx, capabilityID); err != nil {
		return archive.Info{}, nil, err
	}
	if s.archive == nil || filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return archive.Info{}, nil, domain.ErrNotFound{Entity: "export", ID: filename}
	}
	info, rc, err := s.archive.Get(ctx, exportKey(capabilityID, filename))
	if errors.Is(err, archive.ErrNotFound) {
		return archive.Info{}, nil, domain.ErrNotFound{Entity: "export", ID: filename}
	}
	return info, rc, err
}

func (s *Service) requireCapability(ctx context.Context, capabilityID string) error {
	return s.core.View(ctx, func(view core.TransactionView) error {
		if _, ok := view.FindCapability(capabilityID); !ok {
			return domain.ErrNotFound{Entity: domain.EntityCapability, ID: capabilityID}
		}
		return nil
	})
}
