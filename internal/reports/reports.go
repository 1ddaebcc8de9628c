// Package reports projects completed vendor research into chart-ready
// read models and renders them as Excel or PDF documents.
package reports

import (
	"context"
	"math"
	"time"

	"capresearch/internal/archive"
	"capresearch/internal/core"
	"capresearch/pkg/domain"
)

// Service builds reports from the core service state.
type Service struct {
	core      *core.Service
	archive   archive.Store
	urlExpiry time.Duration
}

// Option configures a report Service.
type Option func(*Service)

// WithURLExpiry sets the lifetime of the download links returned by
// ListExports. Non-positive values keep the archive default.
func WithURLExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.urlExpiry = d
		}
	}
}

// New returns a report service. A nil archive disables archiving of exports.
func New(svc *core.Service, store archive.Store, opts ...Option) *Service {
	s := &Service{core: svc, archive: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RadarChart is the vendor by attribute score matrix.
type RadarChart struct {
	CapabilityID   string   `json:"capability_id"`
	CapabilityName string   `json:"capability_name"`
	Vendors        []string `json:"vendors"`
	Attributes     []string `json:"attributes"`
	// Scores is indexed [vendor][attribute]; missing scores are 0.
	Scores [][]int `json:"scores"`
}

// VendorComparison lists each vendor's scores next to the attribute weights.
type VendorComparison struct {
	CapabilityID   string           `json:"capability_id"`
	CapabilityName string           `json:"capability_name"`
	Vendors        []string         `json:"vendors"`
	Attributes     []string         `json:"attributes"`
	Scores         map[string][]int `json:"scores"`
	Weights        []int            `json:"weights"`
}

// ScoreDistribution counts each vendor's scores per bucket.
type ScoreDistribution struct {
	CapabilityID   string                    `json:"capability_id"`
	CapabilityName string                    `json:"capability_name"`
	Buckets        []string                  `json:"buckets"`
	Vendors        []string                  `json:"vendors"`
	Distribution   map[string]map[string]int `json:"distribution"`
}

// CapabilitySummary is the capability metadata shown on the summary report.
type CapabilitySummary struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Status          domain.Status `json:"status"`
	DomainsCount    int           `json:"domains_count"`
	AttributesCount int           `json:"attributes_count"`
	Vendors         []string      `json:"vendors"`
}

// VendorSummary aggregates one vendor's scores.
type VendorSummary struct {
	Vendor          string  `json:"vendor"`
	AverageScore    float64 `json:"average_score"`
	WeightedAverage float64 `json:"weighted_average"`
	MaxScore        int     `json:"max_score"`
	MinScore        int     `json:"min_score"`
	TotalAttributes int     `json:"total_attributes"`
	ScoreRange      int     `json:"score_range"`
}

// Summary is the capability overview with per-vendor statistics.
type Summary struct {
	Capability CapabilitySummary `json:"capability"`
	Vendors    []VendorSummary   `json:"vendor_summaries"`
}

// dataset is the completed research of one capability as the reports see it.
type dataset struct {
	capability domain.Capability
	domains    int
	vendors    []string
	attributes []domain.Attribute
	// scores maps attribute name then vendor to the numeric score.
	scores map[string]map[string]int
}

func (d dataset) attributeNames() []string {
	out := make([]string, len(d.attributes))
	for i, a := range d.attributes {
		out[i] = a.AttributeName
	}
	return out
}

func (d dataset) score(attribute, vendor string) (int, bool) {
	n, ok := d.scores[attribute][vendor]
	return n, ok
}

// load reads the research of a completed capability. Any other status is an
// IncompleteResearchError.
func (s *Service) load(ctx context.Context, op, capabilityID string) (dataset, error) {
	var ds dataset
	err := s.core.Observe(ctx, op, func(ctx context.Context) error {
		return s.core.View(ctx, func(view core.TransactionView) error {
			c, ok := view.FindCapability(capabilityID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCapability, ID: capabilityID}
			}
			if c.Status != domain.StatusCompleted {
				return domain.IncompleteResearchError{CapabilityID: c.ID, Status: c.Status}
			}
			ds = dataset{
				capability: c,
				domains:    len(view.ListDomains(c.ID)),
				vendors:    s.core.Vendors(),
				scores:     make(map[string]map[string]int),
			}
			for _, a := range view.ListAttributes(c.ID) {
				if a.IsActive {
					ds.attributes = append(ds.attributes, a)
				}
			}
			for _, vs := range view.ListVendorScores(c.ID) {
				if ds.scores[vs.AttributeName] == nil {
					ds.scores[vs.AttributeName] = make(map[string]int)
				}
				ds.scores[vs.AttributeName][vs.Vendor] = vs.ScoreNumeric
			}
			return nil
		})
	})
	return ds, err
}

// RadarChart returns the score matrix of a completed capability.
func (s *Service) RadarChart(ctx context.Context, capabilityID string) (RadarChart, error) {
	ds, err := s.load(ctx, "report_radar_chart", capabilityID)
	if err != nil {
		return RadarChart{}, err
	}
	out := RadarChart{
		CapabilityID:   ds.capability.ID,
		CapabilityName: ds.capability.Name,
		Vendors:        ds.vendors,
		Attributes:     ds.attributeNames(),
		Scores:         make([][]int, len(ds.vendors)),
	}
	for i, vendor := range ds.vendors {
		row := make([]int, len(ds.attributes))
		for j, a := range ds.attributes {
			row[j], _ = ds.score(a.AttributeName, vendor)
		}
		out.Scores[i] = row
	}
	return out, nil
}

// VendorComparison returns per-vendor score series with attribute weights.
func (s *Service) VendorComparison(ctx context.Context, capabilityID string) (VendorComparison, error) {
	ds, err := s.load(ctx, "report_vendor_comparison", capabilityID)
	if err != nil {
		return VendorComparison{}, err
	}
	out := VendorComparison{
		CapabilityID:   ds.capability.ID,
		CapabilityName: ds.capability.Name,
		Vendors:        ds.vendors,
		Attributes:     ds.attributeNames(),
		Scores:         make(map[string][]int, len(ds.vendors)),
		Weights:        make([]int, len(ds.attributes)),
	}
	for j, a := range ds.attributes {
		out.Weights[j] = a.Weight
	}
	for _, vendor := range ds.vendors {
		series := make([]int, len(ds.attributes))
		for j, a := range ds.attributes {
			series[j], _ = ds.score(a.AttributeName, vendor)
		}
		out.Scores[vendor] = series
	}
	return out, nil
}

// ScoreDistribution counts scores per vendor in the buckets 1-2, 3 and 4-5.
func (s *Service) ScoreDistribution(ctx context.Context, capabilityID string) (ScoreDistribution, error) {
	ds, err := s.load(ctx, "report_score_distribution", capabilityID)
	if err != nil {
		return ScoreDistribution{}, err
	}
	out := ScoreDistribution{
		CapabilityID:   ds.capability.ID,
		CapabilityName: ds.capability.Name,
		Buckets:        domain.ScoreBuckets(),
		Vendors:        ds.vendors,
		Distribution:   make(map[string]map[string]int, len(ds.vendors)),
	}
	for _, vendor := range ds.vendors {
		counts := make(map[string]int, len(out.Buckets))
		for _, b := range out.Buckets {
			counts[b] = 0
		}
		for _, a := range ds.attributes {
			if n, ok := ds.score(a.AttributeName, vendor); ok {
				counts[domain.ScoreBucket(n)]++
			}
		}
		out.Distribution[vendor] = counts
	}
	return out, nil
}

// Summary returns capability metadata and per-vendor statistics.
func (s *Service) Summary(ctx context.Context, capabilityID string) (Summary, error) {
	ds, err := s.load(ctx, "report_summary", capabilityID)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{
		Capability: CapabilitySummary{
			ID:              ds.capability.ID,
			Name:            ds.capability.Name,
			Description:     ds.capability.Description,
			Status:          ds.capability.Status,
			DomainsCount:    ds.domains,
			AttributesCount: len(ds.attributes),
			Vendors:         ds.vendors,
		},
		Vendors: make([]VendorSummary, 0, len(ds.vendors)),
	}
	for _, vendor := range ds.vendors {
		vs := VendorSummary{Vendor: vendor}
		var sum, weighted, weights int
		for _, a := range ds.attributes {
			n, ok := ds.score(a.AttributeName, vendor)
			if !ok {
				continue
			}
			if vs.TotalAttributes == 0 || n > vs.MaxScore {
				vs.MaxScore = n
			}
			if vs.TotalAttributes == 0 || n < vs.MinScore {
				vs.MinScore = n
			}
			vs.TotalAttributes++
			sum += n
			weighted += n * a.Weight
			weights += a.Weight
		}
		if vs.TotalAttributes > 0 {
			vs.AverageScore = round2(float64(sum) / float64(vs.TotalAttributes))
			vs.ScoreRange = vs.MaxScore - vs.MinScore
		}
		if weights > 0 {
			vs.WeightedAverage = round2(float64(weighted) / float64(weights))
		}
		out.Vendors = append(out.Vendors, vs)
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
