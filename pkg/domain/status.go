package domain

import "sort"

// StatusFacts are the observable artifacts a capability status is derived from.
type StatusFacts struct {
	Domains            int
	Attributes         int
	ReviewCompleted    bool
	ComprehensiveReady bool
	// FullyScored is true when every active attribute has a score for every configured vendor.
	FullyScored bool
}

// DeriveStatus computes the status implied by the facts. It never looks at a
// manually pinned status.
func DeriveStatus(f StatusFacts) Status {
	switch {
	case f.Domains == 0 || f.Attributes == 0:
		return StatusNew
	case f.ComprehensiveReady && f.FullyScored:
		return StatusCompleted
	case !f.ReviewCompleted:
		return StatusReview
	default:
		return StatusReady
	}
}

// MissingScore names an (attribute, vendor) pair without a vendor score.
type MissingScore struct {
	AttributeName string `json:"attribute_name"`
	Vendor        string `json:"vendor"`
}

// Coverage summarises vendor-score completeness for one capability.
type Coverage struct {
	Expected int            `json:"expected"`
	Present  int            `json:"present"`
	Missing  []MissingScore `json:"missing,omitempty"`
}

// Complete reports whether every expected score is present. A capability with
// no active attributes or no vendors is never complete.
func (c Coverage) Complete() bool {
	return c.Expected > 0 && len(c.Missing) == 0
}

// ComputeCoverage checks that every active attribute has a score per vendor.
func ComputeCoverage(attributes []Attribute, scores []VendorScore, vendors []string) Coverage {
	have := make(map[[2]string]struct{}, len(scores))
	for _, s := range scores {
		have[[2]string{s.AttributeName, s.Vendor}] = struct{}{}
	}
	names := make(map[string]struct{})
	for _, a := range attributes {
		if a.IsActive {
			names[a.AttributeName] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(names))
	for n := range names {
		ordered = append(ordered, n)
	}
	sort.Strings(ordered)

	var cov Coverage
	for _, name := range ordered {
		for _, vendor := range vendors {
			cov.Expected++
			if _, ok := have[[2]string{name, vendor}]; ok {
				cov.Present++
				continue
			}
			cov.Missing = append(cov.Missing, MissingScore{AttributeName: name, Vendor: vendor})
		}
	}
	return cov
}
