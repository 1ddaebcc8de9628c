package domain

import "testing"

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name  string
		facts StatusFacts
		want  Status
	}{
		{"no domains", StatusFacts{Domains: 0, Attributes: 3, ReviewCompleted: true, ComprehensiveReady: true, FullyScored: true}, StatusNew},
		{"no attributes", StatusFacts{Domains: 2, Attributes: 0}, StatusNew},
		{"awaiting review", StatusFacts{Domains: 2, Attributes: 5}, StatusReview},
		{"reviewed", StatusFacts{Domains: 2, Attributes: 5, ReviewCompleted: true}, StatusReady},
		{"ready flag without coverage", StatusFacts{Domains: 2, Attributes: 5, ReviewCompleted: true, ComprehensiveReady: true}, StatusReady},
		{"completed", StatusFacts{Domains: 2, Attributes: 5, ReviewCompleted: true, ComprehensiveReady: true, FullyScored: true}, StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.facts); got != tc.want {
				t.Fatalf("DeriveStatus(%+v) = %s, want %s", tc.facts, got, tc.want)
			}
		})
	}
}

func TestComputeCoverage(t *testing.T) {
	attrs := []Attribute{
		{AttributeName: "Rating", IsActive: true},
		{AttributeName: "Mediation", IsActive: true},
		{AttributeName: "Legacy", IsActive: false},
	}
	scores := []VendorScore{
		{AttributeName: "Rating", Vendor: "amdocs"},
		{AttributeName: "Rating", Vendor: "ericsson"},
		{AttributeName: "Mediation", Vendor: "amdocs"},
		{AttributeName: "Legacy", Vendor: "amdocs"},
	}
	cov := ComputeCoverage(attrs, scores, []string{"amdocs", "ericsson"})
	if cov.Expected != 4 || cov.Present != 3 {
		t.Fatalf("unexpected coverage %+v", cov)
	}
	if cov.Complete() {
		t.Fatalf("coverage should be incomplete")
	}
	if len(cov.Missing) != 1 || cov.Missing[0] != (MissingScore{AttributeName: "Mediation", Vendor: "ericsson"}) {
		t.Fatalf("unexpected missing %+v", cov.Missing)
	}

	scores = append(scores, VendorScore{AttributeName: "Mediation", Vendor: "ericsson"})
	if !ComputeCoverage(attrs, scores, []string{"amdocs", "ericsson"}).Complete() {
		t.Fatalf("expected complete coverage")
	}
	if ComputeCoverage(nil, nil, []string{"amdocs"}).Complete() {
		t.Fatalf("empty capability must not be complete")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses() {
		if !s.Valid() {
			t.Fatalf("status %s should be valid", s)
		}
	}
	if Status("archived").Valid() {
		t.Fatalf("unexpected valid status")
	}
}
