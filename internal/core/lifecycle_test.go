package core

import (
	"testing"

	"capresearch/pkg/domain"
)

func TestLifecycleAllows(t *testing.T) {
	cases := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusNew, domain.StatusNew, true},
		{domain.StatusNew, domain.StatusReview, true},
		{domain.StatusNew, domain.StatusCompleted, true},
		{domain.StatusReview, domain.StatusReady, true},
		{domain.StatusReady, domain.StatusCompleted, true},
		{domain.StatusReview, domain.StatusNew, false},
		{domain.StatusCompleted, domain.StatusReady, false},
		{domain.StatusReady, domain.StatusReview, false},
	}
	var lc Lifecycle
	for _, tc := range cases {
		got, err := lc.Allows("cap-1", tc.from, tc.to)
		if err != nil {
			t.Fatalf("%s -> %s: %v", tc.from, tc.to, err)
		}
		if got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestLifecycleRejectsUnknownStatus(t *testing.T) {
	var lc Lifecycle
	if _, err := lc.Allows("cap-1", domain.StatusNew, domain.Status("archived")); err == nil {
		t.Fatalf("expected unknown status to error")
	}
}
