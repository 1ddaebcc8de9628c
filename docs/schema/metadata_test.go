package schema

import (
	"encoding/json"
	"testing"
)

func TestModelVersion(t *testing.T) {
	got, err := ModelVersion()
	if err != nil {
		t.Fatalf("ModelVersion: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty research model version")
	}

	var doc modelDoc
	if err := json.Unmarshal(researchModel, &doc); err != nil {
		t.Fatalf("unmarshal model: %v", err)
	}
	if got != doc.Version {
		t.Fatalf("version mismatch: got %q want %q", got, doc.Version)
	}
}

func TestModelMetadata(t *testing.T) {
	got, err := ModelMetadata()
	if err != nil {
		t.Fatalf("ModelMetadata: %v", err)
	}
	if got.Status == "" || got.Source == "" {
		t.Fatalf("expected status and source, got %+v", got)
	}
}

func TestEntitiesMatchEntityTypes(t *testing.T) {
	names := EntityNames()
	want := []string{"attribute", "capability", "capability_tracker", "domain", "vendor_score"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	score, ok := LookupEntity("vendor_score")
	if !ok || score.Table != "vendor_scores" || len(score.NaturalKey) != 3 {
		t.Fatalf("unexpected vendor_score entity %+v", score)
	}
	if _, ok := LookupEntity("organism"); ok {
		t.Fatal("unexpected entity")
	}
}
