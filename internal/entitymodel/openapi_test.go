package entitymodel

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestOpenAPISpecReturnsCopy(t *testing.T) {
	spec := OpenAPISpec()
	if len(spec) == 0 {
		t.Fatal("expected non-empty OpenAPI spec")
	}
	spec[0] ^= 0xFF
	if bytes.Equal(spec, OpenAPISpec()) {
		t.Fatalf("OpenAPISpec did not return a copy")
	}
}

func TestOpenAPIVersionTracksResearchModel(t *testing.T) {
	var doc struct {
		Info struct {
			Version string `yaml:"version"`
		} `yaml:"info"`
	}
	if err := yaml.Unmarshal(OpenAPISpec(), &doc); err != nil {
		t.Fatalf("parse spec: %v", err)
	}
	if doc.Info.Version == "" || doc.Info.Version != Version() {
		t.Fatalf("openapi info.version %q must equal research model version %q", doc.Info.Version, Version())
	}
}

func TestNewOpenAPIHandlerServesEmbeddedSpec(t *testing.T) {
	rec := httptest.NewRecorder()
	NewOpenAPIHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.yaml", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/yaml" {
		t.Fatalf("expected Content-Type application/yaml, got %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), OpenAPISpec()) {
		t.Fatalf("handler body does not match embedded spec")
	}
}
