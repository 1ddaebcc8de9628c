package httpapi_test

import (
	"net/http"
	"sort"
	"strings"
	"testing"

	"capresearch/internal/entitymodel"

	"gopkg.in/yaml.v3"
)

// pathValues fills the templated segments of documented routes.
var pathValues = strings.NewReplacer(
	"{id}", "missing",
	"{domainID}", "dom-1",
	"{attributeID}", "attr-1",
	"{scoreID}", "score-1",
	"{step}", "initialize",
	"{report}", "summary",
	"{format}", "pdf",
	"{filename}", "summary.pdf",
)

// TestDocumentedRoutesAreServed walks every path and method of the embedded
// OpenAPI document and checks the handler routes it.
func TestDocumentedRoutesAreServed(t *testing.T) {
	var doc struct {
		Paths map[string]map[string]yaml.Node `yaml:"paths"`
	}
	if err := yaml.Unmarshal(entitymodel.OpenAPISpec(), &doc); err != nil {
		t.Fatalf("parse spec: %v", err)
	}
	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	a := newAPI(t)
	checked := 0
	for _, p := range paths {
		for method := range doc.Paths[p] {
			verb := strings.ToUpper(method)
			switch verb {
			case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
			default:
				continue
			}
			resp := a.do(verb, pathValues.Replace(p), nil, "")
			if resp.Code == http.StatusMethodNotAllowed {
				t.Errorf("%s %s is documented but not routed", verb, p)
			}
			if p == "/api/capabilities" || p == "/healthz" || p == "/api/vendors" || p == "/api/openapi.yaml" || p == "/metrics" {
				if resp.Code == http.StatusNotFound {
					t.Errorf("%s %s returned 404", verb, p)
				}
			}
			checked++
		}
	}
	if checked < 25 {
		t.Fatalf("expected the document to declare at least 25 operations, saw %d", checked)
	}
}
