// Package entitymodel exposes runtime helpers for serving the embedded research
// model contracts.
package entitymodel

import (
	"net/http"

	"capresearch/docs/schema/openapi"
)

// OpenAPISpec returns a copy of the embedded REST contract.
func OpenAPISpec() []byte {
	return openapi.Spec()
}

// NewOpenAPIHandler returns an http.Handler that serves the embedded OpenAPI
// YAML with a static content-type.
func NewOpenAPIHandler() http.Handler {
	spec := OpenAPISpec()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(spec)
	})
}
