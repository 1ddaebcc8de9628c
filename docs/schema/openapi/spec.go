// Package openapi embeds the capresearch REST contract for runtime distribution.
package openapi

import _ "embed"

// APISpec contains the OpenAPI document describing the REST surface.
//
//go:embed capresearch.yaml
var APISpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), APISpec...)
}
