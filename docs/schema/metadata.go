// Package schema exposes embedded research model metadata (version, entity keys) for runtime use.
package schema

import (
	_ "embed"
	"encoding/json"
	"sort"
	"sync"
)

// Metadata captures the high-level metadata block of the research model.
type Metadata struct {
	Source string `json:"source"`
	Status string `json:"status"`
}

// Entity describes where a research entity is stored and how it is keyed.
type Entity struct {
	Table      string   `json:"table"`
	NaturalKey []string `json:"natural_key"`
}

type modelDoc struct {
	Version  string            `json:"version"`
	Metadata Metadata          `json:"metadata"`
	Entities map[string]Entity `json:"entities"`
}

//go:embed research-model.json
var researchModel []byte

var (
	modelOnce sync.Once
	model     modelDoc
	modelErr  error
)

func load() (modelDoc, error) {
	modelOnce.Do(func() {
		modelErr = json.Unmarshal(researchModel, &model)
	})
	return model, modelErr
}

// ModelVersion returns the research model version.
func ModelVersion() (string, error) {
	doc, err := load()
	return doc.Version, err
}

// ModelMetadata returns the research model metadata block.
func ModelMetadata() (Metadata, error) {
	doc, err := load()
	return doc.Metadata, err
}

// EntityNames lists the modelled entities in sorted order.
func EntityNames() []string {
	doc, err := load()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(doc.Entities))
	for name := range doc.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupEntity returns the storage description of one entity.
func LookupEntity(name string) (Entity, bool) {
	doc, err := load()
	if err != nil {
		return Entity{}, false
	}
	e, ok := doc.Entities[name]
	return e, ok
}
