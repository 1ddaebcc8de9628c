package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"capresearch/pkg/domain"
)

// ResearchType names one of the two research payload contracts.
type ResearchType string

const (
	DomainAnalysis        ResearchType = "domain_analysis"
	ComprehensiveResearch ResearchType = "comprehensive_research"
)

// ParseResearchType accepts the canonical names plus their dashed forms.
func ParseResearchType(raw string) (ResearchType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_") {
	case string(DomainAnalysis), "domain":
		return DomainAnalysis, nil
	case string(ComprehensiveResearch), "comprehensive":
		return ComprehensiveResearch, nil
	}
	return "", domain.InvalidInputError{Field: "research_type", Reason: fmt.Sprintf("%q is not domain_analysis or comprehensive_research", raw)}
}

// DomainAnalysisPayload is the uploaded domain analysis document.
type DomainAnalysisPayload struct {
	Capability       string          `json:"capability"`
	GapAnalysis      json.RawMessage `json:"gap_analysis,omitempty"`
	CurrentFramework Framework       `json:"current_framework"`
	MarketResearch   json.RawMessage `json:"market_research,omitempty"`
	Recommendations  Recommendations `json:"recommendations"`
}

// Framework lists the domains currently in use for a capability.
type Framework struct {
	Domains []DomainEntry `json:"domains"`
}

// Recommendations carries domains proposed in addition to the current framework.
type Recommendations struct {
	NewDomains []DomainEntry `json:"new_domains,omitempty"`
}

// DomainEntry is one domain block with its attributes.
type DomainEntry struct {
	DomainName  string           `json:"domain_name"`
	Description string           `json:"description,omitempty"`
	Attributes  []AttributeEntry `json:"attributes"`
}

// AttributeEntry is one attribute inside a domain block.
type AttributeEntry struct {
	AttributeName  string `json:"attribute_name"`
	Definition     string `json:"definition,omitempty"`
	TMForumMapping string `json:"tm_forum_mapping,omitempty"`
	Importance     string `json:"importance,omitempty"`
	Weight         int    `json:"weight"`
}

// Domains returns current_framework.domains followed by recommendations.new_domains.
func (p DomainAnalysisPayload) Domains() []DomainEntry {
	out := make([]DomainEntry, 0, len(p.CurrentFramework.Domains)+len(p.Recommendations.NewDomains))
	out = append(out, p.CurrentFramework.Domains...)
	return append(out, p.Recommendations.NewDomains...)
}

// ComprehensivePayload is the uploaded comprehensive research document.
type ComprehensivePayload struct {
	Capability   string              `json:"capability"`
	ResearchType string              `json:"research_type,omitempty"`
	ResearchDate string              `json:"research_date,omitempty"`
	Attributes   []ResearchAttribute `json:"attributes"`
}

// ResearchAttribute scores one attribute for each researched vendor.
type ResearchAttribute struct {
	AttributeName string                    `json:"attribute_name"`
	DomainName    string                    `json:"domain_name,omitempty"`
	Definition    string                    `json:"definition,omitempty"`
	Weight        int                       `json:"weight"`
	Vendors       map[string]VendorResearch `json:"vendors"`
}

// VendorResearch is the research block for one vendor.
type VendorResearch struct {
	Score         ScoreValue           `json:"score"`
	Observation   []domain.Observation `json:"observation,omitempty"`
	Evidence      []string             `json:"evidence,omitempty"`
	ScoreDecision string               `json:"score_decision,omitempty"`
}

// ScoreValue holds a score given either as a label string or a bare number.
type ScoreValue string

// UnmarshalJSON accepts "4 - Very Good" as well as 4.
func (s *ScoreValue) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*s = ScoreValue(label)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("score must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("score must be a string or number: %w", err)
	}
	*s = ScoreValue(n.String())
	return nil
}

// SortedVendors returns the vendor keys in lexical order.
func (a ResearchAttribute) SortedVendors() []string {
	keys := make([]string, 0, len(a.Vendors))
	for k := range a.Vendors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeDocument parses data as a JSON object.
func decodeDocument(data []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.ParseError{Err: err}
	}
	if doc == nil {
		return nil, domain.ParseError{Err: fmt.Errorf("research document must be a json object")}
	}
	return doc, nil
}

// detectType guesses the contract a document was written for from its top-level keys.
func detectType(doc map[string]json.RawMessage) ResearchType {
	_, framework := doc["current_framework"]
	_, gaps := doc["gap_analysis"]
	_, attributes := doc["attributes"]
	switch {
	case framework || gaps:
		return DomainAnalysis
	case attributes:
		return ComprehensiveResearch
	}
	return ""
}
