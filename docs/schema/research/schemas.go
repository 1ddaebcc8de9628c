// Package research embeds the JSON schemas for uploaded research payloads.
package research

import _ "embed"

// DomainAnalysis is the draft-07 schema for domain analysis uploads.
//
//go:embed domain-analysis.schema.json
var DomainAnalysis string

// ComprehensiveResearch is the draft-07 schema for comprehensive research uploads.
//
//go:embed comprehensive-research.schema.json
var ComprehensiveResearch string
