package workflow

import (
	"context"
	"strings"
	"text/template"

	"capresearch/internal/core"
	"capresearch/pkg/domain"
)

// PromptDocument is a generated research prompt.
type PromptDocument struct {
	CapabilityID   string       `json:"capability_id"`
	CapabilityName string       `json:"capability_name"`
	PromptType     ResearchType `json:"prompt_type"`
	Vendors        []string     `json:"vendors"`
	Content        string       `json:"content"`
}

type promptDomain struct {
	Name        string
	Description string
	Attributes  []domain.Attribute
}

type promptData struct {
	Name        string
	Description string
	Domains     []promptDomain
	Vendors     []string
	Example     string
}

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

var domainAnalysisTemplate = template.Must(template.New(string(DomainAnalysis)).Funcs(promptFuncs).Parse(`You are a telecom BSS/OSS analyst. Perform a domain analysis of the capability "{{.Name}}".
{{- if .Description}}

Capability description: {{.Description}}
{{- end}}
{{- if .Domains}}

The current framework already defines these domains and attributes:
{{- range .Domains}}
- {{.Name}}{{if .Description}}: {{.Description}}{{end}}
{{- range .Attributes}}
  - {{.AttributeName}} (weight {{.Weight}}){{if .Definition}}: {{.Definition}}{{end}}
{{- end}}
{{- end}}
{{- else}}

No domains have been defined yet.
{{- end}}

Vendors under evaluation: {{if .Vendors}}{{join .Vendors ", "}}{{else}}none configured{{end}}.

Identify gaps in the framework, review market trends and recommend new domains.
Weights are integers between 1 and 100. Map attributes to TM Forum standards where possible.
Respond with JSON only, using exactly this structure:

{{.Example}}
`))

var comprehensiveTemplate = template.Must(template.New(string(ComprehensiveResearch)).Funcs(promptFuncs).Parse(`You are a telecom BSS/OSS analyst. Research how each vendor supports the capability "{{.Name}}".
{{- if .Description}}

Capability description: {{.Description}}
{{- end}}

Score every attribute below for each of these vendors: {{if .Vendors}}{{join .Vendors ", "}}{{else}}none configured{{end}}.
{{- range .Domains}}

Domain: {{.Name}}
{{- range .Attributes}}
- {{.AttributeName}} (weight {{.Weight}}){{if .Definition}}: {{.Definition}}{{end}}
{{- end}}
{{- end}}

Use the scale 1 - Poor, 2 - Fair, 3 - Good, 4 - Very Good, 5 - Excellent.
Support each score with tagged observations, evidence URLs and a short score decision.
Respond with JSON only, using exactly this structure:

{{.Example}}
`))

const domainAnalysisExample = `{
  "capability": "<capability name>",
  "gap_analysis": {"summary": "...", "gaps": ["..."]},
  "current_framework": {
    "domains": [
      {"domain_name": "...", "description": "...",
       "attributes": [{"attribute_name": "...", "definition": "...",
                       "tm_forum_mapping": "...", "importance": "high|medium|low", "weight": 40}]}
    ]
  },
  "market_research": {"trends": ["..."]},
  "recommendations": {"new_domains": [], "notes": "..."}
}`

const comprehensiveExample = `{
  "capability": "<capability name>",
  "research_type": "comprehensive",
  "research_date": "YYYY-MM-DD",
  "attributes": [
    {"attribute_name": "...", "domain_name": "...", "definition": "...", "weight": 40,
     "vendors": {
       "<vendor>": {"score": "4 - Very Good",
                    "observation": [{"tag": "strength", "text": "..."}],
                    "evidence": ["https://..."],
                    "score_decision": "..."}
     }}
  ]
}`

// GeneratePrompt fills the prompt template for promptType from the current
// state of the capability. The result depends only on stored data.
func (s *Service) GeneratePrompt(ctx context.Context, capabilityID string, promptType ResearchType) (PromptDocument, error) {
	tmpl, example := domainAnalysisTemplate, domainAnalysisExample
	switch promptType {
	case DomainAnalysis:
	case ComprehensiveResearch:
		tmpl, example = comprehensiveTemplate, comprehensiveExample
	default:
		return PromptDocument{}, domain.InvalidInputError{Field: "prompt_type", Reason: "must be domain_analysis or comprehensive_research"}
	}

	var data promptData
	var doc PromptDocument
	err := s.core.Observe(ctx, "generate_prompt", func(ctx context.Context) error {
		return s.core.View(ctx, func(view core.TransactionView) error {
			c, ok := view.FindCapability(capabilityID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCapability, ID: capabilityID}
			}
			data = promptData{Name: c.Name, Description: c.Description, Vendors: s.core.Vendors(), Example: example}
			byDomain := make(map[string][]domain.Attribute)
			for _, a := range view.ListAttributes(c.ID) {
				if a.IsActive {
					byDomain[a.DomainName] = append(byDomain[a.DomainName], a)
				}
			}
			for _, d := range view.ListDomains(c.ID) {
				if promptType == ComprehensiveResearch && len(byDomain[d.DomainName]) == 0 {
					continue
				}
				data.Domains = append(data.Domains, promptDomain{Name: d.DomainName, Description: d.Description, Attributes: byDomain[d.DomainName]})
			}
			doc = PromptDocument{CapabilityID: c.ID, CapabilityName: c.Name, PromptType: promptType, Vendors: data.Vendors}
			return nil
		})
	})
	if err != nil {
		return PromptDocument{}, err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return PromptDocument{}, err
	}
	doc.Content = b.String()
	return doc, nil
}
