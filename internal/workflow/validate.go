package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"capresearch/internal/core"
	"capresearch/pkg/domain"

	"github.com/xeipuuv/gojsonschema"
)

// UploadResult summarises an uploaded research file.
type UploadResult struct {
	CapabilityID string          `json:"capability_id"`
	ExpectedType ResearchType    `json:"expected_type"`
	Filename     string          `json:"filename"`
	SizeBytes    int64           `json:"size_bytes"`
	Domains      int             `json:"domains"`
	Attributes   int             `json:"attributes"`
	Vendors      []string        `json:"vendors"`
	Data         json.RawMessage `json:"data"`
}

// ValidationResult itemises the outcome of ValidateResearchData. Only errors
// block processing.
type ValidationResult struct {
	Valid        bool         `json:"valid"`
	ResearchType ResearchType `json:"research_type"`
	Errors       []string     `json:"errors"`
	Warnings     []string     `json:"warnings"`
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (s *Service) requireCapability(ctx context.Context, capabilityID string) (domain.Capability, error) {
	var c domain.Capability
	err := s.core.View(ctx, func(view core.TransactionView) error {
		var ok bool
		c, ok = view.FindCapability(capabilityID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityCapability, ID: capabilityID}
		}
		return nil
	})
	return c, err
}

// schemaIssues validates data against the schema of kind.
func (s *Service) schemaIssues(kind ResearchType, data []byte) ([]string, error) {
	schema, ok := s.schemas[kind]
	if !ok {
		return nil, domain.InvalidInputError{Field: "research_type", Reason: fmt.Sprintf("unknown research type %q", kind)}
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, domain.ParseError{Err: err}
	}
	var issues []string
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return issues, nil
}

// UploadResearchFile reads and checks an uploaded research file against
// expected. It never writes to the store.
func (s *Service) UploadResearchFile(ctx context.Context, capabilityID, filename string, r io.Reader, expected ResearchType) (UploadResult, error) {
	if _, err := s.requireCapability(ctx, capabilityID); err != nil {
		return UploadResult{}, err
	}
	if _, ok := s.schemas[expected]; !ok {
		return UploadResult{}, domain.InvalidInputError{Field: "expected_type", Reason: fmt.Sprintf("unknown research type %q", expected)}
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return UploadResult{}, domain.InvalidInputError{Field: "file", Reason: fmt.Sprintf("larger than %d bytes", s.maxBytes)}
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return UploadResult{}, err
	}
	issues, err := s.schemaIssues(expected, data)
	if err != nil {
		return UploadResult{}, err
	}
	if detected := detectType(doc); len(issues) > 0 || detected != expected {
		return UploadResult{}, domain.TypeMismatchError{Expected: string(expected), Detected: string(detected), Issues: issues}
	}

	out := UploadResult{CapabilityID: capabilityID, ExpectedType: expected, Filename: filename, SizeBytes: int64(len(data)), Vendors: []string{}, Data: json.RawMessage(data)}
	switch expected {
	case DomainAnalysis:
		var p DomainAnalysisPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return UploadResult{}, domain.ParseError{Err: err}
		}
		for _, d := range p.Domains() {
			out.Domains++
			out.Attributes += len(d.Attributes)
		}
	case ComprehensiveResearch:
		var p ComprehensivePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return UploadResult{}, domain.ParseError{Err: err}
		}
		seen := make(map[string]struct{})
		for _, a := range p.Attributes {
			out.Attributes++
			for _, v := range a.SortedVendors() {
				name, _ := s.core.CanonicalVendor(v)
				if _, dup := seen[name]; !dup {
					seen[name] = struct{}{}
					out.Vendors = append(out.Vendors, name)
				}
			}
		}
	}
	return out, nil
}

// ValidateResearchData runs structural then referential validation of a
// research document. Malformed JSON is returned as a ParseError; every other
// problem is itemised in the result.
func (s *Service) ValidateResearchData(ctx context.Context, capabilityID string, data []byte, expected ResearchType) (ValidationResult, error) {
	result := ValidationResult{ResearchType: expected, Errors: []string{}, Warnings: []string{}}
	if _, ok := s.schemas[expected]; !ok {
		return result, domain.InvalidInputError{Field: "expected_type", Reason: fmt.Sprintf("unknown research type %q", expected)}
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return result, err
	}
	issues, err := s.schemaIssues(expected, data)
	if err != nil {
		return result, err
	}
	if detected := detectType(doc); detected != "" && detected != expected {
		result.errorf("payload looks like %s, expected %s", detected, expected)
	}
	for _, issue := range issues {
		result.errorf("schema: %s", issue)
	}
	if len(result.Errors) > 0 {
		_, err := s.requireCapability(ctx, capabilityID)
		return result, err
	}

	err = s.core.View(ctx, func(view core.TransactionView) error {
		c, ok := view.FindCapability(capabilityID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityCapability, ID: capabilityID}
		}
		switch expected {
		case DomainAnalysis:
			var p DomainAnalysisPayload
			if err := json.Unmarshal(data, &p); err != nil {
				result.errorf("decode: %v", err)
				return nil
			}
			s.checkDomainAnalysis(c, p, &result)
		case ComprehensiveResearch:
			var p ComprehensivePayload
			if err := json.Unmarshal(data, &p); err != nil {
				result.errorf("decode: %v", err)
				return nil
			}
			s.checkComprehensive(view, c, p, &result)
		}
		return nil
	})
	result.Valid = len(result.Errors) == 0
	return result, err
}

func checkCapabilityName(c domain.Capability, payloadName string, result *ValidationResult) {
	if name := strings.TrimSpace(payloadName); name != "" && !strings.EqualFold(name, c.Name) {
		result.warnf("payload capability %q differs from %q", name, c.Name)
	}
}

func (s *Service) checkDomainAnalysis(c domain.Capability, p DomainAnalysisPayload, result *ValidationResult) {
	checkCapabilityName(c, p.Capability, result)
	domains := make(map[string]struct{})
	attributes := make(map[[2]string]struct{})
	total := 0
	for _, d := range p.Domains() {
		name := strings.TrimSpace(d.DomainName)
		if _, dup := domains[name]; dup {
			result.warnf("domain %q appears more than once; entries are merged", name)
		}
		domains[name] = struct{}{}
		for _, a := range d.Attributes {
			key := [2]string{name, strings.TrimSpace(a.AttributeName)}
			if _, dup := attributes[key]; dup {
				result.errorf("attribute %q is listed twice in domain %q", key[1], name)
				continue
			}
			attributes[key] = struct{}{}
			total++
			if strings.TrimSpace(a.Definition) == "" {
				result.warnf("attribute %q has no definition", key[1])
			}
		}
	}
	if total == 0 {
		result.warnf("payload introduces no attributes")
	}
}

func (s *Service) checkComprehensive(view core.TransactionView, c domain.Capability, p ComprehensivePayload, result *ValidationResult) {
	checkCapabilityName(c, p.Capability, result)
	vendors := s.core.Vendors()
	if len(vendors) == 0 {
		result.warnf("no vendors are configured; research cannot complete")
	}
	storedDomains := make(map[string]struct{})
	for _, d := range view.ListDomains(c.ID) {
		storedDomains[d.DomainName] = struct{}{}
	}
	storedAttributes := make(map[string]domain.Attribute)
	attributeDomains := make(map[string][]string)
	for _, a := range view.ListAttributes(c.ID) {
		if _, seen := storedAttributes[a.AttributeName]; !seen || a.IsActive {
			storedAttributes[a.AttributeName] = a
		}
		attributeDomains[a.AttributeName] = append(attributeDomains[a.AttributeName], a.DomainName)
	}

	payloadAttributes := make(map[string]struct{})
	pairs := make(map[[2]string]struct{})
	for _, a := range p.Attributes {
		name := strings.TrimSpace(a.AttributeName)
		payloadAttributes[name] = struct{}{}
		domainName := strings.TrimSpace(a.DomainName)
		if stored, ok := storedAttributes[name]; ok {
			if domainName != "" && !slices.Contains(attributeDomains[name], domainName) {
				result.errorf("%v", domain.ReferentialError{Entity: domain.EntityAttribute, Name: name, Reason: fmt.Sprintf("belongs to domain %q, not %q", stored.DomainName, domainName)})
			}
		} else {
			switch {
			case domainName == "":
				result.errorf("%v", domain.ReferentialError{Entity: domain.EntityAttribute, Name: name, Reason: "not found and no domain_name introduces it"})
			default:
				if _, ok := storedDomains[domainName]; !ok {
					result.warnf("domain %q will be created for attribute %q", domainName, name)
				}
			}
		}
		if len(a.Vendors) == 0 {
			result.warnf("attribute %q has no vendor research", name)
		}
		for _, key := range a.SortedVendors() {
			v := a.Vendors[key]
			vendor, known := s.core.CanonicalVendor(key)
			if !known && len(vendors) > 0 {
				result.errorf("%v", domain.ReferentialError{Entity: domain.EntityVendorScore, Name: key, Reason: "vendor is not configured"})
			}
			pair := [2]string{name, strings.ToLower(vendor)}
			if _, dup := pairs[pair]; dup {
				result.errorf("duplicate score for attribute %q and vendor %q", name, vendor)
			}
			pairs[pair] = struct{}{}
			if _, err := domain.ParseScoreLabel(string(v.Score)); err != nil {
				result.errorf("attribute %q vendor %q: %v", name, vendor, err)
			}
			if len(v.Evidence) == 0 {
				result.warnf("attribute %q vendor %q has no evidence urls", name, vendor)
			}
			if len(v.Observation) == 0 {
				result.warnf("attribute %q vendor %q has no observations", name, vendor)
			}
			if strings.TrimSpace(v.ScoreDecision) == "" {
				result.warnf("attribute %q vendor %q has no score decision", name, vendor)
			}
		}
	}
	for _, a := range view.ListAttributes(c.ID) {
		if _, ok := payloadAttributes[a.AttributeName]; a.IsActive && !ok {
			result.warnf("active attribute %q is missing from the payload", a.AttributeName)
		}
	}
}
