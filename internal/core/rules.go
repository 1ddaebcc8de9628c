package core

import (
	"context"
	"fmt"

	"capresearch/pkg/domain"
)

type (
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Result aliases domain.Result.
	Result = domain.Result
	// Change aliases domain.Change.
	Change = domain.Change
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds an engine with the research invariants. The
// vendor list feeds the unconfigured-vendor warning; nil disables it.
func NewDefaultRulesEngine(vendors []string) *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ScoreRangeRule())
	engine.Register(WeightRangeRule())
	engine.Register(VendorScoreReferenceRule())
	engine.Register(AttributeDomainReferenceRule())
	if len(vendors) > 0 {
		engine.Register(ConfiguredVendorRule(vendors))
	}
	return engine
}

type ruleFunc struct {
	name string
	eval func(view domain.RuleView, changes []Change) []domain.Violation
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	return Result{Violations: r.eval(view, changes)}, nil
}

// currentAttributes returns the committed-to-be state of every attribute
// written in the transaction, skipping those deleted later on.
func currentAttributes(view domain.RuleView, changes []Change) []domain.Attribute {
	var out []domain.Attribute
	seen := map[string]struct{}{}
	for _, c := range changes {
		a, ok := c.After.(domain.Attribute)
		if c.Entity != domain.EntityAttribute || !ok {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		if current, ok := view.FindAttribute(a.ID); ok {
			out = append(out, current)
		}
	}
	return out
}

func currentScores(view domain.RuleView, changes []Change) []domain.VendorScore {
	var out []domain.VendorScore
	seen := map[string]struct{}{}
	for _, c := range changes {
		s, ok := c.After.(domain.VendorScore)
		if c.Entity != domain.EntityVendorScore || !ok {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		if current, ok := view.FindVendorScore(s.ID); ok {
			out = append(out, current)
		}
	}
	return out
}

// ScoreRangeRule blocks vendor scores whose numeric value is outside [1,5].
func ScoreRangeRule() Rule {
	return ruleFunc{name: "score_range", eval: func(view domain.RuleView, changes []Change) []domain.Violation {
		var out []domain.Violation
		for _, s := range currentScores(view, changes) {
			if err := domain.CheckScore(s.ScoreNumeric); err != nil {
				out = append(out, domain.Violation{
					Rule: "score_range", Severity: domain.SeverityBlock, Entity: domain.EntityVendorScore, EntityID: s.ID,
					Message: fmt.Sprintf("%s/%s: %v", s.AttributeName, s.Vendor, err),
				})
			}
		}
		return out
	}}
}

// WeightRangeRule blocks attributes and vendor scores whose weight is outside [1,100].
func WeightRangeRule() Rule {
	return ruleFunc{name: "weight_range", eval: func(view domain.RuleView, changes []Change) []domain.Violation {
		var out []domain.Violation
		for _, a := range currentAttributes(view, changes) {
			if err := domain.CheckWeight(a.Weight); err != nil {
				out = append(out, domain.Violation{
					Rule: "weight_range", Severity: domain.SeverityBlock, Entity: domain.EntityAttribute, EntityID: a.ID,
					Message: fmt.Sprintf("attribute %s: %v", a.AttributeName, err),
				})
			}
		}
		for _, s := range currentScores(view, changes) {
			if err := domain.CheckWeight(s.Weight); err != nil {
				out = append(out, domain.Violation{
					Rule: "weight_range", Severity: domain.SeverityBlock, Entity: domain.EntityVendorScore, EntityID: s.ID,
					Message: fmt.Sprintf("%s/%s: %v", s.AttributeName, s.Vendor, err),
				})
			}
		}
		return out
	}}
}

// VendorScoreReferenceRule blocks vendor scores that name no attribute of their capability.
func VendorScoreReferenceRule() Rule {
	return ruleFunc{name: "vendor_score_reference", eval: func(view domain.RuleView, changes []Change) []domain.Violation {
		var out []domain.Violation
		names := map[string]map[string]struct{}{}
		for _, s := range currentScores(view, changes) {
			known, ok := names[s.CapabilityID]
			if !ok {
				known = map[string]struct{}{}
				for _, a := range view.ListAttributes(s.CapabilityID) {
					known[a.AttributeName] = struct{}{}
				}
				names[s.CapabilityID] = known
			}
			if _, ok := known[s.AttributeName]; !ok {
				out = append(out, domain.Violation{
					Rule: "vendor_score_reference", Severity: domain.SeverityBlock, Entity: domain.EntityVendorScore, EntityID: s.ID,
					Message: fmt.Sprintf("vendor score %s/%s references unknown attribute", s.AttributeName, s.Vendor),
				})
			}
		}
		return out
	}}
}

// AttributeDomainReferenceRule blocks attributes whose domain does not exist.
func AttributeDomainReferenceRule() Rule {
	return ruleFunc{name: "attribute_domain_reference", eval: func(view domain.RuleView, changes []Change) []domain.Violation {
		var out []domain.Violation
		for _, a := range currentAttributes(view, changes) {
			found := false
			for _, d := range view.ListDomains(a.CapabilityID) {
				if d.DomainName == a.DomainName {
					found = true
					break
				}
			}
			if !found {
				out = append(out, domain.Violation{
					Rule: "attribute_domain_reference", Severity: domain.SeverityBlock, Entity: domain.EntityAttribute, EntityID: a.ID,
					Message: fmt.Sprintf("attribute %s references unknown domain %q", a.AttributeName, a.DomainName),
				})
			}
		}
		return out
	}}
}

// ConfiguredVendorRule warns about vendor scores for vendors outside the configured list.
func ConfiguredVendorRule(vendors []string) Rule {
	allowed := make(map[string]struct{}, len(vendors))
	for _, v := range vendors {
		allowed[v] = struct{}{}
	}
	return ruleFunc{name: "configured_vendor", eval: func(view domain.RuleView, changes []Change) []domain.Violation {
		var out []domain.Violation
		for _, s := range currentScores(view, changes) {
			if _, ok := allowed[s.Vendor]; !ok {
				out = append(out, domain.Violation{
					Rule: "configured_vendor", Severity: domain.SeverityWarn, Entity: domain.EntityVendorScore, EntityID: s.ID,
					Message: fmt.Sprintf("vendor %q is not configured", s.Vendor),
				})
			}
		}
		return out
	}}
}
