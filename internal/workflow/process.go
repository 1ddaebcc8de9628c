package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"capresearch/internal/core"
	"capresearch/pkg/domain"
)

// ProcessResult reports what a processing call wrote and the resulting status.
type ProcessResult struct {
	CapabilityID       string        `json:"capability_id"`
	CapabilityName     string        `json:"capability_name"`
	DomainsUpserted    int           `json:"domains_upserted"`
	AttributesUpserted int           `json:"attributes_upserted"`
	ScoresUpserted     int           `json:"scores_upserted"`
	PreviousStatus     domain.Status `json:"previous_status"`
	Status             domain.Status `json:"status"`
	ComprehensiveReady bool          `json:"comprehensive_ready"`
	Warnings           []string      `json:"warnings"`
}

func newProcessResult(update core.StatusUpdate, validation ValidationResult, res core.Result) ProcessResult {
	warnings := append([]string{}, validation.Warnings...)
	return ProcessResult{
		CapabilityID:   update.CapabilityID,
		CapabilityName: update.CapabilityName,
		PreviousStatus: update.Previous,
		Status:         update.Status,
		Warnings:       append(warnings, res.Warnings()...),
	}
}

// validated runs ValidateResearchData and turns blocking errors into a SchemaValidationError.
func (s *Service) validated(ctx context.Context, capabilityID string, data []byte, kind ResearchType) (ValidationResult, error) {
	validation, err := s.ValidateResearchData(ctx, capabilityID, data, kind)
	if err != nil {
		return validation, err
	}
	if !validation.Valid {
		return validation, domain.SchemaValidationError{ExpectedType: string(kind), Issues: validation.Errors}
	}
	return validation, nil
}

// ProcessDomainResults stores the domains and attributes of a validated domain
// analysis and resets the review flags. Nothing is written when validation fails.
func (s *Service) ProcessDomainResults(ctx context.Context, capabilityID string, data []byte) (ProcessResult, error) {
	validation, err := s.validated(ctx, capabilityID, data, DomainAnalysis)
	if err != nil {
		return ProcessResult{}, err
	}
	var payload DomainAnalysisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ProcessResult{}, domain.ParseError{Err: err}
	}

	var domains, attributes int
	update, res, err := s.core.ApplyResearch(ctx, "process_domain_results", capabilityID, func(tx core.Transaction, c domain.Capability) error {
		for _, entry := range payload.Domains() {
			name := strings.TrimSpace(entry.DomainName)
			if _, err := tx.UpsertDomain(domain.Domain{CapabilityID: c.ID, DomainName: name, Description: entry.Description}); err != nil {
				return err
			}
			domains++
			for _, a := range entry.Attributes {
				if _, err := tx.UpsertAttribute(domain.Attribute{
					CapabilityID:   c.ID,
					DomainName:     name,
					AttributeName:  strings.TrimSpace(a.AttributeName),
					Definition:     a.Definition,
					TMForumMapping: a.TMForumMapping,
					Importance:     a.Importance,
					Weight:         a.Weight,
					IsActive:       true,
				}); err != nil {
					return err
				}
				attributes++
			}
		}
		_, err := tx.UpsertTracker(c.Name, func(t *domain.CapabilityTracker) error {
			t.ReviewCompleted = false
			t.ComprehensiveReady = false
			return nil
		})
		return err
	})
	if err != nil {
		return ProcessResult{}, err
	}
	out := newProcessResult(update, validation, res)
	out.DomainsUpserted = domains
	out.AttributesUpserted = attributes
	return out, nil
}

// ProcessComprehensiveResults stores one vendor score per (attribute, vendor)
// of a validated comprehensive research document in a single transaction and
// marks the research ready once every active attribute is scored by every
// configured vendor.
func (s *Service) ProcessComprehensiveResults(ctx context.Context, capabilityID string, data []byte) (ProcessResult, error) {
	validation, err := s.validated(ctx, capabilityID, data, ComprehensiveResearch)
	if err != nil {
		return ProcessResult{}, err
	}
	var payload ComprehensivePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ProcessResult{}, domain.ParseError{Err: err}
	}
	researchType := strings.TrimSpace(payload.ResearchType)
	if researchType == "" {
		researchType = "comprehensive"
	}
	researchDate := strings.TrimSpace(payload.ResearchDate)
	if researchDate == "" {
		researchDate = s.core.Now().Format("2006-01-02")
	}

	var domains, attributes, scores int
	var ready bool
	update, res, err := s.core.ApplyResearch(ctx, "process_comprehensive_results", capabilityID, func(tx core.Transaction, c domain.Capability) error {
		for _, entry := range payload.Attributes {
			name := strings.TrimSpace(entry.AttributeName)
			created, introduced, err := s.ensureAttribute(tx, c, entry)
			if err != nil {
				return err
			}
			if created {
				domains++
			}
			if introduced {
				attributes++
			}
			for _, key := range entry.SortedVendors() {
				v := entry.Vendors[key]
				score, err := s.core.NormalizeVendorScore(tx.Snapshot(), domain.VendorScore{
					CapabilityID:  c.ID,
					AttributeName: name,
					Vendor:        key,
					Weight:        entry.Weight,
					Score:         string(v.Score),
					Observation:   v.Observation,
					EvidenceURL:   v.Evidence,
					ScoreDecision: v.ScoreDecision,
					ResearchType:  researchType,
					ResearchDate:  researchDate,
				})
				if err != nil {
					return err
				}
				if _, err := tx.UpsertVendorScore(score); err != nil {
					return err
				}
				scores++
			}
		}
		ready = s.core.Coverage(tx.Snapshot(), c.ID).Complete()
		_, err := tx.UpsertTracker(c.Name, func(t *domain.CapabilityTracker) error {
			t.ReviewCompleted = true
			t.ComprehensiveReady = ready
			return nil
		})
		return err
	})
	if err != nil {
		return ProcessResult{}, err
	}
	out := newProcessResult(update, validation, res)
	out.DomainsUpserted = domains
	out.AttributesUpserted = attributes
	out.ScoresUpserted = scores
	out.ComprehensiveReady = ready
	return out, nil
}

// ensureAttribute makes the payload attribute exist with the payload weight.
// It reports whether a domain was created and whether the attribute was
// created or changed.
func (s *Service) ensureAttribute(tx core.Transaction, c domain.Capability, entry ResearchAttribute) (bool, bool, error) {
	name := strings.TrimSpace(entry.AttributeName)
	domainName := strings.TrimSpace(entry.DomainName)
	view := tx.Snapshot()
	var existing *domain.Attribute
	conflict := ""
	for _, a := range view.ListAttributes(c.ID) {
		if a.AttributeName != name {
			continue
		}
		if domainName == "" || a.DomainName == domainName {
			existing = &a
			break
		}
		conflict = a.DomainName
	}
	if existing == nil && conflict != "" {
		return false, false, domain.ReferentialError{Entity: domain.EntityAttribute, Name: name, Reason: fmt.Sprintf("belongs to domain %q, not %q", conflict, domainName)}
	}
	if existing != nil {
		if existing.Weight == entry.Weight && existing.IsActive {
			return false, false, nil
		}
		_, err := tx.UpdateAttribute(existing.ID, func(a *domain.Attribute) error {
			a.Weight = entry.Weight
			a.IsActive = true
			if a.Definition == "" {
				a.Definition = entry.Definition
			}
			return nil
		})
		return false, err == nil, err
	}

	if domainName == "" {
		return false, false, domain.ReferentialError{Entity: domain.EntityAttribute, Name: name, Reason: "not found and no domain_name introduces it"}
	}
	createdDomain := false
	found := false
	for _, d := range view.ListDomains(c.ID) {
		if d.DomainName == domainName {
			found = true
			break
		}
	}
	if !found {
		if _, err := tx.UpsertDomain(domain.Domain{CapabilityID: c.ID, DomainName: domainName}); err != nil {
			return false, false, err
		}
		createdDomain = true
	}
	_, err := tx.UpsertAttribute(domain.Attribute{
		CapabilityID:  c.ID,
		DomainName:    domainName,
		AttributeName: name,
		Definition:    entry.Definition,
		Weight:        entry.Weight,
		IsActive:      true,
	})
	return createdDomain, err == nil, err
}

// CompleteReview records the human review of a domain analysis and recomputes the status.
func (s *Service) CompleteReview(ctx context.Context, capabilityID, notes string) (ProcessResult, error) {
	notes = strings.TrimSpace(notes)
	update, res, err := s.core.ApplyResearch(ctx, "complete_review", capabilityID, func(tx core.Transaction, c domain.Capability) error {
		_, err := tx.UpsertTracker(c.Name, func(t *domain.CapabilityTracker) error {
			t.ReviewCompleted = true
			if notes != "" {
				t.Notes = notes
			}
			return nil
		})
		return err
	})
	if err != nil {
		return ProcessResult{}, err
	}
	return newProcessResult(update, ValidationResult{}, res), nil
}
