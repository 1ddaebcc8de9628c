package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"capresearch/internal/infra/persistence/memory"
	"capresearch/pkg/domain"
)

type (
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)

// Service exposes transactional research operations over a persistent store.
// Every write that touches research artifacts recomputes the capability
// status inside the same transaction.
type Service struct {
	store     PersistentStore
	clock     Clock
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	audit     AuditRecorder
	publisher StatusPublisher
	vendors   []string
	policy    StatusOverridePolicy
	lifecycle Lifecycle
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		clock:     systemClock{},
		logger:    noopLogger{},
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		audit:     noopAudit{},
		publisher: noopPublisher{},
		policy:    OverrideRecompute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if setter, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		setter.SetNowFunc(s.clock.Now)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Vendors returns the configured vendor list in configuration order.
func (s *Service) Vendors() []string {
	out := make([]string, len(s.vendors))
	copy(out, s.vendors)
	return out
}

// Policy returns the active status override policy.
func (s *Service) Policy() StatusOverridePolicy { return s.policy }

// Logger returns the configured logger.
func (s *Service) Logger() Logger { return s.logger }

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.clock.Now() }

// CanonicalVendor matches name case-insensitively against the configured
// vendors and returns the configured spelling.
func (s *Service) CanonicalVendor(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	for _, v := range s.vendors {
		if strings.EqualFold(v, trimmed) {
			return v, true
		}
	}
	return trimmed, false
}

// View runs fn against a read-only snapshot.
func (s *Service) View(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// run wraps a mutating operation with tracing, metrics, audit and warning logs.
func (s *Service) run(ctx context.Context, op string, entity domain.EntityType, fn func(ctx context.Context) (string, Result, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, res, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation:  op,
		EntityType: string(entity),
		EntityID:   entityID,
		Status:     AuditStatusSuccess,
		Duration:   duration,
		Timestamp:  s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "operation", op, "entity", entity, "id", entityID, "error", err)
	} else {
		s.logger.Debug("operation committed", "operation", op, "entity", entity, "id", entityID)
	}
	s.audit.Record(ctx, entry)
	for _, w := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "warning", w)
	}
	return res, err
}

// observe wraps a read-only operation with tracing and metrics.
func (s *Service) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	return err
}

// Observe gives read-only operations of other packages the same tracing and
// metrics as the service's own reads.
func (s *Service) Observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return s.observe(ctx, op, fn)
}

func (s *Service) publish(ctx context.Context, op string, update StatusUpdate) {
	if !update.Changed() {
		return
	}
	change := StatusChange{
		CapabilityID:   update.CapabilityID,
		CapabilityName: update.CapabilityName,
		From:           update.Previous,
		To:             update.Status,
		Pinned:         update.Pinned,
		Operation:      op,
		At:             s.clock.Now(),
	}
	s.logger.Info("capability status changed", "capability", update.CapabilityName, "from", update.Previous, "to", update.Status)
	if err := s.publisher.PublishStatusChange(ctx, change); err != nil {
		s.logger.Warn("publish status change failed", "capability", update.CapabilityName, "error", err)
	}
}

// CapabilityOverview is a capability with its artifact counts and tracker.
type CapabilityOverview struct {
	domain.Capability
	DomainsCount      int                      `json:"domains_count"`
	AttributesCount   int                      `json:"attributes_count"`
	VendorScoresCount int                      `json:"vendor_scores_count"`
	Tracker           domain.CapabilityTracker `json:"tracker"`
	Coverage          domain.Coverage          `json:"coverage"`
	// DerivedStatus is what the artifacts imply, which differs from Status when pinned.
	DerivedStatus domain.Status `json:"derived_status"`
}

// OverviewStats counts capabilities per status.
type OverviewStats struct {
	Total    int                   `json:"total"`
	ByStatus map[domain.Status]int `json:"by_status"`
}

// Overview is the status board listing.
type Overview struct {
	Capabilities []CapabilityOverview `json:"capabilities"`
	Stats        OverviewStats        `json:"stats"`
}

func (s *Service) overviewOf(view TransactionView, c domain.Capability) CapabilityOverview {
	facts, coverage := s.statusFacts(view, c)
	tracker, ok := view.FindTracker(c.Name)
	if !ok {
		tracker = domain.CapabilityTracker{CapabilityName: c.Name}
	}
	return CapabilityOverview{
		Capability:        c,
		DomainsCount:      facts.Domains,
		AttributesCount:   facts.Attributes,
		VendorScoresCount: len(view.ListVendorScores(c.ID)),
		Tracker:           tracker,
		Coverage:          coverage,
		DerivedStatus:     domain.DeriveStatus(facts),
	}
}

// ListCapabilities returns every capability ordered by name.
func (s *Service) ListCapabilities(ctx context.Context) ([]domain.Capability, error) {
	var out []domain.Capability
	err := s.observe(ctx, "list_capabilities", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			out = view.ListCapabilities()
			return nil
		})
	})
	return out, err
}

// Overview returns the status board with per-status counts.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	overview := Overview{Stats: OverviewStats{ByStatus: make(map[domain.Status]int, 4)}}
	for _, st := range domain.Statuses() {
		overview.Stats.ByStatus[st] = 0
	}
	err := s.observe(ctx, "overview", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			for _, c := range view.ListCapabilities() {
				overview.Capabilities = append(overview.Capabilities, s.overviewOf(view, c))
				overview.Stats.ByStatus[c.Status]++
				overview.Stats.Total++
			}
			return nil
		})
	})
	if overview.Capabilities == nil {
		overview.Capabilities = []CapabilityOverview{}
	}
	return overview, err
}

// GetCapability returns one capability with its counts.
func (s *Service) GetCapability(ctx context.Context, id string) (CapabilityOverview, error) {
	var out CapabilityOverview
	err := s.observe(ctx, "get_capability", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			c, ok := view.FindCapability(id)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCapability, ID: id}
			}
			out = s.overviewOf(view, c)
			return nil
		})
	})
	return out, err
}

// CreateCapability persists a new capability in status new with an empty tracker.
func (s *Service) CreateCapability(ctx context.Context, capability domain.Capability) (domain.Capability, Result, error) {
	var created domain.Capability
	capability.Name = strings.TrimSpace(capability.Name)
	res, err := s.run(ctx, "create_capability", domain.EntityCapability, func(ctx context.Context) (string, Result, error) {
		if capability.Name == "" {
			return "", Result{}, domain.InvalidInputError{Field: "name", Reason: "must not be empty"}
		}
		capability.Status = domain.StatusNew
		capability.StatusPinned = false
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			if created, err = tx.CreateCapability(capability); err != nil {
				return err
			}
			_, err = tx.UpsertTracker(created.Name, nil)
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// UpdateCapability mutates name and description. Status fields are owned by
// the status operations and survive the mutator untouched.
func (s *Service) UpdateCapability(ctx context.Context, id string, mutator func(*domain.Capability) error) (domain.Capability, Result, error) {
	var updated domain.Capability
	res, err := s.run(ctx, "update_capability", domain.EntityCapability, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCapability(id, func(c *domain.Capability) error {
				status, pinned := c.Status, c.StatusPinned
				if err := mutator(c); err != nil {
					return err
				}
				c.Name = strings.TrimSpace(c.Name)
				if c.Name == "" {
					return domain.InvalidInputError{Field: "name", Reason: "must not be empty"}
				}
				c.Status, c.StatusPinned = status, pinned
				return nil
			})
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// DeleteCapability removes a capability and everything it owns.
func (s *Service) DeleteCapability(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_capability", domain.EntityCapability, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteCapability(id)
		})
		return id, res, err
	})
}

func requireCapability(view TransactionView, id string) (domain.Capability, error) {
	c, ok := view.FindCapability(id)
	if !ok {
		return domain.Capability{}, domain.ErrNotFound{Entity: domain.EntityCapability, ID: id}
	}
	return c, nil
}

// ListDomains returns the domains of a capability ordered by name.
func (s *Service) ListDomains(ctx context.Context, capabilityID string) ([]domain.Domain, error) {
	var out []domain.Domain
	err := s.observe(ctx, "list_domains", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, err := requireCapability(view, capabilityID); err != nil {
				return err
			}
			out = view.ListDomains(capabilityID)
			return nil
		})
	})
	return out, err
}

// UpsertDomain creates or updates a domain of the capability.
func (s *Service) UpsertDomain(ctx context.Context, capabilityID string, d domain.Domain) (domain.Domain, Result, error) {
	var saved domain.Domain
	d.CapabilityID = capabilityID
	d.DomainName = strings.TrimSpace(d.DomainName)
	if d.DomainName == "" {
		return domain.Domain{}, Result{}, domain.InvalidInputError{Field: "domain_name", Reason: "must not be empty"}
	}
	_, res, err := s.ApplyResearch(ctx, "upsert_domain", capabilityID, func(tx Transaction, _ domain.Capability) error {
		var err error
		saved, err = tx.UpsertDomain(d)
		return err
	})
	return saved, res, err
}

// DeleteDomain removes a domain of the capability with its attributes.
func (s *Service) DeleteDomain(ctx context.Context, capabilityID, domainID string) (Result, error) {
	_, res, err := s.ApplyResearch(ctx, "delete_domain", capabilityID, func(tx Transaction, _ domain.Capability) error {
		owned := false
		for _, d := range tx.Snapshot().ListDomains(capabilityID) {
			if d.ID == domainID {
				owned = true
				break
			}
		}
		if !owned {
			return domain.ErrNotFound{Entity: domain.EntityDomain, ID: domainID}
		}
		return tx.DeleteDomain(domainID)
	})
	return res, err
}

// ListAttributes returns the attributes of a capability ordered by domain then name.
func (s *Service) ListAttributes(ctx context.Context, capabilityID string) ([]domain.Attribute, error) {
	var out []domain.Attribute
	err := s.observe(ctx, "list_attributes", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, err := requireCapability(view, capabilityID); err != nil {
				return err
			}
			out = view.ListAttributes(capabilityID)
			return nil
		})
	})
	return out, err
}

// UpsertAttribute creates or replaces an attribute keyed by domain and name.
func (s *Service) UpsertAttribute(ctx context.Context, capabilityID string, a domain.Attribute) (domain.Attribute, Result, error) {
	var saved domain.Attribute
	a.CapabilityID = capabilityID
	a.DomainName = strings.TrimSpace(a.DomainName)
	a.AttributeName = strings.TrimSpace(a.AttributeName)
	if a.AttributeName == "" {
		return domain.Attribute{}, Result{}, domain.InvalidInputError{Field: "attribute_name", Reason: "must not be empty"}
	}
	_, res, err := s.ApplyResearch(ctx, "upsert_attribute", capabilityID, func(tx Transaction, _ domain.Capability) error {
		var err error
		saved, err = tx.UpsertAttribute(a)
		return err
	})
	return saved, res, err
}

func requireOwnedAttribute(view TransactionView, capabilityID, id string) error {
	a, ok := view.FindAttribute(id)
	if !ok || a.CapabilityID != capabilityID {
		return domain.ErrNotFound{Entity: domain.EntityAttribute, ID: id}
	}
	return nil
}

// UpdateAttribute mutates an attribute of the capability.
func (s *Service) UpdateAttribute(ctx context.Context, capabilityID, id string, mutator func(*domain.Attribute) error) (domain.Attribute, Result, error) {
	var updated domain.Attribute
	_, res, err := s.ApplyResearch(ctx, "update_attribute", capabilityID, func(tx Transaction, _ domain.Capability) error {
		if err := requireOwnedAttribute(tx.Snapshot(), capabilityID, id); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateAttribute(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteAttribute removes an attribute of the capability.
func (s *Service) DeleteAttribute(ctx context.Context, capabilityID, id string) (Result, error) {
	_, res, err := s.ApplyResearch(ctx, "delete_attribute", capabilityID, func(tx Transaction, _ domain.Capability) error {
		if err := requireOwnedAttribute(tx.Snapshot(), capabilityID, id); err != nil {
			return err
		}
		return tx.DeleteAttribute(id)
	})
	return res, err
}

// ListVendorScores returns the vendor scores of a capability ordered by attribute then vendor.
func (s *Service) ListVendorScores(ctx context.Context, capabilityID string) ([]domain.VendorScore, error) {
	var out []domain.VendorScore
	err := s.observe(ctx, "list_vendor_scores", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, err := requireCapability(view, capabilityID); err != nil {
				return err
			}
			out = view.ListVendorScores(capabilityID)
			return nil
		})
	})
	return out, err
}

// NormalizeVendorScore prepares a score for writing: the numeric value is
// always recomputed from the label and the label is rewritten in canonical
// form. A missing weight is taken from the attribute and the vendor is matched
// to its configured spelling.
func (s *Service) NormalizeVendorScore(view TransactionView, score domain.VendorScore) (domain.VendorScore, error) {
	score.AttributeName = strings.TrimSpace(score.AttributeName)
	if score.AttributeName == "" {
		return score, domain.InvalidInputError{Field: "attribute_name", Reason: "must not be empty"}
	}
	vendor, _ := s.CanonicalVendor(score.Vendor)
	if vendor == "" {
		return score, domain.InvalidInputError{Field: "vendor", Reason: "must not be empty"}
	}
	score.Vendor = vendor

	switch {
	case strings.TrimSpace(score.Score) != "":
		n, err := domain.ParseScoreLabel(score.Score)
		if err != nil {
			return score, domain.InvalidInputError{Field: "score", Reason: err.Error()}
		}
		score.Score = domain.ScoreLabel(n)
		score.ScoreNumeric = n
	case score.ScoreNumeric != 0:
		if err := domain.CheckScore(score.ScoreNumeric); err != nil {
			return score, domain.InvalidInputError{Field: "score_numeric", Reason: err.Error()}
		}
		score.Score = domain.ScoreLabel(score.ScoreNumeric)
	default:
		return score, domain.InvalidInputError{Field: "score", Reason: "must not be empty"}
	}

	if score.Weight == 0 {
		for _, a := range view.ListAttributes(score.CapabilityID) {
			if a.AttributeName == score.AttributeName {
				score.Weight = a.Weight
				break
			}
		}
	}
	if score.Observation == nil {
		score.Observation = []domain.Observation{}
	}
	for i := range score.Observation {
		if score.Observation[i].Tag == "" {
			score.Observation[i].Tag = domain.DefaultObservationTag
		}
	}
	if score.EvidenceURL == nil {
		score.EvidenceURL = []string{}
	}
	return score, nil
}

// UpsertVendorScore writes the score for (capability, attribute, vendor).
func (s *Service) UpsertVendorScore(ctx context.Context, capabilityID string, score domain.VendorScore) (domain.VendorScore, Result, error) {
	var saved domain.VendorScore
	score.CapabilityID = capabilityID
	_, res, err := s.ApplyResearch(ctx, "upsert_vendor_score", capabilityID, func(tx Transaction, _ domain.Capability) error {
		normalized, err := s.NormalizeVendorScore(tx.Snapshot(), score)
		if err != nil {
			return err
		}
		saved, err = tx.UpsertVendorScore(normalized)
		return err
	})
	return saved, res, err
}

// DeleteVendorScore removes a vendor score of the capability.
func (s *Service) DeleteVendorScore(ctx context.Context, capabilityID, id string) (Result, error) {
	_, res, err := s.ApplyResearch(ctx, "delete_vendor_score", capabilityID, func(tx Transaction, _ domain.Capability) error {
		vs, ok := tx.Snapshot().FindVendorScore(id)
		if !ok || vs.CapabilityID != capabilityID {
			return domain.ErrNotFound{Entity: domain.EntityVendorScore, ID: id}
		}
		return tx.DeleteVendorScore(id)
	})
	return res, err
}

// Tracker returns the tracker of a capability.
func (s *Service) Tracker(ctx context.Context, capabilityID string) (domain.CapabilityTracker, error) {
	var out domain.CapabilityTracker
	err := s.observe(ctx, "get_tracker", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			c, err := requireCapability(view, capabilityID)
			if err != nil {
				return err
			}
			tracker, ok := view.FindTracker(c.Name)
			if !ok {
				tracker = domain.CapabilityTracker{CapabilityName: c.Name}
			}
			out = tracker
			return nil
		})
	})
	return out, err
}

// UpdateTracker mutates the tracker flags and recomputes the status.
func (s *Service) UpdateTracker(ctx context.Context, capabilityID string, mutator func(*domain.CapabilityTracker) error) (domain.CapabilityTracker, StatusUpdate, Result, error) {
	var saved domain.CapabilityTracker
	update, res, err := s.ApplyResearch(ctx, "update_tracker", capabilityID, func(tx Transaction, c domain.Capability) error {
		var err error
		saved, err = tx.UpsertTracker(c.Name, mutator)
		return err
	})
	return saved, update, res, err
}

// UpdateStatus overwrites the status unconditionally and pins it.
func (s *Service) UpdateStatus(ctx context.Context, capabilityID string, status domain.Status) (domain.Capability, Result, error) {
	var updated domain.Capability
	var update StatusUpdate
	if !status.Valid() {
		return domain.Capability{}, Result{}, domain.InvalidInputError{Field: "status", Reason: fmt.Sprintf("%q is not one of new, review, ready, completed", status)}
	}
	res, err := s.run(ctx, "update_status", domain.EntityCapability, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCapability(capabilityID, func(c *domain.Capability) error {
				update = StatusUpdate{CapabilityID: c.ID, CapabilityName: c.Name, Previous: c.Status, Status: status, Derived: status, Pinned: true, Monotonic: true}
				c.Status = status
				c.StatusPinned = true
				return nil
			})
			return err
		})
		return capabilityID, res, err
	})
	if err == nil {
		s.publish(ctx, "update_status", update)
	}
	return updated, res, err
}

// ClearStatusOverride drops a pinned status and recomputes from artifacts.
func (s *Service) ClearStatusOverride(ctx context.Context, capabilityID string) (StatusUpdate, Result, error) {
	return s.applyResearch(ctx, "clear_status_override", capabilityID, true, func(Transaction, domain.Capability) error { return nil })
}

// RecomputeStatus re-derives the status from stored artifacts, honoring the override policy.
func (s *Service) RecomputeStatus(ctx context.Context, capabilityID string) (StatusUpdate, Result, error) {
	return s.ApplyResearch(ctx, "recompute_status", capabilityID, func(Transaction, domain.Capability) error { return nil })
}

// ApplyResearch runs fn against the capability inside one transaction and
// recomputes the status before commit. Any error rolls back every write fn made.
func (s *Service) ApplyResearch(ctx context.Context, op, capabilityID string, fn func(tx Transaction, capability domain.Capability) error) (StatusUpdate, Result, error) {
	return s.applyResearch(ctx, op, capabilityID, false, fn)
}

func (s *Service) applyResearch(ctx context.Context, op, capabilityID string, clearPin bool, fn func(tx Transaction, capability domain.Capability) error) (StatusUpdate, Result, error) {
	var update StatusUpdate
	res, err := s.run(ctx, op, domain.EntityCapability, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			c, err := requireCapability(tx.Snapshot(), capabilityID)
			if err != nil {
				return err
			}
			if err := fn(tx, c); err != nil {
				return err
			}
			update, err = s.recompute(tx, capabilityID, clearPin)
			return err
		})
		return capabilityID, res, err
	})
	if err == nil {
		s.publish(ctx, op, update)
	}
	return update, res, err
}

// Coverage checks vendor-score completeness for a capability against the configured vendors.
func (s *Service) Coverage(view TransactionView, capabilityID string) domain.Coverage {
	return domain.ComputeCoverage(view.ListAttributes(capabilityID), view.ListVendorScores(capabilityID), s.vendors)
}

func (s *Service) statusFacts(view TransactionView, c domain.Capability) (domain.StatusFacts, domain.Coverage) {
	attributes := view.ListAttributes(c.ID)
	active := 0
	for _, a := range attributes {
		if a.IsActive {
			active++
		}
	}
	coverage := domain.ComputeCoverage(attributes, view.ListVendorScores(c.ID), s.vendors)
	tracker, _ := view.FindTracker(c.Name)
	return domain.StatusFacts{
		Domains:            len(view.ListDomains(c.ID)),
		Attributes:         active,
		ReviewCompleted:    tracker.ReviewCompleted,
		ComprehensiveReady: tracker.ComprehensiveReady,
		FullyScored:        coverage.Complete(),
	}, coverage
}

// recompute derives the status from the transaction state and writes it.
// A pinned status survives under the sticky policy unless clearPin is set.
func (s *Service) recompute(tx Transaction, capabilityID string, clearPin bool) (StatusUpdate, error) {
	view := tx.Snapshot()
	c, err := requireCapability(view, capabilityID)
	if err != nil {
		return StatusUpdate{}, err
	}
	facts, _ := s.statusFacts(view, c)
	derived := domain.DeriveStatus(facts)
	update := StatusUpdate{
		CapabilityID:   c.ID,
		CapabilityName: c.Name,
		Previous:       c.Status,
		Status:         c.Status,
		Derived:        derived,
		Pinned:         c.StatusPinned,
		Monotonic:      true,
	}
	if c.StatusPinned && !clearPin && s.policy == OverrideSticky {
		return update, nil
	}
	if c.Status == derived && !c.StatusPinned {
		return update, nil
	}

	allowed, err := s.lifecycle.Allows(c.ID, c.Status, derived)
	if err != nil {
		return StatusUpdate{}, err
	}
	if !allowed {
		update.Monotonic = false
		s.logger.Warn("non-monotonic status transition", "capability", c.Name, "from", c.Status, "to", derived)
	}
	if _, err := tx.UpdateCapability(c.ID, func(cur *domain.Capability) error {
		cur.Status = derived
		cur.StatusPinned = false
		return nil
	}); err != nil {
		return StatusUpdate{}, err
	}
	update.Status = derived
	update.Pinned = false
	return update, nil
}
