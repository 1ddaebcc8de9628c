package core

import (
	"context"
	"errors"
	"testing"

	"capresearch/pkg/domain"
)

func TestCreateCapabilityStartsNewWithTracker(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created := mustCreateCapability(t, svc, "Billing")
	if created.Status != domain.StatusNew || created.StatusPinned {
		t.Fatalf("expected new unpinned capability, got %+v", created)
	}
	if !created.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected clock to stamp records, got %v", created.CreatedAt)
	}
	tracker, err := svc.Tracker(ctx, created.ID)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	if tracker.CapabilityName != "Billing" || tracker.ReviewCompleted || tracker.ComprehensiveReady {
		t.Fatalf("unexpected tracker %+v", tracker)
	}

	if _, _, err := svc.CreateCapability(ctx, domain.Capability{Name: "Billing"}); err == nil {
		t.Fatalf("expected duplicate name to conflict")
	} else {
		var conflict domain.ErrConflict
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ErrConflict, got %T", err)
		}
	}
	if _, _, err := svc.CreateCapability(ctx, domain.Capability{Name: "  "}); err == nil {
		t.Fatalf("expected blank name to be rejected")
	} else {
		var invalid domain.InvalidInputError
		if !errors.As(err, &invalid) || invalid.Field != "name" {
			t.Fatalf("expected invalid name error, got %v", err)
		}
	}
}

func TestStatusFollowsResearchArtifacts(t *testing.T) {
	logger := &captureLogger{}
	publisher := &capturePublisher{}
	svc := newTestService(t, WithLogger(logger), WithStatusPublisher(publisher))
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")

	if _, _, err := svc.UpsertDomain(ctx, capability.ID, domain.Domain{DomainName: "Charging"}); err != nil {
		t.Fatalf("upsert domain: %v", err)
	}
	if got := mustStatus(t, svc, capability.ID).Status; got != domain.StatusNew {
		t.Fatalf("domains without attributes should stay new, got %s", got)
	}

	seedFramework(t, svc, capability.ID, "Rating")
	if got := mustStatus(t, svc, capability.ID).Status; got != domain.StatusReview {
		t.Fatalf("expected review after framework, got %s", got)
	}

	_, update, _, err := svc.UpdateTracker(ctx, capability.ID, func(tr *domain.CapabilityTracker) error {
		tr.ReviewCompleted = true
		return nil
	})
	if err != nil {
		t.Fatalf("update tracker: %v", err)
	}
	if update.Previous != domain.StatusReview || update.Status != domain.StatusReady {
		t.Fatalf("unexpected update %+v", update)
	}

	scoreAll(t, svc, capability.ID, "Rating")
	if got := mustStatus(t, svc, capability.ID).Status; got != domain.StatusReady {
		t.Fatalf("scores without comprehensive flag should stay ready, got %s", got)
	}

	if _, update, _, err = svc.UpdateTracker(ctx, capability.ID, func(tr *domain.CapabilityTracker) error {
		tr.ComprehensiveReady = true
		return nil
	}); err != nil {
		t.Fatalf("update tracker: %v", err)
	}
	if update.Status != domain.StatusCompleted || !update.Monotonic {
		t.Fatalf("expected monotonic move to completed, got %+v", update)
	}

	// A new unscored attribute after completion regresses the status.
	if _, _, err := svc.UpsertAttribute(ctx, capability.ID, domain.Attribute{DomainName: "Charging", AttributeName: "Mediation", Weight: 20, IsActive: true}); err != nil {
		t.Fatalf("upsert attribute: %v", err)
	}
	if got := mustStatus(t, svc, capability.ID).Status; got != domain.StatusReady {
		t.Fatalf("expected regression to ready, got %s", got)
	}
	if !logger.has("warn", "non-monotonic status transition") {
		t.Fatalf("expected non-monotonic transition to be logged")
	}

	var moves []string
	for _, c := range publisher.changes {
		moves = append(moves, string(c.From)+">"+string(c.To))
	}
	want := []string{"new>review", "review>ready", "ready>completed", "completed>ready"}
	if len(moves) != len(want) {
		t.Fatalf("expected published moves %v, got %v", want, moves)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Fatalf("expected published moves %v, got %v", want, moves)
		}
	}
}

func TestStatusOverrideRecomputePolicy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")

	updated, _, err := svc.UpdateStatus(ctx, capability.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.StatusCompleted || !updated.StatusPinned {
		t.Fatalf("expected pinned completed, got %+v", updated)
	}
	overview, err := svc.GetCapability(ctx, capability.ID)
	if err != nil {
		t.Fatalf("get capability: %v", err)
	}
	if overview.DerivedStatus != domain.StatusNew {
		t.Fatalf("expected derived status new, got %s", overview.DerivedStatus)
	}

	seedFramework(t, svc, capability.ID, "Rating")
	got := mustStatus(t, svc, capability.ID)
	if got.Status != domain.StatusReview || got.StatusPinned {
		t.Fatalf("artifact write should recompute and unpin, got %+v", got)
	}
}

func TestStatusOverrideStickyPolicy(t *testing.T) {
	svc := newTestService(t, WithStatusOverridePolicy(OverrideSticky))
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")

	if _, _, err := svc.UpdateStatus(ctx, capability.ID, domain.StatusReady); err != nil {
		t.Fatalf("update status: %v", err)
	}
	seedFramework(t, svc, capability.ID, "Rating")
	got := mustStatus(t, svc, capability.ID)
	if got.Status != domain.StatusReady || !got.StatusPinned {
		t.Fatalf("sticky pin should survive artifact writes, got %+v", got)
	}
	update, _, err := svc.RecomputeStatus(ctx, capability.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if update.Status != domain.StatusReady || update.Derived != domain.StatusReview {
		t.Fatalf("recompute should keep sticky pin, got %+v", update)
	}

	update, _, err = svc.ClearStatusOverride(ctx, capability.ID)
	if err != nil {
		t.Fatalf("clear override: %v", err)
	}
	if update.Status != domain.StatusReview || update.Pinned {
		t.Fatalf("expected cleared pin to recompute to review, got %+v", update)
	}
	if update.Monotonic {
		t.Fatalf("ready to review is a regression")
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(t)
	capability := mustCreateCapability(t, svc, "Billing")
	_, _, err := svc.UpdateStatus(context.Background(), capability.ID, domain.Status("archived"))
	var invalid domain.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, _, err := svc.UpdateStatus(context.Background(), "missing", domain.StatusReady); err == nil {
		t.Fatalf("expected missing capability to fail")
	}
}

func TestUpdateCapabilityKeepsStatusAndMovesTracker(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")
	if _, _, err := svc.UpdateStatus(ctx, capability.ID, domain.StatusReady); err != nil {
		t.Fatalf("update status: %v", err)
	}

	updated, _, err := svc.UpdateCapability(ctx, capability.ID, func(c *domain.Capability) error {
		c.Name = "Revenue Management"
		c.Status = domain.StatusNew
		c.StatusPinned = false
		return nil
	})
	if err != nil {
		t.Fatalf("update capability: %v", err)
	}
	if updated.Name != "Revenue Management" || updated.Status != domain.StatusReady || !updated.StatusPinned {
		t.Fatalf("unexpected capability %+v", updated)
	}
	tracker, err := svc.Tracker(ctx, capability.ID)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	if tracker.CapabilityName != "Revenue Management" {
		t.Fatalf("expected tracker to follow rename, got %+v", tracker)
	}

	if _, _, err := svc.UpdateCapability(ctx, capability.ID, func(c *domain.Capability) error {
		c.Name = ""
		return nil
	}); err == nil {
		t.Fatalf("expected empty rename to fail")
	}
}

func TestVendorScoreNormalization(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")
	seedFramework(t, svc, capability.ID, "Rating")

	saved, res, err := svc.UpsertVendorScore(ctx, capability.ID, domain.VendorScore{
		AttributeName: "Rating",
		Vendor:        "AMDOCS",
		Score:         "very good",
		Observation:   []domain.Observation{{Text: "strong rating engine"}},
	})
	if err != nil {
		t.Fatalf("upsert score: %v", err)
	}
	if len(res.Warnings()) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings())
	}
	if saved.Vendor != "amdocs" || saved.ScoreNumeric != 4 || saved.Score != "4 - Very Good" || saved.Weight != 10 {
		t.Fatalf("unexpected normalized score %+v", saved)
	}
	if saved.Observation[0].Tag != domain.DefaultObservationTag || saved.EvidenceURL == nil {
		t.Fatalf("expected defaulted observation tag and evidence list, got %+v", saved)
	}

	numeric, _, err := svc.UpsertVendorScore(ctx, capability.ID, domain.VendorScore{AttributeName: "Rating", Vendor: "netcracker", ScoreNumeric: 5})
	if err != nil {
		t.Fatalf("upsert numeric score: %v", err)
	}
	if numeric.Score != "5 - Excellent" {
		t.Fatalf("expected label from numeric score, got %q", numeric.Score)
	}

	// Re-upserting the same triple replaces the score in place.
	again, _, err := svc.UpsertVendorScore(ctx, capability.ID, domain.VendorScore{AttributeName: "Rating", Vendor: "amdocs", Score: "2/5"})
	if err != nil {
		t.Fatalf("re-upsert score: %v", err)
	}
	if again.ID != saved.ID || again.ScoreNumeric != 2 {
		t.Fatalf("expected in-place replacement, got %+v", again)
	}
	scores, err := svc.ListVendorScores(ctx, capability.ID)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
}

func TestVendorScoreRejections(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")
	seedFramework(t, svc, capability.ID, "Rating")

	_, _, err := svc.UpsertVendorScore(ctx, capability.ID, domain.VendorScore{AttributeName: "Rating", Vendor: "amdocs", Score: "6"})
	var invalid domain.InvalidInputError
	if !errors.As(err, &invalid) || invalid.Field != "score" {
		t.Fatalf("expected invalid score, got %v", err)
	}

	_, _, err = svc.UpsertVendorScore(ctx, capability.ID, domain.VendorScore{AttributeName: "Unknown", Vendor: "amdocs", Score: "3"})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation for unknown attribute, got %v", err)
	}

	_, res, err := svc.UpsertVendorScore(ctx, capability.ID, domain.VendorScore{AttributeName: "Rating", Vendor: "ericsson", Score: "3"})
	if err != nil {
		t.Fatalf("unconfigured vendor should only warn: %v", err)
	}
	if len(res.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings())
	}
}

func TestAttributeWeightBoundaries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")
	seedFramework(t, svc, capability.ID)

	for _, weight := range []int{1, 100} {
		if _, _, err := svc.UpsertAttribute(ctx, capability.ID, domain.Attribute{DomainName: "Charging", AttributeName: "W", Weight: weight, IsActive: true}); err != nil {
			t.Fatalf("weight %d should be accepted: %v", weight, err)
		}
	}
	for _, weight := range []int{0, 101} {
		_, _, err := svc.UpsertAttribute(ctx, capability.ID, domain.Attribute{DomainName: "Charging", AttributeName: "W", Weight: weight, IsActive: true})
		var violation domain.RuleViolationError
		if !errors.As(err, &violation) {
			t.Fatalf("weight %d should be blocked, got %v", weight, err)
		}
	}
	_, _, err := svc.UpsertAttribute(ctx, capability.ID, domain.Attribute{DomainName: "Mediation", AttributeName: "X", Weight: 5})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("attribute in unknown domain should be blocked, got %v", err)
	}
}

func TestChildOperationsCheckOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	billing := mustCreateCapability(t, svc, "Billing")
	ordering := mustCreateCapability(t, svc, "Ordering")
	seedFramework(t, svc, billing.ID, "Rating")
	scoreAll(t, svc, billing.ID, "Rating")

	domains, err := svc.ListDomains(ctx, billing.ID)
	if err != nil || len(domains) != 1 {
		t.Fatalf("list domains: %v %v", domains, err)
	}
	attributes, err := svc.ListAttributes(ctx, billing.ID)
	if err != nil || len(attributes) != 1 {
		t.Fatalf("list attributes: %v %v", attributes, err)
	}
	scores, err := svc.ListVendorScores(ctx, billing.ID)
	if err != nil || len(scores) != 2 {
		t.Fatalf("list scores: %v %v", scores, err)
	}

	if _, err := svc.DeleteDomain(ctx, ordering.ID, domains[0].ID); !isNotFound(err) {
		t.Fatalf("expected not found deleting foreign domain, got %v", err)
	}
	if _, err := svc.DeleteAttribute(ctx, ordering.ID, attributes[0].ID); !isNotFound(err) {
		t.Fatalf("expected not found deleting foreign attribute, got %v", err)
	}
	if _, err := svc.DeleteVendorScore(ctx, ordering.ID, scores[0].ID); !isNotFound(err) {
		t.Fatalf("expected not found deleting foreign score, got %v", err)
	}
	if _, err := svc.ListDomains(ctx, "missing"); !isNotFound(err) {
		t.Fatalf("expected not found listing missing capability, got %v", err)
	}

	if _, err := svc.DeleteVendorScore(ctx, billing.ID, scores[0].ID); err != nil {
		t.Fatalf("delete score: %v", err)
	}
	updated, _, err := svc.UpdateAttribute(ctx, billing.ID, attributes[0].ID, func(a *domain.Attribute) error {
		a.IsActive = false
		return nil
	})
	if err != nil || updated.IsActive {
		t.Fatalf("deactivate attribute: %+v %v", updated, err)
	}
	if got := mustStatus(t, svc, billing.ID).Status; got != domain.StatusNew {
		t.Fatalf("no active attributes should mean new, got %s", got)
	}
	if _, err := svc.DeleteDomain(ctx, billing.ID, domains[0].ID); err != nil {
		t.Fatalf("delete domain: %v", err)
	}
	remaining, _ := svc.ListVendorScores(ctx, billing.ID)
	if len(remaining) != 0 {
		t.Fatalf("expected domain delete to cascade to scores, got %d", len(remaining))
	}
}

func TestOverviewCountsByStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	billing := mustCreateCapability(t, svc, "Billing")
	mustCreateCapability(t, svc, "Ordering")
	seedFramework(t, svc, billing.ID, "Rating", "Mediation")
	scoreAll(t, svc, billing.ID, "Rating")

	overview, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.Stats.Total != 2 || overview.Stats.ByStatus[domain.StatusNew] != 1 || overview.Stats.ByStatus[domain.StatusReview] != 1 {
		t.Fatalf("unexpected stats %+v", overview.Stats)
	}
	if _, ok := overview.Stats.ByStatus[domain.StatusCompleted]; !ok {
		t.Fatalf("expected every status to be present in stats")
	}
	first := overview.Capabilities[0]
	if first.Name != "Billing" || first.DomainsCount != 1 || first.AttributesCount != 2 || first.VendorScoresCount != 2 {
		t.Fatalf("unexpected overview row %+v", first)
	}
	if first.Coverage.Expected != 4 || first.Coverage.Present != 2 || len(first.Coverage.Missing) != 2 {
		t.Fatalf("unexpected coverage %+v", first.Coverage)
	}

	if _, err := svc.DeleteCapability(ctx, billing.ID); err != nil {
		t.Fatalf("delete capability: %v", err)
	}
	list, err := svc.ListCapabilities(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "Ordering" {
		t.Fatalf("unexpected list after delete %v %v", list, err)
	}
}

func TestApplyResearchRollsBackOnError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	capability := mustCreateCapability(t, svc, "Billing")

	boom := errors.New("boom")
	_, _, err := svc.ApplyResearch(ctx, "batch", capability.ID, func(tx Transaction, c domain.Capability) error {
		if _, err := tx.UpsertDomain(domain.Domain{CapabilityID: c.ID, DomainName: "Charging"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	domains, _ := svc.ListDomains(ctx, capability.ID)
	if len(domains) != 0 {
		t.Fatalf("expected rollback, got %v", domains)
	}
}

func TestCanonicalVendor(t *testing.T) {
	svc := newTestService(t, WithVendors(" Amdocs ", "amdocs", "Netcracker", ""))
	if got := svc.Vendors(); len(got) != 2 || got[0] != "Amdocs" || got[1] != "Netcracker" {
		t.Fatalf("unexpected vendors %v", got)
	}
	if v, ok := svc.CanonicalVendor("AMDOCS"); !ok || v != "Amdocs" {
		t.Fatalf("expected case-insensitive match, got %q %v", v, ok)
	}
	if v, ok := svc.CanonicalVendor(" ericsson "); ok || v != "ericsson" {
		t.Fatalf("expected trimmed unknown vendor, got %q %v", v, ok)
	}
}

func isNotFound(err error) bool {
	var nf domain.ErrNotFound
	return errors.As(err, &nf)
}
