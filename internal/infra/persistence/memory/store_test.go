package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"capresearch/pkg/domain"
)

type blockingRule struct{}

func (blockingRule) Name() string { return "block_all" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		if c.Entity == domain.EntityVendorScore {
			res.Violations = append(res.Violations, domain.Violation{Rule: "block_all", Severity: domain.SeverityBlock, Message: "no scores", Entity: c.Entity})
		}
	}
	return res, nil
}

func seedCapability(t *testing.T, store *Store, name string) Capability {
	t.Helper()
	var created Capability
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateCapability(Capability{Name: name, Description: name + " capability"})
		return err
	})
	if err != nil {
		t.Fatalf("create capability: %v", err)
	}
	return created
}

func TestStoreCapabilityLifecycle(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()

	capability := seedCapability(t, store, "Billing")
	if capability.ID == "" || capability.Status != domain.StatusNew {
		t.Fatalf("unexpected capability %+v", capability)
	}
	if !capability.CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock to stamp CreatedAt, got %v", capability.CreatedAt)
	}

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateCapability(Capability{Name: "Billing"})
		return err
	})
	var conflict domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on duplicate name, got %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.UpsertTracker("Billing", func(tr *CapabilityTracker) error {
			tr.ReviewCompleted = true
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdateCapability(capability.ID, func(c *Capability) error {
			c.Name = "Charging & Billing"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}

	err = store.View(ctx, func(v TransactionView) error {
		if _, ok := v.FindTracker("Billing"); ok {
			t.Fatalf("tracker should move with the rename")
		}
		tr, ok := v.FindTracker("Charging & Billing")
		if !ok || !tr.ReviewCompleted {
			t.Fatalf("expected renamed tracker, got %+v", tr)
		}
		if _, ok := v.FindCapabilityByName("Charging & Billing"); !ok {
			t.Fatalf("expected capability by new name")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateCapability("missing", func(*Capability) error { return nil })
		return err
	})
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreUpsertsAreKeyedOnNaturalKeys(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	capability := seedCapability(t, store, "Billing")

	var first, second VendorScore
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		d1, err := tx.UpsertDomain(Domain{CapabilityID: capability.ID, DomainName: "Charging", Description: "v1"})
		if err != nil {
			return err
		}
		d2, err := tx.UpsertDomain(Domain{CapabilityID: capability.ID, DomainName: "Charging", Description: "v2"})
		if err != nil {
			return err
		}
		if d1.ID != d2.ID || d2.Description != "v2" {
			t.Fatalf("domain upsert should update in place: %+v %+v", d1, d2)
		}
		a1, err := tx.UpsertAttribute(Attribute{CapabilityID: capability.ID, DomainName: "Charging", AttributeName: "Rating", Weight: 10, IsActive: true})
		if err != nil {
			return err
		}
		a2, err := tx.UpsertAttribute(Attribute{CapabilityID: capability.ID, DomainName: "Charging", AttributeName: "Rating", Weight: 20, IsActive: true})
		if err != nil {
			return err
		}
		if a1.ID != a2.ID || a2.Weight != 20 {
			t.Fatalf("attribute upsert should update in place: %+v %+v", a1, a2)
		}
		first, err = tx.UpsertVendorScore(VendorScore{CapabilityID: capability.ID, AttributeName: "Rating", Vendor: "amdocs", Score: "3 - Good", ScoreNumeric: 3, EvidenceURL: []string{"https://a"}})
		if err != nil {
			return err
		}
		second, err = tx.UpsertVendorScore(VendorScore{CapabilityID: capability.ID, AttributeName: "Rating", Vendor: "amdocs", Score: "5 - Excellent", ScoreNumeric: 5})
		return err
	})
	if err != nil {
		t.Fatalf("upserts: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("vendor score upsert should keep the id")
	}

	_ = store.View(ctx, func(v TransactionView) error {
		scores := v.ListVendorScores(capability.ID)
		if len(scores) != 1 || scores[0].ScoreNumeric != 5 || len(scores[0].EvidenceURL) != 0 {
			t.Fatalf("expected single last-write score, got %+v", scores)
		}
		if len(v.ListDomains(capability.ID)) != 1 || len(v.ListAttributes(capability.ID)) != 1 {
			t.Fatalf("expected a single domain and attribute")
		}
		return nil
	})
}

func TestStoreCascadeDelete(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	capability := seedCapability(t, store, "Billing")
	other := seedCapability(t, store, "Mediation")

	var chargingID string
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, capID := range []string{capability.ID, other.ID} {
			d, err := tx.UpsertDomain(Domain{CapabilityID: capID, DomainName: "Charging"})
			if err != nil {
				return err
			}
			if capID == capability.ID {
				chargingID = d.ID
			}
			if _, err := tx.UpsertDomain(Domain{CapabilityID: capID, DomainName: "Invoicing"}); err != nil {
				return err
			}
			for _, a := range []Attribute{
				{CapabilityID: capID, DomainName: "Charging", AttributeName: "Rating", Weight: 10, IsActive: true},
				{CapabilityID: capID, DomainName: "Invoicing", AttributeName: "Layout", Weight: 10, IsActive: true},
			} {
				if _, err := tx.UpsertAttribute(a); err != nil {
					return err
				}
				if _, err := tx.UpsertVendorScore(VendorScore{CapabilityID: capID, AttributeName: a.AttributeName, Vendor: "amdocs", ScoreNumeric: 4}); err != nil {
					return err
				}
			}
		}
		_, err := tx.UpsertTracker("Billing", nil)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteDomain(chargingID) }); err != nil {
		t.Fatalf("delete domain: %v", err)
	}
	_ = store.View(ctx, func(v TransactionView) error {
		attrs := v.ListAttributes(capability.ID)
		if len(attrs) != 1 || attrs[0].AttributeName != "Layout" {
			t.Fatalf("expected only Layout to remain, got %+v", attrs)
		}
		scores := v.ListVendorScores(capability.ID)
		if len(scores) != 1 || scores[0].AttributeName != "Layout" {
			t.Fatalf("expected only the Layout score to remain, got %+v", scores)
		}
		return nil
	})

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteCapability(capability.ID) }); err != nil {
		t.Fatalf("delete capability: %v", err)
	}
	snapshot := store.ExportState()
	if len(snapshot.Capabilities) != 1 || len(snapshot.Domains) != 2 || len(snapshot.Attributes) != 2 || len(snapshot.VendorScores) != 2 {
		t.Fatalf("cascade removed the wrong records: %+v", snapshot)
	}
	if _, ok := snapshot.Trackers["Billing"]; ok {
		t.Fatalf("tracker should be deleted with its capability")
	}
}

func TestStoreRollsBackOnErrorAndBlockingRule(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	ctx := context.Background()
	capability := seedCapability(t, store, "Billing")

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.UpsertDomain(Domain{CapabilityID: capability.ID, DomainName: "Charging"}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected callback error, got %v", err)
	}

	res, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.UpsertDomain(Domain{CapabilityID: capability.ID, DomainName: "Charging"}); err != nil {
			return err
		}
		_, err := tx.UpsertVendorScore(VendorScore{CapabilityID: capability.ID, AttributeName: "Rating", Vendor: "amdocs"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) || !res.HasBlocking() {
		t.Fatalf("expected rule violation, got %v", err)
	}

	_ = store.View(ctx, func(v TransactionView) error {
		if len(v.ListDomains(capability.ID)) != 0 {
			t.Fatalf("failed transactions must not leave domains behind")
		}
		return nil
	})
}

func TestStoreImportExportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	capability := seedCapability(t, store, "Billing")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpsertVendorScore(VendorScore{
			CapabilityID:  capability.ID,
			AttributeName: "Rating",
			Vendor:        "amdocs",
			Observation:   []domain.Observation{{Tag: "strength", Text: "fast"}},
			EvidenceURL:   []string{"https://example.com"},
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	snapshot := store.ExportState()
	for id, s := range snapshot.VendorScores {
		s.EvidenceURL[0] = "mutated"
		snapshot.VendorScores[id] = s
	}
	_ = store.View(context.Background(), func(v TransactionView) error {
		if got := v.ListVendorScores(capability.ID)[0].EvidenceURL[0]; got != "https://example.com" {
			t.Fatalf("export must not alias store state, got %q", got)
		}
		return nil
	})

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())
	_ = restored.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindCapability(capability.ID); !ok {
			t.Fatalf("capability missing after import")
		}
		if len(v.ListVendorScores(capability.ID)) != 1 {
			t.Fatalf("vendor score missing after import")
		}
		return nil
	})
}

func TestStoreRejectsOrphans(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpsertDomain(Domain{CapabilityID: "missing", DomainName: "Charging"})
		return err
	})
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) || notFound.Entity != domain.EntityCapability {
		t.Fatalf("expected missing capability, got %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpsertTracker("nobody", nil)
		return err
	})
	if !errors.As(err, &notFound) {
		t.Fatalf("expected missing capability for tracker, got %v", err)
	}
}

func TestCommitHookGatesTheSwap(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	createBilling := func(tx Transaction) error {
		_, err := tx.CreateCapability(domain.Capability{Name: "Billing"})
		return err
	}

	var seen Snapshot
	_, err := store.RunInTransactionWithCommit(ctx, createBilling, func(_ context.Context, s Snapshot) error {
		seen = s
		return errors.New("disk full")
	})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected commit error, got %v", err)
	}
	if len(seen.Capabilities) != 1 {
		t.Fatalf("commit should see the candidate state, got %+v", seen.Capabilities)
	}
	if got := len(store.ExportState().Capabilities); got != 0 {
		t.Fatalf("rejected commit leaked %d capabilities", got)
	}

	if _, err := store.RunInTransactionWithCommit(ctx, createBilling, func(context.Context, Snapshot) error { return nil }); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := len(store.ExportState().Capabilities); got != 1 {
		t.Fatalf("expected one capability, got %d", got)
	}
}
