package domain

import "context"

// Transaction exposes the research operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateCapability(Capability) (Capability, error)
	UpdateCapability(id string, mutator func(*Capability) error) (Capability, error)
	DeleteCapability(id string) error
	UpsertDomain(Domain) (Domain, error)
	DeleteDomain(id string) error
	UpsertAttribute(Attribute) (Attribute, error)
	UpdateAttribute(id string, mutator func(*Attribute) error) (Attribute, error)
	DeleteAttribute(id string) error
	UpsertVendorScore(VendorScore) (VendorScore, error)
	DeleteVendorScore(id string) error
	UpsertTracker(capabilityName string, mutator func(*CapabilityTracker) error) (CapabilityTracker, error)
}

// TransactionView provides read-only access to snapshot data for rules and reads.
type TransactionView interface {
	ListCapabilities() []Capability
	FindCapability(id string) (Capability, bool)
	FindCapabilityByName(name string) (Capability, bool)
	ListDomains(capabilityID string) []Domain
	ListAttributes(capabilityID string) []Attribute
	FindAttribute(id string) (Attribute, bool)
	ListVendorScores(capabilityID string) []VendorScore
	FindVendorScore(id string) (VendorScore, bool)
	FindTracker(capabilityName string) (CapabilityTracker, bool)
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
