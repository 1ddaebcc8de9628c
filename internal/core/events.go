package core

import (
	"context"
	"time"

	"capresearch/pkg/domain"
)

// StatusChange is emitted after a committed transaction moved a capability
// to a different status.
type StatusChange struct {
	CapabilityID   string        `json:"capability_id"`
	CapabilityName string        `json:"capability_name"`
	From           domain.Status `json:"from"`
	To             domain.Status `json:"to"`
	Pinned         bool          `json:"pinned"`
	Operation      string        `json:"operation"`
	At             time.Time     `json:"at"`
}

// StatusPublisher delivers status changes to interested parties.
type StatusPublisher interface {
	PublishStatusChange(ctx context.Context, change StatusChange) error
}

type noopPublisher struct{}

func (noopPublisher) PublishStatusChange(context.Context, StatusChange) error { return nil }

// StatusUpdate reports the outcome of a status recomputation.
type StatusUpdate struct {
	CapabilityID   string        `json:"capability_id"`
	CapabilityName string        `json:"capability_name"`
	Previous       domain.Status `json:"previous_status"`
	Status         domain.Status `json:"status"`
	Derived        domain.Status `json:"derived_status"`
	Pinned         bool          `json:"status_pinned"`
	// Monotonic is false when the move goes against the forward research flow.
	Monotonic bool `json:"monotonic"`
}

// Changed reports whether the status moved.
func (u StatusUpdate) Changed() bool { return u.Previous != u.Status }
