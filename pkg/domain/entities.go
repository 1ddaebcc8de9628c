// Package domain defines the persistent research entities, value types, and
// rule evaluation primitives used by capresearch.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the research schema.
type EntityType string

// Supported entity type identifiers used in Change records and persistence tables.
const (
	// EntityCapability identifies a capability record.
	EntityCapability EntityType = "capability"
	// EntityDomain identifies a capability domain record.
	EntityDomain EntityType = "domain"
	// EntityAttribute identifies a capability attribute record.
	EntityAttribute EntityType = "attribute"
	// EntityVendorScore identifies a per-vendor attribute score.
	EntityVendorScore EntityType = "vendor_score"
	// EntityTracker identifies the capability tracker flags.
	EntityTracker EntityType = "capability_tracker"
)

// Status is the research status of a capability as shown on the status board.
type Status string

// Capability statuses in their intended order.
const (
	// StatusNew means domain analysis is still required.
	StatusNew       Status = "new"
	StatusReview    Status = "review"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in board order.
func Statuses() []Status {
	return []Status{StatusNew, StatusReview, StatusReady, StatusCompleted}
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusReview, StatusReady, StatusCompleted:
		return true
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Weight and score bounds.
const (
	MinWeight = 1
	MaxWeight = 100
	MinScore  = 1
	MaxScore  = 5
)

// Base contains common fields for all research records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Capability is a telco capability under vendor research.
type Capability struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	// StatusPinned is set when the status was overridden manually.
	StatusPinned bool `json:"status_pinned"`
}

// Domain groups attributes of a capability.
type Domain struct {
	Base
	CapabilityID string `json:"capability_id"`
	DomainName   string `json:"domain_name"`
	Description  string `json:"description,omitempty"`
}

// Attribute is a scored characteristic of a capability within one domain.
type Attribute struct {
	Base
	CapabilityID   string `json:"capability_id"`
	DomainName     string `json:"domain_name"`
	AttributeName  string `json:"attribute_name"`
	Definition     string `json:"definition"`
	TMForumMapping string `json:"tm_forum_mapping,omitempty"`
	Importance     string `json:"importance,omitempty"`
	Weight         int    `json:"weight"`
	IsActive       bool   `json:"is_active"`
}

// Observation is a tagged research note attached to a vendor score.
type Observation struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// DefaultObservationTag is applied to untagged notes.
const DefaultObservationTag = "note"

// UnmarshalJSON accepts either a tagged object or a bare string note.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*o = Observation{Tag: DefaultObservationTag, Text: text}
		return nil
	}
	type alias Observation
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = Observation(aux)
	if o.Tag == "" {
		o.Tag = DefaultObservationTag
	}
	return nil
}

// VendorScore is the research outcome for one (capability, attribute, vendor) triple.
type VendorScore struct {
	Base
	CapabilityID  string        `json:"capability_id"`
	AttributeName string        `json:"attribute_name"`
	Vendor        string        `json:"vendor"`
	Weight        int           `json:"weight"`
	Score         string        `json:"score"`
	ScoreNumeric  int           `json:"score_numeric"`
	Observation   []Observation `json:"observation"`
	EvidenceURL   []string      `json:"evidence_url"`
	ScoreDecision string        `json:"score_decision,omitempty"`
	ResearchType  string        `json:"research_type,omitempty"`
	ResearchDate  string        `json:"research_date,omitempty"`
}

// CapabilityTracker holds the review flags that drive status derivation.
type CapabilityTracker struct {
	CapabilityName     string    `json:"capability_name"`
	ReviewCompleted    bool      `json:"review_completed"`
	ComprehensiveReady bool      `json:"comprehensive_ready"`
	LastUpdated        time.Time `json:"last_updated"`
	Notes              string    `json:"notes,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change log.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the messages of all non-blocking violations.
func (r Result) Warnings() []string {
	var out []string
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v.Message)
		}
	}
	return out
}
