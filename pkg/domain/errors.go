package domain

import (
	"fmt"
	"strings"
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrConflict is returned when a write would violate a uniqueness constraint.
type ErrConflict struct {
	Entity EntityType
	Key    string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

// InvalidInputError reports a request field that cannot be accepted.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseError reports a research upload that is not valid JSON.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("malformed research json: %v", e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// SchemaValidationError reports a payload that violates the research contract.
type SchemaValidationError struct {
	ExpectedType string
	Issues       []string
}

func (e SchemaValidationError) Error() string {
	return fmt.Sprintf("%s payload failed validation: %s", e.ExpectedType, strings.Join(e.Issues, "; "))
}

// TypeMismatchError reports an upload whose shape belongs to another research type.
type TypeMismatchError struct {
	Expected string
	Detected string
	Issues   []string
}

func (e TypeMismatchError) Error() string {
	if e.Detected == e.Expected && len(e.Issues) > 0 {
		return fmt.Sprintf("%s payload failed schema validation: %s", e.Expected, strings.Join(e.Issues, "; "))
	}
	detected := e.Detected
	if detected == "" {
		detected = "unknown"
	}
	msg := fmt.Sprintf("expected %s payload, detected %s", e.Expected, detected)
	if len(e.Issues) > 0 {
		msg += ": " + strings.Join(e.Issues, "; ")
	}
	return msg
}

// ReferentialError reports a payload reference that cannot be resolved.
type ReferentialError struct {
	Entity EntityType
	Name   string
	Reason string
}

func (e ReferentialError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Entity, e.Name, e.Reason)
}

// IncompleteResearchError is returned by reporting before a capability is completed.
type IncompleteResearchError struct {
	CapabilityID string
	Status       Status
}

func (e IncompleteResearchError) Error() string {
	return fmt.Sprintf("capability %s research incomplete (status %s)", e.CapabilityID, e.Status)
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}
