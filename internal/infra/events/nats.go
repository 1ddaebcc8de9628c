// Package events publishes capability status changes to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"capresearch/internal/core"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the new status of every change.
const DefaultSubjectPrefix = "capresearch.capability.status"

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Config holds connection parameters.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Publisher implements core.StatusPublisher. Subjects have the form
// <prefix>.<status>, e.g. capresearch.capability.status.completed.
type Publisher struct {
	conn   Conn
	prefix string

	mu     sync.Mutex
	closed bool
}

var _ core.StatusPublisher = (*Publisher)(nil)

// Connect dials the NATS server named in cfg.
func Connect(cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("nats url required")
	}
	name := cfg.Name
	if name == "" {
		name = "capresearch"
	}
	opts := []nats.Option{nats.Name(name)}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewPublisher(nc, cfg.SubjectPrefix), nil
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, prefix string) *Publisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject returns the subject a change to status is published on.
func (p *Publisher) Subject(status string) string {
	return p.prefix + "." + status
}

// PublishStatusChange encodes change as JSON and publishes it.
func (p *Publisher) PublishStatusChange(ctx context.Context, change core.StatusChange) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("publisher closed")
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	if err := p.conn.Publish(p.Subject(string(change.To)), data); err != nil {
		return fmt.Errorf("publish %s: %w", change.CapabilityID, err)
	}
	return nil
}

// Close closes the underlying connection once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.conn.Close()
	return nil
}
