package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"capresearch/pkg/domain"
)

var testVendors = []string{"amdocs", "netcracker"}

var fixedNow = time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

type logRecord struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.level == level && r.msg == msg {
			return true
		}
	}
	return false
}

type capturePublisher struct {
	changes []StatusChange
	err     error
}

func (p *capturePublisher) PublishStatusChange(_ context.Context, change StatusChange) error {
	p.changes = append(p.changes, change)
	return p.err
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithClock(ClockFunc(func() time.Time { return fixedNow })),
		WithVendors(testVendors...),
	}
	return NewInMemoryService(NewDefaultRulesEngine(testVendors), append(base, opts...)...)
}

func mustCreateCapability(t *testing.T, svc *Service, name string) domain.Capability {
	t.Helper()
	created, _, err := svc.CreateCapability(context.Background(), domain.Capability{Name: name, Description: name + " capability"})
	if err != nil {
		t.Fatalf("create capability %s: %v", name, err)
	}
	return created
}

// seedFramework adds one domain with the named active attributes.
func seedFramework(t *testing.T, svc *Service, capabilityID string, attributes ...string) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := svc.UpsertDomain(ctx, capabilityID, domain.Domain{DomainName: "Charging"}); err != nil {
		t.Fatalf("upsert domain: %v", err)
	}
	for i, name := range attributes {
		attr := domain.Attribute{DomainName: "Charging", AttributeName: name, Weight: 10 * (i + 1), IsActive: true}
		if _, _, err := svc.UpsertAttribute(ctx, capabilityID, attr); err != nil {
			t.Fatalf("upsert attribute %s: %v", name, err)
		}
	}
}

func mustStatus(t *testing.T, svc *Service, capabilityID string) domain.Capability {
	t.Helper()
	overview, err := svc.GetCapability(context.Background(), capabilityID)
	if err != nil {
		t.Fatalf("get capability: %v", err)
	}
	return overview.Capability
}

func scoreAll(t *testing.T, svc *Service, capabilityID string, attributes ...string) {
	t.Helper()
	for _, attr := range attributes {
		for i, vendor := range testVendors {
			score := domain.VendorScore{AttributeName: attr, Vendor: vendor, Score: fmt.Sprintf("%d", 3+i)}
			if _, _, err := svc.UpsertVendorScore(context.Background(), capabilityID, score); err != nil {
				t.Fatalf("upsert score %s/%s: %v", attr, vendor, err)
			}
		}
	}
}
