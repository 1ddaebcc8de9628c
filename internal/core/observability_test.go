package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"capresearch/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureAudit struct {
	entries []AuditEntry
}

func (a *captureAudit) Record(_ context.Context, entry AuditEntry) {
	a.entries = append(a.entries, entry)
}

func TestServiceObservabilityHooks(t *testing.T) {
	audit := &captureAudit{}
	metrics := &captureMetricsRecorder{}
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	created := mustCreateCapability(t, svc, "Billing")
	if _, _, err := svc.CreateCapability(ctx, domain.Capability{Name: "Billing"}); err == nil {
		t.Fatalf("expected conflict")
	}
	if _, err := svc.ListCapabilities(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}

	entries := audit.entries
	if len(entries) != 2 {
		t.Fatalf("expected audit entries for writes only, got %+v", entries)
	}
	if entries[0].Operation != "create_capability" || entries[0].Status != AuditStatusSuccess || entries[0].EntityID != created.ID {
		t.Fatalf("unexpected success entry %+v", entries[0])
	}
	if entries[1].Status != AuditStatusError || entries[1].Error == "" || !entries[1].Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected error entry %+v", entries[1])
	}
	if !metrics.has("create_capability", true) || !metrics.has("create_capability", false) || !metrics.has("list_capabilities", true) {
		t.Fatalf("unexpected metrics %+v", metrics.calls)
	}

	spans := tracer.Entries()
	if len(spans) != 3 || spans[1].Status != "error" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected 3 json lines, got %d", lines)
	}
}

func TestLogAuditRecorder(t *testing.T) {
	logger := &captureLogger{}
	svc := newTestService(t, WithAuditRecorder(NewLogAuditRecorder(logger)))
	mustCreateCapability(t, svc, "Billing")
	if _, _, err := svc.CreateCapability(context.Background(), domain.Capability{Name: "Billing"}); err == nil {
		t.Fatalf("expected conflict")
	}
	if !logger.has("info", "audit") || !logger.has("warn", "audit") {
		t.Fatalf("expected success and failure audit lines, got %+v", logger.records)
	}
	NewLogAuditRecorder(nil).Record(context.Background(), AuditEntry{Operation: "create_capability"})
}

func TestJSONTracerRetainsRecentSpans(t *testing.T) {
	tracer := NewJSONTracer(nil)
	for i := 0; i < maxRetainedSpans+5; i++ {
		_, span := tracer.Start(context.Background(), "list_capabilities")
		span.End(nil)
	}
	if got := len(tracer.Entries()); got != maxRetainedSpans {
		t.Fatalf("expected %d retained spans, got %d", maxRetainedSpans, got)
	}
}

func TestPublisherErrorDoesNotFailOperation(t *testing.T) {
	logger := &captureLogger{}
	publisher := &capturePublisher{err: errors.New("nats down")}
	svc := newTestService(t, WithLogger(logger), WithStatusPublisher(publisher))
	capability := mustCreateCapability(t, svc, "Billing")
	seedFramework(t, svc, capability.ID, "Rating")

	if len(publisher.changes) != 1 || publisher.changes[0].To != domain.StatusReview || publisher.changes[0].Operation != "upsert_attribute" {
		t.Fatalf("unexpected changes %+v", publisher.changes)
	}
	if !logger.has("warn", "publish status change failed") {
		t.Fatalf("expected publish failure to be logged")
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "create_capability", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "create_capability", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	var observations uint64
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "capresearch_service_operations_total":
				labels := map[string]string{}
				for _, lp := range m.GetLabel() {
					labels[lp.GetName()] = lp.GetValue()
				}
				counts[labels["operation"]+"/"+labels["status"]] = m.GetCounter().GetValue()
			case "capresearch_service_operation_duration_seconds":
				observations += m.GetHistogram().GetSampleCount()
			}
		}
	}
	if counts["create_capability/success"] != 1 || counts["create_capability/error"] != 1 || len(counts) != 2 {
		t.Fatalf("unexpected counters %v", counts)
	}
	if observations != 2 {
		t.Fatalf("expected 2 latency observations, got %d", observations)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if _, err := NewPrometheusRecorder(nil); err != nil {
		t.Fatalf("nil registry should use a private one: %v", err)
	}
}

func TestParseStatusOverridePolicy(t *testing.T) {
	for raw, want := range map[string]StatusOverridePolicy{"": OverrideRecompute, "Recompute": OverrideRecompute, " sticky ": OverrideSticky} {
		got, err := ParseStatusOverridePolicy(raw)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s %v", raw, want, got, err)
		}
	}
	if _, err := ParseStatusOverridePolicy("manual"); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	svc := NewInMemoryService(nil, WithClock(nil), WithLogger(nil), WithMetricsRecorder(nil), WithTracer(nil), WithAuditRecorder(nil), WithStatusPublisher(nil), WithStatusOverridePolicy(""))
	if svc.Policy() != OverrideRecompute {
		t.Fatalf("expected default policy, got %s", svc.Policy())
	}
	if svc.Logger() == nil || svc.Now().IsZero() {
		t.Fatalf("expected default logger and clock")
	}
	if len(svc.Vendors()) != 0 {
		t.Fatalf("expected no vendors")
	}
	mustCreateCapability(t, svc, "Billing")
}
