package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"capresearch/internal/core"
	"capresearch/pkg/domain"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs   []message
	err    error
	closes int
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Close() { f.closes++ }

func TestPublishStatusChange(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "")
	at := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	change := core.StatusChange{CapabilityID: "cap-1", CapabilityName: "Billing", From: domain.StatusReady, To: domain.StatusCompleted, Operation: "process_comprehensive_results", At: at}
	if err := p.PublishStatusChange(context.Background(), change); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(conn.msgs) != 1 || conn.msgs[0].subject != "capresearch.capability.status.completed" {
		t.Fatalf("unexpected messages %+v", conn.msgs)
	}
	var decoded core.StatusChange
	if err := json.Unmarshal(conn.msgs[0].data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.CapabilityName != "Billing" || decoded.From != domain.StatusReady || !decoded.At.Equal(at) {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPublisherErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("no responders")}
	p := NewPublisher(conn, "research.status.")
	if p.Subject("review") != "research.status.review" {
		t.Fatalf("unexpected subject %s", p.Subject("review"))
	}
	if err := p.PublishStatusChange(context.Background(), core.StatusChange{To: domain.StatusReview}); err == nil {
		t.Fatalf("expected publish error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PublishStatusChange(ctx, core.StatusChange{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	_ = p.Close()
	_ = p.Close()
	if conn.closes != 1 {
		t.Fatalf("expected single close, got %d", conn.closes)
	}
	conn.err = nil
	if err := p.PublishStatusChange(context.Background(), core.StatusChange{To: domain.StatusNew}); err == nil {
		t.Fatalf("expected closed publisher to fail")
	}
}

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(Config{}); err == nil {
		t.Fatalf("expected missing url error")
	}
}
