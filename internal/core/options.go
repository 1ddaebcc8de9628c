package core

import (
	"fmt"
	"strings"
)

// StatusOverridePolicy decides what happens to a manually pinned status when
// research artifacts change.
type StatusOverridePolicy string

const (
	// OverrideRecompute lets the next artifact write recompute the status and drop the pin.
	OverrideRecompute StatusOverridePolicy = "recompute"
	// OverrideSticky keeps a pinned status until it is cleared explicitly.
	OverrideSticky StatusOverridePolicy = "sticky"
)

// ParseStatusOverridePolicy maps a configuration value to a policy. Empty means recompute.
func ParseStatusOverridePolicy(raw string) (StatusOverridePolicy, error) {
	switch StatusOverridePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OverrideRecompute:
		return OverrideRecompute, nil
	case OverrideSticky:
		return OverrideSticky, nil
	default:
		return "", fmt.Errorf("unknown status override policy %q", raw)
	}
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithVendors sets the configured vendor list. Order is preserved and
// case-insensitive duplicates are dropped.
func WithVendors(vendors ...string) Option {
	return func(s *Service) {
		s.vendors = normalizeVendors(vendors)
	}
}

// WithStatusOverridePolicy selects how pinned statuses react to artifact writes.
func WithStatusOverridePolicy(policy StatusOverridePolicy) Option {
	return func(s *Service) {
		if policy != "" {
			s.policy = policy
		}
	}
}

// WithStatusPublisher sets the sink notified after committed status changes.
func WithStatusPublisher(publisher StatusPublisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

func normalizeVendors(vendors []string) []string {
	seen := make(map[string]struct{}, len(vendors))
	out := make([]string, 0, len(vendors))
	for _, v := range vendors {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
