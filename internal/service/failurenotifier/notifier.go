// Package failurenotifier fans operator alerts out to Slack, PagerDuty and other sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Cooldown suppresses repeats of the same dedup key. Zero sends every alert.
	Cooldown time.Duration
	Clock    func() time.Time
}

// Service dispatches failure alerts to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	cooldown time.Duration
	clock    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	return &Service{
		logger:   logger,
		sinks:    sinks,
		cooldown: max(opts.Cooldown, 0),
		clock:    clock,
		lastSent: make(map[string]time.Time),
	}
}

// NotifyFailure fans the payload out to all sinks and waits for delivery.
// A nil Service is a no-op.
func (s *Service) NotifyFailure(ctx context.Context, payload notify.FailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.clock()
	}
	if s.suppressed(payload) {
		s.logger.DebugContext(ctx, "alert suppressed by cooldown",
			"dedup_key", payload.DedupKey(),
			"cooldown", s.cooldown,
		)
		return
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"component", payload.Component,
					"operation", payload.Operation,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// suppressed records the send time and reports whether an identical alert
// went out within the cooldown window.
func (s *Service) suppressed(payload notify.FailurePayload) bool {
	if s.cooldown == 0 {
		return false
	}
	key := payload.DedupKey()
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && now.Sub(last) < s.cooldown {
		return true
	}
	s.lastSent[key] = now
	return false
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
