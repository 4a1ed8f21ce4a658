package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify"
)

type captureSink struct {
	mu       sync.Mutex
	received []notify.FailurePayload
}

func (c *captureSink) SendFailure(_ context.Context, p notify.FailurePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, p)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func TestServiceNotifyFailure(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: sink}}})

	svc.NotifyFailure(context.Background(), notify.FailurePayload{Component: "reconciler", Operation: "reconcile"})

	require.Equal(t, 1, sink.count())
	assert.Equal(t, notify.SeverityCritical, sink.received[0].Severity)
	assert.False(t, sink.received[0].OccurredAt.IsZero())
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyFailure(context.Background(), notify.FailurePayload{})
}

func TestServiceSurvivesSinkErrors(t *testing.T) {
	ok := &captureSink{}
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.FailurePayload) error {
				return errors.New("boom")
			})},
			{Name: "ok", Sink: ok},
		},
	})

	svc.NotifyFailure(context.Background(), notify.FailurePayload{Component: "dispatcher"})
	assert.Equal(t, 1, ok.count())
}

func TestServiceCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	svc := NewService(Options{
		Sinks:    []SinkRegistration{{Name: "capture", Sink: sink}},
		Cooldown: 10 * time.Minute,
		Clock:    func() time.Time { return now },
	})
	ctx := context.Background()
	failure := notify.FailurePayload{Component: "reconciler", Operation: "reconcile"}

	svc.NotifyFailure(ctx, failure)
	svc.NotifyFailure(ctx, failure)
	assert.Equal(t, 1, sink.count(), "repeat inside cooldown is suppressed")

	svc.NotifyFailure(ctx, notify.FailurePayload{Component: "dispatcher", Operation: "dispatch"})
	assert.Equal(t, 2, sink.count(), "different key is delivered")

	now = now.Add(11 * time.Minute)
	svc.NotifyFailure(ctx, failure)
	assert.Equal(t, 3, sink.count(), "delivered again after cooldown")
}
