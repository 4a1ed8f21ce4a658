// Package notify defines the operator alert payload shared by outbound sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// FailurePayload describes a background failure or anomaly that operators should see.
type FailurePayload struct {
	Component  string // reconciler, dispatcher
	Operation  string // reconcile, capacity_drift, dispatch, dead_letter
	Summary    string
	JobID      string // set when the alert concerns a single job posting
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// DedupKey groups repeats of the same alert.
func (p FailurePayload) DedupKey() string {
	key := p.Component + ":" + p.Operation
	if p.JobID != "" {
		key += ":" + p.JobID
	}
	return key
}

// Sink describes a destination capable of consuming failure alerts.
type Sink interface {
	SendFailure(ctx context.Context, payload FailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload FailurePayload) error

// SendFailure implements the Sink interface.
func (f SinkFunc) SendFailure(ctx context.Context, payload FailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
