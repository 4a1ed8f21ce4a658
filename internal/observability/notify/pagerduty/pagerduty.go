// Package pagerduty triggers PagerDuty incidents for operator alerts.
package pagerduty

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client publishes trigger events via the Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	poster     *notify.Poster
	now        func() time.Time
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, "kaamsathi-api"),
		component:  orDefault(cfg.Component, "kaamsathi"),
		poster:     notify.NewPoster("pagerduty events api", orDefault(cfg.Endpoint, APIEndpoint), cfg.RetryLimit, cfg.Timeout, cfg.Client),
		now:        time.Now,
	}, nil
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component"`
	Group         string         `json:"group,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

// SendFailure submits a trigger event.
func (c *Client) SendFailure(ctx context.Context, payload notify.FailurePayload) error {
	return c.poster.PostJSON(ctx, c.buildEvent(payload))
}

func (c *Client) buildEvent(p notify.FailurePayload) event {
	at := p.OccurredAt
	if at.IsZero() {
		at = c.now()
	}

	details := make(map[string]any, len(p.Metadata)+5)
	for k, v := range p.Metadata {
		details[k] = v
	}
	details["component"] = p.Component
	details["operation"] = p.Operation
	details["error"] = p.Error
	details["error_class"] = p.ErrorClass
	if p.JobID != "" {
		details["job_id"] = p.JobID
	}

	summary := p.Summary
	if summary == "" {
		summary = orDefault(p.Component, "unknown") + " " + orDefault(p.Operation, "operation") + " failed"
	}

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    strings.Trim(p.DedupKey(), ":"),
		Payload: eventPayload{
			Summary:       summary,
			Severity:      strings.ToLower(orDefault(p.Severity, notify.SeverityCritical)),
			Source:        c.source,
			Component:     c.component,
			Group:         p.Component,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
