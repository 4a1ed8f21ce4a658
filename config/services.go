package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeReconciler runs the capacity reconciler and job expiry sweep.
	ServiceModeReconciler ServiceMode = "reconciler"
	// ServiceModeDispatcher runs the outbound notification webhook dispatcher.
	ServiceModeDispatcher ServiceMode = "dispatcher"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeReconciler,
		ServiceModeDispatcher,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeReconciler, ServiceModeDispatcher:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, reconciler, dispatcher)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ReconcilerConfig contains capacity reconciler configuration.
type ReconcilerConfig struct {
	// Interval is the reconciler tick interval.
	Interval time.Duration `env:"RECONCILER_INTERVAL" envDefault:"5m"`

	// BatchSize is the maximum number of jobs expired or recounted per tick.
	// Batching prevents long locks on the jobs table.
	BatchSize int `env:"RECONCILER_BATCH_SIZE" envDefault:"500"`

	// NotificationRetention is the age after which soft-deleted or expired
	// notifications are purged.
	NotificationRetention time.Duration `env:"RECONCILER_NOTIFICATION_RETENTION" envDefault:"720h"` // 30 days
}

// Sanitize applies guardrails to reconciler configuration values.
func (r *ReconcilerConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.NotificationRetention < 24*time.Hour {
		r.NotificationRetention = 24 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// DispatcherConfig contains outbound notification webhook configuration.
type DispatcherConfig struct {
	// WebhookURL receives one POST per notification. Empty disables delivery.
	WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`

	// BodyExpr is an optional JMESPath expression applied to the notification
	// document to shape the outbound body.
	BodyExpr string `env:"NOTIFY_WEBHOOK_BODY_EXPR"`

	// AuthHeader is sent verbatim as the Authorization header when set.
	AuthHeader string `env:"NOTIFY_WEBHOOK_AUTH_HEADER"`

	Interval    time.Duration `env:"NOTIFY_DISPATCH_INTERVAL"    envDefault:"10s"`
	Timeout     time.Duration `env:"NOTIFY_WEBHOOK_TIMEOUT"      envDefault:"5s"`
	BatchSize   int           `env:"NOTIFY_DISPATCH_BATCH_SIZE"  envDefault:"50"`
	Concurrency int           `env:"NOTIFY_DISPATCH_CONCURRENCY" envDefault:"4"`

	// MaxAttempts failed deliveries dead-letter a notification.
	MaxAttempts     int           `env:"NOTIFY_MAX_ATTEMPTS"      envDefault:"8"`
	RetryBackoff    time.Duration `env:"NOTIFY_RETRY_BACKOFF"     envDefault:"30s"`
	MaxRetryBackoff time.Duration `env:"NOTIFY_RETRY_MAX_BACKOFF" envDefault:"1h"`
}

// Enabled reports whether a webhook target is configured.
func (d *DispatcherConfig) Enabled() bool {
	return d.WebhookURL != ""
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	d.WebhookURL = strings.TrimSpace(d.WebhookURL)
	d.BodyExpr = strings.TrimSpace(d.BodyExpr)
	if d.Interval < time.Second {
		d.Interval = time.Second
	}
	if d.Timeout <= 0 {
		d.Timeout = 5 * time.Second
	}
	if d.BatchSize < 1 {
		d.BatchSize = 1
	}
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.MaxAttempts < 1 {
		d.MaxAttempts = 8
	}
	if d.RetryBackoff <= 0 {
		d.RetryBackoff = 30 * time.Second
	}
	if d.MaxRetryBackoff <= 0 {
		d.MaxRetryBackoff = time.Hour
	}
	d.MaxRetryBackoff = max(d.MaxRetryBackoff, d.RetryBackoff)
}
