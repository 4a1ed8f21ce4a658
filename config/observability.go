package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "kaamsathi"

// ObservabilityConfig groups metrics emission and operator alerts.
type ObservabilityConfig struct {
	Metrics MetricsConfig
	Alerts  AlertsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Alerts.Sanitize()
}

// MetricsConfig ships counters and timings to a StatsD agent over UDP.
type MetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"kaamsathi"`
}

// Sanitize trims values and switches metrics off without an agent address.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// AlertsConfig routes reconciler and dispatcher failures to operators.
// A sink is active once its webhook URL or routing key is set.
type AlertsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	// Cooldown suppresses repeats of the same alert, e.g. a reconciler failing every tick.
	Cooldown time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_COOLDOWN" envDefault:"15m"`
	// CapacityDrift raises a warning whenever the reconciler corrects counters.
	CapacityDrift bool `env:"OBSERVABILITY_NOTIFICATIONS_CAPACITY_DRIFT" envDefault:"true"`

	Slack     SlackAlertConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty PagerDutyAlertConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize clamps limits and fills sink defaults.
func (c *AlertsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)
	c.Cooldown = max(c.Cooldown, 0)

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)
	c.Slack.Channel = strings.TrimSpace(c.Slack.Channel)
	c.Slack.JobURLPrefix = strings.TrimSpace(c.Slack.JobURLPrefix)
	c.Slack.Username = orDefaultName(c.Slack.Username)

	c.PagerDuty.RoutingKey = strings.TrimSpace(c.PagerDuty.RoutingKey)
	c.PagerDuty.Source = orDefaultName(c.PagerDuty.Source)
	c.PagerDuty.Component = orDefaultName(c.PagerDuty.Component)
}

// Sinks names the sinks that will receive alerts, in delivery order.
// It is empty while alerts are switched off.
func (c AlertsConfig) Sinks() []string {
	if !c.Enabled {
		return nil
	}
	var out []string
	if c.Slack.WebhookURL != "" {
		out = append(out, "slack")
	}
	if c.PagerDuty.RoutingKey != "" {
		out = append(out, "pagerduty")
	}
	return out
}

// SlackAlertConfig posts alerts to a Slack incoming webhook.
type SlackAlertConfig struct {
	WebhookURL   string `env:"WEBHOOK_URL"`
	Channel      string `env:"CHANNEL"`
	Username     string `env:"USERNAME"       envDefault:"kaamsathi"`
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

// PagerDutyAlertConfig triggers PagerDuty Events API v2 incidents.
type PagerDutyAlertConfig struct {
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"kaamsathi-api"`
	Component  string `env:"COMPONENT"   envDefault:"kaamsathi"`
}

func orDefaultName(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return defaultObservabilityName
	}
	return v
}
