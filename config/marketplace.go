package config

import "time"

// MarketplaceConfig holds defaults and limits for jobs and applications.
type MarketplaceConfig struct {
	// DefaultJobLifetime is added to a job's posted time when no expiry is supplied.
	DefaultJobLifetime time.Duration `env:"JOB_DEFAULT_LIFETIME" envDefault:"720h"` // 30 days

	// DefaultMaxApplicants caps applications per job when the employer sets none.
	DefaultMaxApplicants int `env:"JOB_DEFAULT_MAX_APPLICANTS" envDefault:"50"`

	// NotificationLifetime is how long a notification stays visible.
	NotificationLifetime time.Duration `env:"NOTIFICATION_LIFETIME" envDefault:"2160h"` // 90 days
}

// Sanitize applies guardrails to marketplace limits.
func (m *MarketplaceConfig) Sanitize() {
	if m.DefaultJobLifetime < time.Hour {
		m.DefaultJobLifetime = time.Hour
	}
	if m.DefaultMaxApplicants < 1 {
		m.DefaultMaxApplicants = 1
	}
	if m.NotificationLifetime < 24*time.Hour {
		m.NotificationLifetime = 24 * time.Hour
	}
}
