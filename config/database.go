package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"kaamsathi"`
	Password string `env:"PASSWORD"                envDefault:"kaamsathi"`
	Name     string `env:"NAME"                    envDefault:"kaamsathi"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig contains cache TTLs for Redis-backed read paths.
type CacheConfig struct {
	// UnreadCountTTL is how long a user's unread notification count stays cached.
	UnreadCountTTL time.Duration `env:"CACHE_UNREAD_COUNT_TTL" envDefault:"30s"`

	// JobTTL is how long a public job document stays cached.
	JobTTL time.Duration `env:"CACHE_JOB_TTL" envDefault:"2m"`
}

// Sanitize applies guardrails to cache TTLs.
func (c *CacheConfig) Sanitize() {
	if c.UnreadCountTTL < time.Second {
		c.UnreadCountTTL = time.Second
	}
	if c.JobTTL < time.Second {
		c.JobTTL = time.Second
	}
}
