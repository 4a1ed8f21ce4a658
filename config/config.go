package config

import "strings"

// AppConfig is the process configuration, parsed from the environment with
// caarlos0/env. Each sub-config lives in its own file with its own Sanitize.
type AppConfig struct {
	// IsDev is set by DEV=true or APP_ENV=development|dev. It selects text
	// logs on stderr.
	IsDev  bool   `env:"DEV"     envDefault:"false"`
	AppEnv string `env:"APP_ENV"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Services is a comma list of service modes run by this process.
	Services string `env:"SERVICES" envDefault:"http"`

	Auth     AuthConfig
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig
	HTTP     HTTPConfig

	Marketplace   MarketplaceConfig
	Reconciler    ReconcilerConfig
	Dispatcher    DispatcherConfig
	Observability ObservabilityConfig
}

// Sanitize applies guardrails after parsing. Call it once per load.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Cache.Sanitize()
	c.Marketplace.Sanitize()
	c.Reconciler.Sanitize()
	c.Dispatcher.Sanitize()
	c.Observability.Sanitize()

	if c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel)); c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "development", "dev":
		c.IsDev = true
	}
}

// GetEnabledServices parses Services into a set of modes.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// Enabled reports whether SERVICES selects mode. An invalid SERVICES value enables nothing.
func (c *AppConfig) Enabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	return err == nil && services[mode]
}
