package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/data"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify/pagerduty"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify/slack"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
	"github.com/kaamsathi/kaamsathi-api/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Users         *service.UserService
	Auth          *service.AuthService
	Jobs          *service.JobService
	Applications  *service.ApplicationService
	Notifications *service.NotificationService
	Messages      *service.MessageService
	Cache         *data.RedisCacheRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink statsd.Sink
	// FailureNotifier has no sinks when operator alerts are disabled.
	FailureNotifier     *failurenotifier.Service
	CapacityDriftAlerts bool
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink and the operator alert fan-out.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{
		FailureNotifier:     buildFailureNotifier(obsLogger, cfg.Alerts),
		CapacityDriftAlerts: cfg.Alerts.CapacityDrift,
	}
	if !cfg.Metrics.Enabled {
		return out
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return out
	}
	out.MetricsSink = client
	return out
}

func buildFailureNotifier(logger *slog.Logger, cfg config.AlertsConfig) *failurenotifier.Service {
	opts := failurenotifier.Options{
		Logger:   logger.With("component", "failure_notifier"),
		Cooldown: cfg.Cooldown,
	}
	for _, name := range cfg.Sinks() {
		sink, err := newAlertSink(name, cfg)
		if err != nil {
			logger.Error("failed to initialise alert sink", "sink", name, "error", err)
			continue
		}
		opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: name, Sink: sink})
	}
	if len(opts.Sinks) > 0 {
		logger.Info("operator alerts enabled", "sinks", cfg.Sinks(), "cooldown", cfg.Cooldown)
	}
	return failurenotifier.NewService(opts)
}

// newAlertSink builds the named sink. A failed constructor yields a nil
// interface, never a typed nil client.
//
//nolint:ireturn // sink type depends on name.
func newAlertSink(name string, cfg config.AlertsConfig) (notify.Sink, error) {
	switch name {
	case "slack":
		c, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "pagerduty":
		c, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown alert sink %q", name)
	}
}

// NewServices builds every domain service over Postgres and, when a client
// is given, Redis.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("service deps with a database are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}

	obs := buildObservability(logger, cfg.Observability)
	metrics := obs.MetricsSink
	tx := data.NewTxManager(deps.DB)
	out := ServiceContainer{Observability: obs}

	// A nil *RedisCacheRepo must not become a non-nil interface value.
	var cache core.CacheRepository
	if deps.RedisClient != nil {
		out.Cache = data.NewRedisCacheRepo(deps.RedisClient)
		cache = out.Cache
	}

	var err error
	if out.Users, err = service.NewUserService(service.UserServiceOptions{
		Repo:   data.NewUserRepo(deps.DB),
		Logger: logger,
	}); err != nil {
		return ServiceContainer{}, fmt.Errorf("user service: %w", err)
	}
	if out.Notifications, err = service.NewNotificationService(service.NotificationServiceOptions{
		Repo:      data.NewNotificationRepo(deps.DB),
		Cache:     cache,
		UnreadTTL: cfg.Cache.UnreadCountTTL,
		Config:    cfg.Marketplace,
		Logger:    logger,
		Metrics:   metrics,
	}); err != nil {
		return ServiceContainer{}, fmt.Errorf("notification service: %w", err)
	}
	if out.Jobs, err = service.NewJobService(service.JobServiceOptions{
		Tx:       tx,
		Repo:     data.NewJobRepo(deps.DB),
		Cache:    cache,
		CacheTTL: cfg.Cache.JobTTL,
		Config:   cfg.Marketplace,
		Logger:   logger,
		Metrics:  metrics,
	}); err != nil {
		return ServiceContainer{}, fmt.Errorf("job service: %w", err)
	}
	if out.Applications, err = service.NewApplicationService(service.ApplicationServiceOptions{
		Tx:      tx,
		Repo:    data.NewApplicationRepo(deps.DB),
		Config:  cfg.Marketplace,
		Unread:  out.Notifications,
		Jobs:    out.Jobs,
		Logger:  logger,
		Metrics: metrics,
	}); err != nil {
		return ServiceContainer{}, fmt.Errorf("application service: %w", err)
	}
	if out.Messages, err = service.NewMessageService(service.MessageServiceOptions{
		Tx:      tx,
		Repo:    data.NewMessageRepo(deps.DB),
		Config:  cfg.Marketplace,
		Unread:  out.Notifications,
		Logger:  logger,
		Metrics: metrics,
	}); err != nil {
		return ServiceContainer{}, fmt.Errorf("message service: %w", err)
	}

	// Sessions need Redis; background-only processes run without auth.
	if deps.RedisClient == nil {
		return out, nil
	}
	if out.Auth, err = BuildAuthService(AuthConfig{
		Auth:        cfg.Auth,
		RedisClient: deps.RedisClient,
		Users:       out.Users,
		Logger:      logger,
		Metrics:     metrics,
	}); err != nil {
		return ServiceContainer{}, fmt.Errorf("auth service: %w", err)
	}
	return out, nil
}
