package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kaamsathi/kaamsathi-api/config"
)

// ErrRedisNotConfigured is returned when Redis is required but RedisConfig names no endpoint.
var ErrRedisNotConfigured = errors.New("redis not configured")

// Needs selects which backing stores ConnectInfra opens.
type Needs struct {
	DB    bool
	Redis bool
	// RedisIfConfigured connects Redis only when RedisConfig names an endpoint.
	RedisIfConfigured bool
}

// Infra holds the shared connections. Fields not requested stay nil.
type Infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// ConnectInfra opens what needs asks for. On failure nothing is left open.
func ConnectInfra(cfg *config.AppConfig, logger *slog.Logger, needs Needs) (*Infra, error) {
	infra := &Infra{}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	if needs.DB {
		db, err := ConnectDB(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
	}

	configured := RedisConfigured(cfg.Redis)
	switch {
	case needs.Redis && !configured:
		return nil, errors.Join(ErrRedisNotConfigured, infra.Close())
	case needs.Redis, needs.RedisIfConfigured && configured:
		client, err := ConnectRedis(dbCfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.Redis = client
	}
	return infra, nil
}

// Close releases every open connection.
func (i *Infra) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RedisConfigured reports whether cfg names at least one Redis endpoint for its mode.
func RedisConfigured(cfg config.RedisConfig) bool {
	switch {
	case cfg.UseCluster:
		return len(nonEmpty(cfg.ClusterNodes)) > 0 || cfg.URI != ""
	case cfg.UseSentinel:
		return len(nonEmpty(cfg.SentinelNodes)) > 0
	default:
		return cfg.URI != ""
	}
}
