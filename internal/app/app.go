// Package app opens the shared resources every binary needs and assembles
// the receivables services on top of them.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/vitroscience/vitro-bi/pkg/config"
	"github.com/vitroscience/vitro-bi/pkg/db"
	"github.com/vitroscience/vitro-bi/pkg/logger"
	"github.com/vitroscience/vitro-bi/pkg/migrate"
	"github.com/vitroscience/vitro-bi/pkg/redis"
)

// App holds the process-wide resources. Redis is nil when not configured.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client
}

// Open loads .env and the environment, then connects the database and, if
// configured, redis. Dev databases are migrated when auto-migrate is on.
func Open(ctx context.Context, serviceName string) (*App, error) {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	return New(ctx, cfg, logg)
}

// New connects the resources described by cfg.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	a := &App{Config: cfg, Logger: logg, DB: dbClient}

	if err := migrate.AutoUp(ctx, cfg, logg, dbClient); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		a.Redis = redisClient
	}
	return a, nil
}

// Close releases every open resource.
func (a *App) Close() error {
	var err error
	if a.Redis != nil {
		err = multierr.Append(err, a.Redis.Close())
	}
	if a.DB != nil {
		err = multierr.Append(err, a.DB.Close())
	}
	return err
}

// RedisPinger returns redis as a health check target, or nil without redis.
func (a *App) RedisPinger() db.Pinger {
	if a.Redis == nil {
		return nil
	}
	return a.Redis
}
