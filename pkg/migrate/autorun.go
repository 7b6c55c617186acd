package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/vitroscience/vitro-bi/pkg/config"
	"github.com/vitroscience/vitro-bi/pkg/db"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

// ShouldAutoRun reports whether a process may bring the schema up on start.
// The embedded SQLite file belongs to the process, so the feature flag is
// enough; a shared Postgres is only touched from dev.
func ShouldAutoRun(cfg *config.Config) bool {
	if cfg == nil || !cfg.FeatureFlags.AutoMigrate {
		return false
	}
	return cfg.DB.IsSQLite() || cfg.App.IsDev()
}

// AutoUp applies pending migrations when ShouldAutoRun allows it and logs
// the schema version before and after.
func AutoUp(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !ShouldAutoRun(cfg) {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if _, err := prepare(client.Driver()); err != nil {
		return err
	}
	// a fresh database has no version table yet; goose creates it on up
	before, _ := goose.GetDBVersionContext(ctx, sqlDB)

	ctx = logg.WithFields(ctx, map[string]any{
		"driver":         client.Driver(),
		"schema_version": before,
	})
	if err := Run(ctx, sqlDB, client.Driver(), "up"); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	after, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if after != before {
		logg.Info(logg.WithField(ctx, "schema_version_now", after), "schema migrated")
	}
	return nil
}
