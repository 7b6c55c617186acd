package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where create/validate operate on disk.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations
var embedded embed.FS

// Dialects lists the migration sub-directories, one per supported driver.
var Dialects = []string{"sqlite", "postgres"}

// DialectDir returns the sub-directory holding migrations for driver.
func DialectDir(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return "sqlite", nil
	case "postgres", "pgx":
		return "postgres", nil
	}
	return "", fmt.Errorf("no migrations for driver %q", driver)
}

func gooseDialect(driver string) string {
	if sub, _ := DialectDir(driver); sub == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}

func prepare(driver string) (string, error) {
	sub, err := DialectDir(driver)
	if err != nil {
		return "", err
	}
	if err := goose.SetDialect(gooseDialect(driver)); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(embedded)
	return path.Join("migrations", sub), nil
}

// Run executes a standard goose command against the embedded migrations for
// the given driver.
func Run(ctx context.Context, db *sql.DB, driver string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	dir, err := prepare(driver)
	if err != nil {
		return err
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Rebuild drops every table managed by the migrations and recreates the
// schema. It is the only path that discards live and history data.
func Rebuild(ctx context.Context, db *sql.DB, driver string) error {
	if err := Run(ctx, db, driver, "reset"); err != nil {
		return err
	}
	return Run(ctx, db, driver, "up")
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	dir, err := prepare(driver)
	if err != nil {
		return err
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
