// Package dbtest opens throwaway SQLite stores with the production schema.
package dbtest

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vitroscience/vitro-bi/pkg/db"
	"github.com/vitroscience/vitro-bi/pkg/migrate"
)

// NewSQLite returns a migrated in-memory store bound to a single connection.
func NewSQLite(t testing.TB) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Run(context.Background(), sqlDB, "sqlite", "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return db.Wrap(conn)
}

// NewEmptySQLite returns an in-memory store without any schema.
func NewEmptySQLite(t testing.TB) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.Wrap(conn)
}
