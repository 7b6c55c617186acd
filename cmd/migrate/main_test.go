package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vitroscience/vitro-bi/pkg/logger"
)

func memoryTarget(t *testing.T) (connector, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migrate.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})
	return func(context.Context, string) (*target, error) {
		return &target{sql: sqlDB, driver: "sqlite", logg: logg, close: func() error { return nil }}, nil
	}, conn
}

func run(t *testing.T, conn connector, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	root := newRootCmd(conn, func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) })
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUpAppliesEmbeddedSchema(t *testing.T) {
	conn, gdb := memoryTarget(t)
	_, err := run(t, conn, "up")
	require.NoError(t, err)
	assert.True(t, gdb.Migrator().HasTable("receivables_live"))
	assert.True(t, gdb.Migrator().HasTable("receivables_history"))
}

func TestRebuildRequiresConfirmation(t *testing.T) {
	called := false
	conn := func(context.Context, string) (*target, error) {
		called = true
		return nil, errors.New("should not connect")
	}
	_, err := run(t, conn, "rebuild")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.False(t, called, "rebuild must not touch the database without --yes")
}

func TestRebuildWithConfirmation(t *testing.T) {
	conn, gdb := memoryTarget(t)
	_, err := run(t, conn, "up")
	require.NoError(t, err)
	require.NoError(t, gdb.Exec(`INSERT INTO receivables_live (debtor_id, document_folio, status, first_seen, last_seen, last_updated)
		VALUES ('R1', 'F1', 'pending', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`).Error)

	_, err = run(t, conn, "rebuild", "--yes")
	require.NoError(t, err)
	var count int64
	require.NoError(t, gdb.Table("receivables_live").Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateThenValidateWithoutDatabase(t *testing.T) {
	noDB := func(context.Context, string) (*target, error) { return nil, errors.New("no database") }
	dir := t.TempDir()

	out, err := run(t, noDB, "create", "add aging index", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "sqlite", "20260302093000_add_aging_index.sql"))
	assert.Contains(t, out, filepath.Join(dir, "postgres", "20260302093000_add_aging_index.sql"))

	out, err = run(t, noDB, "validate", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "migrations valid")
}

func TestToRequiresVersion(t *testing.T) {
	conn, _ := memoryTarget(t)
	_, err := run(t, conn, "to")
	require.Error(t, err)
}
