package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

const pgUndefinedTable = "42P01"

// IsMissingTable reports whether err means the queried relation does not
// exist yet, which readers treat as "no data" rather than a failure.
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedTable
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}

// IsBusy reports SQLite lock contention: another connection holds the write
// lock past the busy timeout. The run that hit it can be retried next cycle.
func IsBusy(err error) bool {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
}
