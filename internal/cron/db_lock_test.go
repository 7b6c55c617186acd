package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitroscience/vitro-bi/pkg/db/dbtest"
	"github.com/vitroscience/vitro-bi/pkg/db/models"
)

func TestDBLockExcludesOtherHolders(t *testing.T) {
	ctx := context.Background()
	client := dbtest.NewSQLite(t)

	worker, err := NewDBLock(client.DB(), "cron:dev", time.Minute)
	require.NoError(t, err)
	cli, err := NewDBLock(client.DB(), "cron:dev", time.Minute)
	require.NoError(t, err)

	ok, err := worker.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cli.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a second holder must not acquire a held lock")

	require.NoError(t, cli.Release(ctx))
	var count int64
	require.NoError(t, client.DB().Model(&models.CronLock{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "non-owner release must not free the lock")

	require.NoError(t, worker.Release(ctx))
	ok, err = cli.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, cli.Release(ctx))
}

func TestDBLockTakesOverExpiredRowAndOldHolderLosesIt(t *testing.T) {
	ctx := context.Background()
	client := dbtest.NewSQLite(t)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	stale, err := NewDBLock(client.DB(), "cron:dev", time.Minute)
	require.NoError(t, err)
	stale.now = func() time.Time { return now }
	fresh, err := NewDBLock(client.DB(), "cron:dev", time.Minute)
	require.NoError(t, err)
	fresh.now = func() time.Time { return now.Add(2 * time.Minute) }

	ok, err := stale.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, stale.Refresh(ctx))

	ok, err = fresh.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "expired row should be taken over")

	assert.True(t, errors.Is(stale.Refresh(ctx), ErrLockLost))
	require.NoError(t, stale.Release(ctx))

	var row models.CronLock
	require.NoError(t, client.DB().First(&row, "name = ?", "cron:dev").Error)
	assert.Equal(t, fresh.currentOwner(), row.Owner)
}

func TestDBLockRequiresDB(t *testing.T) {
	_, err := NewDBLock(nil, "cron:dev", time.Minute)
	require.Error(t, err)
}
