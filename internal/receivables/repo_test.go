package receivables_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitroscience/vitro-bi/internal/receivables"
	"github.com/vitroscience/vitro-bi/pkg/db/dbtest"
	"github.com/vitroscience/vitro-bi/pkg/db/models"
	"github.com/vitroscience/vitro-bi/pkg/enums"
)

func TestRepositoryTwoRunsOnSQLite(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := receivables.NewRepository(client)
	source := &stubSource{feeds: [][]receivables.RawRecord{
		{raw("R1", "F1", 1000), raw("R1", "F2", 500)},
		{raw("R1", "F1", 800)},
	}}
	svc := newService(t, source, repo)
	ctx := context.Background()

	_, err := svc.Run(ctx)
	require.NoError(t, err)
	second, err := svc.Run(ctx)
	require.NoError(t, err)

	live, err := repo.ReadLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	row := live[receivables.Key{DebtorID: "R1", DocumentFolio: "F1"}]
	assert.Equal(t, int64(800), row.Balance)
	assert.Equal(t, "Clinica R1", row.DebtorName)
	require.NotNil(t, row.DueDate)
	assert.Equal(t, "2025-02-01", *row.DueDate)

	paid, err := repo.FindPaid(ctx, []receivables.Key{{DebtorID: "R1", DocumentFolio: "F2"}, {DebtorID: "R9", DocumentFolio: "X"}})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	settled := paid[receivables.Key{DebtorID: "R1", DocumentFolio: "F2"}]
	require.NotNil(t, settled.PaidDate)
	assert.True(t, settled.PaidDate.Equal(second.StartedAt))

	var count int64
	require.NoError(t, client.DB().Model(&models.ReceivableHistory{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)

	latest, err := repo.LatestRun(ctx, enums.RunStatusSucceeded)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.RunID, latest.ID)
	assert.Equal(t, 1, latest.PaidCount)
}

func TestRepositoryWithinTxRollsBack(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := receivables.NewRepository(client)
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	seed := models.ReceivableInvoice{DebtorID: "R1", DocumentFolio: "F1", Balance: 10, Status: enums.InvoiceStatusPending, FirstSeen: now, LastSeen: now, LastUpdated: now}
	require.NoError(t, repo.WithinTx(ctx, func(w receivables.Writer) error {
		return w.ReplaceLive(ctx, []models.ReceivableInvoice{seed})
	}))

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(w receivables.Writer) error {
		if err := w.ReplaceLive(ctx, nil); err != nil {
			return err
		}
		if err := w.AppendHistory(ctx, []models.ReceivableHistory{models.NewReceivableHistory(seed, "run-x", "2025-01-10")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	live, err := repo.ReadLive(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 1)

	var count int64
	require.NoError(t, client.DB().Model(&models.ReceivableHistory{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryRejectsDuplicateLiveKeys(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := receivables.NewRepository(client)
	ctx := context.Background()
	row := models.ReceivableInvoice{DebtorID: "R1", DocumentFolio: "F1", Status: enums.InvoiceStatusPending}

	err := repo.WithinTx(ctx, func(w receivables.Writer) error {
		return w.ReplaceLive(ctx, []models.ReceivableInvoice{row, row})
	})
	require.Error(t, err)
}

func TestRepositoryLatestRunEmpty(t *testing.T) {
	repo := receivables.NewRepository(dbtest.NewSQLite(t))
	run, err := repo.LatestRun(context.Background(), enums.RunStatusSucceeded)
	require.NoError(t, err)
	assert.Nil(t, run)
}
