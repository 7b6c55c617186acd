package receivables

import (
	"context"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
)

// Store is the persistence contract of the reconciliation: a live snapshot
// that is replaced wholesale and an append-only history ledger.
type Store interface {
	ReadLive(ctx context.Context) (map[Key]models.ReceivableInvoice, error)
	// FindPaid returns the latest paid ledger row for each of keys that has one.
	FindPaid(ctx context.Context, keys []Key) (map[Key]models.ReceivableHistory, error)
	// RecordRun stores a run outside any transaction (failed or skipped runs).
	RecordRun(ctx context.Context, run *models.ReconciliationRun) error
	// WithinTx runs fn in one atomic unit; any error discards every write.
	WithinTx(ctx context.Context, fn func(w Writer) error) error
}

// Writer is the transactional write surface handed to WithinTx callbacks.
type Writer interface {
	RecordRun(ctx context.Context, run *models.ReconciliationRun) error
	ReplaceLive(ctx context.Context, rows []models.ReceivableInvoice) error
	AppendHistory(ctx context.Context, rows []models.ReceivableHistory) error
	AppendAnomalies(ctx context.Context, rows []models.ReceivableAnomaly) error
}
