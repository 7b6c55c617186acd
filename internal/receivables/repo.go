package receivables

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
	"github.com/vitroscience/vitro-bi/pkg/enums"
)

const (
	writeBatchSize  = 100
	lookupChunkSize = 200
)

type txRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository is the gorm-backed Store.
type Repository struct {
	client txRunner
}

func NewRepository(client txRunner) *Repository {
	return &Repository{client: client}
}

func (r *Repository) ReadLive(ctx context.Context) (map[Key]models.ReceivableInvoice, error) {
	var rows []models.ReceivableInvoice
	if err := r.client.DB().WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[Key]models.ReceivableInvoice, len(rows))
	for _, row := range rows {
		out[KeyOf(row)] = row
	}
	return out, nil
}

func (r *Repository) FindPaid(ctx context.Context, keys []Key) (map[Key]models.ReceivableHistory, error) {
	out := make(map[Key]models.ReceivableHistory)
	for start := 0; start < len(keys); start += lookupChunkSize {
		end := min(start+lookupChunkSize, len(keys))
		pairs := make([][]any, 0, end-start)
		for _, k := range keys[start:end] {
			pairs = append(pairs, []any{k.DebtorID, k.DocumentFolio})
		}
		var rows []models.ReceivableHistory
		err := r.client.DB().WithContext(ctx).
			Where("status = ?", enums.InvoiceStatusPaid).
			Where("(debtor_id, document_folio) IN ?", pairs).
			Order("id ASC").
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("find paid history: %w", err)
		}
		for _, row := range rows {
			out[historyKey(row)] = row
		}
	}
	return out, nil
}

func (r *Repository) RecordRun(ctx context.Context, run *models.ReconciliationRun) error {
	return r.client.DB().WithContext(ctx).Create(run).Error
}

func (r *Repository) WithinTx(ctx context.Context, fn func(w Writer) error) error {
	return r.client.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&gormWriter{tx: tx})
	})
}

// LatestRun returns the newest run with the given status, or nil.
func (r *Repository) LatestRun(ctx context.Context, status enums.RunStatus) (*models.ReconciliationRun, error) {
	var runs []models.ReconciliationRun
	err := r.client.DB().WithContext(ctx).
		Where("status = ?", status).
		Order("started_at DESC").
		Limit(1).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// PruneRuns deletes failed and skipped runs started before cutoff.
func (r *Repository) PruneRuns(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.WithContext(ctx).
		Where("status IN ? AND started_at < ?", []enums.RunStatus{enums.RunStatusFailed, enums.RunStatusSkipped}, cutoff).
		Delete(&models.ReconciliationRun{})
	return res.RowsAffected, res.Error
}

type gormWriter struct {
	tx *gorm.DB
}

func (w *gormWriter) RecordRun(ctx context.Context, run *models.ReconciliationRun) error {
	return w.tx.WithContext(ctx).Create(run).Error
}

func (w *gormWriter) ReplaceLive(ctx context.Context, rows []models.ReceivableInvoice) error {
	if err := w.tx.WithContext(ctx).Where("1 = 1").Delete(&models.ReceivableInvoice{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return w.tx.WithContext(ctx).CreateInBatches(rows, writeBatchSize).Error
}

func (w *gormWriter) AppendHistory(ctx context.Context, rows []models.ReceivableHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return w.tx.WithContext(ctx).CreateInBatches(rows, writeBatchSize).Error
}

func (w *gormWriter) AppendAnomalies(ctx context.Context, rows []models.ReceivableAnomaly) error {
	if len(rows) == 0 {
		return nil
	}
	return w.tx.WithContext(ctx).CreateInBatches(rows, writeBatchSize).Error
}
