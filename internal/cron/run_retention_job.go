package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vitroscience/vitro-bi/pkg/logger"
)

// RunRetentionJobName identifies the job in logs, metrics and the registry.
const RunRetentionJobName = "run-retention"

const defaultRunRetention = 180 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type runPruner interface {
	PruneRuns(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type RunRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository runPruner
	// Retention is in days; zero keeps six months.
	Retention int
	Now       func() time.Time
}

// NewRunRetentionJob drops failed and skipped run records older than the
// retention. Succeeded runs are kept because the history ledger refers to
// them, and the ledger itself is append-only.
func NewRunRetentionJob(params RunRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("run repository required")
	}
	keep := time.Duration(params.Retention) * 24 * time.Hour
	if keep <= 0 {
		keep = defaultRunRetention
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &runRetentionJob{logg: params.Logger, db: params.DB, repo: params.Repository, keep: keep, now: now}, nil
}

type runRetentionJob struct {
	logg *logger.Logger
	db   txRunner
	repo runPruner
	keep time.Duration
	now  func() time.Time
}

func (j *runRetentionJob) Name() string { return RunRetentionJobName }

func (j *runRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		pruned, err = j.repo.PruneRuns(ctx, tx, cutoff)
		return err
	}); err != nil {
		return fmt.Errorf("prune runs before %s: %w", cutoff.Format(time.DateOnly), err)
	}

	ctx = j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "rows_deleted": pruned})
	if pruned == 0 {
		j.logg.Debug(ctx, "no stale runs to prune")
		return nil
	}
	j.logg.Info(ctx, "pruned stale runs")
	return nil
}
