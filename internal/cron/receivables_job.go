package cron

import (
	"context"
	"fmt"

	"github.com/vitroscience/vitro-bi/internal/receivables"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

const ReceivablesJobName = "receivables-reconcile"

type reconciler interface {
	Run(ctx context.Context) (*receivables.RunSummary, error)
}

// ReceivablesJobParams configure the reconciliation job.
type ReceivablesJobParams struct {
	Logger  *logger.Logger
	Service reconciler
}

// NewReceivablesJob wraps one reconciliation tick as a cron job.
func NewReceivablesJob(params ReceivablesJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("reconciliation service required")
	}
	return &receivablesJob{logg: params.Logger, service: params.Service}, nil
}

type receivablesJob struct {
	logg    *logger.Logger
	service reconciler
}

func (j *receivablesJob) Name() string { return ReceivablesJobName }

func (j *receivablesJob) Run(ctx context.Context) error {
	summary, err := j.service.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile receivables: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"run_id":  summary.RunID,
		"pending": summary.Pending,
		"paid":    summary.Paid,
	})
	j.logg.Debug(logCtx, "receivables job finished")
	return nil
}
