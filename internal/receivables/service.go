package receivables

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vitroscience/vitro-bi/pkg/db"
	"github.com/vitroscience/vitro-bi/pkg/db/models"
	"github.com/vitroscience/vitro-bi/pkg/enums"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
	"github.com/vitroscience/vitro-bi/pkg/metrics"
)

// ErrEmptyFeed guards the live table: an empty feed is treated as an
// upstream failure, never as "everything was paid".
var ErrEmptyFeed = errors.New("source returned no open invoices")

// Source lists open invoices whose due date falls in [from, to].
type Source interface {
	FetchOpenInvoices(ctx context.Context, from, to time.Time) ([]RawRecord, error)
}

// ServiceParams configure the reconciliation service.
type ServiceParams struct {
	Logger       *logger.Logger
	Source       Source
	Store        Store
	Metrics      *metrics.ReceivablesMetrics
	WindowStart  time.Time
	Location     *time.Location
	ReopenAction enums.AnomalyAction
	Now          func() time.Time
	NewRunID     func() string
}

// RunSummary describes one finished run.
type RunSummary struct {
	RunID        string
	SnapshotDate string
	Status       enums.RunStatus
	Fetched      int
	Skipped      int
	Issues       int
	Duplicates   int
	Pending      int
	New          int
	Stayed       int
	Paid         int
	Anomalies    int
	Fingerprint  string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Service performs one reconciliation tick against a Source and a Store.
type Service struct {
	logg         *logger.Logger
	source       Source
	store        Store
	metrics      *metrics.ReceivablesMetrics
	normalizer   *Normalizer
	windowStart  time.Time
	loc          *time.Location
	reopenAction enums.AnomalyAction
	now          func() time.Time
	newRunID     func() string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Source == nil {
		return nil, fmt.Errorf("invoice source required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if params.WindowStart.IsZero() {
		return nil, fmt.Errorf("window start required")
	}
	action := params.ReopenAction
	if action == "" {
		action = enums.AnomalyActionQuarantined
	}
	if !action.IsValid() {
		return nil, fmt.Errorf("invalid reopen action %q", action)
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newRunID := params.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &Service{
		logg:         params.Logger,
		source:       params.Source,
		store:        params.Store,
		metrics:      params.Metrics,
		normalizer:   NewNormalizer(),
		windowStart:  params.WindowStart,
		loc:          loc,
		reopenAction: action,
		now:          now,
		newRunID:     newRunID,
	}, nil
}

// Run executes fetch, normalize, guard, reconcile and commit. Nothing is
// written to the live table or ledger unless every step succeeds.
func (s *Service) Run(ctx context.Context) (*RunSummary, error) {
	started := s.now().UTC()
	summary := &RunSummary{
		RunID:        s.newRunID(),
		SnapshotDate: started.In(s.loc).Format(time.DateOnly),
		StartedAt:    started,
	}
	ctx = s.logg.WithRun(ctx, summary.RunID, summary.SnapshotDate)

	raw, err := s.source.FetchOpenInvoices(ctx, s.windowStart, started.In(s.loc))
	if err != nil {
		return summary, s.abort(ctx, summary, enums.RunStatusFailed,
			pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch open invoices"))
	}
	summary.Fetched = len(raw)

	current := s.normalizeAll(ctx, raw, summary)
	if len(current) == 0 {
		return summary, s.abort(ctx, summary, enums.RunStatusSkipped,
			pkgerrors.Wrap(pkgerrors.CodeDependency, ErrEmptyFeed, "empty feed; live snapshot left untouched"))
	}
	summary.Fingerprint = Fingerprint(current)

	prior, err := s.store.ReadLive(ctx)
	if err != nil {
		return summary, s.abort(ctx, summary, enums.RunStatusFailed,
			pkgerrors.Wrap(storeCode(err), err, "read live snapshot"))
	}

	unseen := make([]Key, 0)
	for _, inv := range current {
		if _, ok := prior[KeyOf(inv)]; !ok {
			unseen = append(unseen, KeyOf(inv))
		}
	}
	settled, err := s.store.FindPaid(ctx, unseen)
	if err != nil {
		return summary, s.abort(ctx, summary, enums.RunStatusFailed,
			pkgerrors.Wrap(storeCode(err), err, "look up settled invoices"))
	}

	res, err := Reconcile(Input{
		RunID:          summary.RunID,
		Now:            started,
		SnapshotDate:   summary.SnapshotDate,
		Current:        current,
		Prior:          prior,
		PreviouslyPaid: settled,
		ReopenAction:   s.reopenAction,
	})
	if err != nil {
		code := pkgerrors.CodeInternal
		if errors.Is(err, ErrInvariantViolation) {
			code = pkgerrors.CodeInvariant
		}
		return summary, s.abort(ctx, summary, enums.RunStatusFailed, pkgerrors.Wrap(code, err, "reconcile"))
	}

	summary.Duplicates = res.Duplicates
	summary.Pending = len(res.Live)
	summary.New = len(res.New)
	summary.Stayed = len(res.Stayed)
	summary.Paid = len(res.Paid)
	summary.Anomalies = len(res.Anomalies)

	for _, anomaly := range res.Anomalies {
		actx := s.logg.WithFields(ctx, map[string]any{
			"debtor_id":          anomaly.DebtorID,
			"document_folio":     anomaly.DocumentFolio,
			"action":             anomaly.Action,
			"previous_paid_date": anomaly.PreviousPaidDate,
		})
		s.logg.Warn(actx, "previously paid invoice reappeared in feed")
	}

	finished := s.now().UTC()
	summary.FinishedAt = finished
	summary.Status = enums.RunStatusSucceeded
	for i := range res.History {
		res.History[i].InsertedAt = finished
	}
	run := runRecord(summary, nil)

	err = s.store.WithinTx(ctx, func(w Writer) error {
		if err := w.RecordRun(ctx, run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		if err := w.ReplaceLive(ctx, res.Live); err != nil {
			return fmt.Errorf("replace live: %w", err)
		}
		if err := w.AppendHistory(ctx, res.History); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if err := w.AppendAnomalies(ctx, res.Anomalies); err != nil {
			return fmt.Errorf("append anomalies: %w", err)
		}
		return nil
	})
	if err != nil {
		return summary, s.abort(ctx, summary, enums.RunStatusFailed,
			pkgerrors.Wrap(storeCode(err), err, "commit snapshot"))
	}

	s.metrics.ObserveSuccess(summary.New, summary.Stayed, summary.Paid, summary.Pending, finished)
	s.metrics.AddAnomalies(string(enums.AnomalyKindReopenedPaid), summary.Anomalies)
	s.metrics.IncRun(string(enums.RunStatusSucceeded))

	s.logg.Info(s.logg.WithFields(ctx, summaryFields(summary)), "receivables reconciled")
	return summary, nil
}

func (s *Service) normalizeAll(ctx context.Context, raw []RawRecord, summary *RunSummary) []models.ReceivableInvoice {
	out := make([]models.ReceivableInvoice, 0, len(raw))
	for i, record := range raw {
		normalized, err := s.normalizer.Normalize(record)
		if err != nil {
			summary.Skipped++
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"record_index": i, "reason": err.Error()}), "skipping unkeyed record")
			continue
		}
		for _, issue := range normalized.Issues {
			summary.Issues++
			s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
				"debtor_id":      normalized.Invoice.DebtorID,
				"document_folio": normalized.Invoice.DocumentFolio,
				"field":          issue.Field,
				"value":          issue.Value,
				"reason":         issue.Reason,
			}), "field coerced")
		}
		out = append(out, normalized.Invoice)
	}
	s.metrics.AddSkipped(summary.Skipped)
	return out
}

func (s *Service) abort(ctx context.Context, summary *RunSummary, status enums.RunStatus, cause error) error {
	summary.Status = status
	summary.FinishedAt = s.now().UTC()
	msg := cause.Error()
	if typed := pkgerrors.As(cause); typed != nil && typed.Unwrap() != nil {
		msg = fmt.Sprintf("%s: %v", typed.Message(), typed.Unwrap())
	}
	var err error = cause
	if recErr := s.store.RecordRun(ctx, runRecord(summary, &msg)); recErr != nil {
		err = multierr.Append(err, fmt.Errorf("record %s run: %w", status, recErr))
	}
	s.metrics.IncRun(string(status))

	ctx = s.logg.WithFields(ctx, summaryFields(summary))
	if status == enums.RunStatusSkipped {
		s.logg.Warn(s.logg.WithField(ctx, "reason", msg), "reconciliation skipped")
		return err
	}
	s.logg.Error(ctx, "reconciliation failed", err)
	return err
}

func runRecord(summary *RunSummary, errMsg *string) *models.ReconciliationRun {
	finished := summary.FinishedAt
	return &models.ReconciliationRun{
		ID:              summary.RunID,
		StartedAt:       summary.StartedAt,
		FinishedAt:      &finished,
		SnapshotDate:    summary.SnapshotDate,
		Status:          summary.Status,
		Fetched:         summary.Fetched,
		SkippedRecords:  summary.Skipped,
		Pending:         summary.Pending,
		NewCount:        summary.New,
		PaidCount:       summary.Paid,
		AnomalyCount:    summary.Anomalies,
		FeedFingerprint: summary.Fingerprint,
		Error:           errMsg,
	}
}

func summaryFields(summary *RunSummary) map[string]any {
	return map[string]any{
		"status":          summary.Status,
		"fetched":         summary.Fetched,
		"skipped_records": summary.Skipped,
		"coerced_fields":  summary.Issues,
		"duplicates":      summary.Duplicates,
		"pending":         summary.Pending,
		"new":             summary.New,
		"stayed":          summary.Stayed,
		"paid":            summary.Paid,
		"anomalies":       summary.Anomalies,
		"duration_ms":     summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	}
}

// storeCode marks SQLite lock contention as a dependency failure so the run
// is retried next cycle instead of being reported as a bug.
func storeCode(err error) pkgerrors.Code {
	if db.IsBusy(err) {
		return pkgerrors.CodeDependency
	}
	return pkgerrors.CodeInternal
}
