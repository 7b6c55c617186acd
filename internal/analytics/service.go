// Package analytics answers read-only questions about receivables: KPIs,
// aging, payment behavior and data freshness.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/vitroscience/vitro-bi/pkg/db"
	"github.com/vitroscience/vitro-bi/pkg/db/models"
	"github.com/vitroscience/vitro-bi/pkg/enums"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
)

type dbProvider interface {
	DB() *gorm.DB
}

type runReader interface {
	LatestRun(ctx context.Context, status enums.RunStatus) (*models.ReconciliationRun, error)
}

// Service reads the live snapshot and history ledger. Missing or empty
// tables yield Available=false rather than an error.
type Service struct {
	client   dbProvider
	runs     runReader
	loc      *time.Location
	now      func() time.Time
	validate *validator.Validate
}

func NewService(client dbProvider, runs runReader, loc *time.Location) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run reader required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{client: client, runs: runs, loc: loc, now: time.Now, validate: validator.New()}, nil
}

// Today is the current business date.
func (s *Service) Today() time.Time {
	return truncateDay(s.now().In(s.loc))
}

func (s *Service) List(ctx context.Context, f Filter) (*InvoiceList, error) {
	rows, ok, err := s.live(ctx, f)
	if err != nil || !ok {
		return &InvoiceList{}, err
	}
	return &InvoiceList{Available: len(rows) > 0, Rows: Annotate(rows, s.Today())}, nil
}

func (s *Service) Summary(ctx context.Context, f Filter) (*Summary, error) {
	rows, ok, err := s.live(ctx, f)
	if err != nil || !ok {
		return &Summary{}, err
	}
	out := Summarize(rows, s.Today())
	run, err := s.latestRun(ctx)
	if err != nil {
		return nil, err
	}
	if run != nil {
		out.LastSuccessAt = run.FinishedAt
	}
	return &out, nil
}

func (s *Service) Aging(ctx context.Context, f Filter) (*Aging, error) {
	rows, ok, err := s.live(ctx, f)
	if err != nil || !ok {
		return &Aging{}, err
	}
	out := AgingOf(rows, s.Today())
	return &out, nil
}

func (s *Service) Ranking(ctx context.Context) (*Ranking, error) {
	var paid []models.ReceivableHistory
	err := s.client.DB().WithContext(ctx).
		Where("status = ?", enums.InvoiceStatusPaid).
		Order("id ASC").
		Find(&paid).Error
	if db.IsMissingTable(err) {
		return &Ranking{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read paid history")
	}
	out := RankPayments(paid)
	return &out, nil
}

func (s *Service) ProcessBehavior(ctx context.Context) (*ProcessBehavior, error) {
	rows, ok, err := s.live(ctx, Filter{})
	if err != nil || !ok {
		return &ProcessBehavior{}, err
	}
	out := XmR(MonthlyBalance(rows))
	return &out, nil
}

func (s *Service) Freshness(ctx context.Context) (*Freshness, error) {
	run, err := s.latestRun(ctx)
	if err != nil {
		return nil, err
	}
	out := FreshnessOf(run, s.Today().Format(time.DateOnly))
	return &out, nil
}

func (s *Service) live(ctx context.Context, f Filter) ([]models.ReceivableInvoice, bool, error) {
	if err := s.validate.Struct(f); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid filter").WithDetails(err.Error())
	}
	q := s.client.DB().WithContext(ctx).Model(&models.ReceivableInvoice{})
	if f.Salesperson != "" {
		q = q.Where("salesperson_name = ?", f.Salesperson)
	}
	if needle := strings.ToLower(strings.TrimSpace(f.Query)); needle != "" {
		like := "%" + needle + "%"
		q = q.Where("(LOWER(debtor_name) LIKE ? OR LOWER(debtor_id) LIKE ?)", like, like)
	}
	if f.DueFrom != "" {
		q = q.Where("due_date >= ?", f.DueFrom)
	}
	if f.DueTo != "" {
		q = q.Where("due_date <= ?", f.DueTo)
	}

	var rows []models.ReceivableInvoice
	err := q.Order("due_date ASC, debtor_id ASC, document_folio ASC").Find(&rows).Error
	if db.IsMissingTable(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read live receivables")
	}
	return rows, true, nil
}

func (s *Service) latestRun(ctx context.Context) (*models.ReconciliationRun, error) {
	run, err := s.runs.LatestRun(ctx, enums.RunStatusSucceeded)
	if db.IsMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read latest run")
	}
	return run, nil
}
