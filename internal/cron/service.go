package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
	"github.com/vitroscience/vitro-bi/pkg/metrics"
)

const defaultInterval = time.Hour

// ErrLockHeld reports a cycle skipped because another instance holds the lock.
var ErrLockHeld = errors.New("cron lock held by another instance")

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service executes registered cron jobs on a fixed cadence. Jobs registered
// with a spacing are skipped until that much time has passed since their
// last success.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastSuccess map[string]time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:        params.Logger,
		registry:    registry,
		lock:        params.Lock,
		metrics:     params.Metrics,
		interval:    interval,
		now:         now,
		lastSuccess: map[string]time.Time{},
	}, nil
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil && !errors.Is(err, ErrLockHeld) {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
}

// RunOnce executes a single locked cycle and reports job failures. It
// returns ErrLockHeld when another instance owns the lock.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		s.metrics.IncLockHeld()
		return ErrLockHeld
	}
	// release on a context that outlives both the refresher and a shutdown
	releaseCtx := context.WithoutCancel(ctx)
	defer func() {
		if relErr := s.lock.Release(releaseCtx); relErr != nil {
			s.logg.Error(releaseCtx, "failed to release cron lock", relErr)
		}
	}()

	ctx, stop := s.keepAlive(ctx)
	defer stop()

	s.logg.Info(ctx, "scheduled run starting")
	var errs error
	for _, job := range s.registry.Jobs() {
		if !s.due(job.Name()) {
			s.logg.Debug(s.logg.WithJob(ctx, job.Name()), "job not due")
			s.metrics.IncOutcome(job.Name(), metrics.OutcomeNotDue)
			continue
		}
		if err := s.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	s.metrics.ObserveCycle(s.now())
	s.logg.Info(ctx, "scheduled run complete")
	return errs
}

// keepAlive refreshes an expiring lock at a third of its TTL. Losing the
// lock cancels the returned context so the remaining jobs stop early.
func (s *Service) keepAlive(ctx context.Context) (context.Context, func()) {
	refresher, ok := s.lock.(Refresher)
	if !ok || refresher.TTL() <= 0 {
		return ctx, func() {}
	}
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(refresher.TTL() / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := refresher.Refresh(ctx); err != nil {
					s.logg.Error(ctx, "cron lock refresh failed", err)
					if errors.Is(err, ErrLockLost) {
						cancel(err)
						return
					}
				}
			}
		}
	}()
	return ctx, func() {
		close(done)
		cancel(nil)
	}
}

func (s *Service) due(name string) bool {
	every := s.registry.spacing(name)
	if every <= 0 {
		return true
	}
	s.mu.Lock()
	last, ok := s.lastSuccess[name]
	s.mu.Unlock()
	return !ok || s.now().Sub(last) >= every
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithJob(ctx, name)
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := s.now()
	err := job.Run(jobCtx)
	duration := s.now().Sub(start)
	s.metrics.ObserveDuration(name, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		failCtx := s.logg.WithFields(jobCtx, map[string]any{
			"error_code": string(pkgerrors.CodeOf(err)),
			"retryable":  pkgerrors.IsRetryable(err),
		})
		s.logg.Error(failCtx, "job failed", err)
		s.metrics.IncOutcome(name, metrics.OutcomeFailure)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncOutcome(name, metrics.OutcomeSuccess)
	s.mu.Lock()
	s.lastSuccess[name] = start
	s.mu.Unlock()
	return nil
}
