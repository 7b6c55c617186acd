package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitroscience/vitro-bi/internal/analytics"
	"github.com/vitroscience/vitro-bi/internal/cron"
	"github.com/vitroscience/vitro-bi/internal/kame"
	"github.com/vitroscience/vitro-bi/internal/receivables"
	"github.com/vitroscience/vitro-bi/pkg/enums"
	"github.com/vitroscience/vitro-bi/pkg/metrics"
)

const kameTokenName = "kame"

// Receivables assembles the reconciliation service: the KAME client as its
// source and the database repository as its store. Metrics are registered
// on reg when it is not nil.
func (a *App) Receivables(reg prometheus.Registerer) (*receivables.Service, error) {
	cfg := a.Config

	tokenParams := kame.TokenSourceParams{
		HTTPClient:   &http.Client{Timeout: cfg.Kame.Timeout},
		TokenURL:     cfg.Kame.TokenURL,
		ClientID:     cfg.Kame.ClientID,
		ClientSecret: cfg.Kame.ClientSecret,
		Audience:     cfg.Kame.Audience,
	}
	if a.Redis != nil {
		tokenParams.Cache = a.Redis
		tokenParams.CacheKey = a.Redis.TokenKey(kameTokenName)
	}
	tokens, err := kame.NewTokenSource(tokenParams)
	if err != nil {
		return nil, fmt.Errorf("kame token source: %w", err)
	}

	source, err := kame.NewClient(cfg.Kame, tokens, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("kame client: %w", err)
	}

	windowStart, err := cfg.Receivables.WindowStartDate()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Receivables.Location()
	if err != nil {
		return nil, err
	}
	action, err := enums.ParseAnomalyAction(cfg.Receivables.ReopenPolicy)
	if err != nil {
		return nil, err
	}

	return receivables.NewService(receivables.ServiceParams{
		Logger:       a.Logger,
		Source:       source,
		Store:        receivables.NewRepository(a.DB),
		Metrics:      metrics.NewReceivablesMetrics(reg),
		WindowStart:  windowStart,
		Location:     loc,
		ReopenAction: action,
	})
}

// Analytics assembles the read side used by the API and the CLI.
func (a *App) Analytics() (*analytics.Service, error) {
	loc, err := a.Config.Receivables.Location()
	if err != nil {
		return nil, err
	}
	return analytics.NewService(a.DB, receivables.NewRepository(a.DB), loc)
}

// Cron assembles the scheduler with the reconciliation and run retention
// jobs. Runs are serialized through redis when available, otherwise
// through an in-process lock.
func (a *App) Cron(reg prometheus.Registerer, reconciler *receivables.Service) (*cron.Service, error) {
	reconcileJob, err := cron.NewReceivablesJob(cron.ReceivablesJobParams{
		Logger:  a.Logger,
		Service: reconciler,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewRunRetentionJob(cron.RunRetentionJobParams{
		Logger:     a.Logger,
		DB:         a.DB,
		Repository: receivables.NewRepository(a.DB),
		Retention:  a.Config.Cron.RunRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	registry := cron.NewRegistry()
	if err := registry.Register(reconcileJob); err != nil {
		return nil, err
	}
	if err := registry.Schedule(retentionJob, a.Config.Cron.RetentionEvery); err != nil {
		return nil, err
	}
	return a.scheduler(reg, registry)
}

// ReconcileOnce runs a single reconciliation under the worker's lock. It
// returns cron.ErrLockHeld when a scheduled run is in progress.
func (a *App) ReconcileOnce(ctx context.Context, reconciler *receivables.Service) error {
	job, err := cron.NewReceivablesJob(cron.ReceivablesJobParams{
		Logger:  a.Logger,
		Service: reconciler,
	})
	if err != nil {
		return err
	}
	registry := cron.NewRegistry()
	if err := registry.Register(job); err != nil {
		return err
	}
	scheduler, err := a.scheduler(nil, registry)
	if err != nil {
		return err
	}
	return scheduler.RunOnce(ctx)
}

func (a *App) scheduler(reg prometheus.Registerer, registry *cron.Registry) (*cron.Service, error) {
	lock, err := a.cronLock()
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   a.Logger,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: a.Config.Cron.Interval,
	})
}

// cronLock is shared by the worker and `cxc reconcile`: Redis when it is
// configured, otherwise a row in the store both processes write to.
func (a *App) cronLock() (cron.Lock, error) {
	name := "cron:" + a.lockEnv()
	if a.Redis == nil {
		return cron.NewDBLock(a.DB.DB(), name, a.Config.Cron.LockTTL)
	}
	return cron.NewRedisLock(a.Redis, a.Redis.LockKey(name), a.Config.Cron.LockTTL)
}

func (a *App) lockEnv() string {
	if a.Config.App.Env == "" {
		return "local"
	}
	return a.Config.App.Env
}
