package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vitroscience/vitro-bi/internal/app"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, "cron-worker")
	if err != nil {
		logger.New(logger.Options{ServiceName: "cron-worker"}).Error(ctx, "failed to bootstrap", err)
		os.Exit(1)
	}
	logg := a.Logger
	defer func() {
		if err := a.Close(); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	reconciler, err := a.Receivables(prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(ctx, "failed to create reconciliation service", err)
		os.Exit(1)
	}
	service, err := a.Cron(prometheus.DefaultRegisterer, reconciler)
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         a.Config.App.Env,
		"serviceKind": a.Config.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	metricsServer := &http.Server{
		Addr:              a.Config.Cron.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
