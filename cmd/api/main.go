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

	"github.com/vitroscience/vitro-bi/api/routes"
	"github.com/vitroscience/vitro-bi/internal/app"
	"github.com/vitroscience/vitro-bi/pkg/logger"
	"github.com/vitroscience/vitro-bi/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, "api")
	if err != nil {
		logger.New(logger.Options{ServiceName: "api"}).Error(ctx, "failed to bootstrap", err)
		os.Exit(1)
	}
	logg := a.Logger
	defer func() {
		if err := a.Close(); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	dashboard, err := a.Analytics()
	if err != nil {
		logg.Error(ctx, "failed to create analytics service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = a.Config.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  a.Config.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(a.Config, logg, a.DB, a.RedisPinger(), dashboard, metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
