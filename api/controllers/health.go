package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/vitroscience/vitro-bi/api/responses"
	"github.com/vitroscience/vitro-bi/pkg/config"
	"github.com/vitroscience/vitro-bi/pkg/db"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

const (
	envHeader    = "X-Vitro-Env"
	readyTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency. Nil pingers are skipped so an API
// without redis still reports ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]db.Pinger{"database": dbP, "redis": redisP}
		status := map[string]string{}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" not ready").
						WithDetails(map[string]string{"dependency": name}))
				return
			}
			status[name] = "ok"
		}
		status["status"] = "ready"
		responses.WriteSuccess(w, status)
	}
}
