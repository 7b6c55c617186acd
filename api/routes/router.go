package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitroscience/vitro-bi/api/controllers"
	receivablescontrollers "github.com/vitroscience/vitro-bi/api/controllers/receivables"
	"github.com/vitroscience/vitro-bi/api/middleware"
	"github.com/vitroscience/vitro-bi/api/responses"
	"github.com/vitroscience/vitro-bi/pkg/config"
	"github.com/vitroscience/vitro-bi/pkg/db"
	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
	"github.com/vitroscience/vitro-bi/pkg/logger"
	"github.com/vitroscience/vitro-bi/pkg/metrics"
)

// Dashboard is the read side plus the business clock used to name exports.
type Dashboard interface {
	receivablescontrollers.Service
	Today() time.Time
}

// NewRouter wires the dashboard API. redisP may be nil when redis is not
// configured, httpMetrics when latency is not exported.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP db.Pinger,
	dashboard Dashboard,
	httpMetrics *metrics.HTTPMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
	)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responses.WriteError(req.Context(), logg, w,
			pkgerrors.Errorf(pkgerrors.CodeNotFound, "no route for %s", req.URL.Path))
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/receivables", func(r chi.Router) {
		r.Get("/", receivablescontrollers.List(dashboard, logg))
		r.Get("/summary", receivablescontrollers.Summary(dashboard, logg))
		r.Get("/aging", receivablescontrollers.Aging(dashboard, logg))
		r.Get("/ranking", receivablescontrollers.Ranking(dashboard, logg))
		r.Get("/process-behavior", receivablescontrollers.ProcessBehavior(dashboard, logg))
		r.Get("/freshness", receivablescontrollers.Freshness(dashboard, logg))
		r.Get("/export.xlsx", receivablescontrollers.Export(dashboard, dashboard.Today, logg))
	})

	return r
}
