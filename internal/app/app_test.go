package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitroscience/vitro-bi/internal/analytics"
	"github.com/vitroscience/vitro-bi/internal/cron"
	"github.com/vitroscience/vitro-bi/pkg/config"
	"github.com/vitroscience/vitro-bi/pkg/logger"
)

func fakeKame(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/api/Contabilidad/getCuentaxCobrar", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var items []map[string]any
		if page, _ := strconv.Atoi(r.URL.Query().Get("page")); page == 1 {
			items = []map[string]any{
				{"Id": 1, "Rut": "76.111.111-1", "RznSocial": "Acme SpA", "FolioDocumento": "1001", "Saldo": "150.000", "FechaVencimiento": "2020-01-31"},
				{"Id": 2, "Rut": "76.222.222-2", "RznSocial": "Beta Ltda", "FolioDocumento": "2002", "Saldo": 90000, "FechaVencimiento": "2099-12-31"},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, kameURL string) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev},
		DB: config.DBConfig{
			Driver: config.DBDriverSQLite,
			DSN:    config.SQLiteDSN(filepath.Join(t.TempDir(), "vitro.db")),
		},
		Kame: config.KameConfig{
			TokenURL:     kameURL + "/oauth/token",
			BaseURL:      kameURL + "/api",
			ClientID:     "client",
			ClientSecret: "secret",
			PerPage:      50,
			Timeout:      5 * time.Second,
		},
		Receivables: config.ReceivablesConfig{
			WindowStart:  time.Now().UTC().Format(time.DateOnly),
			ReopenPolicy: config.ReopenPolicyQuarantine,
			Timezone:     "UTC",
		},
		Cron:         config.CronConfig{Interval: time.Hour, RunRetentionDays: 30},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
}

func TestCronCycleReconcilesIntoDashboard(t *testing.T) {
	ctx := context.Background()
	srv := fakeKame(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	a, err := New(ctx, testConfig(t, srv.URL), logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.RedisPinger())

	reg := prometheus.NewRegistry()
	reconciler, err := a.Receivables(reg)
	require.NoError(t, err)
	scheduler, err := a.Cron(reg, reconciler)
	require.NoError(t, err)

	require.NoError(t, scheduler.RunOnce(ctx))

	dashboard, err := a.Analytics()
	require.NoError(t, err)

	list, err := dashboard.List(ctx, analytics.Filter{})
	require.NoError(t, err)
	require.True(t, list.Available)
	require.Len(t, list.Rows, 2)

	summary, err := dashboard.Summary(ctx, analytics.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(240000), summary.TotalBalance)
	assert.Equal(t, 1, summary.Overdue)

	fresh, err := dashboard.Freshness(ctx)
	require.NoError(t, err)
	assert.True(t, fresh.Available)
	assert.False(t, fresh.Stale)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["vitro_receivables_runs_total"])
	assert.True(t, names["vitro_cron_job_runs_total"])
}

func TestReceivablesRejectsBadTimezone(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "http://127.0.0.1:1")
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	a, err := New(ctx, cfg, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	a.Config.Receivables.Timezone = "Mars/Olympus"
	_, err = a.Receivables(nil)
	require.Error(t, err)
	_, err = a.Analytics()
	require.Error(t, err)
}

func TestNewRequiresConfigAndLogger(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestReconcileOnceRecordsRun(t *testing.T) {
	ctx := context.Background()
	srv := fakeKame(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	a, err := New(ctx, testConfig(t, srv.URL), logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	reconciler, err := a.Receivables(nil)
	require.NoError(t, err)
	require.NoError(t, a.ReconcileOnce(ctx, reconciler))
	require.NoError(t, a.ReconcileOnce(ctx, reconciler))

	var runs int64
	require.NoError(t, a.DB.DB().Table("receivable_runs").Count(&runs).Error)
	assert.Equal(t, int64(2), runs)

	var history int64
	require.NoError(t, a.DB.DB().Table("receivables_history").Count(&history).Error)
	assert.Equal(t, int64(4), history)
}

func TestReconcileOnceWaitsForWorkerInAnotherProcess(t *testing.T) {
	ctx := context.Background()
	srv := fakeKame(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cfg := testConfig(t, srv.URL)

	worker, err := New(ctx, cfg, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = worker.Close() })
	cli, err := New(ctx, cfg, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	held, err := worker.cronLock()
	require.NoError(t, err)
	ok, err := held.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	reconciler, err := cli.Receivables(nil)
	require.NoError(t, err)
	require.ErrorIs(t, cli.ReconcileOnce(ctx, reconciler), cron.ErrLockHeld)

	require.NoError(t, held.Release(ctx))
	require.NoError(t, cli.ReconcileOnce(ctx, reconciler))
}
