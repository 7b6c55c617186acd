package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReceivablesMetrics exposes the outcome of each reconciliation run.
type ReceivablesMetrics struct {
	transitions *prometheus.CounterVec
	runs        *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
	skipped     prometheus.Counter
	live        prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewReceivablesMetrics registers the reconciliation metrics on reg. A nil
// registerer yields a no-op collector.
func NewReceivablesMetrics(reg prometheus.Registerer) *ReceivablesMetrics {
	if reg == nil {
		return &ReceivablesMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receivables_transitions_total",
		Help:      "Invoices classified per run, by transition (new, stayed, paid).",
	}, []string{"transition"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receivables_runs_total",
		Help:      "Reconciliation runs by final status.",
	}, []string{"status"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receivables_anomalies_total",
		Help:      "Anomalies surfaced by reconciliation runs.",
	}, []string{"kind"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receivables_skipped_records_total",
		Help:      "Raw records dropped by the normalizer.",
	})
	live := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "receivables_live_invoices",
		Help:      "Pending invoices in the live snapshot after the last successful run.",
	})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "receivables_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful reconciliation.",
	})
	reg.MustRegister(transitions, runs, anomalies, skipped, live, lastSuccess)
	return &ReceivablesMetrics{
		transitions: transitions,
		runs:        runs,
		anomalies:   anomalies,
		skipped:     skipped,
		live:        live,
		lastSuccess: lastSuccess,
	}
}

// ObserveSuccess records the counts of a committed run.
func (m *ReceivablesMetrics) ObserveSuccess(newCount, stayed, paid, live int, at time.Time) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues("new").Add(float64(newCount))
	m.transitions.WithLabelValues("stayed").Add(float64(stayed))
	m.transitions.WithLabelValues("paid").Add(float64(paid))
	m.live.Set(float64(live))
	m.lastSuccess.Set(float64(at.Unix()))
}

// IncRun counts a finished run by status.
func (m *ReceivablesMetrics) IncRun(status string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *ReceivablesMetrics) AddAnomalies(kind string, n int) {
	if m == nil || m.anomalies == nil || n <= 0 {
		return
	}
	m.anomalies.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

func (m *ReceivablesMetrics) AddSkipped(n int) {
	if m == nil || m.skipped == nil || n <= 0 {
		return
	}
	m.skipped.Add(float64(n))
}
