package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vitro"

// Job outcomes reported by the scheduler.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeNotDue  = "not_due"
)

// CronJobMetrics tracks the scheduler: per-job outcomes and latency, plus
// cycles lost to another instance holding the lock.
type CronJobMetrics struct {
	duration  *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	lockHeld  prometheus.Counter
	lastCycle prometheus.Gauge
}

// NewCronJobMetrics registers the scheduler metrics on reg. A nil
// registerer yields a no-op collector.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_duration_seconds",
		Help:      "Duration of scheduled jobs in seconds.",
		// a reconciliation walks every month window since the start date
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by outcome (success, failure, not_due).",
	}, []string{"job", "outcome"})
	lockHeld := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "lock_held_total",
		Help:      "Cycles skipped because another instance held the lock.",
	})
	lastCycle := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix time at which the last locked cycle finished.",
	})
	reg.MustRegister(duration, runs, lockHeld, lastCycle)
	return &CronJobMetrics{
		duration:  duration,
		runs:      runs,
		lockHeld:  lockHeld,
		lastCycle: lastCycle,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncOutcome counts one execution, or one skip, of the named job.
func (c *CronJobMetrics) IncOutcome(job, outcome string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

func (c *CronJobMetrics) IncLockHeld() {
	if c == nil || c.lockHeld == nil {
		return
	}
	c.lockHeld.Inc()
}

func (c *CronJobMetrics) ObserveCycle(at time.Time) {
	if c == nil || c.lastCycle == nil {
		return
	}
	c.lastCycle.Set(float64(at.Unix()))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
