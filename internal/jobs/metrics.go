// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded in the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks runs rejected without retry, such as a bad payload.
	StatusSkipped = "skipped"
)

// Job runs range from sub-second scans to warm-ups bounded at 30s.
var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lowStock prometheus.Counter
	pruned   prometheus.Counter
}

// NewMetrics registers the job collectors on reg. It returns nil when reg is
// nil so callers can run without instrumentation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyeops_jobs_total",
			Help: "Job runs by task type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyeops_jobs_failures_total",
			Help: "Job runs that returned an error, skipped runs included.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dyeops_job_duration_seconds",
			Help:    "Wall time of job runs.",
			Buckets: durationBuckets,
		}, []string{"job"}),
		lowStock: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dyeops_low_stock_alerts_total",
			Help: "Materials reported at or below minimum stock by the scheduled scan.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dyeops_idempotency_keys_pruned_total",
			Help: "Expired idempotency keys deleted by cleanup.",
		}),
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.lowStock, m.pruned)
	return m
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of the given task type.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := Outcome(err)
	if status != StatusSuccess {
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Outcome maps a handler result to its status label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// AddLowStockAlerts counts materials flagged by a low-stock scan.
func (m *Metrics) AddLowStockAlerts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.lowStock.Add(float64(count))
}

// AddPrunedKeys counts idempotency keys removed by cleanup.
func (m *Metrics) AddPrunedKeys(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.pruned.Add(float64(count))
}
