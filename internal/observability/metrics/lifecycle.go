package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultError    = "error"
)

const (
	JobResultOK        = "ok"
	JobResultTimeout   = "deadline_exceeded"
	JobResultLockWait  = "db_lock_timeout"
	JobResultSerialize = "serialization_failure"
	JobResultError     = "error"
)

// LifecycleMetrics holds the Prometheus collectors for merchant and
// subscription transitions and for scheduled jobs.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// NewLifecycleMetrics registers the collectors on the default registerer.
func NewLifecycleMetrics(cfg Config) *LifecycleMetrics {
	return newLifecycleMetrics(prometheus.DefaultRegisterer, cfg)
}

func newLifecycleMetrics(registerer prometheus.Registerer, cfg Config) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "backoffice_lifecycle_transitions_total",
		Help:        "Merchant and subscription status transitions.",
		ConstLabels: constLabels,
	}, []string{"entity", "from", "to", "result"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "backoffice_scheduler_job_runs_total",
		Help:        "Scheduled job runs by name and result.",
		ConstLabels: constLabels,
	}, []string{"job", "result"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "backoffice_scheduler_job_duration_seconds",
		Help:        "Scheduled job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})

	return &LifecycleMetrics{
		transitions: registerOrReuse(registerer, transitions).(*prometheus.CounterVec),
		jobRuns:     registerOrReuse(registerer, jobRuns).(*prometheus.CounterVec),
		jobDuration: registerOrReuse(registerer, jobDuration).(*prometheus.HistogramVec),
	}
}

// RecordTransition counts one status change attempt.
func (m *LifecycleMetrics) RecordTransition(entity, from, to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(
		strings.ToLower(strings.TrimSpace(entity)),
		strings.TrimSpace(from),
		strings.TrimSpace(to),
		strings.TrimSpace(result),
	).Inc()
}

// RecordJobRun counts a job run and observes its duration.
func (m *LifecycleMetrics) RecordJobRun(job string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	job = strings.TrimSpace(job)
	m.jobRuns.WithLabelValues(job, ClassifyJobResult(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// ClassifyJobResult maps a job error to a low-cardinality result label.
func ClassifyJobResult(err error) string {
	if err == nil {
		return JobResultOK
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobResultTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return JobResultLockWait
		case "40001", "40P01":
			return JobResultSerialize
		}
	}
	return JobResultError
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "backoffice"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

func registerOrReuse(registerer prometheus.Registerer, collector prometheus.Collector) prometheus.Collector {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector
		}
		panic(err)
	}
	return collector
}
