// Package metrics exposes prometheus instrumentation for the billing engine.
package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonNotFound             = "not_found"
	JobReasonUnknown              = "unknown"
)

// BillingMetrics captures billing engine health signals.
type BillingMetrics struct {
	jobRuns              *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	jobTimeouts          *prometheus.CounterVec
	jobErrors            *prometheus.CounterVec
	billsGenerated       prometheus.Counter
	backfillRecords      prometheus.Counter
	sweepItemFailures    prometheus.Counter
	notificationFailures *prometheus.CounterVec
	runLoopLag           prometheus.Histogram
}

// Config carries the static labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using
// config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "subtrack"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &BillingMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_billing_job_runs_total",
			Help:        "Number of billing job invocations.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "subtrack_billing_job_duration_seconds",
			Help:        "Billing job wall time.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_billing_job_timeouts_total",
			Help:        "Billing jobs that hit their deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_billing_job_errors_total",
			Help:        "Billing job failures by reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		billsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "subtrack_bills_generated_total",
			Help:        "Pending payment records created.",
			ConstLabels: constLabels,
		}),
		backfillRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "subtrack_backfill_records_total",
			Help:        "Historical payment records inserted during creation backfill.",
			ConstLabels: constLabels,
		}),
		sweepItemFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "subtrack_sweep_item_failures_total",
			Help:        "Subscriptions skipped during a sweep because processing failed.",
			ConstLabels: constLabels,
		}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_notification_failures_total",
			Help:        "Notification deliveries that failed and were swallowed.",
			ConstLabels: constLabels,
		}, []string{"event"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "subtrack_scheduler_run_loop_lag_seconds",
			Help:        "How far behind schedule a scheduler tick started.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.billsGenerated,
		m.backfillRecords,
		m.sweepItemFailures,
		m.notificationFailures,
		m.runLoopLag,
	)

	return m
}

func (m *BillingMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *BillingMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *BillingMetrics) IncJobTimeout(job string) {
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *BillingMetrics) IncJobError(job string, err error) {
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *BillingMetrics) IncBillGenerated() { m.billsGenerated.Inc() }

func (m *BillingMetrics) IncBackfillRecord() { m.backfillRecords.Inc() }

func (m *BillingMetrics) IncSweepItemFailure() { m.sweepItemFailures.Inc() }

func (m *BillingMetrics) IncNotificationFailure(event string) {
	m.notificationFailures.WithLabelValues(event).Inc()
}

func (m *BillingMetrics) ObserveRunLoopLag(lag time.Duration) {
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifyJobReason maps an error onto a low-cardinality reason label.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return JobReasonNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01":
			return JobReasonDBLockTimeout
		case "40001":
			return JobReasonSerializationFailure
		case "23505":
			return JobReasonUniqueViolation
		}
	}

	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return JobReasonUniqueViolation
	}

	return JobReasonUnknown
}
