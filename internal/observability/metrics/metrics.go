package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/platform/apperr"
)

const (
	metricPrefix = "solar_portal_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	sweptSessions prometheus.Counter
	sweptBids     prometheus.Counter

	monthlyBills *prometheus.CounterVec

	paymentsSettled *prometheus.CounterVec

	notificationFailures *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	consumerLag *prometheus.GaugeVec

	jobRuns *prometheus.CounterVec
)

// Init registers metrics and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger logrus.FieldLogger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operation_total",
				Help: "Core operations by name and result code",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Core operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		sweptSessions = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_sessions_expired_total",
				Help: "Bid sessions expired by the sweeper",
			},
		)
		sweptBids = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_bids_expired_total",
				Help: "Pending bids expired by the sweeper",
			},
		)

		monthlyBills = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "monthly_bills_total",
				Help: "Monthly bill generation outcomes per application",
			},
			[]string{"outcome"},
		)

		paymentsSettled = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_settled_total",
				Help: "Payments settled for the first time by status",
			},
			[]string{"status"},
		)

		notificationFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notification_failures_total",
				Help: "Best-effort notifications that failed by kind",
			},
			[]string{"kind"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Document exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Document export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Age of the last consumed event in seconds",
			},
			[]string{"consumer"},
		)

		jobRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduled_job_runs_total",
				Help: "Scheduled job executions by job and result",
			},
			[]string{"job", "result"},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			sweptSessions,
			sweptBids,
			monthlyBills,
			paymentsSettled,
			notificationFailures,
			exportTotal,
			exportLatency,
			consumerLag,
			jobRuns,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// Result converts an operation error to a result label.
func Result(err error) string {
	if err == nil {
		return resultSuccess
	}
	return string(apperr.CodeOf(err))
}

// ObserveOperation records one core operation.
func ObserveOperation(operation string, err error, duration time.Duration) {
	result := Result(err)
	if operationTotal != nil {
		operationTotal.WithLabelValues(operation, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// AddSweep records sweeper transitions.
func AddSweep(sessions, bids int64) {
	if sweptSessions != nil && sessions > 0 {
		sweptSessions.Add(float64(sessions))
	}
	if sweptBids != nil && bids > 0 {
		sweptBids.Add(float64(bids))
	}
}

// AddMonthlyBills records a billing run.
func AddMonthlyBills(created, skipped, failed int) {
	if monthlyBills == nil {
		return
	}
	monthlyBills.WithLabelValues("created").Add(float64(created))
	monthlyBills.WithLabelValues("skipped").Add(float64(skipped))
	monthlyBills.WithLabelValues("failed").Add(float64(failed))
}

// IncPaymentSettled counts a first settlement.
func IncPaymentSettled(status string) {
	if status == "" {
		status = "unknown"
	}
	if paymentsSettled != nil {
		paymentsSettled.WithLabelValues(status).Inc()
	}
}

// IncNotificationFailure counts a failed best-effort notification.
func IncNotificationFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if notificationFailures != nil {
		notificationFailures.WithLabelValues(kind).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// IncJobRun counts a scheduled job execution.
func IncJobRun(job string, err error) {
	if jobRuns != nil {
		jobRuns.WithLabelValues(job, Result(err)).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
