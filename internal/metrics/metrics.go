package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pumpdesk_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	reconcileRunsTotal *prometheus.CounterVec
	reconcileLatency   *prometheus.HistogramVec

	expensesMarkedTotal prometheus.Counter

	rateCacheLookups *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
)

// Init registers all application metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		reconcileRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_runs_total",
				Help: "Total reconciliation runs by checkpoint and result",
			},
			[]string{"checkpoint", "result"},
		)
		reconcileLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reconcile_latency_seconds",
				Help:    "Reconciliation finalize latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		expensesMarkedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "expenses_marked_total",
				Help: "Total approved expense requests consumed by reconciliation runs",
			},
		)

		rateCacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rate_cache_lookups_total",
				Help: "Total rate cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "record_export_total",
				Help: "Total sales record exports by result",
			},
			[]string{"result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "record_export_latency_seconds",
				Help:    "Sales record export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method and status class",
			},
			[]string{"method", "class"},
		)

		prometheus.MustRegister(
			reconcileRunsTotal,
			reconcileLatency,
			expensesMarkedTotal,
			rateCacheLookups,
			exportTotal,
			exportLatency,
			httpRequests,
		)
	})
}

// ObserveReconcile records one finalize attempt.
func ObserveReconcile(checkpoint, result string, duration time.Duration) {
	if checkpoint == "" {
		checkpoint = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reconcileRunsTotal != nil {
		reconcileRunsTotal.WithLabelValues(checkpoint, result).Inc()
	}
	if reconcileLatency != nil {
		reconcileLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddExpensesMarked increments the consumed-expense counter by count.
func AddExpensesMarked(count int) {
	if count <= 0 {
		return
	}
	if expensesMarkedTotal != nil {
		expensesMarkedTotal.Add(float64(count))
	}
}

// IncRateCacheLookup records a rate cache hit, miss, or error.
func IncRateCacheLookup(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if rateCacheLookups != nil {
		rateCacheLookups.WithLabelValues(outcome).Inc()
	}
}

// ObserveExport records one sales record export.
func ObserveExport(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncHTTPRequest counts one served request by method and status class ("2xx").
func IncHTTPRequest(method, class string) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, class).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)
