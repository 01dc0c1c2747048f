package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarian_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "librarian_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	checkoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "librarian_checkout_duration_seconds",
		Help:    "Duration of checkout transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	returnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "librarian_return_duration_seconds",
		Help:    "Duration of return transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarian_overdue_sweeps_total",
		Help: "Count of overdue sweep runs by source and result",
	}, []string{"source", "result"})

	sweepMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "librarian_overdue_marked_total",
		Help: "Total borrowing records flipped to overdue by sweeps",
	})

	activeLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "librarian_active_loans",
		Help: "Number of loans currently checked out or overdue",
	})

	contentionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "librarian_contention_retries_total",
		Help: "Count of transactions retried after lock contention",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveCheckout records the duration of a checkout attempt with a result label.
func ObserveCheckout(result string, duration time.Duration) {
	checkoutDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveReturn records the duration of a return attempt with a result label.
func ObserveReturn(result string, duration time.Duration) {
	returnDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveSweep increments the sweep counter for the given source and result.
func ObserveSweep(source, result string) {
	sweepRuns.WithLabelValues(source, result).Inc()
}

// AddSweepMarked adds the number of records a sweep flipped to overdue.
func AddSweepMarked(n int64) {
	if n > 0 {
		sweepMarked.Add(float64(n))
	}
}

// IncrementActiveLoans increments the active loan gauge.
func IncrementActiveLoans() {
	activeLoans.Inc()
}

// DecrementActiveLoans decrements the active loan gauge.
func DecrementActiveLoans() {
	activeLoans.Dec()
}

// SetActiveLoans sets the active loan gauge to a specific count.
func SetActiveLoans(count int) {
	if count < 0 {
		count = 0
	}
	activeLoans.Set(float64(count))
}

// ObserveContentionRetry records a transaction retried after lock contention.
func ObserveContentionRetry() {
	contentionRetries.Inc()
}
