// Package metrics exposes Prometheus collectors for the job core.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsSubmittedTotal         *prometheus.CounterVec
	jobsFinishedTotal          *prometheus.CounterVec
	jobQueueWaitSeconds        *prometheus.HistogramVec
	jobRunSeconds              *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	uiDeliveriesTotal          *prometheus.CounterVec
	failuresLoggedTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call
// repeatedly; the Observe helpers call it themselves.
func Init() {
	once.Do(func() {
		jobsSubmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcore_jobs_submitted_total",
				Help: "Jobs accepted by the scheduler, labeled by operation.",
			},
			[]string{"operation"},
		)

		jobsFinishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcore_jobs_finished_total",
				Help: "Jobs that reached a terminal state, labeled by operation and status.",
			},
			[]string{"operation", "status"},
		)

		jobQueueWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcore_job_queue_wait_seconds",
				Help:    "Time between submission and a worker picking the job up.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"operation"},
		)

		jobRunSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcore_job_run_seconds",
				Help:    "Operation run time, labeled by operation and status.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"operation", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobcore_active_workers",
				Help: "Number of workers currently running an operation.",
			},
		)

		uiDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcore_ui_deliveries_total",
				Help: "Results handed to the UI context, labeled by mode (immediate, deferred, action).",
			},
			[]string{"mode"},
		)

		failuresLoggedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcore_failures_logged_total",
				Help: "Job failures reported to the failure log, labeled by kind.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeLabel lowercases v and maps the empty string to "unknown".
func SanitizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubmit counts an accepted job.
func ObserveSubmit(operation string) {
	Init()
	jobsSubmittedTotal.WithLabelValues(SanitizeLabel(operation)).Inc()
}

// ObserveQueueWait records how long a job waited for a worker.
func ObserveQueueWait(operation string, wait time.Duration) {
	Init()
	jobQueueWaitSeconds.WithLabelValues(SanitizeLabel(operation)).Observe(wait.Seconds())
}

// ObserveFinish counts a terminal job and its run time. Jobs cancelled
// before running pass a zero duration and are only counted.
func ObserveFinish(operation, status string, run time.Duration) {
	Init()
	op := SanitizeLabel(operation)
	jobsFinishedTotal.WithLabelValues(op, status).Inc()
	if run > 0 {
		jobRunSeconds.WithLabelValues(op, status).Observe(run.Seconds())
	}
}

// ObserveUIDelivery counts a result handed to the UI context.
func ObserveUIDelivery(mode string) {
	Init()
	uiDeliveriesTotal.WithLabelValues(mode).Inc()
}

// ObserveFailureLogged counts a failure written to the failure log.
func ObserveFailureLogged(kind string) {
	Init()
	failuresLoggedTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
