// Package metrics exposes Prometheus collectors for the acquisition service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	acquisitionsTotal          *prometheus.CounterVec
	acquisitionDurationSeconds prometheus.Histogram
	sessionAttemptsTotal       *prometheus.CounterVec
	documentDownloadsTotal     *prometheus.CounterVec
	documentGapsTotal          prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		acquisitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cnr_acquisitions_total",
				Help: "Total number of CNR acquisitions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		acquisitionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cnr_acquisition_duration_seconds",
				Help:    "Histogram of end-to-end acquisition latencies.",
				Buckets: []float64{5, 10, 20, 40, 60, 120, 300, 600},
			},
		)

		sessionAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cnr_session_attempts_total",
				Help: "Total number of browser sessions run, labeled by classified page state.",
			},
			[]string{"state"},
		)

		documentDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cnr_document_downloads_total",
				Help: "Total number of document download attempts, labeled by result.",
			},
			[]string{"result"},
		)

		documentGapsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cnr_document_gaps_total",
				Help: "Total number of listed orders whose document could not be retrieved.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cnr_active_workers",
				Help: "Number of workers currently running an acquisition.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cnr_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting for the portal rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAcquisition counts a finished acquisition and its latency.
func ObserveAcquisition(outcome string, duration time.Duration) {
	Init()
	acquisitionsTotal.WithLabelValues(outcome).Inc()
	acquisitionDurationSeconds.Observe(duration.Seconds())
}

// ObserveSessionAttempt counts one browser session by the state it ended in.
func ObserveSessionAttempt(state string) {
	Init()
	sessionAttemptsTotal.WithLabelValues(state).Inc()
}

// ObserveDocument counts one document attempt: "ok", "retry" or "failed".
func ObserveDocument(result string) {
	Init()
	documentDownloadsTotal.WithLabelValues(result).Inc()
}

// AddDocumentGaps records listed orders that produced no document.
func AddDocumentGaps(n int) {
	if n <= 0 {
		return
	}
	Init()
	documentGapsTotal.Add(float64(n))
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

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}
