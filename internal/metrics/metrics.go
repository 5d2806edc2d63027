// Package metrics exposes Prometheus collectors for the registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pitrace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	paymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrace",
			Subsystem: "payments",
			Name:      "transitions_total",
			Help:      "Total number of payment status transitions.",
		},
		[]string{"status"},
	)

	pollAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitrace",
			Subsystem: "payments",
			Name:      "poll_attempts_total",
			Help:      "Total number of payment status poll attempts.",
		},
	)

	pollTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitrace",
			Subsystem: "payments",
			Name:      "poll_timeouts_total",
			Help:      "Polls that exhausted the attempt ceiling without a terminal status.",
		},
	)

	cacheFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrace",
			Subsystem: "cache",
			Name:      "fallbacks_total",
			Help:      "Operations that fell back to the local cache after a remote failure.",
		},
		[]string{"operation"},
	)

	syncPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrace",
			Subsystem: "sync",
			Name:      "pushes_total",
			Help:      "Locally saved records re-pushed to the remote store.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		paymentTransitions,
		pollAttempts,
		pollTimeouts,
		cacheFallbacks,
		syncPushes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry's collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled HTTP request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// PaymentTransition records a payment status transition.
func PaymentTransition(status string) {
	paymentTransitions.WithLabelValues(status).Inc()
}

// PollAttempt records one payment status poll.
func PollAttempt() { pollAttempts.Inc() }

// PollTimeout records an exhausted poll ceiling.
func PollTimeout() { pollTimeouts.Inc() }

// CacheFallback records a local-cache fallback for the named operation.
func CacheFallback(operation string) {
	cacheFallbacks.WithLabelValues(operation).Inc()
}

// SyncPush records a re-push of a locally saved record ("ok" or "error").
func SyncPush(result string) {
	syncPushes.WithLabelValues(result).Inc()
}
