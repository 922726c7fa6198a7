package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xstation"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	autoEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_end_total",
			Help:      "Auto-end attempts by outcome.",
		},
		[]string{"outcome"},
	)

	refreshFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_refresh_failures_total",
			Help:      "Failed polls of the active bookings list.",
		},
	)

	activeTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_timers",
			Help:      "Countdowns currently tracked by the reconciler.",
		},
	)

	clientTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_fallback_timers",
			Help:      "Client fallback end times currently stored.",
		},
	)

	backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of X-Station backend calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, autoEnds, refreshFailures, activeTimers, clientTimers, backendLatency)
	})
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncAutoEnd(outcome string) {
	autoEnds.WithLabelValues(outcome).Inc()
}

func IncRefreshFailure() {
	refreshFailures.Inc()
}

func SetActiveTimers(n int) {
	activeTimers.Set(float64(n))
}

func SetClientTimers(n int) {
	clientTimers.Set(float64(n))
}

func ObserveBackend(operation string, seconds float64) {
	backendLatency.WithLabelValues(operation).Observe(seconds)
}
