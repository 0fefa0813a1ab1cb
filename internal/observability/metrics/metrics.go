// Package metrics registers the portal's prometheus instruments.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "ncm_portal_"

	// ResultSuccess and friends are the auth attempt result labels.
	ResultSuccess      = "success"
	ResultInvalid      = "invalid"
	ResultUnauthorized = "unauthorized"
	ResultUnavailable  = "unavailable"
)

var (
	registerOnce sync.Once

	authAttempts *prometheus.CounterVec

	remoteRequests *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
)

// Init registers the instruments. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		authAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "auth_attempts_total",
				Help: "Total login attempts by result",
			},
			[]string{"result"},
		)

		remoteRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "remote_requests_total",
				Help: "Total collector API requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		remoteLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "remote_latency_seconds",
				Help:    "Collector API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total inbound HTTP requests by method and status",
			},
			[]string{"method", "status"},
		)

		prometheus.MustRegister(
			authAttempts,
			remoteRequests,
			remoteLatency,
			httpRequests,
		)
	})
}

// ObserveAuthAttempt records one login attempt.
func ObserveAuthAttempt(result string) {
	if authAttempts != nil {
		authAttempts.WithLabelValues(result).Inc()
	}
}

// ObserveRemoteRequest records one collector API call.
func ObserveRemoteRequest(endpoint, result string, seconds float64) {
	if remoteRequests != nil {
		remoteRequests.WithLabelValues(endpoint, result).Inc()
	}
	if remoteLatency != nil {
		remoteLatency.WithLabelValues(endpoint).Observe(seconds)
	}
}

// ObserveHTTPRequest records one inbound request.
func ObserveHTTPRequest(method string, status int) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}
