// Package metrics defines the Prometheus collectors exported by the gateway.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Gateway outcomes.
var (
	// RetrievalsTotal counts retrieval responses by outcome
	// (success, fallback, unavailable, bad_request).
	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_gateway_retrievals_total",
			Help: "Retrieval responses by outcome",
		},
		[]string{"outcome"},
	)

	// UpstreamAttemptsTotal counts individual upstream fetch attempts by result
	// (ok, empty, not_found, rate_limited, transport, error).
	UpstreamAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_gateway_upstream_attempts_total",
			Help: "Upstream fetch attempts by result",
		},
		[]string{"result"},
	)

	// UploadsTotal counts upload responses by outcome
	// (created, too_large, rate_limited, unavailable, bad_request).
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_gateway_uploads_total",
			Help: "Upload responses by outcome",
		},
		[]string{"outcome"},
	)

	// UpstreamDuration observes upstream call latency by operation (fetch, upload).
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asset_gateway_upstream_duration_seconds",
			Help:    "Upstream call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// HTTP metrics.
var (
	// HTTPRequestsTotal counts requests by method, route pattern and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_gateway_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asset_gateway_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register registers all collectors with the default registry. It is safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RetrievalsTotal,
			UpstreamAttemptsTotal,
			UploadsTotal,
			UpstreamDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
		// Pre-create outcome series so they report zero before the first request.
		for _, o := range []string{"success", "fallback", "unavailable", "bad_request"} {
			RetrievalsTotal.WithLabelValues(o)
		}
		for _, o := range []string{"created", "too_large", "rate_limited", "unavailable", "bad_request"} {
			UploadsTotal.WithLabelValues(o)
		}
	})
}
