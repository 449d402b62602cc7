// Package observability exposes the Prometheus collectors recorded by the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for TransitionsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	// TransitionsTotal counts relationship transitions by name and outcome.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_relationship_transitions_total",
		Help: "Relationship transitions by transition name and outcome",
	}, []string{"transition", "outcome"})

	// PartialFailuresTotal counts multi-document transitions that stopped after some writes.
	PartialFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_relationship_partial_failures_total",
		Help: "Transitions that failed after at least one store write",
	}, []string{"transition"})

	// CacheErrorsTotal counts summary cache errors by operation.
	CacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_summary_cache_errors_total",
		Help: "Summary cache errors by operation",
	}, []string{"operation"})

	// HTTPRequestDuration records handler latency by method and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinship_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// RecordTransition increments the transition counter.
func RecordTransition(transition, outcome string) {
	TransitionsTotal.WithLabelValues(transition, outcome).Inc()
}

// RecordPartialFailure increments the partial failure counter.
func RecordPartialFailure(transition string) {
	PartialFailuresTotal.WithLabelValues(transition).Inc()
}

// RecordCacheError increments the cache error counter.
func RecordCacheError(operation string) {
	CacheErrorsTotal.WithLabelValues(operation).Inc()
}

// ObserveRequest records the latency of a completed HTTP request.
func ObserveRequest(method string, status int, start time.Time) {
	HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
