// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshTotal counts orchestrator outcomes by storage backend.
	// outcome is one of "cached", "regenerated", "not_ready".
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperfeed_refresh_total",
			Help: "Total number of refresh orchestrator calls by outcome",
		},
		[]string{"backend", "outcome"},
	)

	// RefreshSaveErrors counts failed state persists.
	RefreshSaveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperfeed_refresh_save_errors_total",
			Help: "Total number of refresh state save failures",
		},
		[]string{"backend"},
	)

	// UpstreamRequestsTotal counts outbound calls by service and result.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperfeed_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"service", "result"},
	)

	// UpstreamRequestDuration tracks outbound call latency.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paperfeed_upstream_request_duration_seconds",
			Help:    "Duration of upstream API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	// RecommendationAttempts records how many attempts a recommendation fetch needed.
	RecommendationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paperfeed_recommendation_attempts",
			Help:    "Number of upstream attempts per recommendation fetch",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paperfeed_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperfeed_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// ArxivCacheTotal counts arXiv lookups by cache status.
	ArxivCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperfeed_arxiv_cache_total",
			Help: "Total number of arXiv lookups by cache status",
		},
		[]string{"status"},
	)

	// SSEClients is the number of connected event-stream clients.
	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperfeed_sse_clients",
			Help: "Number of connected server-sent event clients",
		},
	)
)
