// Package metrics exposes Prometheus instrumentation for the recommendation
// pipeline. Collectors register on the default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_recommendations_total",
			Help: "Responses served, by mode (recommend|chat) and search method",
		},
		[]string{"mode", "search_method"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_fallbacks_total",
			Help: "Requests answered by the keyword fallback, by the stage that failed",
		},
		[]string{"stage", "reason"},
	)

	// Kept apart from FallbacksTotal: a rising rate means prompt or model drift.
	OutputValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_output_validation_failures_total",
			Help: "Model outputs rejected by the parser or grounding check",
		},
		[]string{"reason"},
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_provider_retries_total",
			Help: "Single retries attempted after transient provider errors",
		},
		[]string{"provider"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"stage"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "advisor_circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisor_active_sessions",
			Help: "Session contexts currently held in memory",
		},
	)

	EmbeddingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_embedding_jobs_total",
			Help: "Course embedding job outcomes",
		},
		[]string{"outcome"},
	)
)

// ObserveStage records how long a stage took since start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
