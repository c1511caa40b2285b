// Package metrics implements C12: Prometheus instrumentation for the
// LLM dispatch path, the sanitization pipeline, and the scheduler's
// batch loop, exposed at GET /metrics.
//
// Grounded on github.com/prometheus/client_golang, already part of the
// teacher's dependency set and used the way the rest of the example
// pack wires Prometheus collectors (package-level vectors registered
// against the default registry).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMRequestsTotal counts every dispatch attempt, labeled by the
	// model used and its outcome ("success", "error", "rejected").
	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "Total LLM dispatch attempts, by model and status.",
	}, []string{"model", "status"})

	// LLMTokensTotal accumulates tokens consumed per tier.
	LLMTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Total tokens consumed, by tier.",
	}, []string{"tier"})

	// ModelFallbackTotal counts every time model selection fell back
	// past its preferred choice.
	ModelFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_fallback_total",
		Help: "Total number of times model selection fell back to a lower-priority model.",
	})

	// SanitizationWarningsTotal counts field-level sanitization actions,
	// labeled by the pattern category that triggered them.
	SanitizationWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sanitization_warnings_total",
		Help: "Total sanitization actions taken on LLM response fields, by category.",
	}, []string{"category"})

	// TierBatchDurationSeconds observes how long each tier's batch run
	// takes end to end.
	TierBatchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tier_batch_duration_seconds",
		Help:    "Duration of a full RunTierBatch call, by tier.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tier"})
)
