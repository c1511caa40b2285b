// Package planner implements the Token & Model Planner (C2): three
// cooperating, side-effect-free functions (TokenAllocator, ModelSelector,
// BatchSizer) that are advisory to the tier analyzer.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// token_optimizer.py, model_selector.py, batch_size_optimizer.py.
package planner

import (
	"math"

	"github.com/merlin2/tieranalysis/internal/models"
)

// ModelLimit is the hard ceiling on output tokens any model in the catalog
// will accept, per spec §4.2.
const ModelLimit = 8192

// JSONOverhead is the fixed token budget reserved for JSON wrapper
// structure around the model's substantive output.
const JSONOverhead = 100

// TierTokenConfig carries the per-tier constants from spec §4.2.
type TierTokenConfig struct {
	BaseTokensPerJob int
	SafetyMargin     float64
	IdealBatchSize   int
}

// TierConfigs holds the exact per-tier constants transcribed from
// token_optimizer.py / batch_size_optimizer.py.
var TierConfigs = map[models.Tier]TierTokenConfig{
	models.Tier1: {BaseTokensPerJob: 800, SafetyMargin: 1.30, IdealBatchSize: 10},
	models.Tier2: {BaseTokensPerJob: 600, SafetyMargin: 1.20, IdealBatchSize: 15},
	models.Tier3: {BaseTokensPerJob: 600, SafetyMargin: 1.20, IdealBatchSize: 15},
}

// TokenAllocation is the TokenAllocator's decision for one batch.
type TokenAllocation struct {
	MaxOutputTokens int
	Utilization     float64
	Recommendations []string
}

// AllocateTokens computes max_output_tokens for jobCount jobs at tier, and
// emits advisory recommendations per spec §4.2 point 4.
func AllocateTokens(jobCount int, tier models.Tier) TokenAllocation {
	if jobCount <= 0 {
		// Boundary behavior, spec §8: job_count=0 -> max_output_tokens is
		// just the JSON overhead; no LLM call is made by the caller.
		return TokenAllocation{MaxOutputTokens: JSONOverhead}
	}

	cfg := TierConfigs[tier]
	raw := math.Ceil(float64(jobCount)*float64(cfg.BaseTokensPerJob)*cfg.SafetyMargin) + JSONOverhead

	maxTokens := int(raw)
	atLimit := false
	if maxTokens > ModelLimit {
		maxTokens = ModelLimit
		atLimit = true
	}

	utilization := float64(maxTokens) / float64(ModelLimit)

	var recs []string
	if atLimit {
		recs = append(recs, "max_output_tokens capped at model limit; response may be truncated for large batches")
	}
	if utilization < 0.60 {
		recs = append(recs, "token budget utilization below 60%; batch size could be increased")
	}
	if jobCount > cfg.IdealBatchSize {
		recs = append(recs, "job_count exceeds this tier's ideal batch size; consider splitting the batch")
	}

	return TokenAllocation{
		MaxOutputTokens: maxTokens,
		Utilization:     utilization,
		Recommendations: recs,
	}
}
