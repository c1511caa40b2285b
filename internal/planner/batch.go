package planner

import (
	"fmt"
	"math"
	"time"

	"github.com/merlin2/tieranalysis/internal/models"
)

// Free-tier rate limits transcribed from batch_size_optimizer.py.
const (
	RequestsPerMinute = 15
	RequestsPerDay    = 1500
	// ProcessingTimePerJob is the assumed wall-clock cost of one job,
	// dominated by the LLM round trip.
	ProcessingTimePerJob = 3 * time.Second
)

// BatchContext carries the inputs BatchSizer needs to pick a size.
type BatchContext struct {
	TotalJobs          int
	Tier               models.Tier
	Model              models.ModelSpec
	RequestsIssuedToday int
	// TimeConstraint, if non-zero, bounds how long the whole run may take.
	TimeConstraint time.Duration
}

// BatchSizeResult is the BatchSizer's decision, mirroring
// batch_size_optimizer.py's BatchSizeRecommendation.
type BatchSizeResult struct {
	Optimal          int
	Min              int
	Max              int
	Rationale        string
	BatchesNeeded    int
	EstimatedTime    time.Duration
	EstimatedCostUSD float64
}

// ComputeBatchSize chooses batch size as the min of the token-constrained,
// rate-constrained, quality-constrained (ideal batch size) and optional
// time-constrained sizes, per spec §4.2.
func ComputeBatchSize(ctx BatchContext) BatchSizeResult {
	if ctx.TotalJobs <= 0 {
		return BatchSizeResult{Rationale: "no jobs pending"}
	}

	cfg := TierConfigs[ctx.Tier]

	tokenConstrained := ctx.Model.MaxOutputTokens
	if tokenConstrained <= 0 {
		tokenConstrained = ModelLimit
	}
	tokenConstrainedSize := int(math.Floor(
		(float64(tokenConstrained) - JSONOverhead) / (float64(cfg.BaseTokensPerJob) * cfg.SafetyMargin),
	))
	if tokenConstrainedSize < 1 {
		tokenConstrainedSize = 1
	}

	rpmLimit := ctx.Model.RPMLimit
	if rpmLimit <= 0 {
		rpmLimit = RequestsPerMinute
	}
	remainingToday := RequestsPerDay - ctx.RequestsIssuedToday
	if remainingToday < 1 {
		remainingToday = 1
	}
	rateConstrainedSize := ctx.TotalJobs
	if remainingToday < rateConstrainedSize {
		rateConstrainedSize = remainingToday
	}

	qualityConstrainedSize := cfg.IdealBatchSize

	sizes := []int{tokenConstrainedSize, rateConstrainedSize, qualityConstrainedSize}
	reasons := []string{"token budget", "daily rate cap", "tier quality target"}

	var timeConstrainedSize int
	if ctx.TimeConstraint > 0 {
		timeConstrainedSize = int(ctx.TimeConstraint / ProcessingTimePerJob)
		if timeConstrainedSize < 1 {
			timeConstrainedSize = 1
		}
		sizes = append(sizes, timeConstrainedSize)
		reasons = append(reasons, "time budget")
	}

	optimal := sizes[0]
	rationale := reasons[0]
	for i, s := range sizes[1:] {
		if s < optimal {
			optimal = s
			rationale = reasons[i+1]
		}
	}
	if optimal > ctx.TotalJobs {
		optimal = ctx.TotalJobs
		rationale = "fewer jobs pending than any constraint"
	}
	if optimal < 1 {
		optimal = 1
	}

	batchesNeeded := int(math.Ceil(float64(ctx.TotalJobs) / float64(optimal)))
	estimatedTime := time.Duration(ctx.TotalJobs) * ProcessingTimePerJob
	alloc := AllocateTokens(optimal, ctx.Tier)
	estimatedCost := EstimateCost(ctx.Model, alloc.MaxOutputTokens) * float64(batchesNeeded)

	return BatchSizeResult{
		Optimal:          optimal,
		Min:              1,
		Max:              qualityConstrainedSize,
		Rationale:        fmt.Sprintf("bound by %s (candidates: token=%d rate=%d quality=%d)", rationale, tokenConstrainedSize, rateConstrainedSize, qualityConstrainedSize),
		BatchesNeeded:    batchesNeeded,
		EstimatedTime:    estimatedTime,
		EstimatedCostUSD: estimatedCost,
	}
}
