package planner

import (
	"fmt"
	"sort"

	"github.com/merlin2/tieranalysis/internal/models"
)

// SelectionInput carries everything ModelSelector needs; all fields are
// read-only snapshots supplied by the caller (C5/C3), never looked up
// globally, per spec §9's "pass them in; don't look them up" note.
type SelectionInput struct {
	Catalog         []models.ModelSpec
	Tier            models.Tier
	JobCount        int
	DailyTokensUsed int
	DailyTokenLimit int
	TimeSensitive   bool
	PeakHours       bool
	// RecentQualityScore is the most recently observed quality score for
	// the current model, in [0,1]. Nil if no recent measurement exists.
	RecentQualityScore *float64
}

// ModelSelection is the chosen model plus its score and a human-readable
// rationale, mirroring model_selector.py's ModelSelection dataclass.
type ModelSelection struct {
	Model  models.ModelSpec
	Score  float64
	Reason string
}

// SelectModel scores every model in the catalog with the weighted sum
// 0.4*workload + 0.3*budget + 0.2*quality + 0.1*time (spec §4.2) and
// returns the highest scorer.
func SelectModel(in SelectionInput) (ModelSelection, error) {
	if len(in.Catalog) == 0 {
		return ModelSelection{}, fmt.Errorf("planner: empty model catalog")
	}

	catalog := make([]models.ModelSpec, len(in.Catalog))
	copy(catalog, in.Catalog)
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Priority < catalog[j].Priority })

	var best ModelSelection
	bestScore := -1.0

	for _, m := range catalog {
		workload := scoreWorkload(m, in.Tier, in.JobCount)
		budget := scoreBudget(m, in.DailyTokensUsed, in.DailyTokenLimit)
		quality := scoreQuality(m, in.RecentQualityScore)
		timeScore := scoreTime(m, in.TimeSensitive, in.PeakHours)

		score := 0.4*workload + 0.3*budget + 0.2*quality + 0.1*timeScore

		if score > bestScore {
			bestScore = score
			best = ModelSelection{
				Model: m,
				Score: score,
				Reason: buildSelectionReason(m, workload, budget, quality, timeScore),
			}
		}
	}

	return best, nil
}

func scoreWorkload(m models.ModelSpec, tier models.Tier, jobCount int) float64 {
	// Higher tiers favor premium models for strategic reasoning; large
	// batches favor higher-capacity (higher max-output) models.
	var tierAffinity float64
	switch {
	case tier == models.Tier3 && m.Tier == models.ModelTierPremium:
		tierAffinity = 1.0
	case tier == models.Tier3 && m.Tier == models.ModelTierStandard:
		tierAffinity = 0.6
	case tier == models.Tier3:
		tierAffinity = 0.2
	case tier == models.Tier2 && m.Tier == models.ModelTierStandard:
		tierAffinity = 1.0
	case tier == models.Tier2 && m.Tier == models.ModelTierPremium:
		tierAffinity = 0.7
	case tier == models.Tier2:
		tierAffinity = 0.4
	case tier == models.Tier1 && m.Tier == models.ModelTierLite:
		tierAffinity = 1.0
	case tier == models.Tier1 && m.Tier == models.ModelTierStandard:
		tierAffinity = 0.6
	default:
		tierAffinity = 0.3
	}

	capacityFit := 0.5
	if m.MaxOutputTokens > 0 {
		cfg := TierConfigs[tier]
		needed := float64(jobCount) * float64(cfg.BaseTokensPerJob) * cfg.SafetyMargin
		if needed <= float64(m.MaxOutputTokens) {
			capacityFit = 1.0
		} else {
			capacityFit = float64(m.MaxOutputTokens) / needed
			if capacityFit < 0 {
				capacityFit = 0
			}
		}
	}

	return clamp01(0.7*tierAffinity + 0.3*capacityFit)
}

func scoreBudget(m models.ModelSpec, dailyTokensUsed, dailyTokenLimit int) float64 {
	util := 0.0
	if dailyTokenLimit > 0 {
		util = float64(dailyTokensUsed) / float64(dailyTokenLimit)
	}

	switch {
	case util > 0.90:
		// Strongly prefer lite.
		if m.Tier == models.ModelTierLite {
			return 1.0
		}
		return 0.1
	case util > 0.80:
		// Prefer lite/standard.
		if m.Tier == models.ModelTierLite || m.Tier == models.ModelTierStandard {
			return 0.9
		}
		return 0.3
	case util < 0.40:
		// Budget is healthy; premium is permitted freely.
		return 1.0
	default:
		// Mid-range utilization: mild preference against premium.
		if m.Tier == models.ModelTierPremium {
			return 0.6
		}
		return 0.85
	}
}

func scoreQuality(m models.ModelSpec, recentQuality *float64) float64 {
	if recentQuality == nil {
		return 0.7 // neutral prior
	}
	q := *recentQuality
	switch {
	case q < 0.75:
		// Recent quality is poor: push toward upgrading (premium scores
		// higher).
		if m.Tier == models.ModelTierPremium {
			return 1.0
		}
		if m.Tier == models.ModelTierStandard {
			return 0.6
		}
		return 0.2
	case q > 0.95:
		// Recent quality is excellent: a downgrade is acceptable.
		if m.Tier == models.ModelTierLite {
			return 0.9
		}
		return 0.6
	default:
		return 0.7
	}
}

func scoreTime(m models.ModelSpec, timeSensitive, peakHours bool) float64 {
	if !timeSensitive && !peakHours {
		return 0.6
	}
	switch m.Tier {
	case models.ModelTierLite:
		return 1.0
	case models.ModelTierStandard:
		return 0.6
	default:
		return 0.2
	}
}

func buildSelectionReason(m models.ModelSpec, workload, budget, quality, timeScore float64) string {
	return fmt.Sprintf(
		"model=%s tier=%s workload=%.2f budget=%.2f quality=%.2f time=%.2f",
		m.ID, m.Tier, workload, budget, quality, timeScore,
	)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EstimateCost returns the projected output-token cost in USD for
// outputTokens tokens on model m.
func EstimateCost(m models.ModelSpec, outputTokens int) float64 {
	return float64(outputTokens) / 1000.0 * m.OutputCostPer1K
}
