package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/merlin2/tieranalysis/internal/models"
)

func TestAllocateTokens_ZeroJobsReturnsOverheadOnly(t *testing.T) {
	alloc := AllocateTokens(0, models.Tier1)
	assert.Equal(t, JSONOverhead, alloc.MaxOutputTokens)
}

func TestAllocateTokens_CapsAtModelLimitWithRecommendation(t *testing.T) {
	alloc := AllocateTokens(1000, models.Tier1)
	assert.Equal(t, ModelLimit, alloc.MaxOutputTokens)
	assert.Contains(t, alloc.Recommendations[0], "capped at model limit")
}

func TestAllocateTokens_LowUtilizationFlagged(t *testing.T) {
	alloc := AllocateTokens(1, models.Tier1)
	found := false
	for _, r := range alloc.Recommendations {
		if r == "token budget utilization below 60%; batch size could be increased" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestComputeBatchSize_NoJobsPending(t *testing.T) {
	result := ComputeBatchSize(BatchContext{TotalJobs: 0, Tier: models.Tier1})
	assert.Equal(t, 0, result.Optimal)
	assert.Equal(t, "no jobs pending", result.Rationale)
}

func TestComputeBatchSize_FewerJobsThanAnyConstraint(t *testing.T) {
	m := models.DefaultCatalog()[0]
	result := ComputeBatchSize(BatchContext{TotalJobs: 2, Tier: models.Tier1, Model: m})
	assert.Equal(t, 2, result.Optimal)
}

func TestComputeBatchSize_BoundedByDailyRateCap(t *testing.T) {
	m := models.DefaultCatalog()[0]
	result := ComputeBatchSize(BatchContext{
		TotalJobs:           500,
		Tier:                models.Tier1,
		Model:               m,
		RequestsIssuedToday: RequestsPerDay - 3,
	})
	assert.Equal(t, 3, result.Optimal)
}

func TestEstimateCost_FreeModelIsZero(t *testing.T) {
	m := models.DefaultCatalog()[0]
	assert.Equal(t, 0.0, EstimateCost(m, 5000))
}

func TestEstimateCost_PremiumModelScalesWithTokens(t *testing.T) {
	m := models.DefaultCatalog()[2]
	assert.InDelta(t, 2.50, EstimateCost(m, 1000), 0.0001)
}

func TestSelectModel_EmptyCatalogErrors(t *testing.T) {
	_, err := SelectModel(SelectionInput{})
	assert.Error(t, err)
}

func TestSelectModel_Tier1PrefersLiteUnderHealthyBudget(t *testing.T) {
	selection, err := SelectModel(SelectionInput{
		Catalog:         models.DefaultCatalog(),
		Tier:            models.Tier1,
		JobCount:        5,
		DailyTokensUsed: 0,
		DailyTokenLimit: 2_000_000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.ModelTierLite, selection.Model.Tier)
}

func TestSelectModel_Tier3PrefersPremiumUnderHealthyBudget(t *testing.T) {
	selection, err := SelectModel(SelectionInput{
		Catalog:         models.DefaultCatalog(),
		Tier:            models.Tier3,
		JobCount:        5,
		DailyTokensUsed: 0,
		DailyTokenLimit: 2_000_000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.ModelTierPremium, selection.Model.Tier)
}

func TestSelectModel_HighBudgetUtilizationForcesLite(t *testing.T) {
	selection, err := SelectModel(SelectionInput{
		Catalog:         models.DefaultCatalog(),
		Tier:            models.Tier3,
		JobCount:        5,
		DailyTokensUsed: 1_950_000,
		DailyTokenLimit: 2_000_000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.ModelTierLite, selection.Model.Tier)
}
