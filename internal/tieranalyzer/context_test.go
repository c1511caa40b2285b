package tieranalyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/merlin2/tieranalysis/internal/limits"
	"github.com/merlin2/tieranalysis/internal/models"
)

func TestBuildPriorContext_TrimsToConfiguredLimits(t *testing.T) {
	trimmer := limits.NewContextTrimmer(&limits.ContextLimits{MaxSkills: 2, MaxImplicitRequirements: 1, MaxRedFlagCategories: 1})

	tier1 := &models.AnalysisArtifact{Tier1: &models.Tier1Artifact{
		AuthenticityCheck: models.AuthenticityCheck{IsAuthentic: true},
		StructuredData:    models.StructuredData{Skills: []string{"go", "postgres", "kubernetes"}},
	}}
	tier2 := &models.AnalysisArtifact{Tier2: &models.Tier2Artifact{
		StressLevelAnalysis: models.StressLevelAnalysis{Score: 0.7},
		RedFlags: []models.RedFlag{
			{Category: "understaffing"}, {Category: "scope-creep"},
		},
		ImplicitRequirements: []models.ImplicitRequirement{
			{Requirement: "on-call rotation"}, {Requirement: "weekend availability"},
		},
	}}

	ctx := buildPriorContext(trimmer, tier1, tier2)

	assert.Equal(t, []string{"go", "postgres"}, ctx.Skills)
	assert.Equal(t, "authentic", ctx.AuthenticityScore)
	assert.Equal(t, 0.7, ctx.StressLevel)
	assert.Equal(t, []string{"understaffing"}, ctx.RedFlagCategories)
	assert.Equal(t, []string{"on-call rotation"}, ctx.ImplicitRequirements)
}

func TestBuildPriorContext_NilArtifactsYieldEmptyContext(t *testing.T) {
	trimmer := limits.NewContextTrimmer(nil)
	ctx := buildPriorContext(trimmer, nil, nil)
	assert.Equal(t, "(no prior-tier context)", ctx.render())
}
