package pgstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/merlin2/tieranalysis/internal/models"
)

func TestTierColumn(t *testing.T) {
	assert.Equal(t, "jat.tier_1_completed", tierColumn(models.Tier1))
	assert.Equal(t, "jat.tier_2_completed", tierColumn(models.Tier2))
	assert.Equal(t, "jat.tier_3_completed", tierColumn(models.Tier3))
}

func TestPriorTierColumn(t *testing.T) {
	assert.Empty(t, priorTierColumn(models.Tier1))
	assert.Equal(t, "jat.tier_1_completed", priorTierColumn(models.Tier2))
	assert.Equal(t, "jat.tier_2_completed", priorTierColumn(models.Tier3))
}

func TestPriorCondition(t *testing.T) {
	assert.Empty(t, priorCondition(""))
	assert.Equal(t, " AND jat.tier_1_completed = TRUE", priorCondition("jat.tier_1_completed"))
}

func TestArtifactColumn(t *testing.T) {
	assert.Equal(t, "tier_1_artifact", artifactColumn(models.Tier1))
	assert.Equal(t, "tier_2_artifact", artifactColumn(models.Tier2))
	assert.Equal(t, "tier_3_artifact", artifactColumn(models.Tier3))
}
