package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierString(t *testing.T) {
	assert.Equal(t, "tier1", Tier1.String())
	assert.Equal(t, "tier2", Tier2.String())
	assert.Equal(t, "tier3", Tier3.String())
	assert.Equal(t, "unknown", Tier(0).String())
}

func TestTierState_PriorTierCompleted(t *testing.T) {
	s := &TierState{}
	assert.True(t, s.PriorTierCompleted(Tier1))
	assert.False(t, s.PriorTierCompleted(Tier2))

	s.Tier1.Completed = true
	assert.True(t, s.PriorTierCompleted(Tier2))
	assert.False(t, s.PriorTierCompleted(Tier3))
}

func TestDefaultCatalog_PriorityOrderAndShape(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Len(t, catalog, 3)
	for _, m := range catalog {
		assert.NotEmpty(t, m.ID)
		assert.Positive(t, m.MaxOutputTokens)
		assert.Positive(t, m.RPMLimit)
	}
}

func TestUsageLedger_DailyUtilization(t *testing.T) {
	l := UsageLedger{DailyTokens: 500_000}
	assert.InDelta(t, 0.25, l.DailyUtilization(2_000_000), 0.0001)
	assert.Equal(t, 0.0, l.DailyUtilization(0))
}
