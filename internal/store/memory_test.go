package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merlin2/tieranalysis/internal/models"
)

func TestMemoryStore_TierProgressionInvariant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore([]models.Job{{ID: "job-1", Title: "Engineer"}})

	pending1, err := s.JobsNeedingTier(ctx, models.Tier1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, pending1)

	pending2, err := s.JobsNeedingTier(ctx, models.Tier2, 10)
	require.NoError(t, err)
	assert.Empty(t, pending2, "tier2 must not be pending before tier1 completes")

	err = s.RecordTierCompletion(ctx, "job-1", models.Tier1, CompletionUpdate{TokensUsed: 500, ModelUsed: "gemini-lite"}, models.AnalysisArtifact{JobID: "job-1", TierKind: models.Tier1})
	require.NoError(t, err)

	pending1After, err := s.JobsNeedingTier(ctx, models.Tier1, 10)
	require.NoError(t, err)
	assert.Empty(t, pending1After)

	pending2After, err := s.JobsNeedingTier(ctx, models.Tier2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, pending2After)
}

func TestMemoryStore_LoadTierArtifactNilBeforeCompletion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore([]models.Job{{ID: "job-1"}})

	artifact, err := s.LoadTierArtifact(ctx, "job-1", models.Tier1)
	require.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestMemoryStore_LoadJobNotFound(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.LoadJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ProcessingStatusBucketsByFurthestCompletedTier(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore([]models.Job{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	require.NoError(t, s.RecordTierCompletion(ctx, "a", models.Tier1, CompletionUpdate{}, models.AnalysisArtifact{}))
	require.NoError(t, s.RecordTierCompletion(ctx, "b", models.Tier1, CompletionUpdate{}, models.AnalysisArtifact{}))
	require.NoError(t, s.RecordTierCompletion(ctx, "b", models.Tier2, CompletionUpdate{}, models.AnalysisArtifact{}))

	status, err := s.ProcessingStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PendingTier1) // c
	assert.Equal(t, 1, status.PendingTier2) // a
	assert.Equal(t, 1, status.PendingTier3) // b
	assert.Equal(t, 0, status.FullyAnalyzed)
}

func TestMemoryStore_TierStatisticsAveragesCompletedOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore([]models.Job{{ID: "a"}, {ID: "b"}})

	require.NoError(t, s.RecordTierCompletion(ctx, "a", models.Tier1, CompletionUpdate{TokensUsed: 100, ResponseTimeMS: 200}, models.AnalysisArtifact{}))
	require.NoError(t, s.RecordTierCompletion(ctx, "b", models.Tier1, CompletionUpdate{TokensUsed: 300, ResponseTimeMS: 400}, models.AnalysisArtifact{}))

	stats, err := s.TierStatistics(ctx, models.Tier1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAnalyzed)
	assert.Equal(t, 200.0, stats.AvgTokens)
	assert.Equal(t, 300.0, stats.AvgResponseTimeMS)
	assert.Equal(t, 1.0, stats.SuccessRate)
}
