package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/store"
	"github.com/merlin2/tieranalysis/internal/tieranalyzer"
)

func TestActiveTier(t *testing.T) {
	windows := DefaultWindows()

	at := func(h, m int) time.Time {
		return time.Date(2026, 7, 31, h, m, 0, 0, time.Local)
	}

	tier, ok := ActiveTier(at(2, 30), windows)
	require.True(t, ok)
	assert.Equal(t, models.Tier1, tier)

	tier, ok = ActiveTier(at(3, 15), windows)
	require.True(t, ok)
	assert.Equal(t, models.Tier2, tier)

	tier, ok = ActiveTier(at(5, 0), windows)
	require.True(t, ok)
	assert.Equal(t, models.Tier3, tier)

	_, ok = ActiveTier(at(12, 0), windows)
	assert.False(t, ok, "noon falls in no tier's window")

	tier, ok = ActiveTier(at(3, 0), windows)
	require.True(t, ok)
	assert.Equal(t, models.Tier2, tier, "window end is exclusive of the next tier's start, inclusive of its own")
}

// fakeRunner simulates an Analyzer: each call drains up to `limit` jobs
// from a fixed pool, marking them succeeded, until the pool is empty.
type fakeRunner struct {
	remaining int
	calls     int
}

func (f *fakeRunner) RunBatch(_ context.Context, limit int) (*tieranalyzer.BatchResult, error) {
	f.calls++
	if f.remaining == 0 {
		return &tieranalyzer.BatchResult{}, nil
	}
	n := limit
	if n > f.remaining {
		n = f.remaining
	}
	f.remaining -= n
	succeeded := make([]string, n)
	for i := range succeeded {
		succeeded[i] = "job"
	}
	return &tieranalyzer.BatchResult{Attempted: n, Succeeded: succeeded, TotalTokens: n * 100, ResponseTimeMS: 50}, nil
}

func TestScheduler_RunTierBatch_DrainsAllPendingAcrossMultipleSubBatches(t *testing.T) {
	jobs := make([]models.Job, 30)
	for i := range jobs {
		jobs[i] = models.Job{ID: string(rune('a' + i))}
	}
	st := store.NewMemoryStore(jobs)

	runner := &fakeRunner{remaining: 30}
	catalog := []models.ModelSpec{{ID: "m", Tier: models.ModelTierLite, Priority: 1, MaxOutputTokens: 8192}}

	s := New(map[models.Tier]Runner{models.Tier1: runner}, st, catalog)
	s.MinBatchGap = 0
	s.Sleep = func(context.Context, time.Duration) {} // no real sleeping in tests

	stats, err := s.RunTierBatch(t.Context(), models.Tier1, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.TotalJobs)
	assert.Equal(t, 30, stats.Successful)
	assert.Greater(t, runner.calls, 1, "30 jobs should require more than one sub-batch at the tier1 ideal batch size of 10")
}

func TestScheduler_RunTierBatch_RespectsMaxJobsCap(t *testing.T) {
	jobs := make([]models.Job, 30)
	for i := range jobs {
		jobs[i] = models.Job{ID: string(rune('a' + i))}
	}
	st := store.NewMemoryStore(jobs)

	runner := &fakeRunner{remaining: 30}
	catalog := []models.ModelSpec{{ID: "m", Priority: 1, MaxOutputTokens: 8192}}

	s := New(map[models.Tier]Runner{models.Tier1: runner}, st, catalog)
	s.Sleep = func(context.Context, time.Duration) {}

	stats, err := s.RunTierBatch(t.Context(), models.Tier1, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalJobs)
}

func TestScheduler_RunFullSequentialBatch_RunsAllThreeTiersRegardlessOfWindow(t *testing.T) {
	st := store.NewMemoryStore(nil)
	catalog := []models.ModelSpec{{ID: "m", Priority: 1, MaxOutputTokens: 8192}}
	s := New(map[models.Tier]Runner{
		models.Tier1: &fakeRunner{},
		models.Tier2: &fakeRunner{},
		models.Tier3: &fakeRunner{},
	}, st, catalog)
	s.Sleep = func(context.Context, time.Duration) {}

	stats, err := s.RunFullSequentialBatch(t.Context())
	require.NoError(t, err)
	assert.Len(t, stats, 3)
}

func TestScheduler_RunContinuousScheduler_StopsOnContextCancel(t *testing.T) {
	st := store.NewMemoryStore(nil)
	catalog := []models.ModelSpec{{ID: "m", Priority: 1, MaxOutputTokens: 8192}}
	s := New(map[models.Tier]Runner{models.Tier1: &fakeRunner{}}, st, catalog)

	ctx, cancel := context.WithCancel(context.Background())
	s.Sleep = func(ctx context.Context, d time.Duration) {
		cancel() // cancel on the first sleep so the loop exits promptly
	}

	done := make(chan struct{})
	go func() {
		s.RunContinuousScheduler(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunContinuousScheduler did not stop after context cancellation")
	}
}
