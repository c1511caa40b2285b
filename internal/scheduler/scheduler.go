// Package scheduler implements the Sequential Scheduler (C6): fixed
// local-time windows per tier, full-sequential mode, and a continuous
// loop that is resilient to per-iteration failures.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// sequential_batch_scheduler.py.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/merlin2/tieranalysis/internal/metrics"
	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/planner"
	"github.com/merlin2/tieranalysis/internal/store"
	"github.com/merlin2/tieranalysis/internal/tieranalyzer"
)

// Window is a [Start, End) local-time-of-day range.
type Window struct {
	Start time.Duration // offset from local midnight
	End   time.Duration
}

// DefaultWindows are the fixed tier windows from spec §4.6.
func DefaultWindows() map[models.Tier]Window {
	return map[models.Tier]Window{
		models.Tier1: {Start: 2 * time.Hour, End: 3 * time.Hour},
		models.Tier2: {Start: 3 * time.Hour, End: 4*time.Hour + 30*time.Minute},
		models.Tier3: {Start: 4*time.Hour + 30*time.Minute, End: 6 * time.Hour},
	}
}

// ActiveTier returns the tier whose window contains now's local
// time-of-day, or ok=false if now falls in none of them.
func ActiveTier(now time.Time, windows map[models.Tier]Window) (tier models.Tier, ok bool) {
	local := now.Local()
	offset := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute + time.Duration(local.Second())*time.Second

	tiers := []models.Tier{models.Tier1, models.Tier2, models.Tier3}
	for _, t := range tiers {
		w, defined := windows[t]
		if !defined {
			continue
		}
		if offset >= w.Start && offset < w.End {
			return t, true
		}
	}
	return 0, false
}

// BatchStats aggregates the outcome of one run_tier_k_batch invocation.
type BatchStats struct {
	TotalJobs         int
	Successful        int
	Failed            int
	TotalTokens       int
	ResponseTimesMS   []int
	AvgResponseTimeMS float64
	P95ResponseTimeMS float64
	JobsPerSecond     float64
	Duration          time.Duration
}

// Runner is the subset of tieranalyzer.Analyzer the scheduler depends
// on, narrowed so tests can substitute a fake.
type Runner interface {
	RunBatch(ctx context.Context, limit int) (*tieranalyzer.BatchResult, error)
}

// Scheduler drives the three Tier Analyzers through their local-time
// windows. Single-flighted by construction: callers must not invoke
// RunTierBatch concurrently for the same Scheduler.
type Scheduler struct {
	Analyzers   map[models.Tier]Runner
	Store       store.Store
	Catalog     []models.ModelSpec
	Windows     map[models.Tier]Window
	MinBatchGap time.Duration
	Sleep       func(context.Context, time.Duration)

	// OnBatchComplete, if set, is invoked after every RunTierBatch call
	// with the tier and its final stats — the Live Monitor Hub's hook
	// into the scheduler without the scheduler importing it directly.
	OnBatchComplete func(tier models.Tier, stats BatchStats)
}

// New builds a Scheduler with spec-default windows and a 1s minimum
// inter-batch gap.
func New(analyzers map[models.Tier]Runner, st store.Store, catalog []models.ModelSpec) *Scheduler {
	return &Scheduler{
		Analyzers:   analyzers,
		Store:       st,
		Catalog:     catalog,
		Windows:     DefaultWindows(),
		MinBatchGap: time.Second,
		Sleep:       defaultSleep,
	}
}

func defaultSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RunTierBatch fetches up to maxJobs pending jobs for tier k (0 = no
// cap), splits them into C2-sized batches, and runs each through the
// tier's Analyzer, sleeping at least MinBatchGap between batches to
// respect the per-minute rate cap.
func (s *Scheduler) RunTierBatch(ctx context.Context, tier models.Tier, maxJobs int) (BatchStats, error) {
	analyzer, ok := s.Analyzers[tier]
	if !ok {
		return BatchStats{}, fmt.Errorf("scheduler: no analyzer registered for %s", tier)
	}

	stats := BatchStats{}
	start := time.Now()
	remaining := maxJobs

	for {
		if err := ctx.Err(); err != nil {
			return finalize(stats, start), err
		}

		size, err := s.batchSize(ctx, tier)
		if err != nil {
			return finalize(stats, start), err
		}
		if size <= 0 {
			break // nothing pending
		}
		if maxJobs > 0 {
			if remaining <= 0 {
				break
			}
			if size > remaining {
				size = remaining
			}
		}

		result, err := analyzer.RunBatch(ctx, size)
		if err != nil {
			return finalize(stats, start), err
		}
		if result.Attempted == 0 {
			break
		}

		stats.TotalJobs += result.Attempted
		stats.Successful += len(result.Succeeded)
		stats.Failed += len(result.Failed)
		stats.TotalTokens += result.TotalTokens
		if result.ResponseTimeMS > 0 {
			stats.ResponseTimesMS = append(stats.ResponseTimesMS, result.ResponseTimeMS)
		}

		if maxJobs > 0 {
			remaining -= result.Attempted
		}

		gap := s.MinBatchGap
		if gap < time.Second {
			gap = time.Second
		}
		s.sleep(ctx, gap)
	}

	finalStats := finalize(stats, start)
	metrics.TierBatchDurationSeconds.WithLabelValues(tier.String()).Observe(finalStats.Duration.Seconds())
	if s.OnBatchComplete != nil {
		s.OnBatchComplete(tier, finalStats)
	}
	return finalStats, nil
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(ctx, d)
		return
	}
	defaultSleep(ctx, d)
}

// batchSize asks C2 for the optimal batch size given however many jobs
// are currently pending for tier.
func (s *Scheduler) batchSize(ctx context.Context, tier models.Tier) (int, error) {
	pending, err := s.Store.JobsNeedingTier(ctx, tier, 0)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	selection, err := planner.SelectModel(planner.SelectionInput{Catalog: s.Catalog, Tier: tier, JobCount: len(pending)})
	if err != nil {
		return 0, err
	}

	result := planner.ComputeBatchSize(planner.BatchContext{
		TotalJobs: len(pending),
		Tier:      tier,
		Model:     selection.Model,
	})
	return result.Optimal, nil
}

func finalize(stats BatchStats, start time.Time) BatchStats {
	stats.Duration = time.Since(start)
	if len(stats.ResponseTimesMS) > 0 {
		sum := 0
		sorted := make([]int, len(stats.ResponseTimesMS))
		copy(sorted, stats.ResponseTimesMS)
		sort.Ints(sorted)
		for _, v := range sorted {
			sum += v
		}
		stats.AvgResponseTimeMS = float64(sum) / float64(len(sorted))
		idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		stats.P95ResponseTimeMS = float64(sorted[idx])
	}
	if stats.Duration > 0 {
		stats.JobsPerSecond = float64(stats.TotalJobs) / stats.Duration.Seconds()
	}
	return stats
}

// RunScheduledTier runs active_tier(now)'s batch to exhaustion, or does
// nothing if no tier's window is currently active.
func (s *Scheduler) RunScheduledTier(ctx context.Context, now time.Time) (models.Tier, BatchStats, bool, error) {
	tier, ok := ActiveTier(now, s.Windows)
	if !ok {
		return 0, BatchStats{}, false, nil
	}
	stats, err := s.RunTierBatch(ctx, tier, 0)
	return tier, stats, true, err
}

// RunFullSequentialBatch runs T1, then T2, then T3 to exhaustion, with no
// window gating — used for manual/full-catchup runs.
func (s *Scheduler) RunFullSequentialBatch(ctx context.Context) (map[models.Tier]BatchStats, error) {
	out := make(map[models.Tier]BatchStats, 3)
	for _, tier := range []models.Tier{models.Tier1, models.Tier2, models.Tier3} {
		stats, err := s.RunTierBatch(ctx, tier, 0)
		out[tier] = stats
		if err != nil {
			return out, fmt.Errorf("scheduler: full sequential batch failed at %s: %w", tier, err)
		}
	}
	return out, nil
}

// RunContinuousScheduler loops until ctx is cancelled: sleep, check the
// active window, dispatch. Any single iteration's error is logged and
// the loop continues — per spec §4.6, the scheduler must never die from
// one bad batch.
func (s *Scheduler) RunContinuousScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		if ctx.Err() != nil {
			return
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("scheduler: recovered from panic in scheduled tick, continuing")
				}
			}()

			tier, stats, ran, err := s.RunScheduledTier(ctx, time.Now())
			if err != nil {
				log.Error().Err(err).Str("tier", tier.String()).Msg("scheduler: tick failed")
				return
			}
			if ran {
				log.Info().Str("tier", tier.String()).Int("total_jobs", stats.TotalJobs).
					Int("successful", stats.Successful).Int("failed", stats.Failed).
					Msg("scheduler: tick complete")
			}
		}()

		s.sleep(ctx, interval)
	}
}
