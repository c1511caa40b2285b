package store

import (
	"context"
	"sync"
	"time"

	"github.com/merlin2/tieranalysis/internal/models"
)

// MemoryStore is an in-process Store backed by RWMutex-guarded maps.
// Intended for tests and single-process demo runs; RecordTierCompletion's
// atomicity requirement is trivially satisfied by holding the write lock
// across both the TierState and artifact updates.
//
// Grounded on the RWMutex-guarded-map idiom the teacher used for its
// request cache (internal/storage/memory_storage.go).
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]models.Job
	states    map[string]*models.TierState
	artifacts map[string]map[models.Tier]models.AnalysisArtifact
	order     []string // job IDs in insertion order, for deterministic pending scans
}

// NewMemoryStore builds an empty store seeded with the given jobs.
func NewMemoryStore(jobs []models.Job) *MemoryStore {
	s := &MemoryStore{
		jobs:      make(map[string]models.Job, len(jobs)),
		states:    make(map[string]*models.TierState, len(jobs)),
		artifacts: make(map[string]map[models.Tier]models.AnalysisArtifact, len(jobs)),
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
		s.states[j.ID] = &models.TierState{JobID: j.ID}
		s.artifacts[j.ID] = make(map[models.Tier]models.AnalysisArtifact)
		s.order = append(s.order, j.ID)
	}
	return s
}

// AddJob registers a new job with the store (used by the control API's
// job-intake path, where external collaborators hand the pipeline new
// work).
func (s *MemoryStore) AddJob(j models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; !exists {
		s.order = append(s.order, j.ID)
	}
	s.jobs[j.ID] = j
	if _, ok := s.states[j.ID]; !ok {
		s.states[j.ID] = &models.TierState{JobID: j.ID}
		s.artifacts[j.ID] = make(map[models.Tier]models.AnalysisArtifact)
	}
}

func (s *MemoryStore) JobsNeedingTier(_ context.Context, k models.Tier, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, id := range s.order {
		state := s.states[id]
		if state.PriorTierCompleted(k) && !state.Completed(k) {
			out = append(out, id)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadJob(_ context.Context, id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return j, nil
}

func (s *MemoryStore) LoadTierArtifact(_ context.Context, id string, k models.Tier) (*models.AnalysisArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byTier, ok := s.artifacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a, ok := byTier[k]
	if !ok {
		return nil, nil // job exists but this tier hasn't run yet
	}
	cp := a
	return &cp, nil
}

func (s *MemoryStore) RecordTierCompletion(_ context.Context, id string, k models.Tier, update CompletionUpdate, artifact models.AnalysisArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[id]
	if !ok {
		return ErrNotFound
	}

	progress := models.TierProgress{
		Completed:      true,
		CompletedAt:    time.Now().UTC(),
		TokensUsed:     update.TokensUsed,
		ModelUsed:      update.ModelUsed,
		ResponseTimeMS: update.ResponseTimeMS,
	}
	switch k {
	case models.Tier1:
		state.Tier1 = progress
	case models.Tier2:
		state.Tier2 = progress
	case models.Tier3:
		state.Tier3 = progress
	}

	if s.artifacts[id] == nil {
		s.artifacts[id] = make(map[models.Tier]models.AnalysisArtifact)
	}
	s.artifacts[id][k] = artifact
	return nil
}

func (s *MemoryStore) ProcessingStatus(_ context.Context) (models.ProcessingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := models.ProcessingStatus{CurrentTime: time.Now().UTC()}
	for _, id := range s.order {
		state := s.states[id]
		switch {
		case state.Completed(models.Tier3):
			status.FullyAnalyzed++
		case state.Completed(models.Tier2):
			status.PendingTier3++
		case state.Completed(models.Tier1):
			status.PendingTier2++
		default:
			status.PendingTier1++
		}
	}
	return status, nil
}

func (s *MemoryStore) TierStatistics(_ context.Context, k models.Tier) (models.TierStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.TierStatistics
	var totalTokens, totalResponseMS, successes int
	for _, id := range s.order {
		state := s.states[id]
		progress := progressFor(state, k)
		if !state.PriorTierCompleted(k) {
			continue
		}
		if progress.Completed {
			stats.TotalAnalyzed++
			totalTokens += progress.TokensUsed
			totalResponseMS += progress.ResponseTimeMS
			successes++
		}
	}
	if stats.TotalAnalyzed > 0 {
		stats.AvgTokens = float64(totalTokens) / float64(stats.TotalAnalyzed)
		stats.AvgResponseTimeMS = float64(totalResponseMS) / float64(stats.TotalAnalyzed)
		stats.SuccessRate = float64(successes) / float64(stats.TotalAnalyzed)
	}
	return stats, nil
}

func progressFor(state *models.TierState, k models.Tier) models.TierProgress {
	switch k {
	case models.Tier1:
		return state.Tier1
	case models.Tier2:
		return state.Tier2
	case models.Tier3:
		return state.Tier3
	default:
		return models.TierProgress{}
	}
}

var _ Store = (*MemoryStore)(nil)
