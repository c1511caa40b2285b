// Package store defines the Queue & State Store Adapter (C7): the narrow
// persistence boundary consumed by the Tier Analyzer (C5) and Scheduler
// (C6), and implemented here in-memory (tests, single-process operation)
// and against Postgres (internal/pgstore, C14).
//
// Grounded on original_source/modules/ai_job_description_analysis/
// tier1_analyzer.py's _get_job_data/_store_tier1_results and
// get_unanalyzed_jobs queries.
package store

import (
	"context"
	"errors"

	"github.com/merlin2/tieranalysis/internal/models"
)

// ErrNotFound is returned by LoadJob and LoadTierArtifact when the
// requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// CompletionUpdate is the per-tier metadata recorded alongside a
// completion flag.
type CompletionUpdate struct {
	TokensUsed     int
	ModelUsed      string
	ResponseTimeMS int
}

// Store is the C7 contract. RecordTierCompletion and PersistAnalysisArtifact
// for the same job must be atomic together: on failure either both take
// effect or neither (spec §4.7).
type Store interface {
	JobsNeedingTier(ctx context.Context, k models.Tier, limit int) ([]string, error)
	LoadJob(ctx context.Context, id string) (models.Job, error)
	LoadTierArtifact(ctx context.Context, id string, k models.Tier) (*models.AnalysisArtifact, error)
	RecordTierCompletion(ctx context.Context, id string, k models.Tier, update CompletionUpdate, artifact models.AnalysisArtifact) error
	ProcessingStatus(ctx context.Context) (models.ProcessingStatus, error)
	TierStatistics(ctx context.Context, k models.Tier) (models.TierStatistics, error)
}
