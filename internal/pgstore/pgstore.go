// Package pgstore implements the Postgres adapter for the Store
// interface (C14) and doubles as the eventlog.DetectionMirror for C8's
// relational mirror of security incidents.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// tier1_analyzer.py::_get_job_data (job lookup join), the tier-pending
// query in the same file, and api_routes_tiered.py::get_tier_statistics
// (the tier_1/2/3_completed FILTER(WHERE ...) aggregate shape).
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merlin2/tieranalysis/internal/eventlog"
	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/store"
)

// PostgresStore is a store.Store backed by a job_analysis_tiers
// relational schema mirroring the original's normalized tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// JobsNeedingTier mirrors tier1_analyzer.py's get_unanalyzed_job_ids:
// jobs whose prior tier is satisfied and whose own tier column is
// NULL/FALSE, oldest-first.
func (s *PostgresStore) JobsNeedingTier(ctx context.Context, k models.Tier, limit int) ([]string, error) {
	column, priorColumn := tierColumn(k), priorTierColumn(k)

	query := fmt.Sprintf(`
		SELECT j.id
		FROM jobs j
		LEFT JOIN job_analysis_tiers jat ON j.id = jat.job_id
		WHERE (%s IS NULL OR %s = FALSE)%s
		ORDER BY j.created_at ASC`, column, column, priorCondition(priorColumn))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgstore: jobs needing tier: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func tierColumn(k models.Tier) string {
	switch k {
	case models.Tier1:
		return "jat.tier_1_completed"
	case models.Tier2:
		return "jat.tier_2_completed"
	default:
		return "jat.tier_3_completed"
	}
}

func priorTierColumn(k models.Tier) string {
	switch k {
	case models.Tier2:
		return "jat.tier_1_completed"
	case models.Tier3:
		return "jat.tier_2_completed"
	default:
		return ""
	}
}

func priorCondition(priorColumn string) string {
	if priorColumn == "" {
		return ""
	}
	return fmt.Sprintf(" AND %s = TRUE", priorColumn)
}

// LoadJob mirrors tier1_analyzer.py's _get_job_data query.
func (s *PostgresStore) LoadJob(ctx context.Context, id string) (models.Job, error) {
	const query = `
		SELECT j.id, j.job_title, j.job_description, c.name
		FROM jobs j
		LEFT JOIN companies c ON j.company_id = c.id
		WHERE j.id = $1`

	var job models.Job
	var company *string
	err := s.pool.QueryRow(ctx, query, id).Scan(&job.ID, &job.Title, &job.Description, &company)
	if err == pgx.ErrNoRows {
		return models.Job{}, store.ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("pgstore: load job: %w", err)
	}
	if company != nil {
		job.Company = *company
	}
	return job, nil
}

// LoadTierArtifact reads the JSONB blob persisted by RecordTierCompletion
// for job id / tier k, or nil if that tier has not completed.
func (s *PostgresStore) LoadTierArtifact(ctx context.Context, id string, k models.Tier) (*models.AnalysisArtifact, error) {
	column := artifactColumn(k)
	query := fmt.Sprintf(`SELECT %s FROM job_analysis_tiers WHERE job_id = $1`, column)

	var raw []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&raw)
	if err == pgx.ErrNoRows || raw == nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: load tier artifact: %w", err)
	}

	var artifact models.AnalysisArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("pgstore: decode tier artifact: %w", err)
	}
	return &artifact, nil
}

func artifactColumn(k models.Tier) string {
	switch k {
	case models.Tier1:
		return "tier_1_artifact"
	case models.Tier2:
		return "tier_2_artifact"
	default:
		return "tier_3_artifact"
	}
}

// RecordTierCompletion atomically flips the tier's completed flag,
// stores its timing/token metadata, and persists the artifact JSONB —
// all inside one transaction, satisfying the Store interface's
// atomicity requirement.
func (s *PostgresStore) RecordTierCompletion(ctx context.Context, id string, k models.Tier, update store.CompletionUpdate, artifact models.AnalysisArtifact) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("pgstore: encode artifact: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	column, artifactCol := tierColumn(k), artifactColumn(k)
	query := fmt.Sprintf(`
		INSERT INTO job_analysis_tiers (job_id, %s, %s, tokens_used, model_used, response_time_ms, completed_at)
		VALUES ($1, TRUE, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			%s = TRUE, %s = EXCLUDED.%s, tokens_used = job_analysis_tiers.tokens_used + EXCLUDED.tokens_used,
			model_used = EXCLUDED.model_used, response_time_ms = EXCLUDED.response_time_ms, completed_at = EXCLUDED.completed_at`,
		column, artifactCol, column, artifactCol, artifactCol)

	_, err = tx.Exec(ctx, query, id, payload, update.TokensUsed, update.ModelUsed, update.ResponseTimeMS, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pgstore: record tier completion: %w", err)
	}

	return tx.Commit(ctx)
}

// ProcessingStatus mirrors sequential_batch_scheduler.py's
// get_processing_status aggregate.
func (s *PostgresStore) ProcessingStatus(ctx context.Context) (models.ProcessingStatus, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE jat.tier_1_completed IS NULL OR jat.tier_1_completed = FALSE),
			COUNT(*) FILTER (WHERE jat.tier_1_completed = TRUE AND (jat.tier_2_completed IS NULL OR jat.tier_2_completed = FALSE)),
			COUNT(*) FILTER (WHERE jat.tier_2_completed = TRUE AND (jat.tier_3_completed IS NULL OR jat.tier_3_completed = FALSE)),
			COUNT(*) FILTER (WHERE jat.tier_3_completed = TRUE)
		FROM jobs j
		LEFT JOIN job_analysis_tiers jat ON j.id = jat.job_id`

	var status models.ProcessingStatus
	err := s.pool.QueryRow(ctx, query).Scan(&status.PendingTier1, &status.PendingTier2, &status.PendingTier3, &status.FullyAnalyzed)
	if err != nil {
		return models.ProcessingStatus{}, fmt.Errorf("pgstore: processing status: %w", err)
	}
	status.CurrentTime = time.Now().UTC()
	return status, nil
}

// TierStatistics mirrors api_routes_tiered.py::get_tier_statistics's
// per-tier aggregate query.
func (s *PostgresStore) TierStatistics(ctx context.Context, k models.Tier) (models.TierStatistics, error) {
	column := tierColumn(k)
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE %s = TRUE),
			COALESCE(AVG(tokens_used) FILTER (WHERE %s = TRUE), 0),
			COALESCE(AVG(response_time_ms) FILTER (WHERE %s = TRUE), 0),
			COALESCE(COUNT(*) FILTER (WHERE %s = TRUE)::FLOAT / NULLIF(COUNT(*), 0), 0)
		FROM job_analysis_tiers`, column, column, column, column)

	var stats models.TierStatistics
	err := s.pool.QueryRow(ctx, query).Scan(&stats.TotalAnalyzed, &stats.AvgTokens, &stats.AvgResponseTimeMS, &stats.SuccessRate)
	if err != nil {
		return models.TierStatistics{}, fmt.Errorf("pgstore: tier statistics: %w", err)
	}
	return stats, nil
}

// InsertDetection implements eventlog.DetectionMirror: a best-effort
// insert into security_detections, independent of the JSONL audit
// trail which always succeeds regardless of this call's outcome.
func (s *PostgresStore) InsertDetection(detectionType string, severity eventlog.Severity, pattern, sample string, metadata map[string]any, actionTaken string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("pgstore: encode detection metadata: %w", err)
	}

	const query = `
		INSERT INTO security_detections (detection_type, severity, pattern, sample, metadata, action_taken, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(context.Background(), query, detectionType, string(severity), pattern, sample, meta, actionTaken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pgstore: insert detection: %w", err)
	}
	return nil
}

var (
	_ store.Store              = (*PostgresStore)(nil)
	_ eventlog.DetectionMirror = (*PostgresStore)(nil)
)
