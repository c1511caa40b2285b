package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/scheduler"
	"github.com/merlin2/tieranalysis/internal/store"
	"github.com/merlin2/tieranalysis/internal/tieranalyzer"
)

// fakeRunner drains a fixed pool of jobs once per call, then reports
// nothing attempted, so Scheduler.RunTierBatch's sub-batch loop
// terminates after a single real batch.
type fakeRunner struct {
	remaining int
}

func (f *fakeRunner) RunBatch(_ context.Context, limit int) (*tieranalyzer.BatchResult, error) {
	if f.remaining == 0 {
		return &tieranalyzer.BatchResult{}, nil
	}
	n := f.remaining
	if limit > 0 && limit < n {
		n = limit
	}
	f.remaining -= n
	succeeded := make([]string, n)
	for i := range succeeded {
		succeeded[i] = "job-1"
	}
	return &tieranalyzer.BatchResult{Attempted: n, Succeeded: succeeded, TotalTokens: n * 50, ResponseTimeMS: 20}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	jobs := []models.Job{{ID: "job-1", Title: "Engineer", Company: "Acme", Description: "Build."}}
	st := store.NewMemoryStore(jobs)
	catalog := []models.ModelSpec{{ID: "m", Priority: 1, MaxOutputTokens: 8192}}

	sched := scheduler.New(map[models.Tier]scheduler.Runner{
		models.Tier1: &fakeRunner{remaining: 1},
		models.Tier2: &fakeRunner{},
		models.Tier3: &fakeRunner{},
	}, st, catalog)
	sched.MinBatchGap = 0
	sched.Sleep = func(context.Context, time.Duration) {}

	return &Server{Scheduler: sched, Store: st, APIKey: "secret"}
}

func TestServer_Health_NoAuthRequired(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/analyze/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Status_RequiresAPIKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/analyze/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestServer_Status_WithValidKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/analyze/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["pending_tier1"])
}

func TestServer_TierStats_WithValidKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/analyze/tier-stats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "tier1_stats")
	assert.Contains(t, body, "tier2_stats")
	assert.Contains(t, body, "tier3_stats")
}

func TestServer_Tier1Batch_RunsAndReportsResults(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"max_jobs": 5})
	req := httptest.NewRequest("POST", "/api/analyze/tier1", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp tierBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Tier)
	assert.Equal(t, 1, resp.Successful)
}

func TestServer_Tier1Batch_WrongKeyRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/analyze/tier1", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestServer_SequentialBatch_RunsAllThreeTiers(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/analyze/sequential-batch", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "full_sequential_batch", body["execution_type"])
	assert.Contains(t, body, "summary")
}
