package tieranalyzer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merlin2/tieranalysis/internal/eventlog"
	"github.com/merlin2/tieranalysis/internal/limits"
	"github.com/merlin2/tieranalysis/internal/llmclient"
	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/promptreg"
	"github.com/merlin2/tieranalysis/internal/store"
)

var extractToken = regexp.MustCompile(`SEC_TOKEN_[A-Za-z0-9]{32}`)

// fakeGeminiServer echoes back whatever security token it finds embedded
// in the request prompt, so the validator's token round-trip check
// passes without the test needing to predict a random token in advance.
func fakeGeminiServer(t *testing.T, jobID string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var decoded struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.Unmarshal(body, &decoded))
		prompt := decoded.Contents[0].Parts[0].Text

		token := extractToken.FindString(prompt)
		require.NotEmpty(t, token, "prompt must contain an embedded security token")

		analysis := map[string]any{
			"security_token": token,
			"analysis_results": []map[string]any{
				{
					"job_id": jobID,
					"authenticity_check": map[string]any{
						"title_matches_role": true, "is_authentic": true, "notes": "fine",
					},
					"classification": map[string]any{
						"industry": "software", "sub_industry": "devtools",
						"job_function": "engineering", "seniority_level": "senior",
					},
					"structured_data": map[string]any{
						"skills": []string{"go", "postgres"},
						"ats_optimization": map[string]any{
							"keywords":        []map[string]any{{"term": "golang", "keyword_category": "language"}},
							"optimized_score": 0.9,
						},
					},
				},
			},
		}
		text, err := json.Marshal(analysis)
		require.NoError(t, err)

		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": string(text)}}}},
			},
			"usageMetadata": map[string]any{"totalTokenCount": 321},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestAnalyzer_RunBatch_EndToEndTier1(t *testing.T) {
	server := fakeGeminiServer(t, "job-1")
	defer server.Close()

	st := store.NewMemoryStore([]models.Job{{ID: "job-1", Title: "Senior Go Engineer", Company: "Acme", Description: "Build things."}})
	sink, err := eventlog.NewJSONLSink(filepath.Join(t.TempDir(), "storage"), nil)
	require.NoError(t, err)
	registry := promptreg.New(filepath.Join(t.TempDir(), "prompt_registry.json"), sink)

	catalog := []models.ModelSpec{{ID: "gemini-1.5-flash", Tier: models.ModelTierLite, Priority: 1, MaxOutputTokens: 8192, RPMLimit: 15}}
	client := llmclient.NewClient(llmclient.Config{APIKey: "test-key", BaseURL: server.URL}, catalog, sink)

	analyzer := New(nil, models.Tier1, st, registry, client, sink, limits.NewContextTrimmer(nil), catalog, 1_000_000)

	result, err := analyzer.RunBatch(t.Context(), 10)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, []string{"job-1"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Equal(t, "gemini-1.5-flash", result.ModelUsed)

	artifact, err := st.LoadTierArtifact(t.Context(), "job-1", models.Tier1)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.True(t, artifact.Tier1.AuthenticityCheck.IsAuthentic)

	pending, err := st.JobsNeedingTier(t.Context(), models.Tier1, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "job-1 must no longer be pending for tier1 after a successful run")
}

func TestAnalyzer_RunBatch_NoPendingJobsIsANoOp(t *testing.T) {
	st := store.NewMemoryStore(nil)
	sink, err := eventlog.NewJSONLSink(filepath.Join(t.TempDir(), "storage"), nil)
	require.NoError(t, err)
	registry := promptreg.New(filepath.Join(t.TempDir(), "prompt_registry.json"), sink)
	catalog := []models.ModelSpec{{ID: "gemini-1.5-flash", Priority: 1, MaxOutputTokens: 8192}}
	client := llmclient.NewClient(llmclient.Config{APIKey: "k"}, catalog, sink)

	analyzer := New(nil, models.Tier1, st, registry, client, sink, limits.NewContextTrimmer(nil), catalog, 1_000_000)

	result, err := analyzer.RunBatch(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Attempted)
}
