package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merlin2/tieranalysis/internal/models"
)

func testCatalog() []models.ModelSpec {
	return models.DefaultCatalog()
}

func noopSleep(context.Context, time.Duration) {}

func TestInvoke_SuccessDecodesTextAndTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates:    []candidate{{Content: content{Parts: []part{{Text: `{"ok":true}`}}}}},
			UsageMetadata: usageMetadata{TotalTokenCount: 42},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Sleep:      noopSleep,
	}, testCatalog(), nil)

	resp, err := client.Invoke(context.Background(), "prompt", 100)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, 42, resp.TotalTokens)
	assert.Equal(t, testCatalog()[0].ID, resp.ModelUsed)
}

func TestInvoke_503FallsBackToNextModel(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if len(calls) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates:    []candidate{{Content: content{Parts: []part{{Text: "ok"}}}}},
			UsageMetadata: usageMetadata{TotalTokenCount: 1},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Sleep:      noopSleep,
		MaxRetries: 3,
	}, testCatalog(), nil)

	resp, err := client.Invoke(context.Background(), "prompt", 100)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, client.ModelSwitches())
	assert.Equal(t, testCatalog()[1].ID, client.CurrentModel())
}

func TestInvoke_401IsFatalNoRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Sleep:      noopSleep,
		MaxRetries: 3,
	}, testCatalog(), nil)

	_, err := client.Invoke(context.Background(), "prompt", 100)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestInvoke_429RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates:    []candidate{{Content: content{Parts: []part{{Text: "ok"}}}}},
			UsageMetadata: usageMetadata{TotalTokenCount: 1},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Sleep:      noopSleep,
		MaxRetries: 3,
	}, testCatalog(), nil)

	resp, err := client.Invoke(context.Background(), "prompt", 100)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestCurrentModel_InitializedToHighestPriority(t *testing.T) {
	client := NewClient(Config{Sleep: noopSleep}, testCatalog(), nil)
	assert.Equal(t, testCatalog()[0].ID, client.CurrentModel())
}

func TestSetCurrentModel_Overrides(t *testing.T) {
	client := NewClient(Config{Sleep: noopSleep}, testCatalog(), nil)
	client.SetCurrentModel("gemini-2.5-flash")
	assert.Equal(t, "gemini-2.5-flash", client.CurrentModel())
}
