package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingGeminiAPIKeyErrors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DAILY_TOKEN_LIMIT", "")
	t.Setenv("SCHEDULER_INTERVAL_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
	assert.Equal(t, 2_000_000, cfg.DailyTokenLimit)
	assert.Equal(t, 300, cfg.SchedulerIntervalSecs)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerInterval())
}

func TestLoad_OverridesRespected(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DAILY_TOKEN_LIMIT", "500000")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("STEVE_GLEN_TRACKING_API_KEY", "tracking-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500000, cfg.DailyTokenLimit)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "tracking-secret", cfg.TrackingAPIKey)
}
