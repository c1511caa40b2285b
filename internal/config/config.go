// Package config implements C9's env loading: a single Config struct
// assembled from environment variables (with an optional .env file),
// validated once at startup so every other component can assume its
// dependencies are present.
//
// Grounded on internal/config/config.go (kept and adapted in-place:
// same godotenv.Load + getEnvOrDefault + required-field validation
// shape, rewired to this domain's env vars).
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-resolved runtime configuration for the tier
// analysis pipeline.
type Config struct {
	GeminiAPIKey  string
	GeminiBaseURL string
	FallbackModel string

	DatabaseURL string // empty means run with the in-memory Store

	WebhookAPIKey string

	// TrackingAPIKey is an alternate credential for tracking ingest,
	// accepted for compatibility with the original deployment's
	// webhook caller but not consulted by any component here.
	TrackingAPIKey string

	DailyTokenLimit       int
	SchedulerIntervalSecs int
	ControlAPIAddr        string
	StoragePath           string // root dir for eventlog's JSONL files
	PromptRegistryPath    string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

// Load reads .env (if present, ignored if absent) then the process
// environment, validating the fields every component requires at
// construction time.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env file is not an error in production

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable is required but not set")
	}

	return &Config{
		GeminiAPIKey:          apiKey,
		GeminiBaseURL:         getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		FallbackModel:         getEnvOrDefault("FALLBACK_MODEL", "gemini-1.5-flash"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		WebhookAPIKey:         os.Getenv("WEBHOOK_API_KEY"),
		TrackingAPIKey:        os.Getenv("STEVE_GLEN_TRACKING_API_KEY"),
		DailyTokenLimit:       getIntOrDefault("DAILY_TOKEN_LIMIT", 2_000_000),
		SchedulerIntervalSecs: getIntOrDefault("SCHEDULER_INTERVAL_SECONDS", 300),
		ControlAPIAddr:        getEnvOrDefault("CONTROL_API_ADDR", ":8080"),
		StoragePath:           getEnvOrDefault("STORAGE_PATH", "storage"),
		PromptRegistryPath:    getEnvOrDefault("PROMPT_REGISTRY_PATH", "storage/prompt_registry.json"),
	}, nil
}

// SchedulerInterval is the configured scheduler tick interval as a
// time.Duration.
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSecs) * time.Second
}
