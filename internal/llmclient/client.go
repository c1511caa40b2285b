// Package llmclient implements the LLM Client (C3): Gemini REST dispatch,
// the 503 model-fallback / 429 backoff / timeout retry state machine, and
// usage-ledger accounting.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// ai_analyzer.py::_make_gemini_request (the retry/fallback state machine,
// reimplemented exactly per spec §4.3).
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/merlin2/tieranalysis/internal/eventlog"
	"github.com/merlin2/tieranalysis/internal/models"
)

// Config holds the client's tunables. Defaults mirror spec §4.3 exactly:
// max_retries=3, base_delay=1s.
type Config struct {
	APIKey          string
	BaseURL         string
	MaxRetries      int
	BaseDelay       time.Duration
	RequestTimeout  time.Duration
	FallbackModel   string
	DailyTokenLimit int
	HTTPClient      *http.Client
	// Sleep is overridable for tests; defaults to time.Sleep.
	Sleep func(context.Context, time.Duration)
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Sleep == nil {
		c.Sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}
}

// Client is the stateful LLM dispatcher. current_model, tried_models_503
// and the usage ledger are the mutable state spec §9 says must be owned
// explicitly rather than scattered across a monolithic analyzer object.
type Client struct {
	cfg     Config
	catalog []models.ModelSpec // sorted ascending by Priority
	sink    eventlog.Sink

	mu             sync.Mutex
	currentModel   string
	triedModels503 map[string]bool
	modelSwitches  int
	ledger         models.UsageLedger

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
}

// NewClient builds a Client seeded with the highest-priority (lowest
// Priority value) model in the catalog as current_model.
func NewClient(cfg Config, catalog []models.ModelSpec, sink eventlog.Sink) *Client {
	cfg.setDefaults()

	sorted := make([]models.ModelSpec, len(catalog))
	copy(sorted, catalog)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var initial string
	if len(sorted) > 0 {
		initial = sorted[0].ID
	}

	return &Client{
		cfg:            cfg,
		catalog:        sorted,
		sink:           sink,
		currentModel:   initial,
		triedModels503: make(map[string]bool),
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
	}
}

// CurrentModel returns the model the next Invoke call will target.
func (c *Client) CurrentModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentModel
}

// SetCurrentModel lets a caller (Tier Analyzer, model override) force the
// next request's target model.
func (c *Client) SetCurrentModel(id string) {
	c.mu.Lock()
	c.currentModel = id
	c.mu.Unlock()
}

// Ledger returns a snapshot copy of the usage ledger.
func (c *Client) Ledger() models.UsageLedger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger
}

// ModelSwitches returns the number of 503-triggered model switches so far.
func (c *Client) ModelSwitches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelSwitches
}

func (c *Client) breakerFor(model string) *gobreaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	if b, ok := c.breakers[model]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-model-" + model,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[model] = b
	return b
}

// nextUntried503Model returns the lowest-priority model not yet in
// tried_models_503, or "" if none remains.
func (c *Client) nextUntried503Model(tried map[string]bool) string {
	for _, m := range c.catalog {
		if !tried[m.ID] {
			return m.ID
		}
	}
	return ""
}

func (c *Client) modelSpec(id string) (models.ModelSpec, bool) {
	for _, m := range c.catalog {
		if m.ID == id {
			return m, true
		}
	}
	return models.ModelSpec{}, false
}

// Invoke dispatches a single prompt and returns the decoded raw response,
// running the retry/fallback state machine from spec §4.3 to completion.
func (c *Client) Invoke(ctx context.Context, prompt string, maxOutputTokens int) (*RawResponse, error) {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		model := c.CurrentModel()
		if model == "" {
			return nil, fmt.Errorf("llmclient: no model available in catalog")
		}

		resp, outcome, err := c.dispatchOnce(ctx, model, prompt, maxOutputTokens)

		switch outcome {
		case outcomeSuccess:
			c.mu.Lock()
			c.triedModels503 = make(map[string]bool)
			c.updateLedgerLocked(model, resp.TotalTokens)
			c.mu.Unlock()
			resp.ModelUsed = model
			return resp, nil

		case outcomeCapacity503:
			c.mu.Lock()
			c.triedModels503[model] = true
			next := c.nextUntried503Model(c.triedModels503)
			c.mu.Unlock()

			if next != "" {
				c.cfg.Sleep(ctx, 30*time.Second)
				c.mu.Lock()
				c.currentModel = next
				c.modelSwitches++
				c.mu.Unlock()
				if c.sink != nil {
					_ = c.sink.WriteIncident(eventlog.Incident{
						IncidentType: "model_fallback",
						Severity:     eventlog.SeverityLow,
						Pattern:      model,
						ActionTaken:  "switched_to_" + next,
					})
				}
				continue
			}

			// No untried model left: linear backoff on the same model.
			c.cfg.Sleep(ctx, time.Duration(attempt+1)*30*time.Second)
			lastErr = fmt.Errorf("llmclient: model %s returned 503, no fallback available (attempt %d)", model, attempt+1)
			if attempt == c.cfg.MaxRetries-1 {
				return nil, lastErr
			}
			continue

		case outcomeRateLimit429:
			delay := c.cfg.BaseDelay * time.Duration(1<<uint(attempt))
			c.cfg.Sleep(ctx, delay)
			lastErr = fmt.Errorf("llmclient: model %s rate limited (429), attempt %d", model, attempt+1)
			continue

		case outcomeRetryableTransient:
			c.cfg.Sleep(ctx, c.cfg.BaseDelay)
			lastErr = err
			continue

		case outcomeFatal:
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("llmclient: exhausted retries")
	}
	return nil, lastErr
}

type dispatchOutcome int

const (
	outcomeSuccess dispatchOutcome = iota
	outcomeRetryableTransient
	outcomeCapacity503
	outcomeRateLimit429
	outcomeFatal
)

func (c *Client) dispatchOnce(ctx context.Context, model, prompt string, maxOutputTokens int) (*RawResponse, dispatchOutcome, error) {
	breaker := c.breakerFor(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return c.doHTTP(ctx, model, prompt, maxOutputTokens)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			log.Warn().Str("model", model).Msg("circuit breaker open for model, treating as capacity error")
			return nil, outcomeCapacity503, err
		}
		if httpErr, ok := err.(*statusError); ok {
			switch httpErr.StatusCode {
			case http.StatusServiceUnavailable:
				return nil, outcomeCapacity503, err
			case http.StatusTooManyRequests:
				return nil, outcomeRateLimit429, err
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, outcomeFatal, err
			default:
				return nil, outcomeRetryableTransient, err
			}
		}
		if ctx.Err() != nil {
			return nil, outcomeFatal, ctx.Err()
		}
		// Timeout and other transport errors are retried.
		return nil, outcomeRetryableTransient, err
	}

	return result.(*RawResponse), outcomeSuccess, nil
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llmclient: HTTP %d: %s", e.StatusCode, e.Body)
}

func (c *Client) doHTTP(ctx context.Context, model, prompt string, maxOutputTokens int) (*RawResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(newRequestBody(prompt, maxOutputTokens))
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.cfg.BaseURL, model, url.QueryEscape(c.cfg.APIKey))

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &statusError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, err
	}

	return &RawResponse{
		Text:        extractText(decoded),
		TotalTokens: decoded.UsageMetadata.tokens(),
	}, nil
}

// updateLedgerLocked must be called with c.mu held. It accumulates usage
// and, when daily usage crosses 75% of the configured limit, switches
// current_model to the configured fallback model for subsequent calls
// (spec §4.3 UsageLedger update rule).
func (c *Client) updateLedgerLocked(model string, tokens int) {
	c.ledger.DailyTokens += tokens
	c.ledger.MonthlyTokens += tokens
	c.ledger.DailyRequests++
	c.ledger.MonthlyRequests++
	c.ledger.RequestsToday++

	if spec, ok := c.modelSpec(model); ok {
		c.ledger.DailyCostUSD += float64(tokens) / 1000.0 * spec.OutputCostPer1K
		c.ledger.MonthlyCostUSD += float64(tokens) / 1000.0 * spec.OutputCostPer1K
	}

	if c.cfg.DailyTokenLimit > 0 && c.cfg.FallbackModel != "" {
		if float64(c.ledger.DailyTokens) > 0.75*float64(c.cfg.DailyTokenLimit) {
			if c.currentModel != c.cfg.FallbackModel {
				c.currentModel = c.cfg.FallbackModel
			}
		}
	}
}

// RefreshCatalog re-queries the model-list endpoint and rebuilds the
// catalog with priority assigned in listing order for models whose name
// matches prefix (e.g. "gemini"). Falls back to the existing catalog on
// any failure, per spec §4.3.
func (c *Client) RefreshCatalog(ctx context.Context, prefix string) error {
	endpoint := fmt.Sprintf("%s/v1beta/models?key=%s", c.cfg.BaseURL, url.QueryEscape(c.cfg.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	httpResp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Msg("model catalog refresh failed, keeping cached catalog")
		return nil
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		log.Warn().Int("status", httpResp.StatusCode).Msg("model catalog refresh failed, keeping cached catalog")
		return nil
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil
	}

	var decoded modelListResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil
	}

	priority := 1
	var fresh []models.ModelSpec
	existingByID := make(map[string]models.ModelSpec)
	for _, m := range c.catalog {
		existingByID[m.ID] = m
	}

	for _, entry := range decoded.Models {
		if !hasPrefix(entry.Name, prefix) {
			continue
		}
		id := entry.Name
		spec, ok := existingByID[id]
		if !ok {
			spec = models.ModelSpec{ID: id, MaxOutputTokens: entry.InputTokenLimit, Tier: models.ModelTierStandard}
		}
		spec.Priority = priority
		priority++
		fresh = append(fresh, spec)
	}

	if len(fresh) == 0 {
		return nil
	}

	c.mu.Lock()
	c.catalog = fresh
	c.mu.Unlock()
	return nil
}

func hasPrefix(name, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(name) < len(prefix) {
		return false
	}
	return name[:len(prefix)] == prefix
}
