// Package api implements the Control HTTP API (C10): the operator-facing
// REST surface for triggering batches on demand and inspecting pipeline
// state, mirroring the original Flask blueprint's routes and response
// shapes onto a chi router.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// api_routes_tiered.py (routes, request/response JSON shapes, and the
// X-API-Key auth decorator).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/monitor"
	"github.com/merlin2/tieranalysis/internal/scheduler"
	"github.com/merlin2/tieranalysis/internal/store"
)

// Server holds the dependencies the control API's handlers need.
type Server struct {
	Scheduler *scheduler.Scheduler
	Store     store.Store
	APIKey    string
	Monitor   *monitor.Hub // may be nil; /ws is only mounted when set
}

// Router builds the chi mux: /api/analyze/* behind X-API-Key auth,
// /api/analyze/health and /metrics open.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	}))

	r.Handle("/metrics", promhttp.Handler())
	if s.Monitor != nil {
		r.Get("/ws", s.Monitor.ServeWS)
	}

	r.Route("/api/analyze", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Post("/tier1", s.handleTierBatch(models.Tier1))
			r.Post("/tier2", s.handleTierBatch(models.Tier2))
			r.Post("/tier3", s.handleTierBatch(models.Tier3))
			r.Post("/sequential-batch", s.handleSequentialBatch)
			r.Get("/status", s.handleStatus)
			r.Get("/tier-stats", s.handleTierStats)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).Msg("control API request")
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey == "" {
			log.Warn().Msg("control API: WEBHOOK_API_KEY not configured, rejecting all authenticated requests")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "message": "Valid API key required"})
			return
		}
		if r.Header.Get("X-API-Key") != s.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "message": "Valid API key required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tierBatchRequest struct {
	MaxJobs       int    `json:"max_jobs"`
	ModelOverride string `json:"model_override"`
}

type tierBatchResponse struct {
	Tier              int     `json:"tier"`
	TotalJobs         int     `json:"total_jobs"`
	Successful        int     `json:"successful"`
	Failed            int     `json:"failed"`
	TotalTokens       int     `json:"total_tokens"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
	JobsPerSecond     float64 `json:"jobs_per_second"`
	Timestamp         string  `json:"timestamp"`
}

func (s *Server) handleTierBatch(tier models.Tier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tierBatchRequest
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body is valid: no limit requested

		stats, err := s.Scheduler.RunTierBatch(r.Context(), tier, req.MaxJobs)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "Tier analysis failed", "message": err.Error(), "tier": int(tier),
			})
			return
		}

		writeJSON(w, http.StatusOK, batchStatsResponse(tier, stats))
	}
}

func batchStatsResponse(tier models.Tier, stats scheduler.BatchStats) tierBatchResponse {
	return tierBatchResponse{
		Tier:              int(tier),
		TotalJobs:         stats.TotalJobs,
		Successful:        stats.Successful,
		Failed:            stats.Failed,
		TotalTokens:       stats.TotalTokens,
		AvgResponseTimeMS: stats.AvgResponseTimeMS,
		JobsPerSecond:     stats.JobsPerSecond,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}
}

type sequentialBatchRequest struct {
	Tier1MaxJobs int `json:"tier1_max_jobs"`
	Tier2MaxJobs int `json:"tier2_max_jobs"`
	Tier3MaxJobs int `json:"tier3_max_jobs"`
}

func (s *Server) handleSequentialBatch(w http.ResponseWriter, r *http.Request) {
	var req sequentialBatchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx := r.Context()
	start := time.Now()

	tier1Stats, err := s.Scheduler.RunTierBatch(ctx, models.Tier1, req.Tier1MaxJobs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Sequential batch failed", "message": err.Error()})
		return
	}
	tier2Stats, err := s.Scheduler.RunTierBatch(ctx, models.Tier2, req.Tier2MaxJobs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Sequential batch failed", "message": err.Error()})
		return
	}
	tier3Stats, err := s.Scheduler.RunTierBatch(ctx, models.Tier3, req.Tier3MaxJobs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Sequential batch failed", "message": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"execution_type":     "full_sequential_batch",
		"total_time_seconds": time.Since(start).Seconds(),
		"tier1":              batchStatsResponse(models.Tier1, tier1Stats),
		"tier2":              batchStatsResponse(models.Tier2, tier2Stats),
		"tier3":              batchStatsResponse(models.Tier3, tier3Stats),
		"summary": map[string]any{
			"total_jobs_processed": tier1Stats.TotalJobs + tier2Stats.TotalJobs + tier3Stats.TotalJobs,
			"total_failures":       tier1Stats.Failed + tier2Stats.Failed + tier3Stats.Failed,
			"total_tokens":         tier1Stats.TotalTokens + tier2Stats.TotalTokens + tier3Stats.TotalTokens,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Store.ProcessingStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get status", "message": err.Error()})
		return
	}

	var activeTier any
	if tier, ok := scheduler.ActiveTier(time.Now(), s.Scheduler.Windows); ok {
		activeTier = int(tier)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending_tier1":  status.PendingTier1,
		"pending_tier2":  status.PendingTier2,
		"pending_tier3":  status.PendingTier3,
		"fully_analyzed": status.FullyAnalyzed,
		"active_tier":    activeTier,
		"current_time":   status.CurrentTime.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTierStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tier1, err := s.Store.TierStatistics(ctx, models.Tier1)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get statistics", "message": err.Error()})
		return
	}
	tier2, err := s.Store.TierStatistics(ctx, models.Tier2)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get statistics", "message": err.Error()})
		return
	}
	tier3, err := s.Store.TierStatistics(ctx, models.Tier3)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get statistics", "message": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tier1_stats": tierStatsJSON(tier1),
		"tier2_stats": tierStatsJSON(tier2),
		"tier3_stats": tierStatsJSON(tier3),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func tierStatsJSON(s models.TierStatistics) map[string]any {
	return map[string]any{
		"total_analyzed":      s.TotalAnalyzed,
		"avg_tokens":          s.AvgTokens,
		"avg_response_time_ms": s.AvgResponseTimeMS,
		"success_rate":        s.SuccessRate,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "tiered_job_analysis",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe runs the control API until ctx is cancelled, shutting
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
