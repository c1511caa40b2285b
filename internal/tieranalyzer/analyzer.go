// Package tieranalyzer implements the Tier Analyzer (C5): three
// instances (one per tier) sharing the same 10-step orchestration —
// pending lookup, context load, prompt compose, validate-and-handle,
// token allocation, model selection, dispatch, response validation,
// persist-on-success.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// tier1_analyzer.py; Tier 2/3 generalize the same shape per spec §4.5.
package tieranalyzer

import (
	"context"
	"fmt"
	"time"

	genkitcore "github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/rs/zerolog/log"

	"github.com/merlin2/tieranalysis/internal/eventlog"
	"github.com/merlin2/tieranalysis/internal/limits"
	"github.com/merlin2/tieranalysis/internal/llmclient"
	"github.com/merlin2/tieranalysis/internal/metrics"
	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/planner"
	"github.com/merlin2/tieranalysis/internal/promptreg"
	"github.com/merlin2/tieranalysis/internal/store"
	"github.com/merlin2/tieranalysis/internal/validator"
)

// BatchRequest is the flow input: the batch of pending job IDs for this
// tier, already size-bounded by the caller (scheduler or control API).
type BatchRequest struct {
	JobIDs []string
}

// BatchResult is the flow output and RunBatch's return value.
type BatchResult struct {
	Tier           models.Tier
	Attempted      int
	Succeeded      []string
	Failed         []string
	ModelUsed      string
	TotalTokens    int
	ResponseTimeMS int
}

// Analyzer runs one tier's batch-analysis loop.
type Analyzer struct {
	tier            models.Tier
	promptName      string
	store           store.Store
	registry        *promptreg.Registry
	client          *llmclient.Client
	sink            eventlog.Sink
	trimmer         *limits.ContextTrimmer
	catalog         []models.ModelSpec
	dailyTokenLimit int

	flow *genkitcore.Flow[*BatchRequest, *BatchResult, struct{}]
}

// New builds an Analyzer for the given tier. g may be nil, in which case
// the orchestration runs directly without a tracing flow wrapper — the
// dispatch semantics are identical either way, since genkit here only
// traces, it never replaces C3's own retry state machine (spec §9).
func New(g *genkit.Genkit, tier models.Tier, st store.Store, registry *promptreg.Registry, client *llmclient.Client, sink eventlog.Sink, trimmer *limits.ContextTrimmer, catalog []models.ModelSpec, dailyTokenLimit int) *Analyzer {
	a := &Analyzer{
		tier:            tier,
		promptName:      promptNameFor(tier),
		store:           st,
		registry:        registry,
		client:          client,
		sink:            sink,
		trimmer:         trimmer,
		catalog:         catalog,
		dailyTokenLimit: dailyTokenLimit,
	}
	if g != nil {
		a.flow = genkit.DefineFlow(g, tier.String()+"AnalysisFlow", func(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
			return a.runBatch(ctx, req)
		})
	}
	return a
}

func promptNameFor(tier models.Tier) string {
	switch tier {
	case models.Tier1:
		return Tier1PromptName
	case models.Tier2:
		return Tier2PromptName
	default:
		return Tier3PromptName
	}
}

// RunBatch looks up pending jobs for this tier (capped at limit) and, if
// any exist, runs the full analysis pipeline over them.
func (a *Analyzer) RunBatch(ctx context.Context, limit int) (*BatchResult, error) {
	pending, err := a.store.JobsNeedingTier(ctx, a.tier, limit)
	if err != nil {
		return nil, fmt.Errorf("tieranalyzer: lookup pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return &BatchResult{Tier: a.tier}, nil
	}

	req := &BatchRequest{JobIDs: pending}
	if a.flow != nil {
		return a.flow.Run(ctx, req)
	}
	return a.runBatch(ctx, req)
}

func (a *Analyzer) runBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{Tier: a.tier, Attempted: len(req.JobIDs)}

	jobs := make([]models.Job, 0, len(req.JobIDs))
	priorByJob := make(map[string]priorContext, len(req.JobIDs))

	for _, id := range req.JobIDs {
		job, err := a.store.LoadJob(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("job_id", id).Msg("tieranalyzer: failed to load job, skipping")
			result.Failed = append(result.Failed, id)
			continue
		}
		jobs = append(jobs, job)

		if a.tier >= models.Tier2 {
			tier1Artifact, _ := a.store.LoadTierArtifact(ctx, id, models.Tier1)
			var tier2Artifact *models.AnalysisArtifact
			if a.tier == models.Tier3 {
				tier2Artifact, _ = a.store.LoadTierArtifact(ctx, id, models.Tier2)
			}
			priorByJob[id] = buildPriorContext(a.trimmer, tier1Artifact, tier2Artifact)
		}
	}

	if len(jobs) == 0 {
		return result, nil
	}

	token, err := promptreg.NewSecurityToken()
	if err != nil {
		return nil, fmt.Errorf("tieranalyzer: generate security token: %w", err)
	}

	now := time.Now()
	var rawPrompt string
	switch a.tier {
	case models.Tier1:
		rawPrompt = buildTier1Prompt(jobs, token, now)
	case models.Tier2:
		rawPrompt = buildTier2Prompt(jobs, priorByJob, token, now)
	case models.Tier3:
		rawPrompt = buildTier3Prompt(jobs, priorByJob, token, now)
	}

	prompt, _, err := a.registry.ValidateAndHandle(a.promptName, rawPrompt, promptreg.SourceAgent, canonicalGetterFor(a.promptName))
	if err != nil {
		return nil, fmt.Errorf("tieranalyzer: prompt validation: %w", err)
	}

	alloc := planner.AllocateTokens(len(jobs), a.tier)
	ledger := a.client.Ledger()
	selection, err := planner.SelectModel(planner.SelectionInput{
		Catalog:         a.catalog,
		Tier:            a.tier,
		JobCount:        len(jobs),
		DailyTokensUsed: ledger.DailyTokens,
		DailyTokenLimit: a.dailyTokenLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("tieranalyzer: model selection: %w", err)
	}
	a.client.SetCurrentModel(selection.Model.ID)
	if selection.Model.Priority > 1 {
		metrics.ModelFallbackTotal.Inc()
	}

	raw, err := a.client.Invoke(ctx, prompt, alloc.MaxOutputTokens)
	if err != nil {
		// Step 10: on failure, leave tier_k_completed unset for every job
		// in the batch so the scheduler retries them next tick.
		metrics.LLMRequestsTotal.WithLabelValues(selection.Model.ID, "error").Inc()
		result.Failed = append(result.Failed, jobIDs(jobs)...)
		if a.sink != nil {
			_ = a.sink.WriteIncident(eventlog.Incident{
				IncidentType: "llm_dispatch_failed",
				Severity:     eventlog.SeverityMedium,
				Sample:       err.Error(),
				Metadata:     map[string]any{"tier": a.tier.String(), "job_count": len(jobs)},
			})
		}
		return result, nil
	}
	metrics.LLMTokensTotal.WithLabelValues(a.tier.String()).Add(float64(raw.TotalTokens))

	expectedIDs := jobIDs(jobs)
	outcome := validator.Validate(raw.Text, a.tier, token, raw.ModelUsed, expectedIDs, a.sink)
	if outcome.Rejected {
		metrics.LLMRequestsTotal.WithLabelValues(raw.ModelUsed, "rejected").Inc()
		result.Failed = append(result.Failed, expectedIDs...)
		return result, nil
	}
	metrics.LLMRequestsTotal.WithLabelValues(raw.ModelUsed, "success").Inc()

	responseTimeMS := int(time.Since(start) / time.Millisecond)
	perJobTokens := raw.TotalTokens
	if n := len(outcome.Artifacts); n > 0 {
		perJobTokens = raw.TotalTokens / n
	}

	for _, artifact := range outcome.Artifacts {
		for _, w := range artifact.Warnings {
			metrics.SanitizationWarningsTotal.WithLabelValues(w.Action).Inc()
		}
		update := store.CompletionUpdate{
			TokensUsed:     perJobTokens,
			ModelUsed:      raw.ModelUsed,
			ResponseTimeMS: responseTimeMS,
		}
		if err := a.store.RecordTierCompletion(ctx, artifact.JobID, a.tier, update, artifact); err != nil {
			log.Error().Err(err).Str("job_id", artifact.JobID).Msg("tieranalyzer: failed to persist completion")
			result.Failed = append(result.Failed, artifact.JobID)
			continue
		}
		result.Succeeded = append(result.Succeeded, artifact.JobID)
	}
	result.Failed = append(result.Failed, outcome.MissingJobIDs...)

	result.ModelUsed = raw.ModelUsed
	result.TotalTokens = raw.TotalTokens
	result.ResponseTimeMS = responseTimeMS
	return result, nil
}

func jobIDs(jobs []models.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
