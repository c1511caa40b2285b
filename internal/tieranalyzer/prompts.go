package tieranalyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/promptreg"
)

// Prompt names registered with the Prompt Registry (C1). Stable across
// calls so the hash-compare in ValidateAndHandle actually means
// something — the normalization pipeline is what makes the per-batch
// job count and timestamp not break the comparison.
const (
	Tier1PromptName = "tier1_core_analysis_prompt"
	Tier2PromptName = "tier2_deep_analysis_prompt"
	Tier3PromptName = "tier3_strategic_analysis_prompt"
)

// buildTier1Prompt composes the Tier 1 core-analysis prompt: authenticity
// check, industry classification, ATS-optimized structured data.
// Grounded in tier1_analyzer.py's prompt invocation and the teacher's
// long Sprintf-based chain-of-thought prompt style
// (internal/llm/prompt.go, since deleted but its idiom is reused here).
func buildTier1Prompt(jobs []models.Job, token string, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze these %d job postings for authenticity, industry classification, and ATS-optimized structured data.\n\n", len(jobs))
	sb.WriteString("Generated at: " + now.UTC().Format(time.RFC3339) + "\n\n")
	sb.WriteString(promptreg.EmbedToken(token, 20))
	sb.WriteString("\nFor each job, think step by step:\n")
	sb.WriteString("1. Does the title match the described role? Are there signs of a scam or fraudulent posting?\n")
	sb.WriteString("2. What industry, sub-industry, job function, and seniority level does this role belong to?\n")
	sb.WriteString("3. Extract structured data: a skills list and ATS keywords with a keyword_category, plus an ATS optimization score.\n\n")

	for _, job := range jobs {
		fmt.Fprintf(&sb, "--- JOB %s ---\n", job.ID)
		fmt.Fprintf(&sb, "TITLE:\n%s\n", job.Title)
		fmt.Fprintf(&sb, "COMPANY:\n%s\n", job.Company)
		fmt.Fprintf(&sb, "DESCRIPTION:\n%s\n\n", job.Description)
	}

	sb.WriteString(tier1ResponseSchema)
	return sb.String()
}

func buildTier2Prompt(jobs []models.Job, priorByJob map[string]priorContext, token string, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze these %d job postings for workload stress level, red flags, and implicit requirements.\n\n", len(jobs))
	sb.WriteString("Generated at: " + now.UTC().Format(time.RFC3339) + "\n\n")
	sb.WriteString(promptreg.EmbedToken(token, 20))
	sb.WriteString("\nFor each job, think step by step:\n")
	sb.WriteString("1. Estimate a stress/workload score in [0,1] and name its drivers (on-call, understaffing, scope creep, unrealistic deadlines).\n")
	sb.WriteString("2. Identify red flags: category, description, severity.\n")
	sb.WriteString("3. Surface implicit requirements the posting doesn't state outright, with a confidence in [0,1].\n\n")

	for _, job := range jobs {
		fmt.Fprintf(&sb, "--- JOB %s ---\n", job.ID)
		fmt.Fprintf(&sb, "TITLE:\n%s\n", job.Title)
		fmt.Fprintf(&sb, "DESCRIPTION:\n%s\n", job.Description)
		fmt.Fprintf(&sb, "PRIOR TIER 1 CONTEXT:\n%s\n\n", priorByJob[job.ID].render())
	}

	sb.WriteString(tier2ResponseSchema)
	return sb.String()
}

func buildTier3Prompt(jobs []models.Job, priorByJob map[string]priorContext, token string, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze these %d job postings for employer prestige and cover-letter strategy.\n\n", len(jobs))
	sb.WriteString("Generated at: " + now.UTC().Format(time.RFC3339) + "\n\n")
	sb.WriteString(promptreg.EmbedToken(token, 20))
	sb.WriteString("\nFor each job, think step by step:\n")
	sb.WriteString("1. Assess employer/role prestige on a 0-100 scale and assign a tier label.\n")
	sb.WriteString("2. Recommend cover-letter key themes, tone guidance, and an opening strategy.\n\n")

	for _, job := range jobs {
		fmt.Fprintf(&sb, "--- JOB %s ---\n", job.ID)
		fmt.Fprintf(&sb, "TITLE:\n%s\n", job.Title)
		fmt.Fprintf(&sb, "COMPANY:\n%s\n", job.Company)
		fmt.Fprintf(&sb, "PRIOR CONTEXT:\n%s\n\n", priorByJob[job.ID].render())
	}

	sb.WriteString(tier3ResponseSchema)
	return sb.String()
}

const tier1ResponseSchema = `Respond with a single JSON object of this exact shape and nothing else:
{
  "security_token": "<the token above, verbatim>",
  "analysis_results": [
    {
      "job_id": "<job id>",
      "authenticity_check": {"title_matches_role": bool, "is_authentic": bool, "notes": "string"},
      "classification": {"industry": "string", "sub_industry": "string", "job_function": "string", "seniority_level": "string"},
      "structured_data": {
        "skills": ["string"],
        "ats_optimization": {"keywords": [{"term": "string", "keyword_category": "string"}], "optimized_score": 0.0}
      }
    }
  ]
}`

const tier2ResponseSchema = `Respond with a single JSON object of this exact shape and nothing else:
{
  "security_token": "<the token above, verbatim>",
  "analysis_results": [
    {
      "job_id": "<job id>",
      "stress_level_analysis": {"score": 0.0, "drivers": ["string"]},
      "red_flags": [{"category": "string", "description": "string", "severity": "string"}],
      "implicit_requirements": [{"requirement": "string", "confidence": 0.0}]
    }
  ]
}`

const tier3ResponseSchema = `Respond with a single JSON object of this exact shape and nothing else:
{
  "security_token": "<the token above, verbatim>",
  "analysis_results": [
    {
      "job_id": "<job id>",
      "prestige_analysis": {"score": 0, "tier": "string", "notes": "string"},
      "cover_letter_insight": {"key_themes": ["string"], "tone_guidance": "string", "opening_strategy": "string"}
    }
  ]
}`
