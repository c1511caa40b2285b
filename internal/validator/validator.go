package validator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/merlin2/tieranalysis/internal/eventlog"
	"github.com/merlin2/tieranalysis/internal/models"
)

// envelope is the top-level shape of one LLM response: a batch of
// per-job results plus the one security token the whole response must
// echo back verbatim (spec §3's token round-trip).
type envelope struct {
	SecurityToken   string           `json:"security_token"`
	AnalysisResults []map[string]any `json:"analysis_results"`
}

// Outcome is the Response Validator's per-request result: the jobs that
// parsed and passed every screen, the job IDs present in the request but
// absent from the response (left unanalyzed rather than retried within
// the batch, per spec §4.5), and a hard rejection reason if the response
// as a whole could not be trusted at all.
type Outcome struct {
	Artifacts      []models.AnalysisArtifact
	MissingJobIDs  []string
	Rejected       bool
	RejectReason   string
}

// Validate runs the six-stage pipeline from spec §4.4: decode, parse,
// structural check, content screens, token round-trip, per-field
// sanitization. Any step failure up through the token round-trip
// discards the ENTIRE response (Rejected=true); sanitization failures are
// per-field and non-fatal, recorded as Warnings on the surviving artifact.
//
// Grounded on response_sanitizer.py's overall dispatch and
// ai_analyzer.py's _make_gemini_request response handling.
func Validate(rawText string, tier models.Tier, expectedToken, modelUsed string, expectedJobIDs []string, sink eventlog.Sink) Outcome {
	// Stage 1: decode.
	if rawText == "" {
		return reject(sink, tier, "empty response body")
	}

	// Stage 2: parse JSON.
	var env envelope
	if err := json.Unmarshal([]byte(rawText), &env); err != nil {
		return reject(sink, tier, fmt.Sprintf("malformed JSON: %v", err))
	}
	if env.AnalysisResults == nil {
		return reject(sink, tier, "missing analysis_results array")
	}

	// Stage 5 depends on stage 2 but is cheap to check before the
	// per-job loop: a missing or mismatched token invalidates the whole
	// response regardless of how well-formed individual jobs are.
	if env.SecurityToken != expectedToken {
		return rejectIncident(sink, tier, "token_mismatch", eventlog.SeverityCritical,
			"response security_token did not match the token embedded in the prompt")
	}

	// Stage 4: content screens over the raw response text, before any
	// per-field sanitization has a chance to mask an injection attempt.
	if err := screenContent(rawText); err != nil {
		return rejectIncident(sink, tier, "content_screen_failed", eventlog.SeverityHigh, err.Error())
	}

	seen := make(map[string]bool, len(env.AnalysisResults))
	artifacts := make([]models.AnalysisArtifact, 0, len(env.AnalysisResults))

	for _, result := range env.AnalysisResults {
		// Stage 3: structural check.
		if err := checkStructure(tier, result); err != nil {
			if sink != nil {
				sink.WriteIncident(eventlog.Incident{
					IncidentType: "structural_check_failed",
					Severity:     eventlog.SeverityMedium,
					Sample:       err.Error(),
					Metadata:     map[string]any{"tier": tier.String()},
				})
			}
			continue
		}
		jobID, _ := result["job_id"].(string)

		if err := screenSkillNames(result); err != nil {
			if sink != nil {
				sink.WriteIncident(eventlog.Incident{
					IncidentType: "skill_name_screen_failed",
					Severity:     eventlog.SeverityHigh,
					Sample:       err.Error(),
					Metadata:     map[string]any{"tier": tier.String(), "job_id": jobID},
				})
			}
			continue
		}

		// Stage 6: per-field sanitization (non-fatal).
		sanitizedAny, warnings := SanitizeValue("", result, jobID)
		sanitized, _ := sanitizedAny.(map[string]any)

		artifact, err := buildArtifact(tier, jobID, sanitized, expectedToken, modelUsed, warnings)
		if err != nil {
			if sink != nil {
				sink.WriteIncident(eventlog.Incident{
					IncidentType: "payload_decode_failed",
					Severity:     eventlog.SeverityMedium,
					Sample:       err.Error(),
					Metadata:     map[string]any{"tier": tier.String(), "job_id": jobID},
				})
			}
			continue
		}

		if jobID != "" {
			seen[jobID] = true
		}
		if len(warnings) > 0 && sink != nil {
			for _, w := range warnings {
				sink.WriteSanitization(eventlog.SanitizationRecord{
					JobID:     jobID,
					FieldPath: w.FieldPath,
					Action:    w.Action,
					Reason:    w.Reason,
				})
			}
		}
		artifacts = append(artifacts, artifact)
	}

	var missing []string
	for _, id := range expectedJobIDs {
		if !seen[id] {
			missing = append(missing, id)
		}
	}

	return Outcome{Artifacts: artifacts, MissingJobIDs: missing}
}

func buildArtifact(tier models.Tier, jobID string, sanitized map[string]any, token, modelUsed string, warnings []models.SanitizationWarning) (models.AnalysisArtifact, error) {
	artifact := models.AnalysisArtifact{
		JobID:             jobID,
		TierKind:          tier,
		SecurityToken:     token,
		ModelUsed:         modelUsed,
		AnalysisVersion:   "v1",
		AnalysisTimestamp: time.Now(),
		Warnings:          warnings,
	}

	switch tier {
	case models.Tier1:
		t1, err := decodeTier1(sanitized)
		if err != nil {
			return models.AnalysisArtifact{}, err
		}
		artifact.Tier1 = t1
	case models.Tier2:
		t2, err := decodeTier2(sanitized)
		if err != nil {
			return models.AnalysisArtifact{}, err
		}
		artifact.Tier2 = t2
	case models.Tier3:
		t3, err := decodeTier3(sanitized)
		if err != nil {
			return models.AnalysisArtifact{}, err
		}
		artifact.Tier3 = t3
	default:
		return models.AnalysisArtifact{}, fmt.Errorf("unknown tier %v", tier)
	}

	return artifact, nil
}

func reject(sink eventlog.Sink, tier models.Tier, reason string) Outcome {
	if sink != nil {
		sink.WriteIncident(eventlog.Incident{
			IncidentType: "response_rejected",
			Severity:     eventlog.SeverityHigh,
			Sample:       reason,
			Metadata:     map[string]any{"tier": tier.String()},
		})
	}
	return Outcome{Rejected: true, RejectReason: reason}
}

func rejectIncident(sink eventlog.Sink, tier models.Tier, incidentType string, severity eventlog.Severity, reason string) Outcome {
	if sink != nil {
		sink.WriteIncident(eventlog.Incident{
			IncidentType: incidentType,
			Severity:     severity,
			Sample:       reason,
			Metadata:     map[string]any{"tier": tier.String()},
		})
	}
	return Outcome{Rejected: true, RejectReason: reason}
}
