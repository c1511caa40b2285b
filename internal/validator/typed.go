package validator

import (
	"encoding/json"
	"fmt"

	"github.com/merlin2/tieranalysis/internal/models"
)

// The wireTier* structs mirror the JSON field names the tier prompts ask
// the model to produce (see prompt.go in internal/tieranalyzer), matching
// tier1_analyzer.py's _parse_tier1_response field names.

type wireTier1 struct {
	AuthenticityCheck struct {
		TitleMatchesRole bool   `json:"title_matches_role"`
		IsAuthentic      bool   `json:"is_authentic"`
		Notes            string `json:"notes"`
	} `json:"authenticity_check"`
	Classification struct {
		Industry       string `json:"industry"`
		SubIndustry    string `json:"sub_industry"`
		JobFunction    string `json:"job_function"`
		SeniorityLevel string `json:"seniority_level"`
	} `json:"classification"`
	StructuredData struct {
		Skills          []string `json:"skills"`
		ATSOptimization struct {
			Keywords []struct {
				Term     string `json:"term"`
				Category string `json:"keyword_category"`
			} `json:"keywords"`
			OptimizedScore float64 `json:"optimized_score"`
		} `json:"ats_optimization"`
	} `json:"structured_data"`
}

type wireTier2 struct {
	StressLevelAnalysis struct {
		Score   float64  `json:"score"`
		Drivers []string `json:"drivers"`
	} `json:"stress_level_analysis"`
	RedFlags []struct {
		Category    string `json:"category"`
		Description string `json:"description"`
		Severity    string `json:"severity"`
	} `json:"red_flags"`
	ImplicitRequirements []struct {
		Requirement string  `json:"requirement"`
		Confidence  float64 `json:"confidence"`
	} `json:"implicit_requirements"`
}

type wireTier3 struct {
	PrestigeAnalysis struct {
		Score int    `json:"score"`
		Tier  string `json:"tier"`
		Notes string `json:"notes"`
	} `json:"prestige_analysis"`
	CoverLetterInsight struct {
		KeyThemes       []string `json:"key_themes"`
		ToneGuidance    string   `json:"tone_guidance"`
		OpeningStrategy string   `json:"opening_strategy"`
	} `json:"cover_letter_insight"`
}

func decodeTier1(sanitized map[string]any) (*models.Tier1Artifact, error) {
	var w wireTier1
	if err := remarshal(sanitized, &w); err != nil {
		return nil, fmt.Errorf("tier1 payload: %w", err)
	}
	keywords := make([]models.ATSKeyword, 0, len(w.StructuredData.ATSOptimization.Keywords))
	for _, k := range w.StructuredData.ATSOptimization.Keywords {
		keywords = append(keywords, models.ATSKeyword{Term: k.Term, Category: k.Category})
	}
	return &models.Tier1Artifact{
		AuthenticityCheck: models.AuthenticityCheck{
			TitleMatchesRole: w.AuthenticityCheck.TitleMatchesRole,
			IsAuthentic:      w.AuthenticityCheck.IsAuthentic,
			Notes:            w.AuthenticityCheck.Notes,
		},
		Classification: models.Classification{
			Industry:       w.Classification.Industry,
			SubIndustry:    w.Classification.SubIndustry,
			JobFunction:    w.Classification.JobFunction,
			SeniorityLevel: w.Classification.SeniorityLevel,
		},
		StructuredData: models.StructuredData{
			Skills: w.StructuredData.Skills,
			ATSOptimization: models.ATSOptimization{
				Keywords:       keywords,
				OptimizedScore: w.StructuredData.ATSOptimization.OptimizedScore,
			},
		},
	}, nil
}

func decodeTier2(sanitized map[string]any) (*models.Tier2Artifact, error) {
	var w wireTier2
	if err := remarshal(sanitized, &w); err != nil {
		return nil, fmt.Errorf("tier2 payload: %w", err)
	}
	flags := make([]models.RedFlag, 0, len(w.RedFlags))
	for _, f := range w.RedFlags {
		flags = append(flags, models.RedFlag{Category: f.Category, Description: f.Description, Severity: f.Severity})
	}
	reqs := make([]models.ImplicitRequirement, 0, len(w.ImplicitRequirements))
	for _, r := range w.ImplicitRequirements {
		reqs = append(reqs, models.ImplicitRequirement{Requirement: r.Requirement, Confidence: r.Confidence})
	}
	return &models.Tier2Artifact{
		StressLevelAnalysis: models.StressLevelAnalysis{
			Score:   w.StressLevelAnalysis.Score,
			Drivers: w.StressLevelAnalysis.Drivers,
		},
		RedFlags:             flags,
		ImplicitRequirements: reqs,
	}, nil
}

func decodeTier3(sanitized map[string]any) (*models.Tier3Artifact, error) {
	var w wireTier3
	if err := remarshal(sanitized, &w); err != nil {
		return nil, fmt.Errorf("tier3 payload: %w", err)
	}
	return &models.Tier3Artifact{
		PrestigeAnalysis: models.PrestigeAnalysis{
			Score: w.PrestigeAnalysis.Score,
			Tier:  w.PrestigeAnalysis.Tier,
			Notes: w.PrestigeAnalysis.Notes,
		},
		CoverLetterInsight: models.CoverLetterInsight{
			KeyThemes:       w.CoverLetterInsight.KeyThemes,
			ToneGuidance:    w.CoverLetterInsight.ToneGuidance,
			OpeningStrategy: w.CoverLetterInsight.OpeningStrategy,
		},
	}, nil
}

// remarshal round-trips through JSON to fill a typed struct from a
// generic sanitized map, avoiding a hand-written type-assertion chain
// for every nested field.
func remarshal(sanitized map[string]any, dst any) error {
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
