package models

import "time"

// ATSKeyword is one applicant-tracking-system keyword extracted during
// Tier 1 structured-data analysis. The source material uses both
// "keyword_type" and "keyword_category" for this concept across files;
// the internal field is named Category (see DESIGN.md open question #3).
// The persistence adapter is responsible for mapping this to whatever
// column name an external normalized table expects.
type ATSKeyword struct {
	Term     string
	Category string
}

// AuthenticityCheck is Tier 1's fraud/authenticity screen.
type AuthenticityCheck struct {
	TitleMatchesRole bool
	IsAuthentic      bool
	Notes            string
}

// Classification is Tier 1's industry/role classification.
type Classification struct {
	Industry       string
	SubIndustry    string
	JobFunction    string
	SeniorityLevel string
}

// ATSOptimization is the nested structured_data.ats_optimization block.
type ATSOptimization struct {
	Keywords      []ATSKeyword
	OptimizedScore float64
}

// StructuredData is Tier 1's extracted structured fields.
type StructuredData struct {
	Skills          []string
	ATSOptimization ATSOptimization
}

// Tier1Artifact is the Tier 1 analysis payload.
type Tier1Artifact struct {
	AuthenticityCheck AuthenticityCheck
	Classification    Classification
	StructuredData    StructuredData
}

// StressLevelAnalysis is Tier 2's workload/stress assessment.
type StressLevelAnalysis struct {
	Score   float64 // 0..1
	Drivers []string
}

// RedFlag is one Tier 2 red-flag finding.
type RedFlag struct {
	Category    string
	Description string
	Severity    string
}

// ImplicitRequirement is an unstated expectation surfaced by Tier 2.
type ImplicitRequirement struct {
	Requirement string
	Confidence  float64
}

// Tier2Artifact is the Tier 2 analysis payload.
type Tier2Artifact struct {
	StressLevelAnalysis  StressLevelAnalysis
	RedFlags             []RedFlag
	ImplicitRequirements []ImplicitRequirement
}

// PrestigeAnalysis is Tier 3's employer/role prestige assessment.
type PrestigeAnalysis struct {
	Score int // 0..100
	Tier  string
	Notes string
}

// CoverLetterInsight is Tier 3's guidance for cover-letter tailoring.
type CoverLetterInsight struct {
	KeyThemes       []string
	ToneGuidance    string
	OpeningStrategy string
}

// Tier3Artifact is the Tier 3 analysis payload.
type Tier3Artifact struct {
	PrestigeAnalysis   PrestigeAnalysis
	CoverLetterInsight CoverLetterInsight
}

// AnalysisArtifact is a tagged variant over the three tier payloads: the
// validator branches once at parse time and the rest of the pipeline
// switches on TierKind rather than using isinstance-style checks.
type AnalysisArtifact struct {
	JobID            string
	TierKind         Tier
	Tier1            *Tier1Artifact
	Tier2            *Tier2Artifact
	Tier3            *Tier3Artifact
	SecurityToken    string
	ModelUsed        string
	AnalysisVersion  string
	AnalysisTimestamp time.Time
	Warnings         []SanitizationWarning
}

// SanitizationWarning records one action the response sanitizer took on a
// single field.
type SanitizationWarning struct {
	FieldPath string
	Action    string
	Reason    string
}

// ProcessingStatus is the pipeline-wide snapshot returned by
// GET /api/analyze/status.
type ProcessingStatus struct {
	PendingTier1   int
	PendingTier2   int
	PendingTier3   int
	FullyAnalyzed  int
	ActiveTier     *Tier
	CurrentTime    time.Time
}

// TierStatistics is the per-tier aggregate returned by
// GET /api/analyze/tier-stats.
type TierStatistics struct {
	TotalAnalyzed     int
	AvgTokens         float64
	AvgResponseTimeMS float64
	SuccessRate       float64
}
