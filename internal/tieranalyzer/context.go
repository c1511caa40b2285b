package tieranalyzer

import (
	"fmt"
	"strings"

	"github.com/merlin2/tieranalysis/internal/limits"
	"github.com/merlin2/tieranalysis/internal/models"
)

// priorContext is the trimmed view of a job's prior-tier artifacts that
// gets folded into the next tier's prompt — enough to steer the model,
// not the whole prior output (spec §4.5).
type priorContext struct {
	Skills              []string
	AuthenticityScore   string // "authentic" / "questionable" / "unknown"
	StressLevel         float64
	RedFlagCategories   []string
	ImplicitRequirements []string
}

func (p priorContext) render() string {
	if p.AuthenticityScore == "" && len(p.Skills) == 0 && len(p.RedFlagCategories) == 0 {
		return "(no prior-tier context)"
	}
	var sb strings.Builder
	if p.AuthenticityScore != "" {
		fmt.Fprintf(&sb, "- Authenticity: %s\n", p.AuthenticityScore)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&sb, "- Top skills: %s\n", strings.Join(p.Skills, ", "))
	}
	if p.StressLevel > 0 {
		fmt.Fprintf(&sb, "- Stress level score: %.2f\n", p.StressLevel)
	}
	if len(p.RedFlagCategories) > 0 {
		fmt.Fprintf(&sb, "- Red flag categories: %s\n", strings.Join(p.RedFlagCategories, ", "))
	}
	if len(p.ImplicitRequirements) > 0 {
		fmt.Fprintf(&sb, "- Implicit requirements: %s\n", strings.Join(p.ImplicitRequirements, "; "))
	}
	return sb.String()
}

// buildPriorContext trims tier1 (and tier2, for tier3 prompts) artifacts
// down to the signals spec §4.5 names.
func buildPriorContext(trimmer *limits.ContextTrimmer, tier1 *models.AnalysisArtifact, tier2 *models.AnalysisArtifact) priorContext {
	lim := trimmer.Limits()
	var ctx priorContext

	if tier1 != nil && tier1.Tier1 != nil {
		ctx.Skills = trimmer.TrimStrings(tier1.Tier1.StructuredData.Skills, lim.MaxSkills)
		if tier1.Tier1.AuthenticityCheck.IsAuthentic {
			ctx.AuthenticityScore = "authentic"
		} else {
			ctx.AuthenticityScore = "questionable"
		}
	}

	if tier2 != nil && tier2.Tier2 != nil {
		ctx.StressLevel = tier2.Tier2.StressLevelAnalysis.Score
		categories := make([]string, 0, len(tier2.Tier2.RedFlags))
		for _, f := range tier2.Tier2.RedFlags {
			categories = append(categories, f.Category)
		}
		ctx.RedFlagCategories = trimmer.TrimStrings(categories, lim.MaxRedFlagCategories)

		reqs := make([]string, 0, len(tier2.Tier2.ImplicitRequirements))
		for _, r := range tier2.Tier2.ImplicitRequirements {
			reqs = append(reqs, r.Requirement)
		}
		ctx.ImplicitRequirements = trimmer.TrimStrings(reqs, lim.MaxImplicitRequirements)
	}

	return ctx
}
