package validator

import (
	"fmt"
	"strings"

	"github.com/merlin2/tieranalysis/internal/models"
)

// requiredFields lists the top-level keys each tier's per-job result must
// contain, transcribed from tier1_analyzer.py's _parse_tier1_response (and
// the equivalent Tier 2/3 parsers) required-field checks.
var requiredFields = map[models.Tier][]string{
	models.Tier1: {"authenticity_check", "classification", "structured_data"},
	models.Tier2: {"stress_level_analysis", "red_flags", "implicit_requirements"},
	models.Tier3: {"prestige_analysis", "cover_letter_insight"},
}

func checkStructure(tier models.Tier, result map[string]any) error {
	if _, ok := result["job_id"]; !ok {
		return fmt.Errorf("missing required field job_id")
	}
	for _, field := range requiredFields[tier] {
		if _, ok := result[field]; !ok {
			return fmt.Errorf("missing required field %s", field)
		}
	}
	return nil
}

// injectionMarkers are substrings that indicate the model's response text
// itself was steered off task — evidence prompt injection partially
// succeeded even though the security token still round-tripped.
var injectionMarkers = []string{
	"i am an ai",
	"system prompt",
	"ignore previous",
	"ignore all previous",
	"as an ai language model",
	"i cannot verify",
	"disregard the above",
}

// suspiciousSkillPhrases flags skill_name entries an injected prompt might
// plant to leak instructions back out through a normally-benign field.
var suspiciousSkillPhrases = []string{
	"prompt injection",
	"bypass security",
	"ignore instructions",
	"system prompt",
	"jailbreak",
}

func screenContent(rawText string) error {
	lower := strings.ToLower(rawText)
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("content screen: response contains injection marker %q", marker)
		}
	}
	return nil
}

// screenSkillNames walks a decoded result looking for a "skill_name" key
// anywhere in the tree and checks its value against suspiciousSkillPhrases.
func screenSkillNames(value any) error {
	switch v := value.(type) {
	case map[string]any:
		for key, nested := range v {
			if key == "skill_name" {
				if s, ok := nested.(string); ok {
					lower := strings.ToLower(s)
					for _, phrase := range suspiciousSkillPhrases {
						if strings.Contains(lower, phrase) {
							return fmt.Errorf("content screen: suspicious skill_name %q", s)
						}
					}
				}
			}
			if err := screenSkillNames(nested); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := screenSkillNames(item); err != nil {
				return err
			}
		}
	}
	return nil
}
