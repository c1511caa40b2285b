package tieranalyzer

import "github.com/merlin2/tieranalysis/internal/promptreg"

// The *CanonicalSource constants are the versioned, binary-embedded
// ground truth for each tier's prompt skeleton, wrapped in
// PROMPT_START/PROMPT_END markers per promptreg.ExtractFromSource. They
// hold only the instructional/schema text — the parts the normalization
// pipeline does NOT strip — since job content and timestamps are
// normalized away before hashing regardless of which concrete jobs a
// batch happens to contain.
const tier1CanonicalSource = `
PROMPT_START
Analyze these 1 job postings for authenticity, industry classification, and ATS-optimized structured data.

For each job, think step by step:
1. Does the title match the described role? Are there signs of a scam or fraudulent posting?
2. What industry, sub-industry, job function, and seniority level does this role belong to?
3. Extract structured data: a skills list and ATS keywords with a keyword_category, plus an ATS optimization score.

` + tier1ResponseSchema + `
PROMPT_END
`

const tier2CanonicalSource = `
PROMPT_START
Analyze these 1 job postings for workload stress level, red flags, and implicit requirements.

For each job, think step by step:
1. Estimate a stress/workload score in [0,1] and name its drivers (on-call, understaffing, scope creep, unrealistic deadlines).
2. Identify red flags: category, description, severity.
3. Surface implicit requirements the posting doesn't state outright, with a confidence in [0,1].

` + tier2ResponseSchema + `
PROMPT_END
`

const tier3CanonicalSource = `
PROMPT_START
Analyze these 1 job postings for employer prestige and cover-letter strategy.

For each job, think step by step:
1. Assess employer/role prestige on a 0-100 scale and assign a tier label.
2. Recommend cover-letter key themes, tone guidance, and an opening strategy.

` + tier3ResponseSchema + `
PROMPT_END
`

func canonicalGetterFor(tier string) promptreg.CanonicalGetter {
	var source string
	switch tier {
	case Tier1PromptName:
		source = tier1CanonicalSource
	case Tier2PromptName:
		source = tier2CanonicalSource
	case Tier3PromptName:
		source = tier3CanonicalSource
	}
	return func() (string, error) {
		return promptreg.ExtractFromSource(source)
	}
}
