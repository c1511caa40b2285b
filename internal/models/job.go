// Package models holds the data types shared across the tier analysis
// pipeline: jobs, tier state, analysis artifacts and catalog entries.
package models

import "time"

// Job is the opaque unit of work the pipeline analyzes. It is created and
// owned by an external collaborator (the scraper/CRUD layer); the core is
// read-only over it.
type Job struct {
	ID          string
	Title       string
	Description string
	Company     string
}

// Tier identifies one of the three sequential analysis passes.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return "unknown"
	}
}

// TierProgress carries the per-tier completion flag and timing metadata for
// one job. TierState is append-forward: once Completed is true for a tier,
// the core never clears it.
type TierProgress struct {
	Completed       bool
	CompletedAt     time.Time
	TokensUsed      int
	ModelUsed       string
	ResponseTimeMS  int
}

// TierState is the full per-job record across all three tiers. Invariant:
// Tier2.Completed implies Tier1.Completed, and Tier3.Completed implies
// Tier2.Completed.
type TierState struct {
	JobID string
	Tier1 TierProgress
	Tier2 TierProgress
	Tier3 TierProgress
}

// Completed returns the progress record for tier k (1, 2 or 3).
func (s *TierState) Completed(k Tier) bool {
	switch k {
	case Tier1:
		return s.Tier1.Completed
	case Tier2:
		return s.Tier2.Completed
	case Tier3:
		return s.Tier3.Completed
	default:
		return false
	}
}

// PriorTierCompleted checks the invariant precondition for tier k: tier k-1
// must be complete (vacuously true for k=1).
func (s *TierState) PriorTierCompleted(k Tier) bool {
	if k == Tier1 {
		return true
	}
	return s.Completed(k - 1)
}
