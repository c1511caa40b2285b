// Package limits bounds how much of a job's prior-tier analysis is
// carried forward as cumulative context for the next tier (spec §4.5):
// enough to steer analysis, not the whole prior output.
package limits

import "fmt"

// ContextLimits caps how many items of each prior-tier signal survive
// into the next tier's prompt.
type ContextLimits struct {
	MaxSkills               int
	MaxImplicitRequirements int
	MaxRedFlagCategories    int
}

// DefaultContextLimits matches spec §4.5's worked example: top-5 skills,
// authenticity score, stress level, red-flag flags, 3 implicit
// requirements.
func DefaultContextLimits() *ContextLimits {
	return &ContextLimits{
		MaxSkills:               5,
		MaxImplicitRequirements: 3,
		MaxRedFlagCategories:    5,
	}
}

// ContextTrimmer applies ContextLimits when building cumulative context
// for a tier's prompt.
type ContextTrimmer struct {
	limits *ContextLimits
}

// NewContextTrimmer builds a trimmer with the given limits, or the
// defaults if limits is nil.
func NewContextTrimmer(limits *ContextLimits) *ContextTrimmer {
	if limits == nil {
		limits = DefaultContextLimits()
	}
	return &ContextTrimmer{limits: limits}
}

// Limits returns the active limits.
func (t *ContextTrimmer) Limits() *ContextLimits {
	return t.limits
}

// UpdateLimits replaces the active limits after validating them.
func (t *ContextTrimmer) UpdateLimits(limits *ContextLimits) error {
	if err := validate(limits); err != nil {
		return err
	}
	t.limits = limits
	return nil
}

func validate(l *ContextLimits) error {
	if l.MaxSkills <= 0 {
		return fmt.Errorf("MaxSkills must be positive")
	}
	if l.MaxImplicitRequirements <= 0 {
		return fmt.Errorf("MaxImplicitRequirements must be positive")
	}
	if l.MaxRedFlagCategories <= 0 {
		return fmt.Errorf("MaxRedFlagCategories must be positive")
	}
	return nil
}

// TrimStrings returns at most n elements of in, preserving order.
func (t *ContextTrimmer) TrimStrings(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
