package rank

import (
	"math"
	"time"
)

// DefaultHalflifeDays is the recency half-life applied when none is configured.
const DefaultHalflifeDays = 30.0

// TemporalScorer scores documents by age with exponential decay. A document
// exactly one half-life old scores 0.5, two half-lives 0.25, and so on.
type TemporalScorer struct {
	halflifeDays float64
}

// NewTemporalScorer creates a scorer with the given half-life in days.
// Non-positive values fall back to the default.
func NewTemporalScorer(halflifeDays float64) *TemporalScorer {
	if halflifeDays <= 0 {
		halflifeDays = DefaultHalflifeDays
	}
	return &TemporalScorer{halflifeDays: halflifeDays}
}

// Score returns the recency score of a document dated docTime as seen at now.
// Documents with no date at all score a neutral 0.5; documents dated in the
// future score 1.0.
func (s *TemporalScorer) Score(docTime, now time.Time) float64 {
	if docTime.IsZero() {
		return 0.5
	}
	ageDays := now.Sub(docTime).Hours() / 24
	if ageDays < 0 {
		return 1.0
	}
	score := math.Exp2(-ageDays / s.halflifeDays)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
