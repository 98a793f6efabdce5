// Package scoring adjusts fused similarity scores for recency and
// engagement.
//
// The adjusted score is
//
//	final = vectorWeight*fused*decay(t) + engagementWeight*normalizedEngagement
//
// where decay(t) = timeDecayFactor^hoursSince(t). Exponential decay means
// very old content contributes negligibly unless its raw relevance is
// exceptional. Candidates without a timestamp (e.g. categories) are passed
// through unchanged.
package scoring

import (
	"math"
	"time"

	"github.com/fernhill/discoveryd/internal/candidate"
)

// engagementCalibration is the engagement rate treated as saturation: a
// candidate gathering this many weighted interactions per hour gets the
// full engagement contribution.
const engagementCalibration = 10.0

// Engagement holds the interaction counts for one candidate, supplied via
// metadata enrichment.
type Engagement struct {
	Comments int
	Votes    int
}

// Scorer applies recency decay and engagement adjustment.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a scorer using wall-clock time.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// NewScorerAt creates a scorer with an injected clock for deterministic
// tests.
func NewScorerAt(now func() time.Time) *Scorer {
	return &Scorer{now: now}
}

// Score returns the adjusted score for one candidate. fused is the fused
// similarity score in [0,1]. The result is clamped to [0,1].
func (s *Scorer) Score(c candidate.Candidate, fused float64, eng Engagement, cfg candidate.RankingConfig) float64 {
	if c.Timestamp.IsZero() {
		return clamp01(fused)
	}

	hours := s.now().Sub(c.Timestamp).Hours()
	if hours < 0 {
		hours = 0
	}

	decay := math.Pow(cfg.TimeDecayFactor, hours)

	rate := float64(eng.Comments*2+eng.Votes) / math.Max(hours, 1)
	normalized := math.Min(rate/engagementCalibration, 1)

	score := cfg.VectorWeight*fused*decay + cfg.EngagementWeight*normalized
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
