package candidate

import (
	"errors"
	"fmt"
)

// Algorithm selects the recommendation strategy.
type Algorithm string

const (
	AlgorithmCollaborative Algorithm = "collaborative"
	AlgorithmContent       Algorithm = "content"
	AlgorithmHybrid        Algorithm = "hybrid"
)

// ErrInvalidConfig indicates invalid ranking configuration.
var ErrInvalidConfig = errors.New("candidate: invalid ranking config")

// RankingConfig holds the per-request ranking tunables. It is a value
// object: construct it with DefaultRankingConfig, adjust fields, then pass
// by value. The engine never mutates it after validation.
type RankingConfig struct {
	// ScoreThreshold drops retrieval results scored below it before fusion.
	ScoreThreshold float64 `json:"score_threshold"`

	// DiversityThreshold in (0,1] caps a single cluster's share of results.
	DiversityThreshold float64 `json:"diversity_threshold"`

	// TimeDecayFactor in (0,1] is the per-hour exponential decay base.
	TimeDecayFactor float64 `json:"time_decay_factor"`

	// EnableDiversityFiltering toggles the diversity filter stage.
	EnableDiversityFiltering bool `json:"enable_diversity_filtering"`

	// EnableSerendipity toggles the serendipity injector.
	EnableSerendipity bool `json:"enable_serendipity"`

	// SerendipityFactor in [0,1] is the fraction of low-rank candidates
	// eligible for promotion.
	SerendipityFactor float64 `json:"serendipity_factor"`

	// Limit is the maximum number of results returned.
	Limit int `json:"limit"`

	// Algorithm selects the recommendation strategy.
	Algorithm Algorithm `json:"algorithm"`

	// VectorWeight and EngagementWeight blend similarity and engagement in
	// the trending/recommendation score. The 0.6/0.4 defaults are a
	// starting point, not a derived optimum; tune per deployment.
	VectorWeight     float64 `json:"vector_weight"`
	EngagementWeight float64 `json:"engagement_weight"`
}

// DefaultRankingConfig returns the documented defaults.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		ScoreThreshold:           0.3,
		DiversityThreshold:       0.5,
		TimeDecayFactor:          0.98,
		EnableDiversityFiltering: true,
		EnableSerendipity:        false,
		SerendipityFactor:        0.1,
		Limit:                    20,
		Algorithm:                AlgorithmHybrid,
		VectorWeight:             0.6,
		EngagementWeight:         0.4,
	}
}

// Validate rejects invalid tunables before any retrieval work begins.
func (c RankingConfig) Validate() error {
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score_threshold %v outside [0,1]", ErrInvalidConfig, c.ScoreThreshold)
	}
	if c.DiversityThreshold <= 0 || c.DiversityThreshold > 1 {
		return fmt.Errorf("%w: diversity_threshold %v outside (0,1]", ErrInvalidConfig, c.DiversityThreshold)
	}
	if c.TimeDecayFactor <= 0 || c.TimeDecayFactor > 1 {
		return fmt.Errorf("%w: time_decay_factor %v outside (0,1]", ErrInvalidConfig, c.TimeDecayFactor)
	}
	if c.SerendipityFactor < 0 || c.SerendipityFactor > 1 {
		return fmt.Errorf("%w: serendipity_factor %v outside [0,1]", ErrInvalidConfig, c.SerendipityFactor)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidConfig, c.Limit)
	}
	switch c.Algorithm {
	case AlgorithmCollaborative, AlgorithmContent, AlgorithmHybrid:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	if c.VectorWeight < 0 || c.EngagementWeight < 0 {
		return fmt.Errorf("%w: blend weights must be non-negative", ErrInvalidConfig)
	}
	return nil
}
