// Package serendipity probabilistically promotes lower-ranked candidates to
// counter pure popularity bias.
//
// This is the only place in the pipeline where randomness is permitted. The
// random seed is constructor-injected so runs are reproducible under a
// fixed seed; an ambient global source would make the determinism guarantees
// of the rest of the pipeline untestable.
package serendipity

import (
	"math/rand"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/diversity"
)

// Pick is a diversity-selected candidate, possibly promoted out of score
// order by the injector.
type Pick struct {
	diversity.Selected

	// Serendipitous marks candidates promoted above their sorted position.
	Serendipitous bool
}

// Injector promotes a fraction of low-rank candidates above their
// score-sorted position.
//
// Each Inject call draws from its own source derived from the seed, so the
// injector is safe for concurrent use and a given input always produces the
// same order regardless of what other requests ran before it.
type Injector struct {
	seed int64
}

// NewInjector creates an injector from the given seed.
func NewInjector(seed int64) *Injector {
	return &Injector{seed: seed}
}

// Inject promotes up to serendipityFactor*len(ranked) candidates from the
// bottom half into positions in the top half, each with probability
// serendipityFactor. A candidate scoring below scoreThreshold is never
// promoted. Promoted candidates are flagged; displaced items stay in the
// list at the vacated position.
//
// When cfg.EnableSerendipity is false the order is returned unchanged, so
// two runs on identical input produce identical ordering.
func (in *Injector) Inject(ranked []diversity.Selected, cfg candidate.RankingConfig) []Pick {
	out := make([]Pick, len(ranked))
	for i, sel := range ranked {
		out[i] = Pick{Selected: sel}
	}

	if !cfg.EnableSerendipity || cfg.SerendipityFactor <= 0 || len(out) < 4 {
		return out
	}

	rng := rand.New(rand.NewSource(in.seed))
	half := len(out) / 2
	budget := int(cfg.SerendipityFactor * float64(len(out)))
	if budget < 1 {
		budget = 1
	}

	promoted := 0
	for i := len(out) - 1; i >= half && promoted < budget; i-- {
		if out[i].RawScore < cfg.ScoreThreshold {
			continue
		}
		if rng.Float64() >= cfg.SerendipityFactor {
			continue
		}

		j := rng.Intn(half)
		out[i], out[j] = out[j], out[i]
		out[j].Serendipitous = true
		promoted++
	}

	return out
}
