// Package reranker reorders the top candidates of a ranked list using the
// external language-understanding service, with a local term-overlap
// implementation as an offline alternative.
//
// Reranking is a best-effort refinement, never a hard dependency: on any
// service failure or unparseable response the reranker reports the input
// order unchanged with Applied=false.
package reranker

import (
	"context"
	"errors"
)

// MaxRerankCandidates caps how many candidates are sent to the reranker.
const MaxRerankCandidates = 20

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("reranker: context cannot be nil")

// Item is a candidate summary handed to the reranker: enough for relevance
// judgment, small enough to keep the prompt bounded.
type Item struct {
	// Key is the candidate dedup key (contentType/id).
	Key string

	// Title is the candidate's display title.
	Title string

	// Excerpt is a short content excerpt.
	Excerpt string

	// Score is the candidate's pre-rerank score.
	Score float64
}

// Ranking is the reranker's verdict.
type Ranking struct {
	// Order lists item keys in the new order. Always a permutation of the
	// input keys: unknown keys from the service are dropped, missing input
	// keys are appended in their original order.
	Order []string

	// Quality maps item key to the service's quality score, empty when
	// reranking was not applied.
	Quality map[string]float64

	// Applied is false when the reranker no-opped (service failure,
	// malformed response, or reranking disabled).
	Applied bool
}

// Reranker reorders candidate summaries by relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []Item, userInterests []string) (Ranking, error)
}

// identityRanking reports the input order unchanged.
func identityRanking(items []Item) Ranking {
	order := make([]string, len(items))
	for i, it := range items {
		order[i] = it.Key
	}
	return Ranking{Order: order, Applied: false}
}
