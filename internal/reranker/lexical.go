package reranker

import (
	"context"
	"sort"
	"strings"
)

// LexicalReranker reorders candidates by term overlap between the query and
// the candidate text. It needs no external service, so it serves
// deployments that disable the LLM path but still want a rerank pass.
//
// The combined score weighs the original similarity score and the overlap
// ratio equally: the similarity score carries the semantic signal, the
// overlap boosts exact-term matches the embedding may have smoothed over.
type LexicalReranker struct{}

// NewLexicalReranker creates a LexicalReranker.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Rerank orders items by 0.5*score + 0.5*termOverlap, descending.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, items []Item, _ []string) (Ranking, error) {
	if ctx == nil {
		return Ranking{}, ErrNilContext
	}
	if len(items) == 0 {
		return Ranking{Applied: false}, nil
	}
	if len(items) > MaxRerankCandidates {
		items = items[:MaxRerankCandidates]
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return identityRanking(items), nil
	}

	type scored struct {
		key      string
		overlap  float64
		combined float64
	}
	ranked := make([]scored, len(items))
	for i, it := range items {
		overlap := termOverlap(queryTokens, tokenize(it.Title+" "+it.Excerpt))
		ranked[i] = scored{
			key:      it.Key,
			overlap:  overlap,
			combined: 0.5*it.Score + 0.5*overlap,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].combined > ranked[j].combined
	})

	order := make([]string, len(ranked))
	quality := make(map[string]float64, len(ranked))
	for i, s := range ranked {
		order[i] = s.key
		quality[s.key] = s.overlap
	}

	return Ranking{Order: order, Quality: quality, Applied: true}, nil
}

// tokenize splits text into lowercase terms, dropping stopwords and tokens
// shorter than three characters.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) > 2 && !stopwords[token] {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "these": true, "those": true, "was": true,
	"are": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"why": true, "how": true, "you": true, "they": true,
}

// termOverlap returns the ratio of unique query terms present in the
// document tokens, in [0,1].
func termOverlap(queryTokens, docTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	docSet := make(map[string]bool, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = true
	}

	matched := make(map[string]bool)
	for _, t := range queryTokens {
		if docSet[t] {
			matched[t] = true
		}
	}

	unique := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		unique[t] = true
	}

	return float64(len(matched)) / float64(len(unique))
}

var _ Reranker = (*LexicalReranker)(nil)
