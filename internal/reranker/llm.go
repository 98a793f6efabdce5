package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fernhill/discoveryd/internal/llm"
)

// LLMReranker asks the external language-understanding service to reorder
// candidate summaries.
type LLMReranker struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMReranker creates a reranker over the given LLM client.
func NewLLMReranker(client llm.Client, logger *zap.Logger) *LLMReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMReranker{client: client, logger: logger}
}

// rerankResponse is the expected strict JSON response shape.
type rerankResponse struct {
	RankedIDs     []string           `json:"rankedIds"`
	QualityScores map[string]float64 `json:"qualityScores"`
	Reasoning     string             `json:"reasoning"`
}

// Rerank sends candidate summaries to the service and validates the
// response against the input set. Any failure yields the input order with
// Applied=false — never an error the caller must handle beyond logging.
func (r *LLMReranker) Rerank(ctx context.Context, query string, items []Item, userInterests []string) (Ranking, error) {
	if ctx == nil {
		return Ranking{}, ErrNilContext
	}
	if len(items) == 0 {
		return Ranking{Applied: false}, nil
	}
	if len(items) > MaxRerankCandidates {
		items = items[:MaxRerankCandidates]
	}
	if r.client == nil {
		return identityRanking(items), nil
	}

	raw, err := r.client.Complete(ctx, r.buildPrompt(query, items, userInterests))
	if err != nil {
		r.logger.Warn("rerank call failed, keeping original order", zap.Error(err))
		return identityRanking(items), nil
	}

	resp, ok := parseRerank(raw)
	if !ok {
		r.logger.Warn("rerank response unparseable, keeping original order")
		return identityRanking(items), nil
	}

	return validate(resp, items), nil
}

// validate builds a Ranking from the untrusted response: ids not present in
// the input are ignored, duplicates collapse to their first occurrence, and
// input ids the service omitted are appended in original order.
func validate(resp rerankResponse, items []Item) Ranking {
	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.Key] = true
	}

	order := make([]string, 0, len(items))
	placed := make(map[string]bool, len(items))
	for _, id := range resp.RankedIDs {
		if known[id] && !placed[id] {
			order = append(order, id)
			placed[id] = true
		}
	}
	for _, it := range items {
		if !placed[it.Key] {
			order = append(order, it.Key)
		}
	}

	quality := make(map[string]float64, len(resp.QualityScores))
	for id, score := range resp.QualityScores {
		if !known[id] {
			continue
		}
		// Out-of-range quality scores are clamped, not trusted.
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		quality[id] = score
	}

	return Ranking{Order: order, Quality: quality, Applied: true}
}

// parseRerank extracts the JSON object from the model output, tolerating
// surrounding prose or code fences.
func parseRerank(raw string) (rerankResponse, bool) {
	var resp rerankResponse

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return resp, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return resp, false
	}
	if len(resp.RankedIDs) == 0 {
		return resp, false
	}
	return resp, true
}

func (r *LLMReranker) buildPrompt(query string, items []Item, userInterests []string) string {
	var b strings.Builder
	b.WriteString("Rerank the following content candidates by relevance to the query.\n")
	b.WriteString("Respond with a single JSON object of the shape:\n")
	b.WriteString(`{"rankedIds": ["id", ...], "qualityScores": {"id": 0.0}, "reasoning": ""}` + "\n\n")
	fmt.Fprintf(&b, "Query: %s\n", query)
	if len(userInterests) > 0 {
		fmt.Fprintf(&b, "User interests: %s\n", strings.Join(userInterests, "; "))
	}
	b.WriteString("\nCandidates:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- id: %s | score: %.3f | title: %s | excerpt: %s\n",
			it.Key, it.Score, it.Title, truncate(it.Excerpt, 200))
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var _ Reranker = (*LLMReranker)(nil)
