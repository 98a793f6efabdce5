// Package expander turns one raw query into a bounded set of retrieval
// queries using the external text-understanding service.
//
// Expansion is best-effort: on any failure (timeout, malformed response,
// service unavailable) the expander degrades to identity expansion and the
// request proceeds with the original query alone. Expansion failure must
// never fail the overall request.
package expander

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/llm"
)

// SearchMode hints how aggressively to expand.
type SearchMode string

const (
	ModeBroad    SearchMode = "broad"
	ModeSpecific SearchMode = "specific"
	ModeCreative SearchMode = "creative"
)

// Context carries optional request context into the expansion prompt.
type Context struct {
	PreviousQueries []string
	UserInterests   []string
	SearchMode      SearchMode
}

// DefaultMaxQueries bounds the semantic fan-out per request, primary
// included.
const DefaultMaxQueries = 5

// MaxCrossModalQueries is a separate small budget for cross-modal variants,
// so a full semantic expansion cannot crowd them out.
const MaxCrossModalQueries = 2

// Expander generates expanded queries via an LLM client.
type Expander struct {
	client     llm.Client
	maxQueries int
	logger     *zap.Logger
}

// New creates an expander. client may be nil, in which case every call
// returns the identity expansion.
func New(client llm.Client, maxQueries int, logger *zap.Logger) *Expander {
	if maxQueries <= 0 {
		maxQueries = DefaultMaxQueries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{client: client, maxQueries: maxQueries, logger: logger}
}

// expansionResponse is the expected response shape. The payload is
// untrusted: any missing or malformed field is treated as empty, never as a
// hard error.
type expansionResponse struct {
	EnhancedQueries    []string `json:"enhancedQueries"`
	SemanticExpansions []string `json:"semanticExpansions"`
	CrossModalQueries  []string `json:"crossModalQueries"`
	Reasoning          string   `json:"reasoning"`
}

// Expand returns the expanded queries for the raw input, always including
// the original query first with role primary.
func (e *Expander) Expand(ctx context.Context, query string, ec Context) []candidate.ExpandedQuery {
	primary := []candidate.ExpandedQuery{{Text: query, Role: candidate.RolePrimary}}
	if e.client == nil {
		return primary
	}

	raw, err := e.client.Complete(ctx, e.buildPrompt(query, ec))
	if err != nil {
		e.logger.Warn("query expansion failed, using identity expansion",
			zap.Error(err))
		return primary
	}

	parsed := parseExpansion(raw)

	out := primary
	seen := map[string]bool{strings.ToLower(query): true}
	add := func(texts []string, role candidate.QueryRole, budget *int) {
		for _, t := range texts {
			t = strings.TrimSpace(t)
			if t == "" || seen[strings.ToLower(t)] || *budget <= 0 {
				continue
			}
			seen[strings.ToLower(t)] = true
			out = append(out, candidate.ExpandedQuery{Text: t, Role: role})
			*budget--
		}
	}

	semantic := e.maxQueries - len(out)
	crossModal := MaxCrossModalQueries
	add(parsed.EnhancedQueries, candidate.RoleSemanticExpansion, &semantic)
	add(parsed.SemanticExpansions, candidate.RoleSemanticExpansion, &semantic)
	add(parsed.CrossModalQueries, candidate.RoleCrossModal, &crossModal)

	e.logger.Debug("query expanded",
		zap.Int("count", len(out)),
		zap.String("reasoning", parsed.Reasoning))

	return out
}

// parseExpansion extracts the expansion payload from the model output. The
// model occasionally wraps JSON in prose or code fences, so the parser
// scans for the outermost object before unmarshalling.
func parseExpansion(raw string) expansionResponse {
	var resp expansionResponse

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return resp
	}

	// Unmarshal errors leave resp zero-valued, which is the documented
	// fallback for a malformed payload.
	_ = json.Unmarshal([]byte(raw[start:end+1]), &resp)
	return resp
}

func (e *Expander) buildPrompt(query string, ec Context) string {
	var b strings.Builder
	b.WriteString("Expand the following search query for a content discovery system.\n")
	b.WriteString("Respond with a single JSON object of the shape:\n")
	b.WriteString(`{"enhancedQueries": [], "semanticExpansions": [], "crossModalQueries": [], "reasoning": ""}` + "\n\n")
	fmt.Fprintf(&b, "Query: %s\n", query)

	if ec.SearchMode != "" {
		fmt.Fprintf(&b, "Search mode: %s\n", ec.SearchMode)
	}
	if len(ec.PreviousQueries) > 0 {
		fmt.Fprintf(&b, "Previous queries: %s\n", strings.Join(ec.PreviousQueries, "; "))
	}
	if len(ec.UserInterests) > 0 {
		fmt.Fprintf(&b, "User interests: %s\n", strings.Join(ec.UserInterests, "; "))
	}

	fmt.Fprintf(&b, "\nReturn at most %d queries across enhancedQueries and semanticExpansions, and at most %d crossModalQueries.\n",
		e.maxQueries-1, MaxCrossModalQueries)
	return b.String()
}
