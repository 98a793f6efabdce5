package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/diversity"
	"github.com/fernhill/discoveryd/internal/expander"
	"github.com/fernhill/discoveryd/internal/fusion"
	"github.com/fernhill/discoveryd/internal/metastore"
	"github.com/fernhill/discoveryd/internal/reranker"
	"github.com/fernhill/discoveryd/internal/retriever"
	"github.com/fernhill/discoveryd/internal/scoring"
	"github.com/fernhill/discoveryd/internal/serendipity"
)

const instrumentationName = "github.com/fernhill/discoveryd/internal/engine"

// Sentinel errors for engine requests.
var (
	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("engine: empty query")

	// ErrEmptyUserID is returned for a blank recommendation user id.
	ErrEmptyUserID = errors.New("engine: empty user id")

	// ErrInternal wraps failures in the pure in-memory stages. These are
	// programming errors: not retried, not swallowed.
	ErrInternal = errors.New("engine: internal pipeline error")
)

// stage names the orchestrator states, in pipeline order.
type stage string

const (
	stageExpanding  stage = "expanding"
	stageRetrieving stage = "retrieving"
	stageFusing     stage = "fusing"
	stageFiltering  stage = "filtering"
	stageScoring    stage = "scoring"
	stageReranking  stage = "reranking"
)

// Request is one search or recommendation invocation.
type Request struct {
	// Query is the raw search query (search path only).
	Query string

	// UserID identifies the user (recommendation path only).
	UserID string

	// ContentTypes are the targeted content types; empty means posts.
	ContentTypes []candidate.ContentType

	// Category restricts retrieval to one category when set.
	Category string

	// Since restricts retrieval to content created at or after the time.
	Since time.Time

	// Expansion carries optional context into query expansion.
	Expansion expander.Context

	// Config holds the ranking tunables for this request.
	Config candidate.RankingConfig
}

// Response is the ranked output plus degradation annotations.
type Response struct {
	// RequestID identifies this invocation in logs.
	RequestID string `json:"request_id"`

	// Results are the ranked candidates, best first.
	Results []candidate.RankedResult `json:"results"`

	// SearchType reports which retrieval path served the request.
	SearchType retriever.SearchType `json:"search_type"`

	// RerankingApplied is false when the rerank pass no-opped.
	RerankingApplied bool `json:"reranking_applied"`

	// ExpandedQueries is the number of retrieval queries used.
	ExpandedQueries int `json:"expanded_queries"`
}

// Config holds engine-level settings independent of per-request tunables.
type Config struct {
	// RequestTimeout is the deadline for a whole request, covering
	// expansion, retrieval, and rerank.
	RequestTimeout time.Duration

	// SerendipitySeed seeds the injector. Zero means seeded from the
	// clock at construction; fix it for reproducible runs.
	SerendipitySeed int64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.SerendipitySeed == 0 {
		c.SerendipitySeed = time.Now().UnixNano()
	}
}

// Engine wires the pipeline components.
type Engine struct {
	expander  *expander.Expander
	retriever *retriever.Retriever
	meta      metastore.Store
	scorer    *scoring.Scorer
	injector  *serendipity.Injector
	reranker  reranker.Reranker
	config    Config
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *metrics
}

// New creates an engine. reranker may be nil to disable the rerank stage;
// every other collaborator is required.
func New(
	exp *expander.Expander,
	ret *retriever.Retriever,
	meta metastore.Store,
	rr reranker.Reranker,
	cfg Config,
	logger *zap.Logger,
) (*Engine, error) {
	if exp == nil {
		return nil, fmt.Errorf("engine: expander is required")
	}
	if ret == nil {
		return nil, fmt.Errorf("engine: retriever is required")
	}
	if meta == nil {
		return nil, fmt.Errorf("engine: metastore is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &Engine{
		expander:  exp,
		retriever: ret,
		meta:      meta,
		scorer:    scoring.NewScorer(),
		injector:  serendipity.NewInjector(cfg.SerendipitySeed),
		reranker:  rr,
		config:    cfg,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		metrics:   newMetrics(logger),
	}, nil
}

// WithClock replaces the scorer's clock. Test hook; not safe to call after
// the engine starts serving.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.scorer = scoring.NewScorerAt(now)
	return e
}

// Search runs the query-driven pipeline.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "engine.Search",
		trace.WithAttributes(attribute.String("query", req.Query)))
	defer span.End()

	queries := e.expand(ctx, req)
	return e.run(ctx, req, req.Query, queries)
}

// Recommend runs the profile-driven pipeline. The user's interest topics
// become the retrieval queries; a user without interests falls back to
// trending content.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrEmptyUserID
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "engine.Recommend",
		trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer span.End()

	interests, err := e.meta.Interests(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			e.logger.Info("no interest profile, serving trending",
				zap.String("user_id", req.UserID))
			return e.Trending(ctx, req)
		}
		return nil, fmt.Errorf("engine: loading interests: %w", err)
	}

	// Each interest topic becomes one retrieval query; the strongest
	// interest is the primary so the keyword fallback still has a query.
	max := expander.DefaultMaxQueries
	if len(interests) < max {
		max = len(interests)
	}
	queries := make([]candidate.ExpandedQuery, max)
	for i, topic := range interests[:max] {
		role := candidate.RoleSemanticExpansion
		if i == 0 {
			role = candidate.RolePrimary
		}
		queries[i] = candidate.ExpandedQuery{Text: topic, Role: role}
	}

	req.Expansion.UserInterests = interests
	return e.run(ctx, req, strings.Join(interests[:max], " "), queries)
}

// Trending ranks recent content by the recency/engagement blend alone; no
// query, no expansion, no rerank.
func (e *Engine) Trending(ctx context.Context, req Request) (*Response, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "engine.Trending")
	defer span.End()

	types := req.ContentTypes
	if len(types) == 0 {
		types = []candidate.ContentType{candidate.ContentTypePost}
	}
	since := req.Since
	if since.IsZero() {
		since = time.Now().Add(-7 * 24 * time.Hour)
	}

	var fused []candidate.Candidate
	for _, ct := range types {
		records, err := e.meta.FindMany(ctx, ct, metastore.Filter{
			Category: req.Category,
			Since:    since,
		}, metastore.Page{Limit: req.Config.Limit * 3})
		if err != nil {
			e.logger.Warn("trending query failed",
				zap.String("content_type", string(ct)),
				zap.Error(err))
			continue
		}
		for _, rec := range records {
			fused = append(fused, candidate.Candidate{
				ID:          rec.ID,
				ContentType: rec.ContentType,
				Title:       rec.Title,
				Excerpt:     rec.Excerpt,
				RawScore:    0.5,
				Sources:     []string{"trending"},
				Timestamp:   rec.CreatedAt,
				Category:    rec.Category,
				AuthorID:    rec.AuthorID,
			})
		}
	}

	results, err := e.rank(ctx, req, "", fused)
	if err != nil {
		return nil, err
	}

	return &Response{
		RequestID:  uuid.NewString(),
		Results:    results,
		SearchType: retriever.SearchTypeFallback,
	}, nil
}

// expand runs the expansion stage. Failure inside the expander already
// degrades to identity expansion; this wrapper only adds tracing.
func (e *Engine) expand(ctx context.Context, req Request) []candidate.ExpandedQuery {
	ctx, span := e.tracer.Start(ctx, "engine."+string(stageExpanding))
	defer span.End()

	queries := e.expander.Expand(ctx, req.Query, req.Expansion)
	span.SetAttributes(attribute.Int("expanded_queries", len(queries)))
	if len(queries) == 1 {
		e.metrics.degraded(ctx, string(stageExpanding))
	}
	return queries
}

// run executes retrieval through rerank for the given queries.
func (e *Engine) run(ctx context.Context, req Request, queryText string, queries []candidate.ExpandedQuery) (*Response, error) {
	requestID := uuid.NewString()
	start := time.Now()

	// Retrieving: the only stage with internal concurrency.
	rctx, span := e.tracer.Start(ctx, "engine."+string(stageRetrieving))
	retrieved, err := e.retriever.Retrieve(rctx, queries, retriever.Options{
		ContentTypes:   req.ContentTypes,
		Category:       req.Category,
		Since:          req.Since,
		K:              req.Config.Limit * 2,
		ScoreThreshold: req.Config.ScoreThreshold,
	})
	span.End()
	if err != nil {
		// Only whole-batch cancellation reaches here; per-query failures
		// were already absorbed.
		return nil, fmt.Errorf("engine: retrieval canceled: %w", err)
	}
	if retrieved.SearchType == retriever.SearchTypeFallback {
		e.metrics.degraded(ctx, string(stageRetrieving))
	}

	// Fusing: pure in-memory fold, failure is fatal.
	fused, err := fusion.Fuse(retrieved.Lists...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	results, err := e.rank(ctx, req, queryText, fused)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		RequestID:       requestID,
		Results:         results,
		SearchType:      retrieved.SearchType,
		ExpandedQueries: len(queries),
	}

	// Reranking: best-effort, degrades to the pre-rerank order.
	if e.reranker != nil && len(results) > 0 {
		resp.Results, resp.RerankingApplied = e.rerank(ctx, queryText, req.Expansion.UserInterests, results)
		if !resp.RerankingApplied {
			e.metrics.degraded(ctx, string(stageReranking))
		}
	}

	e.metrics.observeRequest(ctx, string(retrieved.SearchType), time.Since(start))
	e.logger.Debug("pipeline complete",
		zap.String("request_id", requestID),
		zap.Int("results", len(resp.Results)),
		zap.String("search_type", string(resp.SearchType)),
		zap.Bool("reranked", resp.RerankingApplied))

	return resp, nil
}

// rank runs filtering, scoring, and serendipity over fused candidates and
// assembles ranked results.
func (e *Engine) rank(ctx context.Context, req Request, queryText string, fused []candidate.Candidate) ([]candidate.RankedResult, error) {
	cfg := req.Config

	// Filtering.
	var selected []diversity.Selected
	if cfg.EnableDiversityFiltering {
		_, span := e.tracer.Start(ctx, "engine."+string(stageFiltering))
		selected = diversity.Filter(fused, cfg.DiversityThreshold, cfg.Limit)
		span.End()
	} else {
		n := len(fused)
		if n > cfg.Limit {
			n = cfg.Limit
		}
		selected = make([]diversity.Selected, n)
		for i, c := range fused[:n] {
			selected[i] = diversity.Selected{Candidate: c, DiversityScore: 1}
		}
	}

	// Scoring: engagement enrichment is best-effort, the decay still
	// applies without it.
	_, span := e.tracer.Start(ctx, "engine."+string(stageScoring))
	keys := make([]string, len(selected))
	for i, sel := range selected {
		keys[i] = sel.Key()
	}
	engagement, err := e.meta.Engagement(ctx, keys)
	if err != nil {
		e.logger.Warn("engagement enrichment failed", zap.Error(err))
		engagement = map[string]metastore.Engagement{}
	}

	type scoredItem struct {
		sel   diversity.Selected
		score float64
	}
	scored := make([]scoredItem, len(selected))
	for i, sel := range selected {
		eng := engagement[sel.Key()]
		scored[i] = scoredItem{
			sel: sel,
			score: e.scorer.Score(sel.Candidate, sel.RawScore,
				scoring.Engagement{Comments: eng.Comments, Votes: eng.Votes}, cfg),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	span.End()

	rescored := make([]diversity.Selected, len(scored))
	finalScores := make(map[string]float64, len(scored))
	for i, s := range scored {
		rescored[i] = s.sel
		finalScores[s.sel.Key()] = s.score
	}

	// Serendipity.
	picks := e.injector.Inject(rescored, cfg)

	results := make([]candidate.RankedResult, len(picks))
	for i, p := range picks {
		results[i] = candidate.RankedResult{
			Candidate:      p.Candidate,
			FinalScore:     finalScores[p.Key()],
			DiversityScore: p.DiversityScore,
			Rank:           i + 1,
			Serendipitous:  p.Serendipitous,
			Reason:         reasonFor(p, queryText, req.Expansion.UserInterests),
		}
	}

	return results, nil
}

// rerank applies the rerank verdict to the top candidates, leaving the tail
// untouched. Returns the possibly reordered results and whether reranking
// was applied.
func (e *Engine) rerank(ctx context.Context, queryText string, interests []string, results []candidate.RankedResult) ([]candidate.RankedResult, bool) {
	ctx, span := e.tracer.Start(ctx, "engine."+string(stageReranking))
	defer span.End()

	n := len(results)
	if n > reranker.MaxRerankCandidates {
		n = reranker.MaxRerankCandidates
	}

	items := make([]reranker.Item, n)
	byKey := make(map[string]candidate.RankedResult, n)
	for i, res := range results[:n] {
		items[i] = reranker.Item{
			Key:     res.Key(),
			Title:   res.Title,
			Excerpt: res.Excerpt,
			Score:   res.FinalScore,
		}
		byKey[res.Key()] = res
	}

	ranking, err := e.reranker.Rerank(ctx, queryText, items, interests)
	if err != nil || !ranking.Applied {
		if err != nil {
			e.logger.Warn("rerank failed, keeping original order", zap.Error(err))
		}
		return results, false
	}

	reordered := make([]candidate.RankedResult, 0, len(results))
	for _, key := range ranking.Order {
		res, ok := byKey[key]
		if !ok {
			continue
		}
		res.RerankQualityScore = ranking.Quality[key]
		reordered = append(reordered, res)
	}
	reordered = append(reordered, results[n:]...)

	for i := range reordered {
		reordered[i].Rank = i + 1
	}
	return reordered, true
}

// reasonFor builds the human-readable justification for one result.
func reasonFor(p serendipity.Pick, queryText string, interests []string) string {
	switch {
	case p.Serendipitous:
		return "something different you might enjoy"
	case len(interests) > 0 && p.Category != "":
		return fmt.Sprintf("similar to your recent activity in %s", p.Category)
	case queryText != "":
		return fmt.Sprintf("strong match for %q", queryText)
	case p.Category != "":
		return fmt.Sprintf("trending in %s", p.Category)
	default:
		return "trending now"
	}
}
