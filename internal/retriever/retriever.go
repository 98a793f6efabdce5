// Package retriever fans a set of expanded queries out concurrently against
// the similarity-search backend, with per-query timeouts and isolated
// failure handling.
//
// Partial results are acceptable and expected: a sub-query that times out
// or errors contributes an empty list rather than aborting the batch. When
// the similarity backend reports not ready, the retriever falls back to a
// keyword-contains query against the metadata store for the primary query
// only — expansion and cross-modal queries have no meaning without semantic
// search.
package retriever

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/metastore"
	"github.com/fernhill/discoveryd/internal/vectorstore"
)

// SearchType records which retrieval path served a request.
type SearchType string

const (
	// SearchTypeSemantic means the similarity backend served the request.
	SearchTypeSemantic SearchType = "semantic"

	// SearchTypeFallback means the keyword fallback served the request.
	SearchTypeFallback SearchType = "fallback"
)

// DefaultPerQueryTimeout bounds each sub-query's time on the wire.
const DefaultPerQueryTimeout = 2 * time.Second

// Options narrow one retrieval batch.
type Options struct {
	// ContentTypes are the targeted content types. Empty means posts only.
	ContentTypes []candidate.ContentType

	// Category restricts hits to one category when set.
	Category string

	// Since restricts hits to content created at or after the time.
	Since time.Time

	// K is the per-query result budget.
	K int

	// ScoreThreshold drops hits scored below it before fusion.
	ScoreThreshold float64
}

// Result is the outcome of one retrieval batch: one candidate list per
// expanded query, order preserved.
type Result struct {
	Lists      [][]candidate.Candidate
	SearchType SearchType
}

// Config holds retriever configuration.
type Config struct {
	// CollectionPrefix namespaces vector collections per content type,
	// e.g. prefix "content" and type "post" search collection
	// "content_post".
	CollectionPrefix string

	// PerQueryTimeout bounds each concurrent sub-query.
	PerQueryTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "content"
	}
	if c.PerQueryTimeout <= 0 {
		c.PerQueryTimeout = DefaultPerQueryTimeout
	}
}

// Retriever dispatches expanded queries to the vector backend.
type Retriever struct {
	store  vectorstore.Store
	meta   metastore.Store
	config Config
	logger *zap.Logger
}

// New creates a retriever over the given backends.
func New(store vectorstore.Store, meta metastore.Store, cfg Config, logger *zap.Logger) *Retriever {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, meta: meta, config: cfg, logger: logger}
}

// Retrieve runs the fan-out for the given expanded queries.
//
// Each query gets its own worker and its own private result slot; workers
// never share mutable state, so no lock is needed and fusion can run
// single-threaded after the join. The join waits for all workers — this is
// a barrier, not a race-to-first.
func (r *Retriever) Retrieve(ctx context.Context, queries []candidate.ExpandedQuery, opts Options) (Result, error) {
	if opts.K <= 0 {
		opts.K = 20
	}
	types := opts.ContentTypes
	if len(types) == 0 {
		types = []candidate.ContentType{candidate.ContentTypePost}
	}

	if !r.store.IsReady(ctx) {
		return r.fallback(ctx, queries, opts, types)
	}

	lists := make([][]candidate.Candidate, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, r.config.PerQueryTimeout)
			defer cancel()

			list, err := r.searchOne(qctx, q, opts, types)
			if err != nil {
				// Isolated failure: this sub-query contributes nothing,
				// the batch carries on.
				r.logger.Warn("sub-query failed",
					zap.String("query", q.Text),
					zap.String("role", string(q.Role)),
					zap.Error(err))
				lists[i] = nil
				return nil
			}
			lists[i] = list
			return nil
		})
	}

	// Workers swallow their own errors, so Wait only propagates context
	// cancellation of the whole batch.
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return Result{Lists: lists, SearchType: SearchTypeSemantic}, nil
}

// searchOne searches every target content type for one expanded query and
// merges the hits into a single tagged candidate list.
func (r *Retriever) searchOne(ctx context.Context, q candidate.ExpandedQuery, opts Options, types []candidate.ContentType) ([]candidate.Candidate, error) {
	var filters map[string]string
	if opts.Category != "" {
		filters = map[string]string{"category": opts.Category}
	}

	var out []candidate.Candidate
	for _, ct := range types {
		hits, err := r.store.Search(ctx, r.collectionFor(ct), q.Text, opts.K, filters)
		if err != nil {
			return nil, err
		}

		for _, hit := range hits {
			if hit.Score < opts.ScoreThreshold {
				continue
			}
			c := hitToCandidate(hit, ct, q.SourceTag())
			if !opts.Since.IsZero() && !c.Timestamp.IsZero() && c.Timestamp.Before(opts.Since) {
				continue
			}
			if err := c.Validate(); err != nil {
				r.logger.Warn("dropping invalid hit",
					zap.String("id", hit.ID),
					zap.Error(err))
				continue
			}
			out = append(out, c)
		}
	}

	return out, nil
}

// fallback serves the primary query from the metadata store.
func (r *Retriever) fallback(ctx context.Context, queries []candidate.ExpandedQuery, opts Options, types []candidate.ContentType) (Result, error) {
	r.logger.Info("similarity backend not ready, using keyword fallback")

	lists := make([][]candidate.Candidate, len(queries))
	for i, q := range queries {
		if q.Role != candidate.RolePrimary {
			continue
		}

		var list []candidate.Candidate
		for _, ct := range types {
			records, err := r.meta.FindMany(ctx, ct, metastore.Filter{
				Keyword:  q.Text,
				Category: opts.Category,
				Since:    opts.Since,
			}, metastore.Page{Limit: opts.K})
			if err != nil {
				r.logger.Warn("keyword fallback query failed",
					zap.String("content_type", string(ct)),
					zap.Error(err))
				continue
			}

			for _, rec := range records {
				list = append(list, recordToCandidate(rec, q.SourceTag()))
			}
		}
		lists[i] = list
	}

	return Result{Lists: lists, SearchType: SearchTypeFallback}, nil
}

func (r *Retriever) collectionFor(ct candidate.ContentType) string {
	return r.config.CollectionPrefix + "_" + string(ct)
}

// hitToCandidate maps a backend hit into a candidate, reading the known
// payload fields and passing the rest through as metadata.
func hitToCandidate(hit vectorstore.Hit, ct candidate.ContentType, source string) candidate.Candidate {
	c := candidate.Candidate{
		ID:          hit.ID,
		ContentType: ct,
		RawScore:    hit.Score,
		Sources:     []string{source},
		Metadata:    hit.Payload,
	}

	if v, ok := hit.Payload["title"].(string); ok {
		c.Title = v
	}
	if v, ok := hit.Payload["excerpt"].(string); ok {
		c.Excerpt = v
	} else if v, ok := hit.Payload["content"].(string); ok {
		c.Excerpt = v
	}
	if v, ok := hit.Payload["category"].(string); ok {
		c.Category = v
	}
	if v, ok := hit.Payload["author_id"].(string); ok {
		c.AuthorID = v
	}
	if v, ok := hit.Payload["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			c.Timestamp = ts
		}
	}

	return c
}

// recordToCandidate maps a metadata record into a candidate. Keyword
// matches carry no similarity signal, so every fallback candidate gets the
// same neutral score and ranking falls to recency and engagement.
func recordToCandidate(rec metastore.Record, source string) candidate.Candidate {
	return candidate.Candidate{
		ID:          rec.ID,
		ContentType: rec.ContentType,
		Title:       rec.Title,
		Excerpt:     rec.Excerpt,
		RawScore:    0.5,
		Sources:     []string{source},
		Timestamp:   rec.CreatedAt,
		Category:    rec.Category,
		AuthorID:    rec.AuthorID,
	}
}
