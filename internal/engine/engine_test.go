package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/expander"
	"github.com/fernhill/discoveryd/internal/metastore"
	"github.com/fernhill/discoveryd/internal/reranker"
	"github.com/fernhill/discoveryd/internal/retriever"
	"github.com/fernhill/discoveryd/internal/vectorstore"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// fakeVectorStore serves canned hits regardless of query.
type fakeVectorStore struct {
	ready bool
	hits  []vectorstore.Hit
}

func (f *fakeVectorStore) Search(ctx context.Context, collection, query string, k int, filters map[string]string) ([]vectorstore.Hit, error) {
	return f.hits, nil
}
func (f *fakeVectorStore) IsReady(ctx context.Context) bool { return f.ready }
func (f *fakeVectorStore) Close() error                     { return nil }

// orderReverser is a reranker that reverses whatever it is given.
type orderReverser struct{}

func (orderReverser) Rerank(ctx context.Context, query string, items []reranker.Item, _ []string) (reranker.Ranking, error) {
	order := make([]string, len(items))
	quality := make(map[string]float64, len(items))
	for i, it := range items {
		order[len(items)-1-i] = it.Key
		quality[it.Key] = 0.9
	}
	return reranker.Ranking{Order: order, Quality: quality, Applied: true}, nil
}

func payloadHit(id, category string, score float64, age time.Duration) vectorstore.Hit {
	return vectorstore.Hit{
		ID:    id,
		Score: score,
		Payload: map[string]interface{}{
			"title":      "title " + id,
			"category":   category,
			"created_at": testNow.Add(-age).Format(time.RFC3339),
		},
	}
}

func newTestEngine(t *testing.T, store vectorstore.Store, meta metastore.Store, rr reranker.Reranker) *Engine {
	t.Helper()
	exp := expander.New(nil, 5, nil)
	ret := retriever.New(store, meta, retriever.Config{}, nil)
	eng, err := New(exp, ret, meta, rr, Config{SerendipitySeed: 1}, nil)
	require.NoError(t, err)
	return eng.WithClock(func() time.Time { return testNow })
}

func defaultRequest(query string) Request {
	return Request{Query: query, Config: candidate.DefaultRankingConfig()}
}

func TestSearchSemanticPath(t *testing.T) {
	store := &fakeVectorStore{ready: true, hits: []vectorstore.Hit{
		payloadHit("p1", "science", 0.9, time.Hour),
		payloadHit("p2", "science", 0.7, 2*time.Hour),
		payloadHit("p3", "art", 0.5, time.Hour),
	}}
	eng := newTestEngine(t, store, metastore.NewMemoryStore(), nil)

	resp, err := eng.Search(context.Background(), defaultRequest("ai"))
	require.NoError(t, err)

	assert.Equal(t, retriever.SearchTypeSemantic, resp.SearchType)
	assert.False(t, resp.RerankingApplied)
	assert.Equal(t, 1, resp.ExpandedQueries, "nil llm client means identity expansion")
	assert.NotEmpty(t, resp.RequestID)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "p1", resp.Results[0].ID)
	for i, res := range resp.Results {
		assert.Equal(t, i+1, res.Rank)
		assert.GreaterOrEqual(t, res.FinalScore, 0.0)
		assert.LessOrEqual(t, res.FinalScore, 1.0)
		assert.NotEmpty(t, res.Reason)
	}
	assert.GreaterOrEqual(t, resp.Results[0].FinalScore, resp.Results[1].FinalScore)
}

func TestSearchFallbackWhenBackendNotReady(t *testing.T) {
	meta := metastore.NewMemoryStore()
	meta.Put(metastore.Record{
		ID: "p1", ContentType: candidate.ContentTypePost,
		Title: "The state of AI", CreatedAt: testNow.Add(-3 * time.Hour),
	})
	eng := newTestEngine(t, &fakeVectorStore{ready: false}, meta, nil)

	resp, err := eng.Search(context.Background(), defaultRequest("ai"))
	require.NoError(t, err, "an unavailable backend degrades, it does not fail")

	assert.Equal(t, retriever.SearchTypeFallback, resp.SearchType)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].ID)
	assert.Equal(t, 0.5, resp.Results[0].RawScore)
}

func TestSearchValidation(t *testing.T) {
	eng := newTestEngine(t, &fakeVectorStore{ready: true}, metastore.NewMemoryStore(), nil)

	_, err := eng.Search(context.Background(), defaultRequest("   "))
	assert.ErrorIs(t, err, ErrEmptyQuery)

	req := defaultRequest("ai")
	req.Config.Limit = -1
	_, err = eng.Search(context.Background(), req)
	assert.ErrorIs(t, err, candidate.ErrInvalidConfig)
}

func TestSearchRerankReordersTopCandidates(t *testing.T) {
	store := &fakeVectorStore{ready: true, hits: []vectorstore.Hit{
		payloadHit("p1", "a", 0.9, time.Hour),
		payloadHit("p2", "b", 0.6, time.Hour),
	}}
	eng := newTestEngine(t, store, metastore.NewMemoryStore(), orderReverser{})

	resp, err := eng.Search(context.Background(), defaultRequest("ai"))
	require.NoError(t, err)

	assert.True(t, resp.RerankingApplied)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "p2", resp.Results[0].ID)
	assert.Equal(t, "p1", resp.Results[1].ID)
	assert.Equal(t, 1, resp.Results[0].Rank, "ranks are reassigned after rerank")
	assert.Equal(t, 0.9, resp.Results[0].RerankQualityScore)
}

func TestSearchRerankFailureDegrades(t *testing.T) {
	store := &fakeVectorStore{ready: true, hits: []vectorstore.Hit{
		payloadHit("p1", "a", 0.9, time.Hour),
		payloadHit("p2", "b", 0.6, time.Hour),
	}}
	// A reranker over a nil client reports Applied=false.
	eng := newTestEngine(t, store, metastore.NewMemoryStore(), reranker.NewLLMReranker(nil, nil))

	resp, err := eng.Search(context.Background(), defaultRequest("ai"))
	require.NoError(t, err)
	assert.False(t, resp.RerankingApplied)
	assert.Equal(t, "p1", resp.Results[0].ID, "original order is kept")
}

func TestRecommendUsesInterestProfile(t *testing.T) {
	meta := metastore.NewMemoryStore()
	meta.SetInterests("alice", []string{"go", "databases"})
	store := &fakeVectorStore{ready: true, hits: []vectorstore.Hit{
		payloadHit("p1", "programming", 0.8, time.Hour),
	}}
	eng := newTestEngine(t, store, meta, nil)

	req := Request{UserID: "alice", Config: candidate.DefaultRankingConfig()}
	resp, err := eng.Recommend(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, retriever.SearchTypeSemantic, resp.SearchType)
	assert.Equal(t, 2, resp.ExpandedQueries, "one retrieval query per interest topic")
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resp.Results[0].Reason, "programming",
		"interest-driven results explain themselves via the category")
}

func TestRecommendFallsBackToTrending(t *testing.T) {
	meta := metastore.NewMemoryStore()
	meta.Put(metastore.Record{
		ID: "p1", ContentType: candidate.ContentTypePost,
		Title: "Fresh post", Category: "news",
		CreatedAt: testNow.Add(-1 * time.Hour), Comments: 3, Votes: 9,
	})
	eng := newTestEngine(t, &fakeVectorStore{ready: true}, meta, nil)

	req := Request{
		UserID: "stranger",
		Since:  testNow.Add(-7 * 24 * time.Hour),
		Config: candidate.DefaultRankingConfig(),
	}
	resp, err := eng.Recommend(context.Background(), req)
	require.NoError(t, err, "a user without a profile gets trending, not an error")

	assert.Equal(t, retriever.SearchTypeFallback, resp.SearchType)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].ID)
}

func TestRecommendValidation(t *testing.T) {
	eng := newTestEngine(t, &fakeVectorStore{ready: true}, metastore.NewMemoryStore(), nil)

	_, err := eng.Recommend(context.Background(), Request{Config: candidate.DefaultRankingConfig()})
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestTrendingRanksByRecencyAndEngagement(t *testing.T) {
	meta := metastore.NewMemoryStore()
	meta.Put(metastore.Record{
		ID: "old", ContentType: candidate.ContentTypePost,
		Title: "Old quiet post", CreatedAt: testNow.Add(-6 * 24 * time.Hour),
	})
	meta.Put(metastore.Record{
		ID: "hot", ContentType: candidate.ContentTypePost,
		Title: "Hot new post", CreatedAt: testNow.Add(-2 * time.Hour),
		Comments: 10, Votes: 30,
	})
	meta.Put(metastore.Record{
		ID: "stale", ContentType: candidate.ContentTypePost,
		Title: "Too old", CreatedAt: testNow.Add(-30 * 24 * time.Hour),
	})
	eng := newTestEngine(t, &fakeVectorStore{ready: true}, meta, nil)

	resp, err := eng.Trending(context.Background(), Request{
		Since:  testNow.Add(-7 * 24 * time.Hour),
		Config: candidate.DefaultRankingConfig(),
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2, "one-week window excludes the stale post")
	assert.Equal(t, "hot", resp.Results[0].ID)
	assert.Equal(t, "old", resp.Results[1].ID)
}

// deadlineMetastore records whether FindMany saw a context deadline.
type deadlineMetastore struct {
	metastore.Store
	hadDeadline bool
}

func (d *deadlineMetastore) FindMany(ctx context.Context, ct candidate.ContentType, filter metastore.Filter, page metastore.Page) ([]metastore.Record, error) {
	_, d.hadDeadline = ctx.Deadline()
	return d.Store.FindMany(ctx, ct, filter, page)
}

func TestTrendingCarriesRequestDeadline(t *testing.T) {
	meta := &deadlineMetastore{Store: metastore.NewMemoryStore()}
	eng := newTestEngine(t, &fakeVectorStore{ready: true}, meta, nil)

	_, err := eng.Trending(context.Background(), Request{
		Since:  testNow.Add(-7 * 24 * time.Hour),
		Config: candidate.DefaultRankingConfig(),
	})
	require.NoError(t, err)
	assert.True(t, meta.hadDeadline, "trending queries run under the engine request timeout")
}

func TestSearchDeterministicUnderFixedSeed(t *testing.T) {
	store := &fakeVectorStore{ready: true, hits: []vectorstore.Hit{
		payloadHit("p1", "a", 0.9, time.Hour),
		payloadHit("p2", "b", 0.8, time.Hour),
		payloadHit("p3", "c", 0.7, time.Hour),
		payloadHit("p4", "d", 0.6, time.Hour),
		payloadHit("p5", "e", 0.5, time.Hour),
		payloadHit("p6", "f", 0.4, time.Hour),
	}}

	req := defaultRequest("ai")
	req.Config.EnableSerendipity = true
	req.Config.SerendipityFactor = 0.5
	req.Config.ScoreThreshold = 0

	run := func() []string {
		eng := newTestEngine(t, store, metastore.NewMemoryStore(), nil)
		resp, err := eng.Search(context.Background(), req)
		require.NoError(t, err)
		out := make([]string, len(resp.Results))
		for i, r := range resp.Results {
			out[i] = r.ID
		}
		return out
	}

	assert.Equal(t, run(), run(), "same seed and input must produce the same order")
}
