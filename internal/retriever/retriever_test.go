package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/metastore"
	"github.com/fernhill/discoveryd/internal/vectorstore"
)

// fakeStore serves canned hits per query text and records the collections
// it was asked to search.
type fakeStore struct {
	ready       bool
	hits        map[string][]vectorstore.Hit
	errFor      map[string]error
	collections []string
}

func (f *fakeStore) Search(ctx context.Context, collection, query string, k int, filters map[string]string) ([]vectorstore.Hit, error) {
	f.collections = append(f.collections, collection)
	if err := f.errFor[query]; err != nil {
		return nil, err
	}
	return f.hits[query], nil
}

func (f *fakeStore) IsReady(ctx context.Context) bool { return f.ready }
func (f *fakeStore) Close() error                     { return nil }

func hit(id string, score float64) vectorstore.Hit {
	return vectorstore.Hit{
		ID:    id,
		Score: score,
		Payload: map[string]interface{}{
			"title":    "title " + id,
			"category": "science",
		},
	}
}

func queries(texts ...string) []candidate.ExpandedQuery {
	out := make([]candidate.ExpandedQuery, len(texts))
	for i, text := range texts {
		role := candidate.RoleSemanticExpansion
		if i == 0 {
			role = candidate.RolePrimary
		}
		out[i] = candidate.ExpandedQuery{Text: text, Role: role}
	}
	return out
}

func TestRetrieveSemanticFanOut(t *testing.T) {
	store := &fakeStore{
		ready: true,
		hits: map[string][]vectorstore.Hit{
			"ml":     {hit("p1", 0.9), hit("p2", 0.6)},
			"neural": {hit("p3", 0.8)},
		},
	}
	r := New(store, metastore.NewMemoryStore(), Config{}, nil)

	res, err := r.Retrieve(context.Background(), queries("ml", "neural"), Options{K: 10})
	require.NoError(t, err)

	assert.Equal(t, SearchTypeSemantic, res.SearchType)
	require.Len(t, res.Lists, 2, "one list per query, order preserved")
	require.Len(t, res.Lists[0], 2)
	require.Len(t, res.Lists[1], 1)

	assert.Equal(t, "p1", res.Lists[0][0].ID)
	assert.Equal(t, []string{"primary:ml"}, res.Lists[0][0].Sources)
	assert.Equal(t, []string{"semantic-expansion:neural"}, res.Lists[1][0].Sources)
}

func TestRetrieveScoreThresholdFilters(t *testing.T) {
	store := &fakeStore{
		ready: true,
		hits: map[string][]vectorstore.Hit{
			"ml": {hit("p1", 0.9), hit("p2", 0.2)},
		},
	}
	r := New(store, metastore.NewMemoryStore(), Config{}, nil)

	res, err := r.Retrieve(context.Background(), queries("ml"), Options{K: 10, ScoreThreshold: 0.3})
	require.NoError(t, err)
	require.Len(t, res.Lists[0], 1)
	assert.Equal(t, "p1", res.Lists[0][0].ID)
}

func TestRetrieveSubQueryFailureIsIsolated(t *testing.T) {
	store := &fakeStore{
		ready: true,
		hits: map[string][]vectorstore.Hit{
			"ml": {hit("p1", 0.9)},
		},
		errFor: map[string]error{
			"neural": errors.New("backend hiccup"),
		},
	}
	r := New(store, metastore.NewMemoryStore(), Config{}, nil)

	res, err := r.Retrieve(context.Background(), queries("ml", "neural"), Options{K: 10})
	require.NoError(t, err, "one failed sub-query must not abort the batch")

	assert.Equal(t, SearchTypeSemantic, res.SearchType)
	require.Len(t, res.Lists, 2)
	assert.Len(t, res.Lists[0], 1)
	assert.Empty(t, res.Lists[1], "failed sub-query contributes an empty list")
}

func TestRetrieveSearchesEachContentType(t *testing.T) {
	store := &fakeStore{ready: true, hits: map[string][]vectorstore.Hit{}}
	r := New(store, metastore.NewMemoryStore(), Config{CollectionPrefix: "content"}, nil)

	_, err := r.Retrieve(context.Background(), queries("ml"), Options{
		K:            10,
		ContentTypes: []candidate.ContentType{candidate.ContentTypePost, candidate.ContentTypeDocument},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"content_post", "content_document"}, store.collections)
}

func TestRetrieveFallbackServesPrimaryOnly(t *testing.T) {
	meta := metastore.NewMemoryStore()
	meta.Put(metastore.Record{
		ID:          "p1",
		ContentType: candidate.ContentTypePost,
		Title:       "Intro to machine learning",
		Category:    "science",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	})
	meta.Put(metastore.Record{
		ID:          "p2",
		ContentType: candidate.ContentTypePost,
		Title:       "Unrelated cooking post",
		CreatedAt:   time.Now().Add(-1 * time.Hour),
	})

	store := &fakeStore{ready: false}
	r := New(store, meta, Config{}, nil)

	res, err := r.Retrieve(context.Background(), queries("machine learning", "neural nets"), Options{K: 10})
	require.NoError(t, err)

	assert.Equal(t, SearchTypeFallback, res.SearchType)
	require.Len(t, res.Lists, 2)
	require.Len(t, res.Lists[0], 1, "keyword match on the primary query")
	assert.Empty(t, res.Lists[1], "expanded queries are skipped in fallback")

	got := res.Lists[0][0]
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, 0.5, got.RawScore, "keyword matches get a neutral score")
	assert.Equal(t, []string{"primary:machine learning"}, got.Sources)
}

func TestHitToCandidateMapsPayload(t *testing.T) {
	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	h := vectorstore.Hit{
		ID:    "p1",
		Score: 0.9,
		Payload: map[string]interface{}{
			"title":      "Go generics",
			"content":    "a long body",
			"category":   "programming",
			"author_id":  "alice",
			"created_at": created.Format(time.RFC3339),
		},
	}

	c := hitToCandidate(h, candidate.ContentTypePost, "primary:go")
	assert.Equal(t, "Go generics", c.Title)
	assert.Equal(t, "a long body", c.Excerpt, "content is the excerpt fallback")
	assert.Equal(t, "programming", c.Category)
	assert.Equal(t, "alice", c.AuthorID)
	assert.True(t, created.Equal(c.Timestamp))
	require.NoError(t, c.Validate())
}
