package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/engine"
	"github.com/fernhill/discoveryd/internal/expander"
	"github.com/fernhill/discoveryd/internal/metastore"
	"github.com/fernhill/discoveryd/internal/retriever"
	"github.com/fernhill/discoveryd/internal/vectorstore"
	"go.uber.org/zap"
)

// downStore reports not ready, forcing every request through the keyword
// fallback. That keeps server tests free of vector backend plumbing.
type downStore struct{}

func (downStore) Search(ctx context.Context, collection, query string, k int, filters map[string]string) ([]vectorstore.Hit, error) {
	return nil, nil
}
func (downStore) IsReady(ctx context.Context) bool { return false }
func (downStore) Close() error                     { return nil }

func newTestServer(t *testing.T) (*Server, *metastore.MemoryStore) {
	t.Helper()

	meta := metastore.NewMemoryStore()
	meta.Put(metastore.Record{
		ID:          "p1",
		ContentType: candidate.ContentTypePost,
		Title:       "Understanding transformers",
		Category:    "ml",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	})

	exp := expander.New(nil, 5, nil)
	ret := retriever.New(downStore{}, meta, retriever.Config{}, nil)
	eng, err := engine.New(exp, ret, meta, nil, engine.Config{SerendipitySeed: 1}, nil)
	require.NoError(t, err)

	srv, err := NewServer(eng, downStore{}, candidate.DefaultRankingConfig(), zap.NewNop(), nil)
	require.NoError(t, err)
	return srv, meta
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestApplyOptionsOverridesBlendWeights(t *testing.T) {
	base := candidate.DefaultRankingConfig()
	vw, ew := 0.8, 0.2

	got := applyOptions(base, &RankingOptions{VectorWeight: &vw, EngagementWeight: &ew})
	assert.Equal(t, 0.8, got.VectorWeight)
	assert.Equal(t, 0.2, got.EngagementWeight)

	// Absent fields keep the server defaults.
	assert.Equal(t, base.Limit, got.Limit)
	assert.Equal(t, base.ScoreThreshold, got.ScoreThreshold)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestHandleReadyDegradedBackend(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code, "fallback keeps the service ready")

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "unavailable", resp.VectorStore)
}

func TestHandleSearchFallback(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/search", `{"query": "transformers"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp engine.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, retriever.SearchTypeFallback, resp.SearchType)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].ID)
	assert.False(t, resp.RerankingApplied)
}

func TestHandleSearchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query": "  "}`},
		{"unknown content type", `{"query": "x", "content_types": ["video"]}`},
		{"bad since", `{"query": "x", "since": "yesterday"}`},
		{"invalid options", `{"query": "x", "options": {"limit": -5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(srv, http.MethodPost, "/api/v1/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleSearchOptionOverrides(t *testing.T) {
	srv, meta := newTestServer(t)
	for _, id := range []string{"p2", "p3", "p4"} {
		meta.Put(metastore.Record{
			ID:          id,
			ContentType: candidate.ContentTypePost,
			Title:       "More transformers content " + id,
			CreatedAt:   time.Now().Add(-1 * time.Hour),
		})
	}

	rec := doJSON(srv, http.MethodPost, "/api/v1/search",
		`{"query": "transformers", "options": {"limit": 2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp engine.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2, "per-request limit overrides the server default")
}

func TestHandleRecommendValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/recommend", `{"user_id": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecommendWithProfile(t *testing.T) {
	srv, meta := newTestServer(t)
	meta.SetInterests("alice", []string{"transformers"})

	rec := doJSON(srv, http.MethodPost, "/api/v1/recommend", `{"user_id": "alice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp engine.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].ID)
}

func TestHandleTrending(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/api/v1/trending?category=ml", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp engine.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].ID)

	rec = doJSON(srv, http.MethodGet, "/api/v1/trending?limit=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
