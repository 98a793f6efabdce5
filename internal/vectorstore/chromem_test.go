package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitEmbedder returns a constant unit vector; good enough to exercise the
// store plumbing without a real model.
type unitEmbedder struct{}

func (unitEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (unitEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, unitEmbedder{}, nil)
	require.NoError(t, err)
	return store
}

func TestChromemStoreRequiresEmbedder(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemStoreEmptyCollection(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.Search(context.Background(), "content_post", "anything", 10, nil)
	require.NoError(t, err, "an empty or unknown collection yields no hits, not an error")
	assert.Empty(t, hits)
}

func TestChromemStoreSearchValidation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Search(context.Background(), "content_post", "", 10, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = store.Search(context.Background(), "content_post", "q", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemStoreIsReady(t *testing.T) {
	store := newTestStore(t)
	assert.True(t, store.IsReady(context.Background()))
	assert.NoError(t, store.Close())
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.2))
	assert.Equal(t, 1.0, clampScore(1.7))
	assert.Equal(t, 0.42, clampScore(0.42))
}
