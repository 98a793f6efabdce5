// Package vectorstore defines the similarity-search backend contract the
// discovery engine consumes, and its Qdrant and chromem implementations.
//
// The engine treats the backend as a black box: it sends text queries, gets
// back scored hits, and requires scores in [0,1] (implementations clamp at
// the boundary). A readiness probe gates whether the retrieval layer uses
// semantic search at all or falls back to keyword search against the
// metadata store.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("vectorstore: invalid configuration")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("vectorstore: connection failed")

	// ErrEmbeddingFailed indicates query embedding generation failed.
	ErrEmbeddingFailed = errors.New("vectorstore: embedding failed")

	// ErrEmptyQuery is returned for an empty search query.
	ErrEmptyQuery = errors.New("vectorstore: empty query")
)

// Hit is one scored result from a similarity search. Payload carries the
// backend's stored metadata; the retrieval layer maps it into a Candidate.
type Hit struct {
	// ID is the content identifier stored in the payload.
	ID string

	// Score is the similarity score, clamped to [0,1] at the boundary.
	Score float64

	// Payload is the stored metadata for the point.
	Payload map[string]interface{}
}

// Store is the similarity-search backend contract.
//
// Implementations:
//   - QdrantStore: external Qdrant over gRPC
//   - ChromemStore: embedded chromem-go for single-process deployments
type Store interface {
	// Search performs similarity search over the named collection and
	// returns up to k hits ordered by score descending. Filters match
	// payload fields exactly; a nil map applies no filter.
	Search(ctx context.Context, collection, query string, k int, filters map[string]string) ([]Hit, error)

	// IsReady reports whether the backend can currently serve searches.
	// The retrieval layer uses this probe to decide between semantic
	// search and keyword fallback.
	IsReady(ctx context.Context) bool

	// Close releases the backend connection and resources.
	Close() error
}

// Embedder generates vector embeddings from text. Queries and documents may
// be embedded differently by the underlying model.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// clampScore forces an out-of-range backend score into [0,1]. Backends are
// supposed to return normalized scores; out-of-range values are sanitized
// here rather than trusted.
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
