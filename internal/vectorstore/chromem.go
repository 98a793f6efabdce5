package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem store.
type ChromemConfig struct {
	// Path is the persistence directory. Supports ~ expansion.
	Path string

	// Compress enables gzip compression of persisted collections.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/discoveryd/vectorstore"
	}
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database. Suitable for single-process deployments where running
// Qdrant is not worth the operational cost.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a persistent embedded store at config.Path.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("vectorstore: creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: creating chromem DB: %w", err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress))

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Search runs similarity search over the named collection.
func (s *ChromemStore) Search(ctx context.Context, collection, query string, k int, filters map[string]string) ([]Hit, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("vectorstore: getting collection %s: %w", collection, err)
	}

	// chromem requires nResults <= document count.
	if count := col.Count(); count < k {
		if count == 0 {
			return []Hit{}, nil
		}
		k = count
	}

	var where map[string]string
	if len(filters) > 0 {
		where = filters
	}

	results, err := col.Query(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: querying collection %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := make(map[string]interface{}, len(r.Metadata)+1)
		for key, v := range r.Metadata {
			payload[key] = v
		}
		payload["content"] = r.Content

		hits = append(hits, Hit{
			ID:      r.ID,
			Score:   clampScore(float64(r.Similarity)),
			Payload: payload,
		})
	}

	return hits, nil
}

// IsReady always reports true: the embedded store lives in-process and has
// no connection to lose.
func (s *ChromemStore) IsReady(ctx context.Context) bool {
	return s.db != nil
}

// Close is a no-op for the embedded store; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
