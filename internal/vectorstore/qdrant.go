package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// QdrantConfig holds configuration for the Qdrant gRPC store.
type QdrantConfig struct {
	Host           string
	Port           int
	UseTLS         bool
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 32 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store against an external Qdrant over gRPC.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

// NewQdrantStore creates a QdrantStore and verifies connectivity with a
// health check.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !s.IsReady(ctx) {
		logger.Warn("qdrant not ready at startup, keyword fallback will be used",
			zap.String("host", config.Host),
			zap.Int("port", config.Port))
	}

	return s, nil
}

// Search embeds the query and runs a payload-filtered similarity search.
func (s *QdrantStore) Search(ctx context.Context, collection, query string, k int, filters map[string]string) ([]Hit, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var filter *qdrant.Filter
	if len(filters) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filters))
		for key, value := range filters {
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: value},
						},
					},
				},
			})
		}
		filter = &qdrant.Filter{Must: conditions}
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: searching collection %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, point := range points {
		hit := Hit{Score: clampScore(float64(point.Score))}

		if point.Payload != nil {
			hit.Payload = make(map[string]interface{}, len(point.Payload))
			for key, v := range point.Payload {
				switch val := v.Kind.(type) {
				case *qdrant.Value_StringValue:
					hit.Payload[key] = val.StringValue
					if key == "id" {
						hit.ID = val.StringValue
					}
				case *qdrant.Value_IntegerValue:
					hit.Payload[key] = val.IntegerValue
				case *qdrant.Value_DoubleValue:
					hit.Payload[key] = val.DoubleValue
				case *qdrant.Value_BoolValue:
					hit.Payload[key] = val.BoolValue
				}
			}
		}

		// A hit without a payload id cannot be joined back to content;
		// drop it rather than emit an unkeyable candidate.
		if hit.ID == "" {
			s.logger.Warn("dropping qdrant hit without payload id",
				zap.String("collection", collection))
			continue
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

// IsReady reports whether Qdrant answers its health check.
func (s *QdrantStore) IsReady(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	_, err := s.client.HealthCheck(ctx)
	return err == nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ Store = (*QdrantStore)(nil)
