// Package config provides configuration loading for discoveryd.
package config

import (
	"fmt"
	"time"

	"github.com/fernhill/discoveryd/internal/telemetry"
)

// Config is the root configuration for discoveryd.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Metastore   MetastoreConfig   `koanf:"metastore"`
	LLM         LLMConfig         `koanf:"llm"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Ranking     RankingConfig     `koanf:"ranking"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
}

// VectorStoreConfig selects and configures the similarity backend.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "chromem".
	Provider string `koanf:"provider"`

	Qdrant struct {
		Host   string `koanf:"host"`
		Port   int    `koanf:"port"`
		UseTLS bool   `koanf:"use_tls"`
	} `koanf:"qdrant"`

	Chromem struct {
		Path     string `koanf:"path"`
		Compress bool   `koanf:"compress"`
	} `koanf:"chromem"`
}

// EmbeddingsConfig configures local embedding generation.
type EmbeddingsConfig struct {
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
}

// MetastoreConfig selects and configures the metadata store.
type MetastoreConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `koanf:"provider"`
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
}

// LLMConfig configures the text-understanding service client. An empty
// APIKey disables expansion and reranking; the engine degrades to identity
// behavior for both.
type LLMConfig struct {
	Dialect string        `koanf:"dialect"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`

	// Reranker is "llm", "lexical", or "off".
	Reranker string `koanf:"reranker"`
}

// RetrievalConfig tunes the retrieval fan-out.
type RetrievalConfig struct {
	CollectionPrefix string        `koanf:"collection_prefix"`
	PerQueryTimeout  time.Duration `koanf:"per_query_timeout"`
	MaxQueries       int           `koanf:"max_queries"`
}

// RankingConfig carries the server-side defaults for per-request tunables.
// The booleans are pointers so an explicit false in the file survives
// defaulting; ApplyDefaults fills in nil.
type RankingConfig struct {
	ScoreThreshold     float64 `koanf:"score_threshold"`
	DiversityThreshold float64 `koanf:"diversity_threshold"`
	TimeDecayFactor    float64 `koanf:"time_decay_factor"`
	EnableDiversity    *bool   `koanf:"enable_diversity"`
	EnableSerendipity  *bool   `koanf:"enable_serendipity"`
	SerendipityFactor  float64 `koanf:"serendipity_factor"`
	Limit              int     `koanf:"limit"`
	VectorWeight       float64 `koanf:"vector_weight"`
	EngagementWeight   float64 `koanf:"engagement_weight"`
	SerendipitySeed    int64   `koanf:"serendipity_seed"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}

	switch c.VectorStore.Provider {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("config: unknown vectorstore provider %q", c.VectorStore.Provider)
	}

	switch c.Metastore.Provider {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown metastore provider %q", c.Metastore.Provider)
	}
	if c.Metastore.Provider == "postgres" && c.Metastore.DSN == "" {
		return fmt.Errorf("config: metastore.dsn is required for the postgres provider")
	}

	switch c.LLM.Reranker {
	case "llm", "lexical", "off":
	default:
		return fmt.Errorf("config: unknown reranker %q", c.LLM.Reranker)
	}
	if c.LLM.Reranker == "llm" && c.LLM.APIKey == "" {
		return fmt.Errorf("config: llm.api_key is required for the llm reranker")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}

	return nil
}
