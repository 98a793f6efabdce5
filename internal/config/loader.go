package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, VECTORSTORE_PROVIDER, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// If configPath is empty the default path
// ~/.config/discoveryd/config.yaml is used; a missing file is not an
// error, defaults and environment apply.
//
// Environment variables map to config keys by lowercasing and splitting on
// the first underscore: SERVER_PORT -> server.port,
// RANKING_SCORE_THRESHOLD -> ranking.score_threshold.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "discoveryd", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: opening file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("config: stat file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config: file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("config: reading file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults sets default values for missing configuration fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8480
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}

	// chromem is the default provider: embedded, no external service.
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/discoveryd/vectorstore"
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Metastore.Provider == "" {
		cfg.Metastore.Provider = "memory"
	}
	if cfg.Metastore.MaxConns == 0 {
		cfg.Metastore.MaxConns = 8
	}

	if cfg.LLM.Dialect == "" {
		cfg.LLM.Dialect = "anthropic"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.Reranker == "" {
		cfg.LLM.Reranker = "lexical"
	}

	if cfg.Retrieval.CollectionPrefix == "" {
		cfg.Retrieval.CollectionPrefix = "content"
	}
	if cfg.Retrieval.PerQueryTimeout == 0 {
		cfg.Retrieval.PerQueryTimeout = 2 * time.Second
	}
	if cfg.Retrieval.MaxQueries == 0 {
		cfg.Retrieval.MaxQueries = 5
	}

	if cfg.Ranking.ScoreThreshold == 0 {
		cfg.Ranking.ScoreThreshold = 0.3
	}
	if cfg.Ranking.DiversityThreshold == 0 {
		cfg.Ranking.DiversityThreshold = 0.5
	}
	if cfg.Ranking.TimeDecayFactor == 0 {
		cfg.Ranking.TimeDecayFactor = 0.98
	}
	if cfg.Ranking.SerendipityFactor == 0 {
		cfg.Ranking.SerendipityFactor = 0.1
	}
	// Diversity filtering is a core stage, on unless explicitly disabled.
	if cfg.Ranking.EnableDiversity == nil {
		cfg.Ranking.EnableDiversity = boolPtr(true)
	}
	if cfg.Ranking.EnableSerendipity == nil {
		cfg.Ranking.EnableSerendipity = boolPtr(false)
	}
	if cfg.Ranking.Limit == 0 {
		cfg.Ranking.Limit = 20
	}
	if cfg.Ranking.VectorWeight == 0 {
		cfg.Ranking.VectorWeight = 0.6
	}
	if cfg.Ranking.EngagementWeight == 0 {
		cfg.Ranking.EngagementWeight = 0.4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func boolPtr(b bool) *bool { return &b }
