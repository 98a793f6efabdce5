// Discoveryd is a content discovery and ranking daemon.
//
// It serves search, recommendation, and trending endpoints over HTTP,
// retrieving candidates from a vector backend (Qdrant or embedded chromem)
// with a keyword fallback against the metadata store when the backend is
// unavailable.
//
// Usage:
//
//	# Start the server with defaults (embedded chromem, in-memory metastore)
//	discoveryd serve
//
//	# Start with a config file
//	discoveryd serve --config /etc/discoveryd/config.yaml
//
//	# Configure via environment
//	SERVER_PORT=9090 VECTORSTORE_PROVIDER=qdrant discoveryd serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/config"
	"github.com/fernhill/discoveryd/internal/embeddings"
	"github.com/fernhill/discoveryd/internal/engine"
	"github.com/fernhill/discoveryd/internal/expander"
	httpserver "github.com/fernhill/discoveryd/internal/http"
	"github.com/fernhill/discoveryd/internal/llm"
	"github.com/fernhill/discoveryd/internal/logging"
	"github.com/fernhill/discoveryd/internal/metastore"
	"github.com/fernhill/discoveryd/internal/reranker"
	"github.com/fernhill/discoveryd/internal/retriever"
	"github.com/fernhill/discoveryd/internal/telemetry"
	"github.com/fernhill/discoveryd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "discoveryd",
	Short:   "Content discovery and ranking daemon",
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discovery HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/discoveryd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serve wires the pipeline and blocks until the context is cancelled.
func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	logger.Info("starting discoveryd",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("metastore", cfg.Metastore.Provider))

	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		// Observability must not block serving; run with no-op providers.
		logger.Warn("telemetry setup failed, continuing without exporters", zap.Error(err))
		tel = nil
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{
		Model:    cfg.Embeddings.Model,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}
	defer embedder.Close()

	store, err := newVectorStore(cfg, embedder, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	meta, err := newMetastore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing metastore: %w", err)
	}
	defer meta.Close()

	// A missing API key disables expansion; the engine degrades to
	// identity expansion on its own.
	var llmClient llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient, err = llm.NewHTTPClient(llm.Config{
			Dialect: llm.Dialect(cfg.LLM.Dialect),
			Model:   cfg.LLM.Model,
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return fmt.Errorf("initializing llm client: %w", err)
		}
	} else {
		logger.Warn("no llm api key configured, query expansion disabled")
	}

	exp := expander.New(llmClient, cfg.Retrieval.MaxQueries, logger)

	ret := retriever.New(store, meta, retriever.Config{
		CollectionPrefix: cfg.Retrieval.CollectionPrefix,
		PerQueryTimeout:  cfg.Retrieval.PerQueryTimeout,
	}, logger)

	rr, err := newReranker(cfg, llmClient, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(exp, ret, meta, rr, engine.Config{
		RequestTimeout:  cfg.Server.RequestTimeout,
		SerendipitySeed: cfg.Ranking.SerendipitySeed,
	}, logger)
	if err != nil {
		return err
	}

	server, err := httpserver.NewServer(eng, store, rankingDefaults(cfg), logger, &httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newVectorStore(cfg *config.Config, embedder vectorstore.Embedder, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore.Provider {
	case "qdrant":
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:   cfg.VectorStore.Qdrant.Host,
			Port:   cfg.VectorStore.Qdrant.Port,
			UseTLS: cfg.VectorStore.Qdrant.UseTLS,
		}, embedder, logger)
	case "chromem":
		return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("unknown vectorstore provider %q", cfg.VectorStore.Provider)
	}
}

func newMetastore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (metastore.Store, error) {
	switch cfg.Metastore.Provider {
	case "postgres":
		return metastore.NewPostgresStore(ctx, metastore.PostgresConfig{
			DSN:      cfg.Metastore.DSN,
			MaxConns: cfg.Metastore.MaxConns,
		}, logger)
	case "memory":
		return metastore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown metastore provider %q", cfg.Metastore.Provider)
	}
}

func newReranker(cfg *config.Config, client llm.Client, logger *zap.Logger) (reranker.Reranker, error) {
	switch cfg.LLM.Reranker {
	case "llm":
		if client == nil {
			return nil, fmt.Errorf("llm reranker requires an api key")
		}
		return reranker.NewLLMReranker(client, logger), nil
	case "lexical":
		return reranker.NewLexicalReranker(), nil
	case "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown reranker %q", cfg.LLM.Reranker)
	}
}

// rankingDefaults maps the server config onto the per-request defaults.
func rankingDefaults(cfg *config.Config) candidate.RankingConfig {
	defaults := candidate.DefaultRankingConfig()
	defaults.ScoreThreshold = cfg.Ranking.ScoreThreshold
	defaults.DiversityThreshold = cfg.Ranking.DiversityThreshold
	defaults.TimeDecayFactor = cfg.Ranking.TimeDecayFactor
	defaults.EnableDiversityFiltering = *cfg.Ranking.EnableDiversity
	defaults.EnableSerendipity = *cfg.Ranking.EnableSerendipity
	defaults.SerendipityFactor = cfg.Ranking.SerendipityFactor
	defaults.Limit = cfg.Ranking.Limit
	defaults.VectorWeight = cfg.Ranking.VectorWeight
	defaults.EngagementWeight = cfg.Ranking.EngagementWeight
	return defaults
}
