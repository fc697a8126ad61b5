// Command ingestord runs the ingestor HTTP service: the StorageEngine (C1),
// AIExtractionClient (C2), ExtractionRegistry (C3), ContentProcessor (C4),
// BatchEngine (C5), and JobRegistry (C6) wired behind a chi REST/WebSocket
// surface. Adapted from the teacher's cmd/ragd, which wired a gRPC+gateway
// pair of servers fronting a single-tenant RAG service; this repo has one
// HTTP server and no gRPC surface to gateway to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knoguchi/ingestor/internal/aiclient"
	"github.com/knoguchi/ingestor/internal/auth"
	"github.com/knoguchi/ingestor/internal/config"
	"github.com/knoguchi/ingestor/internal/crawl"
	"github.com/knoguchi/ingestor/internal/embedder"
	"github.com/knoguchi/ingestor/internal/extraction"
	"github.com/knoguchi/ingestor/internal/ingestion"
	"github.com/knoguchi/ingestor/internal/jobs"
	"github.com/knoguchi/ingestor/internal/llm"
	"github.com/knoguchi/ingestor/internal/reranker"
	"github.com/knoguchi/ingestor/internal/search"
	"github.com/knoguchi/ingestor/internal/server"
	"github.com/knoguchi/ingestor/internal/storage"
	"github.com/knoguchi/ingestor/internal/vectorstore"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting ingestor service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	engine, err := storage.Open(ctx, cfg.DatabaseURL, "ingestor", storage.CacheConfig{
		MaxSize: cfg.CacheMaxSize,
		TTL:     cfg.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to open storage engine: %w", err)
	}
	defer engine.Close()
	slog.Info("connected to PostgreSQL")

	ai := aiclient.New(cfg.AIEndpoint, cfg.AICredential, cfg.AIModel,
		aiclient.WithRetries(cfg.AIRetries),
		aiclient.WithRateLimit(cfg.AIRateLimit),
	)

	registry := extraction.NewDefaultRegistry(ai)

	chunker := ingestion.NewChunker(ingestion.ChunkerConfig{
		Strategy:     ingestion.Strategy(cfg.ChunkStrategy),
		MaxChunkSize: cfg.MaxChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	extractOpts := extraction.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxEntities:         cfg.MaxEntities,
		EntityTypes:         cfg.AllowedEntityTypes,
	}

	processorOpts := []ingestion.Option{ingestion.WithLogger(slog.Default())}

	// Optional semantic-search augmentation (SPEC_FULL.md §8): only wired when
	// an embedding model is configured, so a plain FTS-only deployment never
	// pays for a Qdrant connection it doesn't use.
	var vectorStore *vectorstore.QdrantStore
	var semanticSearcher *search.Searcher
	if cfg.EmbeddingModel != "" {
		vectorStore, err = vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer vectorStore.Close()
		slog.Info("connected to Qdrant")

		embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL: cfg.AIEndpoint,
			Model:   cfg.EmbeddingModel,
		})
		slog.Info("initialized embedder", "model", cfg.EmbeddingModel)

		processorOpts = append(processorOpts, ingestion.WithSemanticSearch(embed, vectorStore))

		llmClient := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.AIEndpoint),
			llm.WithModel(cfg.AIModel),
		)
		rr := reranker.NewLLMReranker(llmClient)
		semanticSearcher = search.New(embed, vectorStore, rr)
	}

	processor := ingestion.NewContentProcessor(engine, chunker, registry, extractOpts, processorOpts...)

	jobRegistry := jobs.NewRegistry(engine)
	fetcher := crawl.NewFetcher(cfg.AITimeout)

	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.JWTExpiry,
		Issuer: "ingestor",
	})

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production

		Storage:     engine,
		Processor:   processor,
		Registry:    registry,
		ExtractOpts: extractOpts,
		JobRegistry: jobRegistry,
		Fetcher:     fetcher,
		JWTManager:  jwtManager,
		Semantic:    semanticSearcher,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting HTTP server", "port", cfg.HTTPPort)
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	slog.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time.
var (
	_ vectorstore.VectorStore = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder       = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                 = (*llm.OllamaClient)(nil)
)
