package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/perbu/ragchat/pkg/config"
	"github.com/perbu/ragchat/pkg/embedder"
	"github.com/perbu/ragchat/pkg/fetcher"
	"github.com/perbu/ragchat/pkg/ingest"
	"github.com/perbu/ragchat/pkg/knowledge"
	"github.com/perbu/ragchat/pkg/loader"
	"github.com/perbu/ragchat/pkg/observability"
	"golang.org/x/time/rate"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("RAGCHAT_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger("ingest", cfg.Service.LogLevel)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}

	chunker, err := loader.NewChunker(loader.ChunkerConfig{
		ChunkSize:     cfg.Chunking.ChunkSize,
		Overlap:       cfg.Chunking.Overlap,
		MinChunkChars: cfg.Chunking.MinChunkChars,
	})
	if err != nil {
		return err
	}

	docs, err := loader.Catalogue()
	if err != nil {
		return err
	}

	pipeline := ingest.New(ingest.Options{
		Fetcher: fetcher.New(fetcher.Config{
			UserAgent:  cfg.Crawler.UserAgent,
			Timeout:    cfg.Crawler.Timeout,
			MaxRetries: cfg.Crawler.MaxRetries,
		}, logger.WithPrefix("fetcher")),
		Chunker:   chunker,
		Embedder:  emb,
		Limiter:   rate.NewLimiter(rate.Limit(cfg.Crawler.RatePerSecond), 1),
		BatchSize: cfg.Embedding.BatchSize,
		Logger:    logger,
		Metrics:   metrics,
	})

	logger.Info("Starting content ingestion", map[string]interface{}{
		"base_url": cfg.Crawler.BaseURL,
		"pages":    len(cfg.Crawler.Pages),
		"model":    emb.ModelInfo(),
	})

	snap, report, err := pipeline.Run(ctx, ingest.Sources{
		BaseURL:          cfg.Crawler.BaseURL,
		Pages:            cfg.Crawler.Pages,
		Documents:        docs,
		SupplementaryDir: cfg.Supplementary.Dir,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrNoChunks) {
			logger.Error("No content was scraped, nothing to save", map[string]interface{}{
				"pages_failed": report.PagesFailed,
			})
		}
		return err
	}

	if err := knowledge.Save(cfg.Snapshot.Path, snap); err != nil {
		return fmt.Errorf("saving knowledge base: %w", err)
	}

	logger.Info("Ingestion complete", map[string]interface{}{
		"snapshot":        cfg.Snapshot.Path,
		"chunks":          report.Chunks,
		"sources":         report.Sources,
		"pages_succeeded": report.PagesSucceeded,
		"pages_failed":    report.PagesFailed,
		"duration":        report.Duration.String(),
	})
	return nil
}
