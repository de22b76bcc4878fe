package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/perbu/ragchat/pkg/api"
	"github.com/perbu/ragchat/pkg/chat"
	"github.com/perbu/ragchat/pkg/completion"
	"github.com/perbu/ragchat/pkg/config"
	"github.com/perbu/ragchat/pkg/embedder"
	"github.com/perbu/ragchat/pkg/knowledge"
	"github.com/perbu/ragchat/pkg/observability"
	"github.com/perbu/ragchat/pkg/prompt"
	"github.com/perbu/ragchat/pkg/resilience"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireCompletionKey(); err != nil {
		return fmt.Errorf("%w: add your OpenAI API key to the .env file", err)
	}

	logger := observability.NewLogger("server", cfg.Service.LogLevel)
	metrics := observability.NewMetrics()

	kb, err := loadKnowledgeBase(cfg.Snapshot.Path)
	if err != nil {
		metrics.KnowledgeBaseLoads.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w (run the ingest command first)", err)
	}

	base, err := embedder.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	cached, err := embedder.NewCachedEmbedder(
		embedder.NewBreakerEmbedder(base, resilience.NewBreaker("embedding", cfg.Breaker, logger)),
		cfg.Embedding.CacheSize, metrics)
	if err != nil {
		return err
	}

	completer, err := completion.NewOpenAICompleter(completion.OpenAIConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	}, resilience.NewBreaker("completion", cfg.Breaker, logger))
	if err != nil {
		return fmt.Errorf("initializing completion backend: %w", err)
	}

	svc, err := chat.NewService(kb, cached, completer, prompt.Assembler{
		AssistantName: cfg.Persona.AssistantName,
		Organization:  cfg.Persona.Organization,
		SiteName:      cfg.Persona.SiteName,
	}, chat.Options{
		ChatTopK:    cfg.Retrieval.ChatTopK,
		SearchTopK:  cfg.Retrieval.SearchTopK,
		MinScore:    cfg.Retrieval.MinScore,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
		SiteName:    cfg.Persona.SiteName,
	}, logger.WithPrefix("chat"), metrics)
	if err != nil {
		return err
	}

	loaded, chunks := svc.Stats()
	logger.Info("Knowledge base loaded", map[string]interface{}{
		"path":   cfg.Snapshot.Path,
		"chunks": chunks,
		"loaded": loaded,
		"model":  kb.ModelInfo(),
	})

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(svc, api.Config{
		ServiceName: cfg.Service.Name,
		CORSOrigins: cfg.Service.CORSOrigins,
	}, logger.WithPrefix("http"), metrics)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server running", map[string]interface{}{
			"port":             cfg.Service.Port,
			"completion_model": completer.Model(),
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reload(cfg.Snapshot.Path, svc, logger, metrics)
				continue
			}
			logger.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
			err := httpServer.Shutdown(ctx)
			cancel()
			if err != nil {
				return fmt.Errorf("shutting down: %w", err)
			}
			return nil
		}
	}
}

func loadKnowledgeBase(path string) (*knowledge.KnowledgeBase, error) {
	snap, err := knowledge.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}
	return knowledge.New(snap)
}

// reload replaces the active knowledge base. Failures keep the old one.
func reload(path string, svc *chat.Service, logger observability.Logger, metrics *observability.Metrics) {
	kb, err := loadKnowledgeBase(path)
	if err == nil {
		err = svc.Reload(kb)
	} else {
		metrics.KnowledgeBaseLoads.WithLabelValues("failed").Inc()
	}
	if err != nil {
		logger.Error("Reload failed, keeping current knowledge base", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	_, chunks := svc.Stats()
	logger.Info("Knowledge base reloaded", map[string]interface{}{"path": path, "chunks": chunks})
}
