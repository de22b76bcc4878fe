// Package chat answers user questions from the knowledge base.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/perbu/ragchat/pkg/completion"
	"github.com/perbu/ragchat/pkg/embedder"
	"github.com/perbu/ragchat/pkg/knowledge"
	"github.com/perbu/ragchat/pkg/observability"
	"github.com/perbu/ragchat/pkg/prompt"
	"github.com/perbu/ragchat/pkg/resilience"
)

var (
	// ErrInvalidInput means the message was empty or whitespace.
	ErrInvalidInput = errors.New("invalid input")
	// ErrServiceUnavailable means a model backend could not be reached.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Options tunes retrieval and generation.
type Options struct {
	ChatTopK    int
	SearchTopK  int
	MinScore    float32
	MaxTokens   int
	Temperature float32
	SiteName    string
}

// DefaultOptions returns the settings the service runs with unless configured.
func DefaultOptions() Options {
	return Options{
		ChatTopK:    3,
		SearchTopK:  5,
		MinScore:    knowledge.DefaultMinScore,
		MaxTokens:   500,
		Temperature: 0.7,
		SiteName:    "annisa.org",
	}
}

// Reply is the answer to one chat message.
type Reply struct {
	Response   string
	ChunksUsed int
}

// Service answers questions. It keeps no per-request state, and the active
// knowledge base can be replaced while requests are in flight.
type Service struct {
	kb        atomic.Pointer[knowledge.KnowledgeBase]
	embedder  embedder.Embedder
	completer completion.Completer
	assembler prompt.Assembler
	opts      Options
	logger    observability.Logger
	metrics   *observability.Metrics
}

// NewService creates a Service. The knowledge base must have been built with
// the same embedding model as emb.
func NewService(kb *knowledge.KnowledgeBase, emb embedder.Embedder, comp completion.Completer,
	asm prompt.Assembler, opts Options, logger observability.Logger, metrics *observability.Metrics) (*Service, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	s := &Service{
		embedder:  emb,
		completer: comp,
		assembler: asm,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
	if err := s.Reload(kb); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload swaps in kb. On error the current knowledge base stays active.
func (s *Service) Reload(kb *knowledge.KnowledgeBase) error {
	if kb == nil {
		return errors.New("knowledge base is nil")
	}
	if err := kb.CheckModel(s.embedder.ModelInfo()); err != nil {
		s.metrics.KnowledgeBaseLoads.WithLabelValues("rejected").Inc()
		return err
	}
	if d := s.embedder.Dimension(); d > 0 && kb.Len() > 0 && kb.Dimension() != d {
		s.metrics.KnowledgeBaseLoads.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: knowledge base has %d, embedder produces %d",
			knowledge.ErrDimensionMismatch, kb.Dimension(), d)
	}

	s.kb.Store(kb)
	s.metrics.KnowledgeBaseChunks.Set(float64(kb.Len()))
	s.metrics.KnowledgeBaseLoads.WithLabelValues("ok").Inc()
	return nil
}

// Stats reports whether the knowledge base has content and how many chunks it holds.
func (s *Service) Stats() (loaded bool, chunks int) {
	n := s.kb.Load().Len()
	return n > 0, n
}

// UnavailableMessage is returned when the embedding backend fails.
func (s *Service) UnavailableMessage() string {
	return "Sorry, I'm having trouble connecting to the AI service. Please try again later."
}

// NoInformationMessage is returned when nothing relevant was retrieved.
func (s *Service) NoInformationMessage() string {
	return fmt.Sprintf("I don't have specific information about that topic. For the most up-to-date details, "+
		"I'd recommend visiting %s directly or reaching out to them - they'll be happy to help!", s.opts.SiteName)
}

// ApologyMessage is returned when the language model fails.
func (s *Service) ApologyMessage() string {
	return fmt.Sprintf("I'm having some technical difficulties right now. Please try asking your question again, "+
		"or visit %s for more information.", s.opts.SiteName)
}

// Answer responds to message. Embedding failures return the unavailable
// reply together with an error wrapping ErrServiceUnavailable. Completion
// failures are absorbed into the apology reply.
func (s *Service) Answer(ctx context.Context, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		s.metrics.ChatRequests.WithLabelValues("invalid").Inc()
		return Reply{}, ErrInvalidInput
	}

	results, err := s.retrieve(ctx, message, s.opts.ChatTopK)
	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			s.metrics.ChatRequests.WithLabelValues("unavailable").Inc()
			return Reply{Response: s.UnavailableMessage()}, err
		}
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		return Reply{}, err
	}

	if len(results) == 0 {
		s.metrics.ChatRequests.WithLabelValues("no_information").Inc()
		return Reply{Response: s.NoInformationMessage()}, nil
	}

	p := s.assembler.Build(message, results)
	text, err := s.completer.Complete(ctx, completion.Request{
		System:      p.System,
		User:        p.User,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		s.metrics.BackendFailures.WithLabelValues("completion").Inc()
		s.metrics.ChatRequests.WithLabelValues("apology").Inc()
		s.logger.Error("Error generating response", map[string]interface{}{
			"error":        err.Error(),
			"chunks_used":  len(results),
			"breaker_open": resilience.IsOpen(err),
		})
		return Reply{Response: s.ApologyMessage(), ChunksUsed: len(results)}, nil
	}

	s.metrics.ChatRequests.WithLabelValues("answered").Inc()
	return Reply{Response: text, ChunksUsed: len(results)}, nil
}

// Search returns the chunks most similar to query without calling the
// language model.
func (s *Service) Search(ctx context.Context, query string) ([]knowledge.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	return s.retrieve(ctx, query, s.opts.SearchTopK)
}

func (s *Service) retrieve(ctx context.Context, query string, topK int) ([]knowledge.Result, error) {
	kb := s.kb.Load()
	if kb.Len() == 0 {
		s.metrics.ChunksRetrieved.Observe(0)
		return []knowledge.Result{}, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		s.metrics.BackendFailures.WithLabelValues("embedding").Inc()
		s.logger.Error("Error embedding query", map[string]interface{}{
			"error":        err.Error(),
			"breaker_open": resilience.IsOpen(err),
		})
		return nil, fmt.Errorf("%w: embedding query: %w", ErrServiceUnavailable, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}

	start := time.Now()
	results, err := kb.Search(vecs[0], topK, s.opts.MinScore)
	s.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	s.metrics.ChunksRetrieved.Observe(float64(len(results)))
	s.logger.Debug("Retrieved chunks", map[string]interface{}{
		"results": len(results),
		"top_k":   topK,
	})
	return results, nil
}
