// Package api exposes the chat service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/perbu/ragchat/pkg/chat"
	"github.com/perbu/ragchat/pkg/knowledge"
	"github.com/perbu/ragchat/pkg/observability"
)

// Answerer is the part of chat.Service the HTTP layer needs.
type Answerer interface {
	Answer(ctx context.Context, message string) (chat.Reply, error)
	Search(ctx context.Context, query string) ([]knowledge.Result, error)
	Stats() (loaded bool, chunks int)
}

// Config holds HTTP layer settings.
type Config struct {
	ServiceName string
	CORSOrigins []string
}

// Server routes HTTP requests to the chat service.
type Server struct {
	svc     Answerer
	cfg     Config
	logger  observability.Logger
	metrics *observability.Metrics
	router  *gin.Engine
}

// NewServer creates a Server and registers its routes.
func NewServer(svc Answerer, cfg Config, logger observability.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	s := &Server{svc: svc, cfg: cfg, logger: logger, metrics: metrics}

	router := gin.New()
	router.Use(RequestID(), RequestLogger(logger, metrics), Recovery(logger), CORS(cfg.CORSOrigins))

	router.GET("/", s.health)
	router.POST("/chat", s.chat)
	router.POST("/search", s.search)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router = router
	return s
}

// Handler returns the http.Handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status              string `json:"status"`
	ServiceName         string `json:"service_name"`
	KnowledgeBaseLoaded bool   `json:"knowledge_base_loaded"`
	ChunkCount          int    `json:"chunk_count"`
}

func (s *Server) health(c *gin.Context) {
	loaded, n := s.svc.Stats()
	c.JSON(http.StatusOK, healthResponse{
		Status:              "healthy",
		ServiceName:         s.cfg.ServiceName,
		KnowledgeBaseLoaded: loaded,
		ChunkCount:          n,
	})
}

type chatRequest struct {
	Message *string `json:"message"`
}

type chatResponse struct {
	Response   string `json:"response"`
	ChunksUsed int    `json:"chunks_used"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No message provided"})
		return
	}

	s.logger.Info("Received query", map[string]interface{}{
		"request_id": c.GetString("request_id"),
		"length":     len(*req.Message),
	})

	reply, err := s.svc.Answer(c.Request.Context(), *req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, chatResponse{Response: reply.Response, ChunksUsed: reply.ChunksUsed})
	case errors.Is(err, chat.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty message"})
	case errors.Is(err, chat.ErrServiceUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"response": reply.Response, "error": "Service unavailable"})
	default:
		s.internalError(c, err)
	}
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Query   string             `json:"query"`
	Results []knowledge.Result `json:"results"`
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
		return
	}

	results, err := s.svc.Search(c.Request.Context(), req.Query)
	switch {
	case err == nil:
		if results == nil {
			results = []knowledge.Result{}
		}
		c.JSON(http.StatusOK, searchResponse{Query: req.Query, Results: results})
	case errors.Is(err, chat.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
	case errors.Is(err, chat.ErrServiceUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
	default:
		s.internalError(c, err)
	}
}

func (s *Server) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	s.logger.Error("Unexpected error", map[string]interface{}{
		"path":       c.Request.URL.Path,
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
	})
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
