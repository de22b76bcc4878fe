package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. Each instance owns its registry so
// several can coexist in one process (tests construct many).
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	ChatRequests        *prometheus.CounterVec
	SearchDuration      prometheus.Histogram
	ChunksRetrieved     prometheus.Histogram
	BackendFailures     *prometheus.CounterVec
	KnowledgeBaseChunks prometheus.Gauge
	KnowledgeBaseLoads  *prometheus.CounterVec
	PagesFetched        *prometheus.CounterVec
	ChunksCreated       prometheus.Counter
	EmbeddingCacheHits  prometheus.Counter
	EmbeddingCacheMiss  prometheus.Counter
}

// NewMetrics creates and registers all collectors, including the Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragchat_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_chat_requests_total",
			Help: "Chat requests by outcome",
		}, []string{"outcome"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragchat_search_duration_seconds",
			Help:    "Time spent scanning the knowledge base",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		ChunksRetrieved: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragchat_chunks_retrieved",
			Help:    "Number of chunks passing the similarity threshold per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		}),
		BackendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_backend_failures_total",
			Help: "Failed calls to external model backends",
		}, []string{"backend"}),
		KnowledgeBaseChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "ragchat_knowledge_base_chunks",
			Help: "Number of chunks in the active knowledge base",
		}),
		KnowledgeBaseLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_knowledge_base_loads_total",
			Help: "Knowledge base load attempts by result",
		}, []string{"result"}),
		PagesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_ingest_pages_total",
			Help: "Pages processed during ingestion by result",
		}, []string{"result"}),
		ChunksCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_ingest_chunks_total",
			Help: "Chunks produced during ingestion",
		}),
		EmbeddingCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_embedding_cache_hits_total",
			Help: "Query embeddings served from the cache",
		}),
		EmbeddingCacheMiss: f.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_embedding_cache_misses_total",
			Help: "Query embeddings computed by the backend",
		}),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
