package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/perbu/ragchat/pkg/config"
	"github.com/perbu/ragchat/pkg/knowledge"
	"github.com/perbu/ragchat/pkg/observability"
	"github.com/perbu/ragchat/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimension, e.Dimension())
	assert.Equal(t, "hash-384", e.ModelInfo())

	texts := []string{
		"Where is the food pantry?",
		"where is the FOOD pantry",
		"volunteer application form",
		"",
	}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for _, v := range vecs[:3] {
		assert.Len(t, v, DefaultHashDimension)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}
	assert.Equal(t, 0.0, norm(vecs[3]))

	assert.Equal(t, vecs[0], vecs[1], "case and punctuation are ignored")
	same := knowledge.CosineSimilarity(vecs[0], vecs[1])
	other := knowledge.CosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, same, other)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	a, err := NewHashEmbedder(64).Embed(context.Background(), []string{"An-Nisa Hope Center"})
	require.NoError(t, err)
	b, err := NewHashEmbedder(64).Embed(context.Background(), []string{"An-Nisa Hope Center"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashEmbedderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeEmbeddingServer answers like the OpenAI embeddings endpoint. Vectors
// are [len(text), 1, 0] and are returned in reverse order.
func fakeEmbeddingServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIEmbedderBatchesAndOrders(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingServer(t, &calls)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:    "sk-test",
		BaseURL:   srv.URL + "/v1/",
		Model:     "local-model",
		BatchSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai-local-model", e.ModelInfo())
	assert.Equal(t, 0, e.Dimension())

	texts := []string{"a", "bbb", "cc", "dddd", "e"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Equal(t, int32(3), calls.Load())

	for i, text := range texts {
		want := []float32{float32(len(text)), 1, 0}
		l2normalize(want)
		assert.InDeltaSlice(t, want, vecs[i], 1e-6, "text %q", text)
	}
}

func TestOpenAIEmbedderDimensionCheck(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingServer(t, &calls)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimension())
	assert.Equal(t, "openai-text-embedding-3-small", e.ModelInfo())

	_, err = e.Embed(context.Background(), []string{"hello"})
	assert.ErrorContains(t, err, "dimensions")
}

func TestOpenAIEmbedderErrors(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Error(t, err, "missing key")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL, Model: "local-model"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"hello"})
	assert.Error(t, err)

	_, err = e.Embed(context.Background(), []string{"ok", "  "})
	assert.ErrorContains(t, err, "empty text")
}

type countingEmbedder struct {
	inner Embedder
	texts int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Embed(ctx, texts)
}
func (c *countingEmbedder) Dimension() int    { return c.inner.Dimension() }
func (c *countingEmbedder) ModelInfo() string { return c.inner.ModelInfo() }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashEmbedder(16)}
	metrics := observability.NewMetrics()
	c, err := NewCachedEmbedder(inner, 10, metrics)
	require.NoError(t, err)
	assert.Equal(t, "hash-16", c.ModelInfo())
	assert.Equal(t, 16, c.Dimension())

	first, err := c.Embed(context.Background(), []string{"food pantry", "donate"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.texts)

	second, err := c.Embed(context.Background(), []string{"donate", "volunteer", "food pantry"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.texts, "only the new text reaches the backend")
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, 3, c.Len())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EmbeddingCacheHits))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.EmbeddingCacheMiss))
}

func TestCachedEmbedderDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashEmbedder(8), err: errors.New("down")}
	c, err := NewCachedEmbedder(inner, 10, nil)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"q"})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedderInvalidSize(t *testing.T) {
	_, err := NewCachedEmbedder(NewHashEmbedder(8), 0, nil)
	assert.Error(t, err)
}

func TestBreakerEmbedder(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashEmbedder(8), err: errors.New("down")}
	b := NewBreakerEmbedder(inner, resilience.NewBreaker("embedding", config.BreakerConfig{}, nil))
	assert.Equal(t, "hash-8", b.ModelInfo())

	for i := 0; i < 5; i++ {
		_, err := b.Embed(context.Background(), []string{"q"})
		assert.Error(t, err)
	}
	assert.Equal(t, 5, inner.texts)

	_, err := b.Embed(context.Background(), []string{"q"})
	assert.True(t, resilience.IsOpen(err))
	assert.Equal(t, 5, inner.texts, "open breaker does not call the backend")
}

func TestBreakerEmbedderSuccess(t *testing.T) {
	b := NewBreakerEmbedder(NewHashEmbedder(8), resilience.NewBreaker("embedding", config.BreakerConfig{}, nil))
	vecs, err := b.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "hash", Dimension: 32})
	require.NoError(t, err)
	assert.Equal(t, "hash-32", e.ModelInfo())

	e, err = New(config.EmbeddingConfig{Provider: "openai", APIKey: "sk", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimension())

	_, err = New(config.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err)

	_, err = New(config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}
