package embedder

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/perbu/ragchat/pkg/observability"
)

// CachedEmbedder memoizes vectors by exact text. Only texts missing from the
// cache are sent to the wrapped embedder.
type CachedEmbedder struct {
	next    Embedder
	cache   *lru.Cache[string, []float32]
	metrics *observability.Metrics
}

// NewCachedEmbedder wraps next with an LRU cache holding up to size vectors.
// metrics may be nil.
func NewCachedEmbedder(next Embedder, size int, metrics *observability.Metrics) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache, metrics: metrics}, nil
}

// Embed implements Embedder. Cached vectors are shared and must not be modified.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []string
	var positions []int
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		positions = append(positions, i)
	}

	if c.metrics != nil {
		c.metrics.EmbeddingCacheHits.Add(float64(len(texts) - len(missing)))
		c.metrics.EmbeddingCacheMiss.Add(float64(len(missing)))
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, v := range vecs {
		c.cache.Add(missing[j], v)
		out[positions[j]] = v
	}
	return out, nil
}

// Dimension implements Embedder.
func (c *CachedEmbedder) Dimension() int { return c.next.Dimension() }

// ModelInfo implements Embedder.
func (c *CachedEmbedder) ModelInfo() string { return c.next.ModelInfo() }

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
