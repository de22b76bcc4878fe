package embedder

import (
	"context"

	"github.com/sony/gobreaker"
)

// BreakerEmbedder fails fast while the wrapped embedder keeps failing.
type BreakerEmbedder struct {
	next Embedder
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder wraps next with cb.
func NewBreakerEmbedder(next Embedder, cb *gobreaker.CircuitBreaker) *BreakerEmbedder {
	return &BreakerEmbedder{next: next, cb: cb}
}

// Embed implements Embedder.
func (b *BreakerEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return res.([][]float32), nil
}

// Dimension implements Embedder.
func (b *BreakerEmbedder) Dimension() int { return b.next.Dimension() }

// ModelInfo implements Embedder.
func (b *BreakerEmbedder) ModelInfo() string { return b.next.ModelInfo() }
