// Package completion generates answers with a chat language model.
package completion

import (
	"context"
	"errors"
)

// ErrCompletionFailed wraps every error returned by a Completer.
var ErrCompletionFailed = errors.New("completion failed")

// Request is a single-turn chat completion request.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Completer produces the assistant's reply to a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
