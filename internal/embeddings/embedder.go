// Package embeddings provides the text embedding backends used at both
// ingestion and query time. Query embeddings must come from the same model
// that embedded the corpus, so the server constructs exactly one Embedder
// and shares it between the ingest and search paths.
package embeddings

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps embedding backend failures so callers can surface a
// distinct "service unavailable" signal instead of a generic error.
var ErrUnavailable = errors.New("embedding backend unavailable")

// ErrThrottled wraps backend rate-limit responses. The server maps it to
// HTTP 429 so clients back off instead of treating it as a hard failure.
var ErrThrottled = errors.New("embedding backend rate limited")

// Embedder generates embedding vectors for texts.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the backing model, e.g. "text-embedding-3-small".
	Name() string
}

// WithTimeout wraps an Embedder so every call is bounded by d. Model calls
// must never hang their caller.
func WithTimeout(e Embedder, d time.Duration) Embedder {
	if d <= 0 {
		return e
	}
	return &timeoutEmbedder{inner: e, timeout: d}
}

type timeoutEmbedder struct {
	inner   Embedder
	timeout time.Duration
}

func (t *timeoutEmbedder) Name() string { return t.inner.Name() }

func (t *timeoutEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Embed(ctx, texts)
}
