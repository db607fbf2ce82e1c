package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func ollamaServer(t *testing.T, status *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := int(status.Load()); code != http.StatusOK {
			http.Error(w, "slow down", code)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			out.Embeddings[i] = []float32{1, 0, 0}
		}
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_Embeds(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusOK)
	srv := ollamaServer(t, &status)

	e := NewOllamaEmbedder("nomic-embed-text", srv.URL)
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
}

func TestOllamaEmbedder_RateLimitIsThrottled(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusTooManyRequests)
	srv := ollamaServer(t, &status)

	e := NewOllamaEmbedder("nomic-embed-text", srv.URL)
	_, err := e.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("throttling must be distinct from unavailability")
	}
}

func TestOllamaEmbedder_ServerErrorIsUnavailable(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusInternalServerError)
	srv := ollamaServer(t, &status)

	e := NewOllamaEmbedder("nomic-embed-text", srv.URL)
	_, err := e.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, ErrThrottled) {
		t.Fatal("a 500 is not throttling")
	}
}
