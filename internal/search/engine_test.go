package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"corpusd/internal/content"
	"corpusd/internal/index"
)

// stubEmbedder maps known texts to fixed vectors so retrieval ordering in
// tests is deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

// scoreByText reranks by a fixed per-document score table.
type scoreByText map[string]float64

func (s scoreByText) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	for i, d := range docs {
		scores[i] = s[d]
	}
	return scores, nil
}

type failingReranker struct{}

func (failingReranker) Rerank(context.Context, string, []string) ([]float64, error) {
	return nil, ErrRerankUnavailable
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedStore(t *testing.T, vectors map[string][]float32, entries ...index.Entry) *index.Store {
	t.Helper()
	store := index.NewStore(&stubEmbedder{vectors: vectors})
	if err := store.Upsert(context.Background(), "acct", entries); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func mdEntry(path, text string) index.Entry {
	return index.Entry{Path: path, Chunk: 0, Type: content.Markdown, Text: text, Hash: "h", Updated: time.Now()}
}

func TestSearch_SimilarityOrdering(t *testing.T) {
	store := seedStore(t, map[string][]float32{
		"the query": {1, 0, 0},
		"near":      {0.98, 0.2, 0},
		"mid":       {0.7, 0.71, 0},
		"far":       {0, 1, 0},
	},
		mdEntry("far.md", "far"),
		mdEntry("near.md", "near"),
		mdEntry("mid.md", "mid"),
	)
	engine := NewEngine(store, nil, quietLogger())

	results, err := engine.Search(context.Background(), "acct", "the query", nil, 10, false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"near.md", "mid.md", "far.md"}
	for i, w := range want {
		if results[i].Entry.Path != w {
			t.Errorf("rank %d = %s, want %s", i, results[i].Entry.Path, w)
		}
		if results[i].CrossScore != nil {
			t.Errorf("rank %d has a cross score without reranking", i)
		}
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	engine := NewEngine(index.NewStore(&stubEmbedder{}), nil, quietLogger())
	if _, err := engine.Search(context.Background(), "acct", "   ", nil, 10, false); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearch_RerankReorders(t *testing.T) {
	store := seedStore(t, map[string][]float32{
		"the query": {1, 0, 0},
		"near":      {0.98, 0.2, 0},
		"far":       {0, 1, 0},
	},
		mdEntry("near.md", "near"),
		mdEntry("far.md", "far"),
	)
	// The cross-encoder disagrees with vector similarity.
	reranker := scoreByText{"near": 0.1, "far": 0.9}
	engine := NewEngine(store, reranker, quietLogger())

	results, err := engine.Search(context.Background(), "acct", "the query", nil, 10, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Entry.Path != "far.md" || results[1].Entry.Path != "near.md" {
		t.Fatalf("rerank did not reorder: %s then %s", results[0].Entry.Path, results[1].Entry.Path)
	}
	for i, r := range results {
		if r.CrossScore == nil {
			t.Errorf("rank %d missing cross score", i)
		}
	}
}

func TestSearch_RerankTiebreaksOnSimilarity(t *testing.T) {
	store := seedStore(t, map[string][]float32{
		"the query": {1, 0, 0},
		"near":      {0.98, 0.2, 0},
		"far":       {0, 1, 0},
	},
		mdEntry("near.md", "near"),
		mdEntry("far.md", "far"),
	)
	// Equal cross scores: vector similarity decides.
	reranker := scoreByText{"near": 0.5, "far": 0.5}
	engine := NewEngine(store, reranker, quietLogger())

	results, err := engine.Search(context.Background(), "acct", "the query", nil, 10, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Entry.Path != "near.md" {
		t.Fatalf("tiebreak should prefer higher similarity, got %s first", results[0].Entry.Path)
	}
}

func TestSearch_RerankFailureSurfaces(t *testing.T) {
	store := seedStore(t, nil,
		mdEntry("a.md", "alpha"),
		mdEntry("b.md", "beta"),
	)
	engine := NewEngine(store, failingReranker{}, quietLogger())

	_, err := engine.Search(context.Background(), "acct", "anything", nil, 10, true)
	if !errors.Is(err, ErrRerankUnavailable) {
		t.Fatalf("expected ErrRerankUnavailable, got %v", err)
	}
}

func TestSearch_RerankRequestWithoutBackendDegrades(t *testing.T) {
	store := seedStore(t, nil, mdEntry("a.md", "alpha"), mdEntry("b.md", "beta"))
	engine := NewEngine(store, nil, quietLogger())

	results, err := engine.Search(context.Background(), "acct", "anything", nil, 10, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.CrossScore != nil {
			t.Error("cross score set without a reranker")
		}
	}
}

func TestSimilar_ExcludesReference(t *testing.T) {
	store := seedStore(t, map[string][]float32{
		"alpha": {1, 0, 0},
		"close": {0.97, 0.24, 0},
		"other": {0, 1, 0},
	},
		mdEntry("ref.md", "alpha"),
		mdEntry("close.md", "close"),
		mdEntry("other.md", "other"),
	)
	engine := NewEngine(store, nil, quietLogger())

	results, err := engine.Similar(context.Background(), "acct", "ref.md", nil, 2, false)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Entry.Path == "ref.md" {
			t.Fatal("reference path leaked into its own similar results")
		}
	}
	if results[0].Entry.Path != "close.md" {
		t.Errorf("closest neighbor = %s, want close.md", results[0].Entry.Path)
	}
}

func TestSimilar_UnknownPath(t *testing.T) {
	engine := NewEngine(index.NewStore(&stubEmbedder{}), nil, quietLogger())
	_, err := engine.Similar(context.Background(), "acct", "nope.md", nil, 5, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPReranker_ParsesScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Results arrive ranked, not in document order.
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.2},
			},
		})
	}))
	defer srv.Close()

	r := NewHTTPReranker(srv.URL, "test-model", time.Second)
	scores, err := r.Rerank(context.Background(), "q", []string{"first", "second"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if scores[0] != 0.2 || scores[1] != 0.9 {
		t.Fatalf("scores not mapped back to document order: %v", scores)
	}
}

func TestHTTPReranker_BackendDownIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewHTTPReranker(srv.URL, "", time.Second)
	_, err := r.Rerank(context.Background(), "q", []string{"doc"})
	if !errors.Is(err, ErrRerankUnavailable) {
		t.Fatalf("expected ErrRerankUnavailable, got %v", err)
	}
}
