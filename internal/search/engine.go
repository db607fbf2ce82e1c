// Package search serves the query-time pipeline: embed the query, retrieve
// nearest index entries, optionally rerank with a cross-encoder, and return
// them in the order clients render.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"corpusd/internal/content"
	"corpusd/internal/index"
)

// ErrNotFound is returned by Similar when the reference path has no
// index entries.
var ErrNotFound = errors.New("no index entries for path")

// Result is one ranked search hit. When reranking ran, CrossScore is set
// and defines the order, with Similarity as tiebreak.
type Result struct {
	Entry      index.Entry
	Similarity float32
	CrossScore *float64
}

// Engine executes searches against the index.
type Engine struct {
	store    *index.Store
	reranker Reranker // nil disables reranking
	logger   *slog.Logger
}

// NewEngine creates a search engine. reranker may be nil, in which case
// rerank requests degrade to similarity ordering.
func NewEngine(store *index.Store, reranker Reranker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, reranker: reranker, logger: logger}
}

// Search runs the retrieval pipeline for a query. Results come back
// non-increasing by similarity, or by cross-encoder score when rerank is
// requested. A failing rerank backend is surfaced, never silently dropped.
func (e *Engine) Search(ctx context.Context, account, query string, typeFilter *content.Type, limit int, rerank bool) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty query")
	}

	hits, err := e.store.Search(ctx, account, query, limit, typeFilter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{Entry: h.Entry, Similarity: h.Similarity}
	}

	if rerank && e.reranker != nil && len(results) > 1 {
		if err := e.rerank(ctx, query, results); err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}
	return results, nil
}

// Similar finds entries similar to an already-indexed path: the same
// pipeline, seeded with the reference entry's own text and with the
// reference excluded from the results.
func (e *Engine) Similar(ctx context.Context, account, path string, typeFilter *content.Type, limit int, rerank bool) ([]Result, error) {
	entries, err := e.store.GetByPath(ctx, account, path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	// Over-fetch so dropping the reference still fills the requested count.
	ref := entries[0].Text
	results, err := e.Search(ctx, account, ref, typeFilter, limit+len(entries), rerank)
	if err != nil {
		return nil, err
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Entry.Path == path {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == limit {
			break
		}
	}
	return filtered, nil
}

// rerank scores (query, text) pairs with the cross-encoder and re-sorts in
// place: cross score descending, similarity as tiebreak.
func (e *Engine) rerank(ctx context.Context, query string, results []Result) error {
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Entry.Text
	}

	scores, err := e.reranker.Rerank(ctx, query, docs)
	if err != nil {
		return err
	}
	if len(scores) != len(results) {
		return fmt.Errorf("reranker returned %d scores for %d candidates", len(scores), len(results))
	}

	for i := range results {
		s := scores[i]
		results[i].CrossScore = &s
	}
	sort.SliceStable(results, func(i, j int) bool {
		if *results[i].CrossScore != *results[j].CrossScore {
			return *results[i].CrossScore > *results[j].CrossScore
		}
		return results[i].Similarity > results[j].Similarity
	})
	return nil
}
