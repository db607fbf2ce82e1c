package search

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"corpusd/internal/api"
	"corpusd/internal/content"
	"corpusd/internal/embeddings"
)

const defaultResultCount = 10

// RegisterRoutes mounts the search API.
func RegisterRoutes(r chi.Router, engine *Engine) {
	r.Get("/search", handleSearch(engine))
	r.Get("/search/similar", handleSimilar(engine))
}

func handleSearch(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}

		typeFilter, ok := typeFilterFrom(w, r)
		if !ok {
			return
		}

		results, err := engine.Search(r.Context(), accountFrom(r), q, typeFilter, countFrom(r), rerankFrom(r))
		if err != nil {
			writeSearchError(w, err)
			return
		}
		writeResults(w, results)
	}
}

func handleSimilar(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			writeError(w, http.StatusBadRequest, "path is required")
			return
		}

		typeFilter, ok := typeFilterFrom(w, r)
		if !ok {
			return
		}

		results, err := engine.Similar(r.Context(), accountFrom(r), path, typeFilter, countFrom(r), rerankFrom(r))
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeSearchError(w, err)
			return
		}
		writeResults(w, results)
	}
}

func typeFilterFrom(w http.ResponseWriter, r *http.Request) (*content.Type, bool) {
	t := r.URL.Query().Get("t")
	if t == "" {
		return nil, true
	}
	if !content.Valid(t) {
		writeError(w, http.StatusBadRequest, "unknown content type "+t)
		return nil, false
	}
	ct := content.Type(t)
	return &ct, true
}

func countFrom(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("n")); err == nil && n > 0 {
		return n
	}
	return defaultResultCount
}

func rerankFrom(r *http.Request) bool {
	return r.URL.Query().Get("r") == "true"
}

func accountFrom(r *http.Request) string {
	if c := r.URL.Query().Get("client"); c != "" {
		return c
	}
	return "default"
}

func writeResults(w http.ResponseWriter, results []Result) {
	out := make([]api.SearchResult, len(results))
	for i, res := range results {
		out[i] = api.SearchResult{
			Entry:      res.Entry.Text,
			File:       res.Entry.Path,
			Type:       string(res.Entry.Type),
			Image:      res.Entry.Image,
			Score:      res.Similarity,
			CrossScore: res.CrossScore,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// writeSearchError maps backend throttling to 429 and unavailability to
// 503 so clients can tell "back off" from "degraded" from an empty corpus.
func writeSearchError(w http.ResponseWriter, err error) {
	if errors.Is(err, embeddings.ErrThrottled) {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if errors.Is(err, ErrRerankUnavailable) || errors.Is(err, embeddings.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}
