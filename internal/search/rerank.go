package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRerankUnavailable wraps cross-encoder backend failures so callers get
// an explicit unavailable signal instead of silently unranked results.
var ErrRerankUnavailable = errors.New("rerank backend unavailable")

// Reranker scores (query, document) pairs with a cross-encoder. Scores
// come back in document order; higher is more relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)
}

// HTTPReranker calls a text-embeddings-inference style /rerank endpoint.
type HTTPReranker struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHTTPReranker creates a reranker client. model may be empty when the
// endpoint serves a single model.
func NewHTTPReranker(baseURL, model string, timeout time.Duration) *HTTPReranker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPReranker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerankUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRerankUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(docs))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, fmt.Errorf("rerank result index %d out of range", res.Index)
		}
		scores[res.Index] = res.Score
	}
	return scores, nil
}
