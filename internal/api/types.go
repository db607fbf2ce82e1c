// Package api holds the JSON wire types shared by the corpusd server and
// its sync/search clients.
package api

// Per-file ingestion outcomes. Skipped means the server already had the
// same content hash; clients treat it as success and advance their cursor.
const (
	StatusIndexed = "indexed"
	StatusDeleted = "deleted"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// FileStatus reports the ingestion outcome for a single batch entry.
type FileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Success reports whether the client may advance its sync cursor for this file.
func (s FileStatus) Success() bool {
	return s.Status == StatusIndexed || s.Status == StatusSkipped
}

// IngestResponse is the body returned by the content endpoints.
type IngestResponse struct {
	Files []FileStatus `json:"files"`
}

// SearchResult is one ranked entry in a search response.
type SearchResult struct {
	Entry      string   `json:"entry"`
	File       string   `json:"file"`
	Type       string   `json:"type"`
	Image      string   `json:"image,omitempty"`
	Score      float32  `json:"score"`
	CrossScore *float64 `json:"cross_score,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
