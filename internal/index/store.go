package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"corpusd/internal/content"
	"corpusd/internal/embeddings"
)

const (
	collectionPrefix = "corpus-"
	snapshotFile     = "index.gob.gz"
)

// Store is the embedding index, backed by chromem-go with one collection
// per account. Upserts are last-write-wins on (account, path, chunk);
// reads may run concurrently with writes and see entries with eventual
// visibility.
type Store struct {
	mu        sync.Mutex // guards collection creation and snapshotting
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
}

// NewStore creates an empty in-memory store that embeds with the given
// embedder.
func NewStore(embedder embeddings.Embedder) *Store {
	return &Store{
		db:        chromem.NewDB(),
		embedFunc: embeddings.ToChromemFunc(embedder),
	}
}

func (s *Store) collection(account string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.db.GetOrCreateCollection(collectionPrefix+account, nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("index: collection for account %s: %w", account, err)
	}
	return col, nil
}

// Upsert adds or replaces entries for an account. Entries sharing an ID
// with existing ones overwrite them.
func (s *Store) Upsert(ctx context.Context, account string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	col, err := s.collection(account)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:       e.ID(),
			Content:  e.Text,
			Metadata: e.metadata(),
		}
	}
	if err := col.AddDocuments(ctx, docs, 2); err != nil {
		return fmt.Errorf("index: upsert: %w", err)
	}
	return nil
}

// DeleteByPath removes every chunk entry of one source path.
func (s *Store) DeleteByPath(ctx context.Context, account, path string) error {
	col, err := s.collection(account)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{"path": path}, nil); err != nil {
		return fmt.Errorf("index: delete %s: %w", path, err)
	}
	return nil
}

// DeleteChunksFrom removes entries of path whose chunk index is at or past
// keep. Run after a successful upsert so a file that shrank leaves no stale
// tail entries; failure paths never touch the still-valid chunks.
func (s *Store) DeleteChunksFrom(ctx context.Context, account, path string, keep int) error {
	entries, err := s.GetByPath(ctx, account, path)
	if err != nil {
		return err
	}
	var ids []string
	for _, e := range entries {
		if e.Chunk >= keep {
			ids = append(ids, e.ID())
		}
	}
	if len(ids) == 0 {
		return nil
	}

	col, err := s.collection(account)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("index: trim %s: %w", path, err)
	}
	return nil
}

// DeleteByType removes every entry of one content type for an account.
// Used before a full regenerate so stale and fresh extractions never mix.
func (s *Store) DeleteByType(ctx context.Context, account string, t content.Type) error {
	col, err := s.collection(account)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{"type": string(t)}, nil); err != nil {
		return fmt.Errorf("index: purge type %s: %w", t, err)
	}
	return nil
}

// Search returns the top-limit entries most similar to query, optionally
// restricted to one content type.
func (s *Store) Search(ctx context.Context, account, query string, limit int, typeFilter *content.Type) ([]Hit, error) {
	col, err := s.collection(account)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}
	// chromem rejects nResults larger than the collection.
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if limit > count {
		limit = count
	}

	var where map[string]string
	if typeFilter != nil {
		where = map[string]string{"type": string(*typeFilter)}
	}

	// A filter matching nothing comes back as an empty result, not an error.
	results, err := col.Query(ctx, query, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Entry:      entryFromStored(r.ID, r.Content, r.Metadata),
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}

// GetByPath returns all stored entries for one source path, in chunk order
// as far as the underlying query allows.
func (s *Store) GetByPath(ctx context.Context, account, path string) ([]Entry, error) {
	col, err := s.collection(account)
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, path, count, map[string]string{"path": path}, nil)
	if err != nil {
		return nil, fmt.Errorf("index: get %s: %w", path, err)
	}

	entries := make([]Entry, len(results))
	for i, r := range results {
		entries[i] = entryFromStored(r.ID, r.Content, r.Metadata)
	}
	return entries, nil
}

// Count returns the number of entries stored for an account.
func (s *Store) Count(account string) int {
	col, err := s.collection(account)
	if err != nil {
		return 0
	}
	return col.Count()
}

// Persist snapshots the whole store to <dir>/index.gob.gz.
func (s *Store) Persist(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: create snapshot dir: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.ExportToFile(filepath.Join(dir, snapshotFile), true, ""); err != nil {
		return fmt.Errorf("index: persist: %w", err)
	}
	return nil
}

// Load restores a snapshot written by Persist. A missing snapshot is not an
// error; the store simply starts empty.
func (s *Store) Load(_ context.Context, dir string) error {
	path := filepath.Join(dir, snapshotFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("index: load snapshot: %w", err)
	}
	return nil
}
