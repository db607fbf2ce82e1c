// Package ingest implements the server side of the content sync protocol:
// it accepts multipart batches, classifies and extracts content, embeds it
// and maintains the index, reporting a per-file status back to the client.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"corpusd/internal/api"
	"corpusd/internal/content"
	"corpusd/internal/db"
	"corpusd/internal/embeddings"
	"corpusd/internal/index"
)

// ReceivedPart is one decoded multipart entry. An empty Body marks the
// path for deletion.
type ReceivedPart struct {
	Path string
	MIME string
	Body []byte
}

// Service ingests batches into the index. Requests for different accounts
// are fully independent; within one account concurrent upserts on the same
// entry are last-write-wins in the store.
type Service struct {
	store       *index.Store
	db          *db.DB
	logger      *slog.Logger
	concurrency int
}

// NewService creates an ingestion service. concurrency bounds how many
// files of one batch are processed in parallel.
func NewService(store *index.Store, database *db.DB, logger *slog.Logger, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: database, logger: logger, concurrency: concurrency}
}

// IngestBatch processes one batch. Updates apply before deletions, so a
// path updated and deleted in the same batch ends up deleted. A failure on
// one file never aborts the others; its status alone reports failed. The
// exception is backend throttling: that aborts the whole batch with
// embeddings.ErrThrottled so the transport can tell the client to back off
// and resend (already-ingested files are skipped by hash on the retry).
func (s *Service) IngestBatch(ctx context.Context, account string, parts []ReceivedPart, typeFilter *content.Type, force bool) ([]api.FileStatus, error) {
	var updates, deletes []ReceivedPart
	for _, p := range parts {
		if len(p.Body) == 0 {
			deletes = append(deletes, p)
		} else {
			updates = append(updates, p)
		}
	}

	statuses := make(map[string]api.FileStatus, len(parts))
	var mu sync.Mutex
	record := func(st api.FileStatus) {
		mu.Lock()
		statuses[st.Path] = st
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range updates {
		p := p
		g.Go(func() error {
			st, err := s.ingestFile(gctx, account, p, typeFilter, force)
			if err != nil {
				return err
			}
			record(st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range deletes {
		record(s.deleteFile(ctx, account, p, typeFilter))
	}

	// Report in the order the batch arrived.
	out := make([]api.FileStatus, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if seen[p.Path] {
			continue
		}
		seen[p.Path] = true
		out = append(out, statuses[p.Path])
	}
	return out, nil
}

func (s *Service) ingestFile(ctx context.Context, account string, p ReceivedPart, typeFilter *content.Type, force bool) (api.FileStatus, error) {
	ct := content.ForMIME(p.MIME, p.Path)
	if typeFilter != nil && ct != *typeFilter {
		return api.FileStatus{Path: p.Path, Status: api.StatusSkipped}, nil
	}

	sum := sha256.Sum256(p.Body)
	hash := hex.EncodeToString(sum[:])

	// Idempotence is the server's responsibility: an unchanged file with
	// force unset is a no-op regardless of what the client resent.
	if !force {
		stored, err := s.db.IngestedHash(ctx, account, p.Path)
		if err == nil && stored == hash {
			return api.FileStatus{Path: p.Path, Status: api.StatusSkipped}, nil
		}
	}

	text := content.Extract(ct, p.Path, p.Body)
	chunks := index.SplitChunks(text, index.DefaultChunkSize, index.DefaultChunkOverlap)
	if len(chunks) == 0 {
		// Nothing embeddable; still acknowledged so the cursor advances.
		return api.FileStatus{Path: p.Path, Status: api.StatusSkipped}, nil
	}

	now := time.Now()
	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		e := index.Entry{
			Path:    p.Path,
			Chunk:   i,
			Type:    ct,
			Text:    c,
			Hash:    hash,
			Updated: now,
		}
		if ct == content.Image {
			e.Image = "/images/" + p.Path
		}
		entries[i] = e
	}

	// Upsert before any cleanup: a failure here must leave the previous,
	// still-valid entries of this path untouched.
	if err := s.store.Upsert(ctx, account, entries); err != nil {
		if errors.Is(err, embeddings.ErrThrottled) {
			return api.FileStatus{}, err
		}
		s.logger.Error("ingest failed", "account", account, "path", p.Path, "error", err)
		return api.FileStatus{Path: p.Path, Status: api.StatusFailed, Error: err.Error()}, nil
	}

	// A file that shrank leaves stale tail chunks past the new count.
	if err := s.store.DeleteChunksFrom(ctx, account, p.Path, len(chunks)); err != nil {
		s.logger.Warn("stale chunk cleanup failed", "account", account, "path", p.Path, "error", err)
	}

	if err := s.db.RecordIngested(ctx, account, p.Path, hash, string(ct)); err != nil {
		s.logger.Warn("ledger update failed", "account", account, "path", p.Path, "error", err)
	}

	return api.FileStatus{Path: p.Path, Status: api.StatusIndexed}, nil
}

func (s *Service) deleteFile(ctx context.Context, account string, p ReceivedPart, typeFilter *content.Type) api.FileStatus {
	ct := content.ForMIME(p.MIME, p.Path)
	if typeFilter != nil && ct != *typeFilter {
		return api.FileStatus{Path: p.Path, Status: api.StatusSkipped}
	}

	if err := s.store.DeleteByPath(ctx, account, p.Path); err != nil {
		s.logger.Error("delete failed", "account", account, "path", p.Path, "error", err)
		return api.FileStatus{Path: p.Path, Status: api.StatusFailed, Error: err.Error()}
	}
	if err := s.db.ForgetIngested(ctx, account, p.Path); err != nil {
		s.logger.Warn("ledger delete failed", "account", account, "path", p.Path, "error", err)
	}
	return api.FileStatus{Path: p.Path, Status: api.StatusDeleted}
}

// Purge removes every index entry and ledger row of one content type for
// an account. Run before a full regenerate so entries from different
// extraction versions never mix.
func (s *Service) Purge(ctx context.Context, account string, t content.Type) error {
	if err := s.store.DeleteByType(ctx, account, t); err != nil {
		return err
	}
	return s.db.ForgetIngestedType(ctx, account, string(t))
}

// SweepLedger drops ledger rows whose paths no longer have index entries.
// Wired as a recurring scheduler job.
func (s *Service) SweepLedger(ctx context.Context) error {
	accounts, err := s.db.Accounts(ctx)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		paths, err := s.db.IngestedPaths(ctx, account)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			entries, err := s.store.GetByPath(ctx, account, path)
			if err != nil {
				continue
			}
			if len(entries) == 0 {
				if err := s.db.ForgetIngested(ctx, account, path); err != nil {
					s.logger.Warn("sweep: ledger delete failed", "account", account, "path", path, "error", err)
				}
			}
		}
	}
	return nil
}
