package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"corpusd/internal/api"
	"corpusd/internal/content"
	"corpusd/internal/db"
	"corpusd/internal/embeddings"
	"corpusd/internal/index"
)

// markerEmbedder fails on any text containing "POISON" and reports a
// rate-limit on "THROTTLE", which lets tests inject per-file embedding
// failures into a batch.
type markerEmbedder struct{}

func (markerEmbedder) Name() string { return "marker" }

func (markerEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "POISON") {
			return nil, errors.New("embedding backend rejected input")
		}
		if strings.Contains(t, "THROTTLE") {
			return nil, errors.Join(embeddings.ErrThrottled, errors.New("rate limit exceeded"))
		}
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *index.Store, *db.DB) {
	t.Helper()
	store := index.NewStore(markerEmbedder{})
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewService(store, database, logger, 2), store, database
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func mdPart(path, body string) ReceivedPart {
	return ReceivedPart{Path: path, MIME: "text/markdown", Body: []byte(body)}
}

func ingest(t *testing.T, svc *Service, account string, parts []ReceivedPart, typeFilter *content.Type, force bool) []api.FileStatus {
	t.Helper()
	statuses, err := svc.IngestBatch(context.Background(), account, parts, typeFilter, force)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	return statuses
}

func statusByPath(statuses []api.FileStatus) map[string]api.FileStatus {
	out := make(map[string]api.FileStatus, len(statuses))
	for _, s := range statuses {
		out[s.Path] = s
	}
	return out
}

func TestIngestBatch_PartialFailure(t *testing.T) {
	svc, store, _ := newTestService(t)

	parts := []ReceivedPart{
		mdPart("a.md", "alpha text"),
		mdPart("b.md", "beta text"),
		mdPart("c.md", "POISON text"),
		mdPart("d.md", "delta text"),
		mdPart("e.md", "epsilon text"),
	}

	statuses := ingest(t, svc, "acct", parts, nil, false)
	if len(statuses) != 5 {
		t.Fatalf("expected 5 statuses, got %d", len(statuses))
	}

	byPath := statusByPath(statuses)
	if byPath["c.md"].Status != api.StatusFailed || byPath["c.md"].Error == "" {
		t.Errorf("c.md should fail with an error message, got %+v", byPath["c.md"])
	}
	for _, p := range []string{"a.md", "b.md", "d.md", "e.md"} {
		if byPath[p].Status != api.StatusIndexed {
			t.Errorf("%s = %s, want indexed", p, byPath[p].Status)
		}
	}

	if got := store.Count("acct"); got != 4 {
		t.Errorf("store holds %d entries, want 4", got)
	}
}

func TestIngestBatch_ThrottledAbortsBatch(t *testing.T) {
	svc, _, _ := newTestService(t)

	parts := []ReceivedPart{
		mdPart("a.md", "fine text"),
		mdPart("b.md", "THROTTLE text"),
	}
	_, err := svc.IngestBatch(context.Background(), "acct", parts, nil, false)
	if !errors.Is(err, embeddings.ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

func TestIngestBatch_FailureKeepsPreviousEntries(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "acct", []ReceivedPart{mdPart("a.md", "original text")}, nil, false)

	// The replacement fails mid-embed; the old entries must survive.
	statuses := ingest(t, svc, "acct", []ReceivedPart{mdPart("a.md", "POISON v2")}, nil, false)
	if statuses[0].Status != api.StatusFailed {
		t.Fatalf("replacement = %s, want failed", statuses[0].Status)
	}

	entries, err := store.GetByPath(ctx, "acct", "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Text != "original text" {
		t.Fatalf("previous entries lost on failed re-ingest: %+v", entries)
	}
}

func TestIngestBatch_ShrunkFileDropsStaleChunks(t *testing.T) {
	svc, store, _ := newTestService(t)

	long := strings.Repeat("lorem ipsum dolor sit amet ", 120) // several chunks
	ingest(t, svc, "acct", []ReceivedPart{mdPart("a.md", long)}, nil, false)
	if got := store.Count("acct"); got < 2 {
		t.Fatalf("long document should span multiple chunks, got %d", got)
	}

	ingest(t, svc, "acct", []ReceivedPart{mdPart("a.md", "now short")}, nil, false)
	if got := store.Count("acct"); got != 1 {
		t.Fatalf("stale tail chunks survived the shrink: count=%d", got)
	}
}

func TestIngestBatch_UnchangedFileIsSkipped(t *testing.T) {
	svc, _, _ := newTestService(t)

	parts := []ReceivedPart{mdPart("a.md", "same content")}

	first := ingest(t, svc, "acct", parts, nil, false)
	if first[0].Status != api.StatusIndexed {
		t.Fatalf("first upload = %s, want indexed", first[0].Status)
	}

	second := ingest(t, svc, "acct", parts, nil, false)
	if second[0].Status != api.StatusSkipped {
		t.Errorf("unchanged re-upload = %s, want skipped", second[0].Status)
	}

	forced := ingest(t, svc, "acct", parts, nil, true)
	if forced[0].Status != api.StatusIndexed {
		t.Errorf("forced re-upload = %s, want indexed", forced[0].Status)
	}

	changed := ingest(t, svc, "acct", []ReceivedPart{mdPart("a.md", "new content")}, nil, false)
	if changed[0].Status != api.StatusIndexed {
		t.Errorf("changed content = %s, want indexed", changed[0].Status)
	}
}

func TestIngestBatch_DeletionRemovesEntriesAndLedger(t *testing.T) {
	svc, store, database := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "acct", []ReceivedPart{mdPart("a.md", "text")}, nil, false)

	del := ReceivedPart{Path: "a.md", MIME: "text/markdown"}
	statuses := ingest(t, svc, "acct", []ReceivedPart{del}, nil, false)
	if statuses[0].Status != api.StatusDeleted {
		t.Fatalf("deletion = %s, want deleted", statuses[0].Status)
	}

	if got := store.Count("acct"); got != 0 {
		t.Errorf("store still holds %d entries", got)
	}
	hash, err := database.IngestedHash(ctx, "acct", "a.md")
	if err != nil || hash != "" {
		t.Errorf("ledger row survived deletion: hash=%q err=%v", hash, err)
	}
}

func TestIngestBatch_UpdateThenDeleteEndsDeleted(t *testing.T) {
	svc, store, _ := newTestService(t)

	// Same path updated and deleted within one batch: deletion wins.
	parts := []ReceivedPart{
		mdPart("a.md", "fresh text"),
		{Path: "a.md", MIME: "text/markdown"},
	}
	statuses := ingest(t, svc, "acct", parts, nil, false)

	if len(statuses) != 1 {
		t.Fatalf("duplicate path should report once, got %d statuses", len(statuses))
	}
	if statuses[0].Status != api.StatusDeleted {
		t.Errorf("final status = %s, want deleted", statuses[0].Status)
	}
	if got := store.Count("acct"); got != 0 {
		t.Errorf("store holds %d entries after update+delete", got)
	}
}

func TestIngestBatch_TypeFilterSkips(t *testing.T) {
	svc, store, _ := newTestService(t)

	md := content.Markdown
	parts := []ReceivedPart{
		mdPart("a.md", "markdown text"),
		{Path: "b.txt", MIME: "text/plain", Body: []byte("plain text")},
	}
	statuses := ingest(t, svc, "acct", parts, &md, false)

	byPath := statusByPath(statuses)
	if byPath["a.md"].Status != api.StatusIndexed {
		t.Errorf("a.md = %s, want indexed", byPath["a.md"].Status)
	}
	if byPath["b.txt"].Status != api.StatusSkipped {
		t.Errorf("b.txt = %s, want skipped", byPath["b.txt"].Status)
	}
	if got := store.Count("acct"); got != 1 {
		t.Errorf("store holds %d entries, want 1", got)
	}
}

func TestIngestBatch_EmptyExtractionIsSkipped(t *testing.T) {
	svc, _, _ := newTestService(t)

	statuses := ingest(t, svc, "acct",
		[]ReceivedPart{{Path: "empty.md", MIME: "text/markdown", Body: []byte("   \n\t  \n")}}, nil, false)
	if statuses[0].Status != api.StatusSkipped {
		t.Errorf("whitespace-only file = %s, want skipped", statuses[0].Status)
	}
}

func TestPurge_RemovesTypeOnly(t *testing.T) {
	svc, store, database := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "acct", []ReceivedPart{
		mdPart("a.md", "markdown text"),
		{Path: "b.txt", MIME: "text/plain", Body: []byte("plain text")},
	}, nil, false)

	if err := svc.Purge(ctx, "acct", content.Markdown); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	if got := store.Count("acct"); got != 1 {
		t.Errorf("store holds %d entries after purge, want 1", got)
	}
	paths, err := database.IngestedPaths(ctx, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "b.txt" {
		t.Errorf("ledger after purge = %v, want [b.txt]", paths)
	}
}

func TestSweepLedger_DropsOrphanRows(t *testing.T) {
	svc, store, database := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, "acct", []ReceivedPart{
		mdPart("a.md", "kept"),
		mdPart("b.md", "orphaned"),
	}, nil, false)

	// Remove b.md from the index behind the ledger's back.
	if err := store.DeleteByPath(ctx, "acct", "b.md"); err != nil {
		t.Fatal(err)
	}

	if err := svc.SweepLedger(ctx); err != nil {
		t.Fatalf("SweepLedger: %v", err)
	}

	paths, err := database.IngestedPaths(ctx, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "a.md" {
		t.Errorf("ledger after sweep = %v, want [a.md]", paths)
	}
}
