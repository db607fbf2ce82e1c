// Package index stores and retrieves the embedded corpus. One entry is one
// chunk of one source file, scoped to an account.
package index

import (
	"fmt"
	"strconv"
	"time"

	"corpusd/internal/content"
)

// Entry is one embedded, searchable unit derived from a source file.
// Identity within an account is (Path, Chunk).
type Entry struct {
	Path    string
	Chunk   int
	Type    content.Type
	Text    string
	Hash    string // content hash of the whole source file
	Image   string // server-relative image path, image entries only
	Updated time.Time
}

// ID returns the store identifier "<path>#<chunk>". Re-ingesting the same
// chunk overwrites the previous entry, which makes upserts last-write-wins.
func (e Entry) ID() string {
	return fmt.Sprintf("%s#%d", e.Path, e.Chunk)
}

func (e Entry) metadata() map[string]string {
	return map[string]string{
		"path":    e.Path,
		"chunk":   strconv.Itoa(e.Chunk),
		"type":    string(e.Type),
		"hash":    e.Hash,
		"image":   e.Image,
		"updated": e.Updated.UTC().Format(time.RFC3339),
	}
}

func entryFromStored(id, text string, meta map[string]string) Entry {
	chunk, _ := strconv.Atoi(meta["chunk"])
	updated, _ := time.Parse(time.RFC3339, meta["updated"])
	return Entry{
		Path:    meta["path"],
		Chunk:   chunk,
		Type:    content.Type(meta["type"]),
		Text:    text,
		Hash:    meta["hash"],
		Image:   meta["image"],
		Updated: updated,
	}
}

// Hit pairs an entry with its vector similarity to a query.
type Hit struct {
	Entry      Entry
	Similarity float32
}
