package syncer

import (
	"corpusd/internal/content"
	"corpusd/internal/scanner"
)

// Part is one multipart entry in an upload batch. An empty Body signals
// deletion of Path on the server.
type Part struct {
	Path    string
	MIME    string
	ModTime int64
	Body    []byte
}

// IsDelete reports whether the part is a deletion marker.
func (p Part) IsDelete() bool { return len(p.Body) == 0 }

// Batch is an ordered group of parts bounded by byte size and item count.
type Batch struct {
	Parts []Part
	Bytes int64
}

func (b *Batch) add(p Part) {
	b.Parts = append(b.Parts, p)
	b.Bytes += int64(len(p.Body))
}

// BuildBatches packs the upload delta into batches using greedy first-fit
// in delta order. A new batch starts when adding the next file would exceed
// maxBytes or maxItems; a file that alone exceeds maxBytes still ships as a
// single-item batch. Deletion markers (zero-length bodies tagged with the
// path's MIME type) are appended to the last batch, after all updates, so
// they cost no extra round-trip and a path updated and deleted in the same
// cycle ends up deleted.
func BuildBatches(uploads []scanner.TrackedFile, deletes []string, maxBytes int64, maxItems int) []Batch {
	var batches []Batch
	current := &Batch{}

	flush := func() {
		if len(current.Parts) > 0 {
			batches = append(batches, *current)
			current = &Batch{}
		}
	}

	for _, f := range uploads {
		body, err := f.ReadFile()
		if err != nil {
			// File vanished between scan and read; the next cycle's delta
			// picks the deletion up.
			continue
		}
		if len(current.Parts) > 0 &&
			(current.Bytes+int64(len(body)) > maxBytes || len(current.Parts)+1 > maxItems) {
			flush()
		}
		current.add(Part{Path: f.Path, MIME: f.Type.MIME(), ModTime: f.ModTime, Body: body})
	}
	flush()

	if len(deletes) > 0 {
		if len(batches) == 0 {
			batches = append(batches, Batch{})
		}
		last := &batches[len(batches)-1]
		for _, path := range deletes {
			last.add(Part{Path: path, MIME: content.ForPath(path).MIME()})
		}
	}

	return batches
}
