package index

// Chunking bounds. Oversized documents are split into overlapping windows
// so each embedding sees a bounded amount of text and neighboring chunks
// share context across the cut.
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200
)

// SplitChunks splits text into rune windows of at most size runes with the
// given overlap between consecutive windows. Text at or under size comes
// back as a single chunk; empty text yields none.
func SplitChunks(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 10
		}
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
