package content

import (
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

type extractFunc func(path string, data []byte) string

// Extract returns the searchable text for a blob of content type t.
// Image blobs carry no embeddable text; they are indexed by their path
// words so filename search still works.
func Extract(t Type, path string, data []byte) string {
	v, ok := variants[t]
	if !ok {
		v = variants[Plaintext]
	}
	return v.extract(path, data)
}

func extractRaw(_ string, data []byte) string {
	return string(data)
}

var markdown = goldmark.New()

// extractMarkdown parses the document and flattens it to plain text so
// formatting syntax does not pollute the embedding.
func extractMarkdown(path string, data []byte) string {
	doc := markdown.Parser().Parse(gmtext.NewReader(data))

	var sb strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*ast.Paragraph); ok {
				sb.WriteByte('\n')
			}
			if _, ok := n.(*ast.Heading); ok {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(data))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(data))
			}
		case *ast.AutoLink:
			sb.Write(t.URL(data))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		// Parsing never fails on valid UTF-8; fall back to the raw bytes.
		return string(data)
	}
	return strings.TrimSpace(sb.String())
}

// extractImage derives index text from the file path: the stem split on
// separators, e.g. "photos/summer_trip-2024.png" -> "summer trip 2024".
func extractImage(path string, _ []byte) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(stem)
	return strings.Join(strings.Fields(stem), " ")
}
