package content

import (
	"path/filepath"
	"strings"
)

// Type is a closed enumeration of the content kinds the index understands.
type Type string

const (
	Markdown  Type = "markdown"
	PDF       Type = "pdf"
	Image     Type = "image"
	Org       Type = "org"
	Plaintext Type = "plaintext"
)

// variant describes one content type: its wire MIME type, the file
// extensions that map to it, and its sync priority. Lower priority sorts
// first so cheap text content is uploaded before heavy binary content.
type variant struct {
	mime       string
	extensions []string
	priority   int
	extract    extractFunc
}

var variants = map[Type]variant{
	Markdown:  {mime: "text/markdown", extensions: []string{".md", ".markdown", ".mdx"}, priority: 0, extract: extractMarkdown},
	PDF:       {mime: "application/pdf", extensions: []string{".pdf"}, priority: 1, extract: extractRaw},
	Image:     {mime: "image/*", extensions: []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}, priority: 2, extract: extractImage},
	Org:       {mime: "text/org", extensions: []string{".org"}, priority: 3, extract: extractRaw},
	Plaintext: {mime: "text/plain", extensions: []string{".txt", ".text", ".rst", ".log"}, priority: 4, extract: extractRaw},
}

// All lists every known content type in sync-priority order.
func All() []Type {
	return []Type{Markdown, PDF, Image, Org, Plaintext}
}

// Valid reports whether s names a known content type.
func Valid(s string) bool {
	_, ok := variants[Type(s)]
	return ok
}

// MIME returns the wire MIME type for t. Image types report the generic
// image/* family; ForMIME accepts any image/ subtype back.
func (t Type) MIME() string {
	if v, ok := variants[t]; ok {
		return v.mime
	}
	return variants[Plaintext].mime
}

// Priority returns the sync ordering rank of t (lower uploads first).
func (t Type) Priority() int {
	if v, ok := variants[t]; ok {
		return v.priority
	}
	return variants[Plaintext].priority
}

// ForPath classifies a file path by extension. Unknown extensions are
// treated as plaintext.
func ForPath(path string) Type {
	ext := strings.ToLower(filepath.Ext(path))
	for t, v := range variants {
		for _, e := range v.extensions {
			if e == ext {
				return t
			}
		}
	}
	return Plaintext
}

// ForMIME classifies a MIME type string. Any image/ subtype maps to Image;
// unknown types fall back to classifying by path extension.
func ForMIME(mime, path string) Type {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if strings.HasPrefix(mime, "image/") {
		return Image
	}
	for t, v := range variants {
		if v.mime == mime {
			return t
		}
	}
	return ForPath(path)
}
