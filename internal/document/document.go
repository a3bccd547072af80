// Package document holds the unit of text that flows from extraction through
// chunking into the vector index.
package document

import (
	"maps"
	"strings"
)

// Metadata values are scalars: strings, numbers or booleans.
type Metadata map[string]any

// Document is extracted text plus where it came from. Treat it as immutable
// once produced; derive new documents with Clone.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

func New(content string, md Metadata) Document {
	return Document{Content: content, Metadata: md}
}

// Clone returns a copy with its own metadata map.
func (d Document) Clone() Document {
	return Document{Content: d.Content, Metadata: d.Metadata.Clone()}
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// String returns a string-valued field or "".
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// JoinContent concatenates document contents with sep.
func JoinContent(docs []Document, sep string) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, sep)
}

// HasContent reports whether any document carries non-blank text.
func HasContent(docs []Document) bool {
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			return true
		}
	}
	return false
}
