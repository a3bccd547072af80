package text

import (
	"docrag/internal/document"
)

// Splitter cuts documents into fixed-width overlapping windows. Lengths are
// counted in runes, so multi-byte text is never split mid-character.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter panics on a configuration that could never make progress;
// config.Validate rejects such values before they reach here.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 || overlap < 0 || overlap >= size {
		panic("text: chunk overlap must be in [0, size)")
	}
	return &Splitter{size: size, overlap: overlap}
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the chunks of one document. Each chunk inherits the source
// metadata plus its position under "chunk_index".
func (s *Splitter) Split(doc document.Document) []document.Document {
	spans := s.Spans(doc.Content)
	if len(spans) == 0 {
		return nil
	}

	runes := []rune(doc.Content)
	chunks := make([]document.Document, 0, len(spans))
	for i, sp := range spans {
		md := doc.Metadata.Clone()
		if md == nil {
			md = document.Metadata{}
		}
		md["chunk_index"] = i
		content := doc.Content
		if len(spans) > 1 {
			content = string(runes[sp.Start:sp.End])
		}
		chunks = append(chunks, document.New(content, md))
	}
	return chunks
}

// SplitAll splits every document in order.
func (s *Splitter) SplitAll(docs []document.Document) []document.Document {
	var out []document.Document
	for _, d := range docs {
		out = append(out, s.Split(d)...)
	}
	return out
}

// Span is a half-open rune range.
type Span struct {
	Start int
	End   int
}

// Spans computes chunk boundaries for text of the splitter's configuration.
// Consecutive spans share exactly overlap runes; the last span ends at the
// end of the text and may be shorter than size.
func (s *Splitter) Spans(text string) []Span {
	n := len([]rune(text))
	if n == 0 {
		return nil
	}
	if n <= s.size {
		return []Span{{Start: 0, End: n}}
	}

	step := s.size - s.overlap
	var spans []Span
	for start := 0; ; start += step {
		end := min(start+s.size, n)
		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			break
		}
	}
	return spans
}
