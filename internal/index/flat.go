package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docrag/internal/document"
)

type entry struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata document.Metadata `json:"metadata"`
	Vector   []float32         `json:"vector"`
}

// flat is a brute-force cosine index over a slice of entries.
type flat struct {
	entries []entry
}

func (f *flat) search(ctx context.Context, embedder Embedder, query string, k int) ([]Result, error) {
	if len(f.entries) == 0 || k <= 0 {
		return nil, nil
	}
	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results := make([]Result, 0, len(f.entries))
	for _, e := range f.entries {
		results = append(results, Result{
			Document: document.New(e.Content, e.Metadata.Clone()),
			Score:    cosine(qv, e.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func embedAll(ctx context.Context, embedder Embedder, ids []string, docs []document.Document) ([]entry, error) {
	out := make([]entry, 0, len(docs))
	for i, d := range docs {
		vec, err := embedder.Embed(ctx, d.Content)
		if err != nil {
			return nil, fmt.Errorf("embed document %d: %w", i, err)
		}
		out = append(out, entry{ID: ids[i], Content: d.Content, Metadata: d.Metadata.Clone(), Vector: vec})
	}
	return out, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
