package retrieval

import (
	"context"
	"fmt"
	"time"

	"docrag/internal/adapter/reranker"
	"docrag/internal/index"
	"docrag/internal/middleware"
)

// candidateFactor widens the first-stage fetch when a reranker reorders hits.
const candidateFactor = 3

type Index interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
	DefaultK() int
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]reranker.Ranked, error)
}

type Service struct {
	index    Index
	reranker Reranker
	logger   *QueryLogger
}

// NewService wires search. reranker and logger may be nil.
func NewService(idx Index, r Reranker, l *QueryLogger) *Service {
	return &Service{index: idx, reranker: r, logger: l}
}

// Search returns the top k chunks; k <= 0 uses the index default.
func (s *Service) Search(ctx context.Context, query string, k int) ([]index.Result, error) {
	start := time.Now()
	if k <= 0 {
		k = s.index.DefaultK()
	}

	fetch := k
	if s.reranker != nil {
		fetch = k * candidateFactor
	}

	docs, err := s.index.Search(ctx, query, fetch)
	if err != nil {
		return nil, err
	}
	candidates := len(docs)

	if s.reranker != nil && len(docs) > 0 {
		docs, err = s.rerank(ctx, query, docs)
		if err != nil {
			return nil, err
		}
	}
	if len(docs) > k {
		docs = docs[:k]
	}

	if s.logger != nil {
		s.logger.Log(SearchRecord{
			Query:         query,
			K:             k,
			Candidates:    candidates,
			Returned:      len(docs),
			Reranked:      s.reranker != nil && candidates > 0,
			Sources:       sources(docs),
			LatencyMs:     time.Since(start).Milliseconds(),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return docs, nil
}

func (s *Service) rerank(ctx context.Context, query string, docs []index.Result) ([]index.Result, error) {
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	ranked, err := s.reranker.Rerank(ctx, query, contents)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	out := make([]index.Result, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(docs) {
			continue
		}
		d := docs[r.Index]
		if r.Score != 0 {
			d.Score = float32(r.Score)
		}
		out = append(out, d)
	}
	return out, nil
}

func sources(docs []index.Result) []string {
	var out []string
	for _, d := range docs {
		if src, ok := d.Metadata["source"].(string); ok && src != "" {
			out = append(out, src)
		}
	}
	return out
}
