package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"docrag/internal/document"
	"docrag/internal/index"
	"docrag/internal/vector"
)

// Store is the remote persistent index backend. The server owns durability,
// so Persist is a no-op and Load only checks the schema and the seed record.
type Store struct {
	client   *weaviate.Client
	schema   vector.SchemaClient
	embedder index.Embedder
	alpha    float32
}

var (
	_ index.Backend = (*Store)(nil)
	_ index.Handle  = (*Store)(nil)
)

func NewStore(client *weaviate.Client, embedder index.Embedder, alpha float32) *Store {
	return &Store{
		client:   client,
		schema:   vector.NewClientAdapter(client),
		embedder: embedder,
		alpha:    alpha,
	}
}

func (s *Store) Name() string     { return "weaviate" }
func (s *Store) Persistent() bool { return true }

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s.schema)
}

func (s *Store) Load(ctx context.Context) (index.Handle, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	count, err := s.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		seed := document.New(index.PlaceholderText, index.PlaceholderMetadata())
		if err := s.Add(ctx, []document.Document{seed}); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
		slog.InfoContext(ctx, "created new vector store", "backend", s.Name())
	}
	return s, nil
}

func (s *Store) Add(ctx context.Context, docs []document.Document) error {
	for i, d := range docs {
		vec, err := s.embedder.Embed(ctx, d.Content)
		if err != nil {
			return fmt.Errorf("embed document %d: %w", i, err)
		}
		props, err := properties(d)
		if err != nil {
			return err
		}
		_, err = s.client.Data().Creator().
			WithClassName(vector.ClassName).
			WithProperties(props).
			WithVector(vec).
			Do(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func properties(d document.Document) (map[string]interface{}, error) {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	props := map[string]interface{}{
		"content":  d.Content,
		"source":   d.Metadata.String("source"),
		"fileName": d.Metadata.String("file_name"),
		"type":     d.Metadata.String("type"),
		"metadata": string(meta),
	}
	if page, ok := d.Metadata["page"].(int); ok {
		props["page"] = page
	}
	if idx, ok := d.Metadata["chunk_index"].(int); ok {
		props["chunkIndex"] = idx
	}
	return props, nil
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]index.Result, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithVector(vec).
		WithAlpha(s.alpha)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "metadata"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithHybrid(hybrid).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var results []index.Result
	data, _ := res.Data["Get"].(map[string]interface{})
	chunks, _ := data[vector.ClassName].([]interface{})
	for _, c := range chunks {
		props, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		r := index.Result{Document: document.New("", document.Metadata{})}
		if content, ok := props["content"].(string); ok {
			r.Content = content
		}
		if raw, ok := props["metadata"].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &r.Metadata); err != nil {
				slog.WarnContext(ctx, "undecodable chunk metadata", "error", err)
			}
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			r.Score = parseScore(additional["score"])
		}
		results = append(results, r)
	}
	return results, nil
}

// Weaviate reports hybrid scores as strings in some versions.
func parseScore(v interface{}) float32 {
	switch s := v.(type) {
	case float64:
		return float32(s)
	case string:
		var f float64
		if _, err := fmt.Sscanf(s, "%f", &f); err == nil {
			return float32(f)
		}
	}
	return 0
}

func (s *Store) Persist(context.Context) error { return nil }

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := agg[vector.ClassName].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}
