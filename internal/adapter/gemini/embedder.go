package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultEmbeddingModel = "gemini-embedding-001"
	DefaultChatModel      = "gemini-1.5-flash"
)

// NewClient opens a genai client shared by the embedder and the completer.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	return genai.NewClient(ctx, opts...)
}

type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(client *genai.Client, model string) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}
