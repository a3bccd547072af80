// Package openai talks to OpenAI-compatible endpoints (OpenAI, Ollama,
// LM Studio) through langchaingo.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Local servers ignore the token but the client refuses an empty one.
const anonymousToken = "none"

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func (c Config) token() string {
	if c.APIKey == "" {
		return anonymousToken
	}
	return c.APIKey
}

// Completer sends one prompt and expects a JSON object back.
type Completer struct {
	model       llms.Model
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

func NewCompleter(cfg Config) (*Completer, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.token()),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	return &Completer{
		model:       client,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      slog.Default().With("component", "openai-completer"),
	}, nil
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	content := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	resp, err := c.model.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to generate content", "err", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// Embedder produces vectors through the /embeddings endpoint.
type Embedder struct {
	embedder embeddings.Embedder
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.token()),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &Embedder{embedder: e}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return vecs[0], nil
}
