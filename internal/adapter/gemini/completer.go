package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
)

// Completer asks a Gemini model for a JSON answer to a single prompt.
type Completer struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

func NewCompleter(client *genai.Client, model string, temperature float64, timeout time.Duration) *Completer {
	if model == "" {
		model = DefaultChatModel
	}
	return &Completer{client: client, model: model, temperature: float32(temperature), timeout: timeout}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		break
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text")
	}
	return b.String(), nil
}
