package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	ProviderNone   = "none"
	ProviderJina   = "jina"
	ProviderCohere = "cohere"
)

type endpoint struct {
	url   string
	model string
}

var endpoints = map[string]endpoint{
	ProviderJina:   {url: "https://api.jina.ai/v1/rerank", model: "jina-reranker-v1-base-en"},
	ProviderCohere: {url: "https://api.cohere.ai/v1/rerank", model: "rerank-english-v3.0"},
}

// Ranked is one reranked position: Index points into the input slice.
type Ranked struct {
	Index int
	Score float64
}

type Client struct {
	provider string
	apiKey   string
	baseURL  string
	client   *http.Client
}

func NewClient(provider, apiKey string) *Client {
	if provider == "" {
		provider = ProviderNone
	}
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Enabled reports whether a remote provider is configured.
func (c *Client) Enabled() bool {
	_, ok := endpoints[c.provider]
	return ok
}

// Rerank orders docs by relevance to query. With no provider the input order
// is returned unchanged.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]Ranked, error) {
	ep, ok := endpoints[c.provider]
	if !ok {
		out := make([]Ranked, len(docs))
		for i := range out {
			out[i] = Ranked{Index: i}
		}
		return out, nil
	}
	if c.baseURL != "" {
		ep.url = c.baseURL
	}

	reqBody := map[string]interface{}{
		"model":     ep.model,
		"query":     query,
		"documents": docs,
	}
	if c.provider == ProviderCohere {
		reqBody["top_n"] = len(docs)
		reqBody["return_documents"] = false
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s api error: %d", c.provider, resp.StatusCode)
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	out := make([]Ranked, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(docs) {
			out = append(out, Ranked{Index: r.Index, Score: r.Score})
		}
	}
	return out, nil
}
