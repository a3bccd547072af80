package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/adapter/openai"
)

func fakeServer(t *testing.T) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "llama3", body["model"])
			rf, _ := body["response_format"].(map[string]interface{})
			assert.Equal(t, "json_object", rf["type"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "llama3",
				"choices": []map[string]interface{}{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]interface{}{"role": "assistant", "content": `{"vendor_name":"ACME"}`},
				}},
			})
		case "/v1/embeddings":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"object": "list",
				"model":  "nomic-embed-text",
				"data": []map[string]interface{}{{
					"object":    "embedding",
					"index":     0,
					"embedding": []float32{0.5, 0.25},
				}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestCompleter_Complete(t *testing.T) {
	ts := fakeServer(t)
	c, err := openai.NewCompleter(openai.Config{BaseURL: ts.URL + "/v1", Model: "llama3", Timeout: time.Second})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "extract the invoice")
	require.NoError(t, err)
	assert.Equal(t, `{"vendor_name":"ACME"}`, out)
}

func TestEmbedder_Embed(t *testing.T) {
	ts := fakeServer(t)
	e, err := openai.NewEmbedder(openai.Config{BaseURL: ts.URL + "/v1", Model: "nomic-embed-text"})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello\nworld")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestCompleter_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer ts.Close()

	c, err := openai.NewCompleter(openai.Config{BaseURL: ts.URL, Model: "llama3"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "x")
	assert.Error(t, err)
}
