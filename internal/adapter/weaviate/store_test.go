package weaviate_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"docrag/internal/adapter/hashembed"
	adapter "docrag/internal/adapter/weaviate"
	"docrag/internal/document"
	"docrag/internal/index"
	"docrag/internal/vector"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		handler(w, r)
	}))
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	require.NoError(t, err)
	return client, ts
}

func TestStore_Add(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/objects", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, vector.ClassName, body["class"])
		props := body["properties"].(map[string]interface{})
		assert.Equal(t, "test content", props["content"])
		assert.Equal(t, "/tmp/a.pdf", props["source"])
		assert.Equal(t, float64(2), props["page"])
		assert.Contains(t, props["metadata"], `"page":2`)
		assert.NotEmpty(t, body["vector"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "1"})
	})
	defer ts.Close()

	store := adapter.NewStore(client, hashembed.New(8), 0.5)
	doc := document.New("test content", document.Metadata{"source": "/tmp/a.pdf", "page": 2})
	assert.NoError(t, store.Add(context.Background(), []document.Document{doc}))
}

func TestStore_Search(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "hybrid")

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"Get":{"DocumentChunk":[
			{"content":"first","metadata":"{\"source\":\"a.txt\"}","_additional":{"score":"0.9"}},
			{"content":"second","metadata":"","_additional":{"score":0.4}}
		]}}}`))
	})
	defer ts.Close()

	store := adapter.NewStore(client, hashembed.New(8), 0.5)
	res, err := store.Search(context.Background(), "query", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "first", res[0].Content)
	assert.Equal(t, "a.txt", res[0].Metadata["source"])
	assert.InDelta(t, 0.9, res[0].Score, 1e-6)
	assert.InDelta(t, 0.4, res[1].Score, 1e-6)
}

func TestStore_SearchGraphQLError(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"errors":[{"message":"class not found"}]}`))
	})
	defer ts.Close()

	store := adapter.NewStore(client, hashembed.New(8), 0.5)
	_, err := store.Search(context.Background(), "query", 2)
	assert.ErrorContains(t, err, "class not found")
}

func TestStore_LoadSeedsEmptyStore(t *testing.T) {
	var created atomic.Int32
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/schema/"+vector.ClassName:
			json.NewEncoder(w).Encode(&models.Class{Class: vector.ClassName, Properties: vector.Properties()})
		case r.URL.Path == "/v1/graphql":
			body, _ := io.ReadAll(r.Body)
			assert.True(t, strings.Contains(string(body), "Aggregate"))
			w.Write([]byte(`{"data":{"Aggregate":{"DocumentChunk":[{"meta":{"count":0}}]}}}`))
		case r.URL.Path == "/v1/objects":
			created.Add(1)
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			props := body["properties"].(map[string]interface{})
			assert.Equal(t, index.PlaceholderText, props["content"])
			assert.Equal(t, "system", props["source"])
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "seed"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	defer ts.Close()

	store := adapter.NewStore(client, hashembed.New(8), 0.5)
	h, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, int32(1), created.Load())
	assert.True(t, store.Persistent())
}

func TestStore_CountChunks(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"Aggregate":{"DocumentChunk":[{"meta":{"count":42}}]}}}`))
	})
	defer ts.Close()

	count, err := adapter.NewStore(client, hashembed.New(8), 0.5).CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}
