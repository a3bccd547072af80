package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/adapter/hashembed"
	"docrag/internal/document"
	"docrag/internal/index"
)

func openBadger(t *testing.T, dir string) *index.BadgerBackend {
	t.Helper()
	b, err := index.OpenBadgerBackend(dir, hashembed.New(128), nil)
	require.NoError(t, err)
	return b
}

func TestBadgerBackend_SeedsPlaceholderOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b := openBadger(t, dir)
	c := index.NewCache(b, 5, nil)
	res, err := c.Search(ctx, "empty knowledge base", 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, index.PlaceholderText, res[0].Content)
	assert.Equal(t, "system", res[0].Metadata["source"])
	assert.Equal(t, "init", res[0].Metadata["type"])

	// Reload from disk: the seed is found, not duplicated.
	c.Invalidate()
	res, err = c.Search(ctx, "empty knowledge base", 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	require.NoError(t, b.Close())
}

func TestBadgerBackend_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	b := openBadger(t, t.TempDir())
	defer b.Close()
	c := index.NewCache(b, 3, nil)

	_, err := c.Search(ctx, "warm up", 1)
	require.NoError(t, err)

	chunks := []document.Document{
		document.New("weaviate hybrid search", document.Metadata{"source": "w.md", "chunk_index": 0}),
		document.New("badger is an embedded key value store", document.Metadata{"source": "b.md", "chunk_index": 0}),
	}
	require.NoError(t, c.AddRecords(ctx, chunks))
	assert.True(t, c.Dirty())

	res, err := c.Search(ctx, "embedded key value store", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "badger is an embedded key value store", res[0].Content)
	assert.Equal(t, "b.md", res[0].Metadata["source"])
	assert.False(t, c.Dirty())
}

func TestBadgerBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b := openBadger(t, dir)
	c := index.NewCache(b, 3, nil)
	require.NoError(t, c.AddTexts(ctx, []string{"durable invoice record"}, nil))
	require.NoError(t, b.Close())

	b2 := openBadger(t, dir)
	defer b2.Close()
	c2 := index.NewCache(b2, 3, nil)
	res, err := c2.Search(ctx, "durable invoice record", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "durable invoice record", res[0].Content)
}
