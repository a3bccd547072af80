// Package index keeps one logical vector-store handle coherent across
// interleaved writes and reads.
package index

import (
	"context"
	"errors"

	"docrag/internal/document"
)

var (
	// ErrIndexWrite marks failures writing to or reloading the vector backend.
	ErrIndexWrite = errors.New("index write failed")
	// ErrMetadataMismatch is returned when texts and metadatas differ in length.
	ErrMetadataMismatch = errors.New("metadatas length does not match texts")
)

// Seed record written into a store that is created empty.
const PlaceholderText = "This is an empty knowledge base. Add documents to populate it."

func PlaceholderMetadata() document.Metadata {
	return document.Metadata{"source": "system", "type": "init"}
}

// Result is a ranked match.
type Result struct {
	document.Document
	Score float32 `json:"score"`
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Handle is a loaded, ready-to-query store.
type Handle interface {
	Add(ctx context.Context, docs []document.Document) error
	Search(ctx context.Context, query string, k int) ([]Result, error)
	Persist(ctx context.Context) error
}

// Backend creates handles. Persistent backends keep state outside the handle,
// so a handle may fall behind writes and must be reloaded.
type Backend interface {
	Name() string
	Persistent() bool
	// Load opens the store, seeding the placeholder record when it is empty.
	Load(ctx context.Context) (Handle, error)
}
