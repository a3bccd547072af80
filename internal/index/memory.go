package index

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"docrag/internal/document"
)

// MemoryBackend keeps everything in process memory. Nothing outlives the
// handle, so the cache never needs to reload it.
type MemoryBackend struct {
	embedder Embedder
}

func NewMemoryBackend(embedder Embedder) *MemoryBackend {
	return &MemoryBackend{embedder: embedder}
}

func (b *MemoryBackend) Name() string     { return "memory" }
func (b *MemoryBackend) Persistent() bool { return false }

func (b *MemoryBackend) Load(ctx context.Context) (Handle, error) {
	h := &memoryHandle{embedder: b.embedder}
	if err := h.Add(ctx, []document.Document{document.New(PlaceholderText, PlaceholderMetadata())}); err != nil {
		return nil, err
	}
	return h, nil
}

type memoryHandle struct {
	embedder Embedder

	mu sync.RWMutex
	flat
}

func (h *memoryHandle) Add(ctx context.Context, docs []document.Document) error {
	ids := make([]string, len(docs))
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	entries, err := embedAll(ctx, h.embedder, ids, docs)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.entries = append(h.entries, entries...)
	h.mu.Unlock()
	return nil
}

func (h *memoryHandle) Search(ctx context.Context, query string, k int) ([]Result, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.search(ctx, h.embedder, query, k)
}

func (h *memoryHandle) Persist(context.Context) error { return nil }
