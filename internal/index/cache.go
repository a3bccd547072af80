package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"docrag/internal/document"
)

// Cache owns the handle for one backend. A persistent backend's handle is
// rebuilt when absent or dirty; an ephemeral one is built once and reused.
// No read is served from a handle older than the last completed write.
type Cache struct {
	backend Backend
	topK    int
	logger  *slog.Logger

	mu     sync.Mutex
	handle Handle
	dirty  bool
}

func NewCache(backend Backend, topK int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 3
	}
	return &Cache{backend: backend, topK: topK, logger: logger}
}

// Handle returns a ready handle, loading it if needed.
func (c *Cache) Handle(ctx context.Context) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handleLocked(ctx)
}

func (c *Cache) handleLocked(ctx context.Context) (Handle, error) {
	if c.handle != nil && !(c.backend.Persistent() && c.dirty) {
		return c.handle, nil
	}

	reload := c.handle != nil
	h, err := c.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s store: %v", ErrIndexWrite, c.backend.Name(), err)
	}
	c.handle = h
	c.dirty = false
	c.logger.DebugContext(ctx, "vector store loaded", "backend", c.backend.Name(), "reload", reload)
	return h, nil
}

// AddRecords writes already-chunked documents.
func (c *Cache) AddRecords(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.handleLocked(ctx)
	if err != nil {
		return err
	}
	if err := h.Add(ctx, docs); err != nil {
		if c.backend.Persistent() {
			// Some records may already be on disk.
			c.dirty = true
		}
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}

	if c.backend.Persistent() {
		if err := h.Persist(ctx); err != nil {
			// The write may have partly landed; reload before the next read.
			c.dirty = true
			return fmt.Errorf("%w: persist: %v", ErrIndexWrite, err)
		}
		// Next read reloads; no rebuild here.
		c.dirty = true
	}

	c.logger.DebugContext(ctx, "records added", "backend", c.backend.Name(), "count", len(docs))
	return nil
}

// AddTexts writes raw texts with optional per-text metadata. No splitting.
func (c *Cache) AddTexts(ctx context.Context, texts []string, metadatas []document.Metadata) error {
	if metadatas != nil && len(metadatas) != len(texts) {
		return ErrMetadataMismatch
	}
	docs := make([]document.Document, len(texts))
	for i, t := range texts {
		var md document.Metadata
		if metadatas != nil {
			md = metadatas[i].Clone()
		}
		docs[i] = document.New(t, md)
	}
	return c.AddRecords(ctx, docs)
}

// Search returns the top k matches; k <= 0 uses the configured default.
func (c *Cache) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = c.topK
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.handleLocked(ctx)
	if err != nil {
		return nil, err
	}
	return h.Search(ctx, query, k)
}

// Invalidate forces a reload on next access, e.g. after an out-of-band
// write to the on-disk store.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// Persist flushes the current handle; no-op when nothing is loaded.
func (c *Cache) Persist(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return nil
	}
	if err := c.handle.Persist(ctx); err != nil {
		return fmt.Errorf("%w: persist: %v", ErrIndexWrite, err)
	}
	return nil
}

// Clear drops the cached handle. On-disk data is left alone, so the next
// access rebuilds from whatever remains.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.handle = nil
	c.dirty = false
	c.mu.Unlock()
}

// Dirty reports whether the next read will reload.
func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *Cache) DefaultK() int { return c.topK }

func (c *Cache) BackendName() string { return c.backend.Name() }
