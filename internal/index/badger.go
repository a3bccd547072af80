package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"

	"docrag/internal/document"
)

var recordPrefix = []byte("rec/")

// BadgerBackend stores records on disk. Load snapshots every record into
// memory; writes go straight to disk and show up on the next Load.
type BadgerBackend struct {
	db       *badger.DB
	embedder Embedder
	logger   *slog.Logger
}

type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadgerBackend opens (creating if needed) the store directory at path.
func OpenBadgerBackend(path string, embedder Embedder, logger *slog.Logger) (*BadgerBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerBackend{db: db, embedder: embedder, logger: logger}, nil
}

func (b *BadgerBackend) Name() string     { return "badger" }
func (b *BadgerBackend) Persistent() bool { return true }

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func (b *BadgerBackend) Load(ctx context.Context) (Handle, error) {
	entries, err := b.scan()
	if err != nil {
		return nil, err
	}

	h := &badgerHandle{db: b.db, embedder: b.embedder}
	if len(entries) == 0 {
		seed, err := h.write(ctx, []document.Document{document.New(PlaceholderText, PlaceholderMetadata())})
		if err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
		entries = seed
		b.logger.InfoContext(ctx, "created new vector store")
	}
	h.entries = entries
	return h, nil
}

func (b *BadgerBackend) scan() ([]entry, error) {
	var entries []entry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			var e entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

type badgerHandle struct {
	db       *badger.DB
	embedder Embedder
	flat
}

// Add writes to disk only. The snapshot this handle searches is not
// extended; the owning cache marks itself dirty and reloads.
func (h *badgerHandle) Add(ctx context.Context, docs []document.Document) error {
	_, err := h.write(ctx, docs)
	return err
}

func (h *badgerHandle) write(ctx context.Context, docs []document.Document) ([]entry, error) {
	ids := make([]string, len(docs))
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	entries, err := embedAll(ctx, h.embedder, ids, docs)
	if err != nil {
		return nil, err
	}

	wb := h.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		val, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		if err := wb.Set([]byte(string(recordPrefix)+e.ID), val); err != nil {
			return nil, err
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (h *badgerHandle) Search(ctx context.Context, query string, k int) ([]Result, error) {
	return h.search(ctx, h.embedder, query, k)
}

func (h *badgerHandle) Persist(context.Context) error {
	return h.db.Sync()
}
