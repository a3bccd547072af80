package job_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docrag/features/ingest"
	"docrag/features/job"
	"docrag/internal/adapter/hashembed"
	"docrag/internal/audit"
	"docrag/internal/extract"
	"docrag/internal/index"
	"docrag/internal/text"
	"docrag/internal/worker"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func newPipeline(t *testing.T, opts ...ingest.Option) (*job.Service, *index.Cache) {
	t.Helper()
	cache := index.NewCache(index.NewMemoryBackend(hashembed.New(64)), 3, nil)
	opts = append([]ingest.Option{ingest.WithSplitter(text.NewSplitter(1000, 200))}, opts...)
	pipeline, err := ingest.NewService(extract.NewDefaultRegistry(nil, extract.Tools{}), cache, opts...)
	require.NoError(t, err)

	pool, err := worker.NewPool(0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Release(time.Second) })

	return job.NewService(job.NewMemoryStore(), pipeline, pool, nil), cache
}

func TestEndToEnd_PlainTextFileProducesThreeChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 1900)), 0o644))

	svc, _ := newPipeline(t)
	id, err := svc.Submit(context.Background(), job.Request{Path: path})
	require.NoError(t, err)

	j := waitForStatus(t, svc, id)
	assert.Equal(t, job.StatusSuccess, j.Status)
	assert.Equal(t, 3, j.Result.ChunksCreated)
}

func TestEndToEnd_InvoiceSidePathFailureStillSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("Invoice #INV-001, Total Amount Due: $120.00, Tax: $10.00"), 0o644))

	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.Anything).Return(`{"vendor_name": "ACME"`, nil)
	rec := audit.NewRecorder()

	svc, cache := newPipeline(t, ingest.WithLLM(llm), ingest.WithAuditSink(rec))
	id, err := svc.Submit(context.Background(), job.Request{Path: path})
	require.NoError(t, err)

	j := waitForStatus(t, svc, id)
	assert.Equal(t, job.StatusSuccess, j.Status)
	assert.Equal(t, 1, j.Result.ChunksCreated)
	llm.AssertNumberOfCalls(t, "Complete", 1)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.InvoiceFailed, events[0].Type)
	assert.Equal(t, id, events[0].JobID)

	res, err := cache.Search(context.Background(), "Invoice INV-001 Total Amount Due", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Content, "INV-001")
}

func TestEndToEnd_ExtractionFailureMarksJobError(t *testing.T) {
	svc, _ := newPipeline(t)
	id, err := svc.Submit(context.Background(), job.Request{Path: filepath.Join(t.TempDir(), "missing.txt")})
	require.NoError(t, err)

	j := waitForStatus(t, svc, id)
	assert.Equal(t, job.StatusError, j.Status)
	assert.Contains(t, j.Result.Message, "extraction failed")
}
