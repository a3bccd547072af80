package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docrag/features/invoice"
	"docrag/internal/audit"
	"docrag/internal/document"
	"docrag/internal/extract"
	"docrag/internal/index"
	"docrag/internal/middleware"
	"docrag/internal/text"
)

var (
	ErrIndexRequired     = errors.New("ingest: index is required")
	ErrExtractorRequired = errors.New("ingest: extractor is required")
)

// Side-path stages reported in audit events.
const (
	StageClassify = "classify"
	StageDisabled = "no_extractor"
	StageLLM      = "llm"
	StageParse    = "parse"
	StageSave     = "save"
	StagePanic    = "panic"
)

type Extractor interface {
	ExtractFromFile(ctx context.Context, path string, useOCR bool) ([]document.Document, error)
	ExtractFromDirectory(ctx context.Context, dir string) ([]document.Document, error)
}

type Index interface {
	AddRecords(ctx context.Context, docs []document.Document) error
	AddTexts(ctx context.Context, texts []string, metadatas []document.Metadata) error
	Clear()
}

type InvoiceExtractor interface {
	ExtractAndSave(ctx context.Context, text, filePath, ownerID string) (*invoice.Invoice, error)
}

type Service struct {
	extractor  Extractor
	index      Index
	splitter   *text.Splitter
	classifier invoice.Classifier
	invoices   InvoiceExtractor
	llm        invoice.Completer
	repo       invoice.Repository
	audit      audit.Sink
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithSplitter(s *text.Splitter) Option {
	return func(svc *Service) { svc.splitter = s }
}

// WithClassifier replaces the keyword policy. A nil classifier turns the
// invoice side path off.
func WithClassifier(c invoice.Classifier) Option {
	return func(svc *Service) { svc.classifier = c }
}

func WithInvoiceExtractor(e InvoiceExtractor) Option {
	return func(svc *Service) { svc.invoices = e }
}

// WithLLM supplies the collaborator for the default invoice extractor. It is
// ignored when WithInvoiceExtractor is also given.
func WithLLM(c invoice.Completer) Option {
	return func(svc *Service) { svc.llm = c }
}

func WithInvoiceRepository(r invoice.Repository) Option {
	return func(svc *Service) { svc.repo = r }
}

func WithAuditSink(s audit.Sink) Option {
	return func(svc *Service) { svc.audit = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

func NewService(extractor Extractor, idx Index, opts ...Option) (*Service, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}
	s := &Service{
		extractor:  extractor,
		index:      idx,
		splitter:   text.NewSplitter(1000, 200),
		classifier: invoice.NewKeywordClassifier(nil, 0),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.invoices == nil && s.llm != nil {
		s.invoices = invoice.NewExtractor(s.llm, s.repo, invoice.WithLogger(s.logger))
	}
	if s.audit == nil {
		s.audit = audit.NewLogSink(s.logger)
	}
	return s, nil
}

// ProcessFile extracts, runs the invoice side path, then chunks and indexes.
// Unsupported types and empty extractions index nothing and are not errors.
func (s *Service) ProcessFile(ctx context.Context, path string, useOCR bool, ownerID string) (int, error) {
	s.logger.InfoContext(ctx, "processing file", "path", path, "ocr", useOCR)

	docs, err := s.extractor.ExtractFromFile(ctx, path, useOCR)
	if errors.Is(err, extract.ErrUnsupported) {
		s.logger.WarnContext(ctx, "unsupported file type", "path", path)
		return 0, nil
	}
	if err != nil {
		return 0, wrap(extract.ErrExtraction, err)
	}
	if !document.HasContent(docs) {
		s.logger.WarnContext(ctx, "no content extracted", "path", path)
		return 0, nil
	}

	s.invoiceSidePath(ctx, document.JoinContent(docs, "\n\n"), path, ownerID)

	return s.indexDocuments(ctx, docs)
}

// AddTexts indexes raw texts as-is and reports how many were written.
func (s *Service) AddTexts(ctx context.Context, texts []string, metadatas []document.Metadata) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	if err := s.index.AddTexts(ctx, texts, metadatas); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "texts added", "count", len(texts))
	return len(texts), nil
}

func (s *Service) ProcessDirectory(ctx context.Context, dir string) (int, error) {
	s.logger.InfoContext(ctx, "processing directory", "path", dir)
	docs, err := s.extractor.ExtractFromDirectory(ctx, dir)
	if err != nil {
		return 0, wrap(extract.ErrExtraction, err)
	}
	if !document.HasContent(docs) {
		s.logger.WarnContext(ctx, "no documents found", "path", dir)
		return 0, nil
	}
	return s.indexDocuments(ctx, docs)
}

func (s *Service) ClearIndex(ctx context.Context) {
	s.index.Clear()
	s.logger.InfoContext(ctx, "index handle cleared")
}

func (s *Service) indexDocuments(ctx context.Context, docs []document.Document) (int, error) {
	chunks := s.splitter.SplitAll(docs)
	if err := s.index.AddRecords(ctx, chunks); err != nil {
		return 0, wrap(index.ErrIndexWrite, err)
	}
	s.logger.InfoContext(ctx, "documents indexed", "documents", len(docs), "chunks", len(chunks))
	return len(chunks), nil
}

// invoiceSidePath never returns an error and never panics; every outcome
// becomes an audit event.
func (s *Service) invoiceSidePath(ctx context.Context, content, path, ownerID string) {
	if s.classifier == nil {
		return
	}
	ev := audit.Event{JobID: middleware.GetJobID(ctx), FilePath: path}
	emit := func(typ, stage string, err error) {
		ev.Type, ev.Stage, ev.Timestamp = typ, stage, s.now()
		if err != nil {
			ev.Error = err.Error()
		}
		s.record(ctx, ev)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "invoice side path panicked", "panic", r)
			emit(audit.InvoiceFailed, StagePanic, fmt.Errorf("panic: %v", r))
		}
	}()

	if !s.classifier.Classify(content) {
		emit(audit.InvoiceSkipped, StageClassify, nil)
		return
	}
	if s.invoices == nil {
		emit(audit.InvoiceSkipped, StageDisabled, nil)
		return
	}

	s.logger.InfoContext(ctx, "file detected as invoice", "path", path)
	inv, err := s.invoices.ExtractAndSave(ctx, content, path, ownerID)
	if err != nil {
		s.logger.WarnContext(ctx, "invoice extraction failed", "path", path, "error", err)
		emit(audit.InvoiceFailed, failureStage(err), err)
		return
	}
	ev.InvoiceID = inv.ID
	emit(audit.InvoicePersisted, StageSave, nil)
}

// record hands ev to the audit sink. A panicking sink is logged and
// swallowed so it cannot escape the side path.
func (s *Service) record(ctx context.Context, ev audit.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "audit sink panicked", "event", ev.Type, "stage", ev.Stage, "panic", r)
		}
	}()
	s.audit.Record(ctx, ev)
}

func failureStage(err error) string {
	switch {
	case errors.Is(err, invoice.ErrSaveFailed), errors.Is(err, invoice.ErrNoRepository):
		return StageSave
	case errors.Is(err, invoice.ErrInvalidInvoice):
		return StageParse
	default:
		return StageLLM
	}
}

func wrap(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
