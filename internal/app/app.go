package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"docrag/features/chat"
	"docrag/features/document"
	"docrag/features/ingest"
	"docrag/features/invoice"
	"docrag/features/job"
	"docrag/features/mcp"
	"docrag/features/stats"
	"docrag/internal/adapter/reranker"
	"docrag/internal/audit"
	"docrag/internal/config"
	"docrag/internal/extract"
	"docrag/internal/index"
	"docrag/internal/middleware"
	"docrag/internal/retrieval"
	"docrag/internal/text"
	"docrag/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// App owns every long-lived service. Build it once with New.
type App struct {
	Handler   http.Handler
	Index     *index.Cache
	Ingest    *ingest.Service
	Jobs      *job.Service
	Retrieval *retrieval.Service
	Chat      *chat.Service
	Pool      *worker.Pool
	Audit     *audit.Recorder

	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps == nil || deps.Backend == nil {
		return nil, errors.New("app: index backend is required")
	}

	cache := index.NewCache(deps.Backend, cfg.RetrievalTopK, logger)

	registry := extract.NewDefaultRegistry(nil, extract.Tools{
		PDFToText: cfg.PDFToTextBin,
		PDFToPPM:  cfg.PDFToPPMBin,
		Tesseract: cfg.TesseractBin,
		Languages: cfg.OCRLanguages,
	})

	// Side-path outcomes are always counted in memory for /stats, on top of
	// the log and, when enabled, NSQ.
	recorder := audit.NewRecorder()
	sink := audit.Multi{audit.NewLogSink(logger), recorder}
	if deps.Publisher != nil {
		sink = append(sink, audit.NewNSQSink(deps.Publisher, cfg.AuditTopic))
	}

	var invoiceRepo *invoice.PostgresRepo
	if deps.DB != nil {
		invoiceRepo = invoice.NewPostgresRepo(deps.DB)
	}

	opts := []ingest.Option{
		ingest.WithSplitter(text.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)),
		ingest.WithAuditSink(sink),
		ingest.WithLogger(logger),
	}
	if cfg.InvoiceExtractionEnabled {
		opts = append(opts, ingest.WithClassifier(invoice.NewKeywordClassifier(cfg.InvoiceKeywords, cfg.InvoiceMinMatches)))
		if deps.LLM != nil {
			opts = append(opts, ingest.WithLLM(deps.LLM))
		}
		if invoiceRepo != nil {
			opts = append(opts, ingest.WithInvoiceRepository(invoiceRepo))
		}
	} else {
		opts = append(opts, ingest.WithClassifier(nil))
	}

	ingestService, err := ingest.NewService(registry, cache, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := worker.NewPool(cfg.JobWorkers, logger)
	if err != nil {
		return nil, err
	}

	var jobStore job.Store
	switch cfg.JobStore {
	case config.JobStorePostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("app: %s job store needs a database", cfg.JobStore)
		}
		jobStore = job.NewPostgresStore(deps.DB)
	default:
		jobStore = job.NewMemoryStore()
	}
	jobService := job.NewService(jobStore, ingestService, pool, logger)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	var rr retrieval.Reranker
	if client := reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey); client.Enabled() {
		rr = client
	}
	retrievalService := retrieval.NewService(cache, rr, queryLogger)

	documentHandler := document.NewHandler(jobService, ingestService, retrievalService, document.Options{
		UploadDir:        cfg.UploadDir,
		MaxUploadBytes:   cfg.MaxUploadSizeMB << 20,
		SupportedFormats: cfg.SupportedFormats,
	})
	chatService := chat.NewService(retrievalService, deps.LLM, chat.NewMemoryHistory(cfg.ChatHistoryTurns), logger)
	chatHandler := chat.NewHandler(chatService)
	jobHandler := job.NewHandler(jobService)
	mcpHandler := mcp.NewHandler(retrievalService, jobService)

	var invoiceCounter stats.InvoiceRepo
	if invoiceRepo != nil {
		invoiceCounter = invoiceRepo
	}
	var chunkCounter stats.ChunkCounter
	if c, ok := deps.Backend.(stats.ChunkCounter); ok {
		chunkCounter = c
	}
	statsHandler := stats.NewHandler(invoiceCounter, jobService, chunkCounter, recorder, cache.BackendName())

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("GET /documents/status/{id}", middleware.CorrelationID(enableCORS(jobHandler.Status)))
	mux.Handle("POST /documents/texts", middleware.CorrelationID(enableCORS(documentHandler.AddTexts)))
	mux.Handle("POST /documents/process-directory", middleware.CorrelationID(enableCORS(documentHandler.ProcessDirectory)))
	mux.Handle("DELETE /documents/clear", middleware.CorrelationID(enableCORS(documentHandler.Clear)))
	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(documentHandler.Search)))
	mux.Handle("POST /chat", middleware.CorrelationID(enableCORS(chatHandler.Ask)))
	mux.Handle("DELETE /chat/memory/{session_id}", middleware.CorrelationID(enableCORS(chatHandler.ClearSession)))
	mux.Handle("DELETE /chat/memory", middleware.CorrelationID(enableCORS(chatHandler.ClearAll)))
	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))
	mux.Handle("POST /mcp", middleware.CorrelationID(mcpHandler))

	if invoiceRepo != nil {
		invoiceHandler := invoice.NewHandler(invoiceRepo)
		mux.Handle("GET /invoices", middleware.CorrelationID(enableCORS(invoiceHandler.List)))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:   mux,
		Index:     cache,
		Ingest:    ingestService,
		Jobs:      jobService,
		Retrieval: retrievalService,
		Chat:      chatService,
		Pool:      pool,
		Audit:     recorder,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight jobs.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("server starting", "port", a.cfg.ServerPort, "backend", a.Index.BackendName())
	err := srv.ListenAndServe()
	if releaseErr := a.Close(); releaseErr != nil {
		a.logger.Warn("worker pool did not drain", "error", releaseErr)
	}
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the worker pool and flushes the index.
func (a *App) Close() error {
	err := a.Pool.Release(shutdownTimeout)
	return errors.Join(err, a.Index.Persist(context.Background()))
}
