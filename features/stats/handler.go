package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"docrag/features/job"
	"docrag/internal/audit"
	"docrag/internal/middleware"
)

type InvoiceRepo interface {
	Count(ctx context.Context) (int, error)
}

type JobCounter interface {
	Counts(ctx context.Context) (map[job.Status]int, error)
}

// ChunkCounter is implemented by backends that can count stored chunks.
type ChunkCounter interface {
	CountChunks(ctx context.Context) (int, error)
}

// EventCounter reports invoice side-path outcomes by audit event type.
type EventCounter interface {
	Counts() map[string]int
}

type Handler struct {
	invoices InvoiceRepo
	jobs     JobCounter
	chunks   ChunkCounter
	events   EventCounter
	backend  string
}

// NewHandler builds the stats endpoint. invoices, chunks and events may be nil.
func NewHandler(invoices InvoiceRepo, jobs JobCounter, chunks ChunkCounter, events EventCounter, backend string) *Handler {
	return &Handler{invoices: invoices, jobs: jobs, chunks: chunks, events: events, backend: backend}
}

type JobCounts struct {
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Error      int `json:"error"`
}

type InvoiceEvents struct {
	Skipped   int `json:"skipped"`
	Persisted int `json:"persisted"`
	Failed    int `json:"failed"`
}

type StatsResponse struct {
	Jobs          JobCounts      `json:"jobs"`
	Invoices      int            `json:"invoices"`
	InvoiceEvents *InvoiceEvents `json:"invoice_events,omitempty"`
	Backend       string         `json:"backend"`
	Chunks        *int           `json:"chunks,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.DebugContext(ctx, "getting stats", "correlationId", correlationID)

	resp := StatsResponse{Backend: h.backend}

	counts, err := h.jobs.Counts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}
	resp.Jobs = JobCounts{
		Processing: counts[job.StatusProcessing],
		Success:    counts[job.StatusSuccess],
		Error:      counts[job.StatusError],
	}

	if h.invoices != nil {
		n, err := h.invoices.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count invoices", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count invoices", http.StatusInternalServerError)
			return
		}
		resp.Invoices = n
	}

	if h.events != nil {
		counts := h.events.Counts()
		resp.InvoiceEvents = &InvoiceEvents{
			Skipped:   counts[audit.InvoiceSkipped],
			Persisted: counts[audit.InvoicePersisted],
			Failed:    counts[audit.InvoiceFailed],
		}
	}

	if h.chunks != nil {
		n, err := h.chunks.CountChunks(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count chunks", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
			return
		}
		resp.Chunks = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
