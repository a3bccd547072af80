package invoice

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"docrag/internal/middleware"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

type Handler struct {
	repo Repository
	now  func() time.Time
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo, now: time.Now}
}

type listItem struct {
	ID            string  `json:"id"`
	VendorName    string  `json:"vendor_name"`
	InvoiceNumber string  `json:"invoice_number"`
	TotalAmount   float64 `json:"total_amount"`
	Currency      string  `json:"currency"`
	InvoiceDate   string  `json:"invoice_date"`
	DueDate       *string `json:"due_date"`
	FilePath      string  `json:"file_path"`
	Status        string  `json:"status"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	skip, err := intParam(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "skip must be a non-negative integer", http.StatusBadRequest)
		return
	}
	limit, err := intParam(q.Get("limit"), defaultLimit)
	if err != nil || limit < 1 || limit > maxLimit {
		h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be between 1 and 100", http.StatusBadRequest)
		return
	}

	invoices, err := h.repo.List(ctx, ListParams{OwnerID: q.Get("owner_id"), Skip: skip, Limit: limit})
	if err != nil {
		slog.ErrorContext(ctx, "failed to list invoices", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to list invoices", http.StatusInternalServerError)
		return
	}

	now := h.now()
	items := make([]listItem, 0, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		item := listItem{
			ID:            inv.ID,
			VendorName:    inv.VendorName,
			InvoiceNumber: inv.InvoiceNumber,
			TotalAmount:   inv.TotalAmount,
			Currency:      inv.Currency,
			InvoiceDate:   inv.InvoiceDate.Format(DateLayout),
			FilePath:      inv.FilePath,
			Status:        inv.Status(now),
		}
		if inv.DueDate != nil {
			d := inv.DueDate.Format(DateLayout)
			item.DueDate = &d
		}
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": items,
		"meta": map[string]int{"count": len(items)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
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
