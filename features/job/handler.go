package job

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docrag/internal/middleware"
)

// pollInterval is advertised to clients polling a job that is still running.
const pollInterval = "2"

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Data          *Job       `json:"data,omitempty"`
	Error         *errorBody `json:"error,omitempty"`
	CorrelationID string     `json:"correlationId,omitempty"`
}

// Status serves GET /documents/status/{id}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	j, err := h.service.Status(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		respond(w, r, http.StatusNotFound, envelope{Error: &errorBody{"NOT_FOUND", "Upload ID not found or expired"}})
		return
	case err != nil:
		slog.ErrorContext(ctx, "job lookup failed", "job_id", id, "error", err)
		respond(w, r, http.StatusInternalServerError, envelope{Error: &errorBody{"INTERNAL_ERROR", "failed to get job status"}})
		return
	}

	if j.Status == StatusProcessing {
		w.Header().Set("Retry-After", pollInterval)
	}
	respond(w, r, http.StatusOK, envelope{Data: j})
}

func respond(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	if body.Error != nil {
		body.CorrelationID = middleware.GetCorrelationID(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode job response", "error", err)
	}
}
