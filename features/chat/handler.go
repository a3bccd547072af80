package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"docrag/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	K         int    `json:"k"`
}

// Ask serves POST /chat.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.K < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "k must not be negative", http.StatusBadRequest)
		return
	}

	ans, err := h.service.Ask(ctx, req.Question, req.SessionID, req.K)
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		h.writeError(ctx, w, "BAD_REQUEST", "question is required", http.StatusBadRequest)
		return
	case errors.Is(err, ErrNoLLM):
		h.writeError(ctx, w, "LLM_UNAVAILABLE", "chat needs an LLM provider", http.StatusServiceUnavailable)
		return
	case err != nil:
		slog.ErrorContext(ctx, "chat failed", "session_id", req.SessionID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to answer question", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": ans})
}

// ClearSession serves DELETE /chat/memory/{session_id}.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("session_id")
	if err := h.service.ClearSession(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to clear chat session", "session_id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to clear session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"status": "success", "message": "Cleared memory for session: " + id},
	})
}

// ClearAll serves DELETE /chat/memory.
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.service.ClearAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to clear chat sessions", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to clear sessions", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"status": "success", "message": fmt.Sprintf("Cleared %d session histories", n)},
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error":         map[string]string{"code": code, "message": message},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
