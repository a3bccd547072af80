package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"docrag/features/job"
	"docrag/internal/document"
	"docrag/internal/index"
	"docrag/internal/middleware"
)

type JobSubmitter interface {
	Submit(ctx context.Context, req job.Request) (string, error)
}

type Ingester interface {
	AddTexts(ctx context.Context, texts []string, metadatas []document.Metadata) (int, error)
	ProcessDirectory(ctx context.Context, dir string) (int, error)
	ClearIndex(ctx context.Context)
}

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
}

type Options struct {
	UploadDir        string
	MaxUploadBytes   int64
	SupportedFormats []string
}

type Handler struct {
	jobs     JobSubmitter
	ingest   Ingester
	search   Searcher
	opts     Options
	accepted map[string]bool
}

func NewHandler(jobs JobSubmitter, ingest Ingester, search Searcher, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "./data/uploads"
	}
	accepted := make(map[string]bool, len(opts.SupportedFormats))
	for _, ext := range opts.SupportedFormats {
		accepted[strings.ToLower(strings.TrimSpace(ext))] = true
	}
	return &Handler{jobs: jobs, ingest: ingest, search: search, opts: opts, accepted: accepted}
}

type ingestResponse struct {
	Status         string `json:"status"`
	DocumentsAdded int    `json:"documents_added"`
	ChunksCreated  int    `json:"chunks_created"`
	Message        string `json:"message"`
}

// Upload stores the file and queues it; the client polls the job status.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	useOCR := false
	if raw := r.URL.Query().Get("use_ocr"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(ctx, w, "BAD_REQUEST", "use_ocr must be a boolean", http.StatusBadRequest)
			return
		}
		useOCR = v
	}

	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	base := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(base))
	if !h.accepted[ext] {
		h.writeError(ctx, w, "BAD_REQUEST", fmt.Sprintf("Unsupported file format. Supported: %s", strings.Join(h.opts.SupportedFormats, ", ")), http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.opts.UploadDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create upload directory", "error", err, "path", filepath.Clean(h.opts.UploadDir))
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	path := filepath.Clean(filepath.Join(h.opts.UploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), base)))
	dst, err := os.Create(path) // #nosec G304 -- uuid prefix plus basename
	if err != nil {
		slog.ErrorContext(ctx, "failed to create file", "error", err, "path", path)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}

	hash := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(dst, hash), file)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		h.removeUpload(ctx, path)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to write file", http.StatusInternalServerError)
		return
	}
	slog.InfoContext(ctx, "file uploaded", "filename", base, "sha256", fmt.Sprintf("%x", hash.Sum(nil)))

	id, err := h.jobs.Submit(ctx, job.Request{
		Path:     path,
		Filename: base,
		UseOCR:   useOCR,
		OwnerID:  r.FormValue("owner_id"),
	})
	if err != nil {
		h.removeUpload(ctx, path)
		slog.ErrorContext(ctx, "failed to queue upload", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Upload failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"data": map[string]string{
		"status":    "processing",
		"upload_id": id,
		"message":   fmt.Sprintf("File %s uploaded and queued for processing", base),
	}})
}

func (h *Handler) removeUpload(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.WarnContext(ctx, "failed to clean up uploaded file", "error", err, "path", path)
	}
}

type addTextsRequest struct {
	Texts     []string            `json:"texts"`
	Metadatas []document.Metadata `json:"metadatas"`
}

func (h *Handler) AddTexts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addTextsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.Texts) == 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "texts must not be empty", http.StatusBadRequest)
		return
	}
	if req.Metadatas != nil && len(req.Metadatas) != len(req.Texts) {
		h.writeError(ctx, w, "VALIDATION_ERROR", "metadatas must match texts in length", http.StatusBadRequest)
		return
	}

	n, err := h.ingest.AddTexts(ctx, req.Texts, req.Metadatas)
	if err != nil {
		slog.ErrorContext(ctx, "add texts failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": ingestResponse{
		Status:         "success",
		DocumentsAdded: len(req.Texts),
		ChunksCreated:  n,
		Message:        fmt.Sprintf("Successfully added %d text chunks", n),
	}})
}

func (h *Handler) ProcessDirectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		DirectoryPath string `json:"directory_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DirectoryPath == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "directory_path is required", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(req.DirectoryPath)
	if err != nil {
		h.writeError(ctx, w, "NOT_FOUND", "Directory not found", http.StatusNotFound)
		return
	}
	if !info.IsDir() {
		h.writeError(ctx, w, "BAD_REQUEST", "Path is not a directory", http.StatusBadRequest)
		return
	}

	n, err := h.ingest.ProcessDirectory(ctx, req.DirectoryPath)
	if err != nil {
		slog.ErrorContext(ctx, "process directory failed", "path", req.DirectoryPath, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": ingestResponse{
		Status:        "success",
		ChunksCreated: n,
		Message:       fmt.Sprintf("Successfully processed directory: %s", req.DirectoryPath),
	}})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.ingest.ClearIndex(ctx)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": map[string]string{
		"status":  "success",
		"message": "Knowledge base cleared",
	}})
}

type searchResult struct {
	Content  string            `json:"content"`
	Metadata document.Metadata `json:"metadata"`
	Score    float32           `json:"score"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "query is required", http.StatusBadRequest)
		return
	}
	if req.K < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "k must not be negative", http.StatusBadRequest)
		return
	}

	results, err := h.search.Search(ctx, req.Query, req.K)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}

	out := make([]searchResult, 0, len(results))
	for _, res := range results {
		out = append(out, searchResult{Content: res.Content, Metadata: res.Metadata, Score: res.Score})
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": out,
		"meta": map[string]int{"count": len(out)},
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
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
