package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docrag/internal/middleware"
)

const maxMessageRunes = 200

// Runner is the ingestion pipeline as seen by a job.
type Runner interface {
	ProcessFile(ctx context.Context, path string, useOCR bool, ownerID string) (int, error)
}

// Scheduler runs a task in the background.
type Scheduler interface {
	Submit(task func()) error
}

type Request struct {
	Path     string
	Filename string
	UseOCR   bool
	OwnerID  string
}

type Service struct {
	store     Store
	runner    Runner
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, runner Runner, scheduler Scheduler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, runner: runner, scheduler: scheduler, logger: logger, now: time.Now}
}

// Submit registers a processing job and hands the file to the scheduler.
// It returns as soon as the task is queued.
func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	if req.Filename == "" {
		req.Filename = filepath.Base(req.Path)
	}
	now := s.now()
	j := &Job{
		ID:        uuid.NewString(),
		Filename:  req.Filename,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, j); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	// The job outlives the request that submitted it.
	bg := middleware.WithJobID(context.WithoutCancel(ctx), j.ID)
	if err := s.scheduler.Submit(func() { s.run(bg, j.ID, req) }); err != nil {
		s.finish(bg, j.ID, StatusError, s.failure(fmt.Errorf("schedule: %w", err)))
		return "", fmt.Errorf("schedule job: %w", err)
	}

	s.logger.InfoContext(bg, "job submitted", "filename", req.Filename, "ocr", req.UseOCR)
	return j.ID, nil
}

func (s *Service) run(ctx context.Context, id string, req Request) {
	defer func() {
		if r := recover(); r != nil {
			s.finish(ctx, id, StatusError, s.failure(fmt.Errorf("panic: %v", r)))
		}
	}()

	s.logger.InfoContext(ctx, "processing in background", "filename", req.Filename)
	chunks, err := s.runner.ProcessFile(ctx, req.Path, req.UseOCR, req.OwnerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "background processing failed", "error", err)
		s.finish(ctx, id, StatusError, s.failure(err))
		return
	}
	s.finish(ctx, id, StatusSuccess, Result{
		Status:         StatusSuccess,
		DocumentsAdded: 1,
		ChunksCreated:  chunks,
		Message:        fmt.Sprintf("Successfully processed %s", req.Filename),
		Timestamp:      s.now(),
	})
	s.logger.InfoContext(ctx, "background processing complete", "chunks", chunks)
}

func (s *Service) failure(err error) Result {
	return Result{Status: StatusError, Message: truncate(err.Error(), maxMessageRunes), Timestamp: s.now()}
}

func (s *Service) finish(ctx context.Context, id string, status Status, r Result) {
	err := s.store.Complete(ctx, id, status, r)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyFinished):
		s.logger.WarnContext(ctx, "job already finished, ignoring", "status", status)
	default:
		s.logger.ErrorContext(ctx, "failed to record job outcome", "status", status, "error", err)
	}
}

func (s *Service) Status(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Counts(ctx context.Context) (map[Status]int, error) {
	return s.store.CountByStatus(ctx)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
