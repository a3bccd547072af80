package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HeaderCorrelationID is read from requests and echoed on responses.
const HeaderCorrelationID = "X-Correlation-ID"

type ctxKey struct{ name string }

var (
	CorrelationKey = ctxKey{"correlation_id"}
	jobKey         = ctxKey{"job_id"}
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// CorrelationID tags every request with an id, reusing the caller's header
// when present, and logs one line per completed request.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderCorrelationID, id)

		ctx := WithCorrelationID(r.Context(), id)
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		slog.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path, // #nosec G706 -- parsed by net/http
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationKey, id)
}

// GetCorrelationID returns "unknown" outside a request.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationKey).(string); ok {
		return id
	}
	return "unknown"
}

// WithJobID tags background work with the job it belongs to.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobKey, id)
}

// GetJobID returns the job id, or "" outside a job.
func GetJobID(ctx context.Context) string {
	if id, ok := ctx.Value(jobKey).(string); ok {
		return id
	}
	return ""
}
