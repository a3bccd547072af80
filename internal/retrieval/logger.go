package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SearchRecord is one line of the search audit log.
type SearchRecord struct {
	At            time.Time `json:"at"`
	Query         string    `json:"query"`
	K             int       `json:"k"`
	Candidates    int       `json:"candidates"`
	Returned      int       `json:"returned"`
	Reranked      bool      `json:"reranked"`
	Sources       []string  `json:"sources,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
	CorrelationID string    `json:"correlation_id"`
}

// QueryLogger appends SearchRecords as JSON lines. Safe for concurrent use.
type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileQueryLogger opens path for append, creating parent directories.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, err
	}
	return NewQueryLogger(f), nil
}

func (l *QueryLogger) Log(rec SearchRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.At.IsZero() {
		rec.At = l.now().UTC()
	}
	if err := l.enc.Encode(rec); err != nil {
		slog.Warn("search log write failed", "query", rec.Query, "error", err)
	}
}
