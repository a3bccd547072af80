// Package audit records outcomes of the invoice side path so that absorbed
// failures stay observable.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	InvoiceSkipped   = "invoice.skipped"
	InvoicePersisted = "invoice.persisted"
	InvoiceFailed    = "invoice.failed"
)

type Event struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id,omitempty"`
	FilePath  string    `json:"file_path"`
	InvoiceID string    `json:"invoice_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Sink interface {
	Record(ctx context.Context, e Event)
}

type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Event) {
	level := slog.LevelInfo
	if e.Type == InvoiceFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "audit event",
		"event", e.Type,
		"file_path", e.FilePath,
		"invoice_id", e.InvoiceID,
		"stage", e.Stage,
		"error", e.Error,
	)
}

// Publisher is the subset of *nsq.Producer used here.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// NSQSink publishes events as JSON. A failed publish is logged and dropped.
type NSQSink struct {
	pub   Publisher
	topic string
}

func NewNSQSink(pub Publisher, topic string) *NSQSink {
	return &NSQSink{pub: pub, topic: topic}
}

func (s *NSQSink) Record(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode audit event", "error", err)
		return
	}
	if err := s.pub.Publish(s.topic, body); err != nil {
		slog.WarnContext(ctx, "failed to publish audit event", "topic", s.topic, "error", err)
	}
}

type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// recentEvents bounds the in-memory event history; counts are unbounded.
const recentEvents = 256

// Recorder keeps the most recent events in memory and counts every event
// by type. It backs the /stats counters.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	counts map[string]int
}

func NewRecorder() *Recorder {
	return &Recorder{counts: make(map[string]int)}
}

func (r *Recorder) Record(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == recentEvents {
		copy(r.events, r.events[1:])
		r.events = r.events[:recentEvents-1]
	}
	r.events = append(r.events, e)
	r.counts[e.Type]++
}

// Events returns the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}
