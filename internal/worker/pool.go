// Package worker owns the goroutine pool that runs background ingestion.
package worker

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"
)

type Pool struct {
	pool   *ants.Pool
	logger *slog.Logger
}

type antsLogger struct {
	logger *slog.Logger
}

func (l antsLogger) Printf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "worker-pool")
}

// NewPool creates the pool. A size of zero or less means unbounded; a
// positive size makes Submit block while every worker is busy.
func NewPool(size int, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = -1
	}
	p := &Pool{logger: logger}
	pool, err := ants.NewPool(size,
		ants.WithPanicHandler(p.recovered),
		ants.WithLogger(antsLogger{logger: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

func (p *Pool) recovered(v interface{}) {
	p.logger.Error("background task panicked", "panic", v, "stack", string(debug.Stack()))
}

func (p *Pool) Submit(task func()) error {
	return p.pool.Submit(task)
}

func (p *Pool) Running() int {
	return p.pool.Running()
}

func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Release stops accepting work and waits up to timeout for running tasks.
func (p *Pool) Release(timeout time.Duration) error {
	if timeout <= 0 {
		p.pool.Release()
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}
