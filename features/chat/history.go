package chat

import (
	"context"
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// History keeps per-session conversation turns.
type History interface {
	Get(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Clear(ctx context.Context, sessionID string) error
	ClearAll(ctx context.Context) (int, error)
}

// MemoryHistory keeps the last maxExchanges question/answer pairs of each
// session for the life of the process. maxExchanges <= 0 disables history.
type MemoryHistory struct {
	mu       sync.Mutex
	sessions map[string][]Turn
	maxTurns int
}

func NewMemoryHistory(maxExchanges int) *MemoryHistory {
	return &MemoryHistory{sessions: make(map[string][]Turn), maxTurns: 2 * maxExchanges}
}

func (h *MemoryHistory) Get(_ context.Context, sessionID string) ([]Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.sessions[sessionID]...), nil
}

func (h *MemoryHistory) Append(_ context.Context, sessionID string, turns ...Turn) error {
	if h.maxTurns <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.sessions[sessionID], turns...)
	if over := len(all) - h.maxTurns; over > 0 {
		all = append([]Turn(nil), all[over:]...)
	}
	h.sessions[sessionID] = all
	return nil
}

// Clear forgets one session. Unknown sessions are not an error.
func (h *MemoryHistory) Clear(_ context.Context, sessionID string) error {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	return nil
}

// ClearAll forgets every session and reports how many there were.
func (h *MemoryHistory) ClearAll(context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.sessions)
	h.sessions = make(map[string][]Turn)
	return n, nil
}
