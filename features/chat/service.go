// Package chat answers questions over the indexed documents, keeping a short
// per-session conversation history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"docrag/internal/document"
	"docrag/internal/index"
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrNoLLM         = errors.New("no language model configured")
)

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Source struct {
	Content  string            `json:"content"`
	Metadata document.Metadata `json:"metadata"`
	Score    float32           `json:"score"`
}

type Answer struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"session_id"`
}

type Service struct {
	search  Searcher
	llm     Completer
	history History
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires chat. llm may be nil, in which case Ask reports ErrNoLLM.
func NewService(search Searcher, llm Completer, history History, logger *slog.Logger) *Service {
	if history == nil {
		history = NewMemoryHistory(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{search: search, llm: llm, history: history, logger: logger, now: time.Now}
}

// Ask retrieves the top k chunks for question, asks the LLM with them and
// the session's recent turns as context, and records the exchange. An empty
// sessionID starts a new session.
func (s *Service) Ask(ctx context.Context, question, sessionID string, k int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.llm == nil {
		return nil, ErrNoLLM
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	results, err := s.search.Search(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if r.Content == index.PlaceholderText {
			continue
		}
		sources = append(sources, Source{Content: r.Content, Metadata: r.Metadata, Score: r.Score})
	}

	past, err := s.history.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	reply, err := s.llm.Complete(ctx, buildPrompt(question, sources, past))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	reply = strings.TrimSpace(reply)

	now := s.now()
	if err := s.history.Append(ctx, sessionID,
		Turn{Role: RoleUser, Content: question, At: now},
		Turn{Role: RoleAssistant, Content: reply, At: now},
	); err != nil {
		// The answer is still good; only the follow-up context is lost.
		s.logger.WarnContext(ctx, "failed to store chat turn", "session_id", sessionID, "error", err)
	}

	s.logger.InfoContext(ctx, "chat answered", "session_id", sessionID, "sources", len(sources), "history", len(past))
	return &Answer{Answer: reply, Sources: sources, SessionID: sessionID}, nil
}

func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	return s.history.Clear(ctx, sessionID)
}

func (s *Service) ClearAll(ctx context.Context) (int, error) {
	return s.history.ClearAll(ctx)
}

func buildPrompt(question string, sources []Source, past []Turn) string {
	var b strings.Builder
	b.WriteString("You answer questions about the user's documents.\n")
	b.WriteString("Use only the context below. If the context does not contain the answer, say that you do not know.\n\n")

	b.WriteString("Context:\n")
	if len(sources) == 0 {
		b.WriteString("(no matching documents)\n")
	}
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d]", i+1)
		if name, ok := src.Metadata["source"]; ok {
			fmt.Fprintf(&b, " source: %v", name)
		}
		if page, ok := src.Metadata["page"]; ok {
			fmt.Fprintf(&b, ", page %v", page)
		}
		fmt.Fprintf(&b, "\n%s\n\n", src.Content)
	}

	if len(past) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range past {
			speaker := "User"
			if t.Role == RoleAssistant {
				speaker = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, t.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\nAnswer:", question)
	return b.String()
}
