package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docrag/features/chat"
	"docrag/internal/document"
	"docrag/internal/index"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, k int) ([]index.Result, error) {
	args := m.Called(ctx, query, k)
	res, _ := args.Get(0).([]index.Result)
	return res, args.Error(1)
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func hits() []index.Result {
	return []index.Result{
		{Document: document.New("Payment is due within 30 days.", document.Metadata{"source": "terms.pdf", "page": 2}), Score: 0.9},
		{Document: document.New(index.PlaceholderText, index.PlaceholderMetadata()), Score: 0.1},
	}
}

func TestService_AskAnswersFromRetrievedContext(t *testing.T) {
	search := new(MockSearcher)
	search.On("Search", mock.Anything, "When is payment due?", 2).Return(hits(), nil)
	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Payment is due within 30 days.") &&
			strings.Contains(p, "source: terms.pdf, page 2") &&
			!strings.Contains(p, index.PlaceholderText) &&
			strings.HasSuffix(p, "Question: When is payment due?\nAnswer:")
	})).Return("  Within 30 days. ", nil)

	svc := chat.NewService(search, llm, chat.NewMemoryHistory(5), nil)
	ans, err := svc.Ask(context.Background(), "  When is payment due?  ", "s1", 2)
	require.NoError(t, err)

	assert.Equal(t, "Within 30 days.", ans.Answer)
	assert.Equal(t, "s1", ans.SessionID)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "terms.pdf", ans.Sources[0].Metadata["source"])
	llm.AssertExpectations(t)
}

func TestService_AskCarriesSessionHistory(t *testing.T) {
	search := new(MockSearcher)
	search.On("Search", mock.Anything, mock.Anything, 0).Return(hits(), nil)
	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return !strings.Contains(p, "Conversation so far")
	})).Return("Within 30 days.", nil).Once()
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "User: When is payment due?\nAssistant: Within 30 days.\n")
	})).Return("No late fee is mentioned.", nil).Once()

	history := chat.NewMemoryHistory(5)
	svc := chat.NewService(search, llm, history, nil)

	first, err := svc.Ask(context.Background(), "When is payment due?", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID, "a new session id is issued")

	second, err := svc.Ask(context.Background(), "And the late fee?", first.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	turns, err := history.Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.Len(t, turns, 4)
	llm.AssertExpectations(t)
}

func TestService_AskErrors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		_, err := chat.NewService(new(MockSearcher), new(MockCompleter), nil, nil).Ask(context.Background(), "   ", "", 0)
		assert.ErrorIs(t, err, chat.ErrEmptyQuestion)
	})

	t.Run("no llm", func(t *testing.T) {
		_, err := chat.NewService(new(MockSearcher), nil, nil, nil).Ask(context.Background(), "q", "", 0)
		assert.ErrorIs(t, err, chat.ErrNoLLM)
	})

	t.Run("search fails", func(t *testing.T) {
		search := new(MockSearcher)
		search.On("Search", mock.Anything, "q", 0).Return(nil, errors.New("index offline"))
		llm := new(MockCompleter)

		_, err := chat.NewService(search, llm, nil, nil).Ask(context.Background(), "q", "s", 0)
		assert.ErrorContains(t, err, "index offline")
		llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("llm fails leaves history untouched", func(t *testing.T) {
		search := new(MockSearcher)
		search.On("Search", mock.Anything, "q", 0).Return(hits(), nil)
		llm := new(MockCompleter)
		llm.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("timeout"))
		history := chat.NewMemoryHistory(5)

		_, err := chat.NewService(search, llm, history, nil).Ask(context.Background(), "q", "s", 0)
		assert.ErrorContains(t, err, "timeout")
		turns, _ := history.Get(context.Background(), "s")
		assert.Empty(t, turns)
	})
}
