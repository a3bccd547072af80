package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docrag/features/job"
	"docrag/internal/document"
	"docrag/internal/index"
)

type MockSearcher struct{ mock.Mock }

func (m *MockSearcher) Search(ctx context.Context, query string, k int) ([]index.Result, error) {
	args := m.Called(ctx, query, k)
	res, _ := args.Get(0).([]index.Result)
	return res, args.Error(1)
}

type MockJobs struct{ mock.Mock }

func (m *MockJobs) Status(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	j, _ := args.Get(0).(*job.Job)
	return j, args.Error(1)
}

func call(t *testing.T, h *Handler, payload map[string]interface{}) (*httptest.ResponseRecorder, JSONRPCResponse) {
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body)))

	var resp JSONRPCResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func toolText(t *testing.T, resp JSONRPCResponse) (string, bool) {
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var res ToolResult
	require.NoError(t, json.Unmarshal(raw, &res))
	require.Len(t, res.Content, 1)
	return res.Content[0].Text, res.IsError
}

func errorCode(resp JSONRPCResponse) float64 {
	m, _ := resp.Error.(map[string]interface{})
	code, _ := m["code"].(float64)
	return code
}

func TestHandler_Initialize(t *testing.T) {
	_, resp := call(t, NewHandler(nil, nil), map[string]interface{}{"jsonrpc": "2.0", "method": "initialize", "id": 1})
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	assert.Equal(t, float64(1), resp.ID)
}

func TestHandler_NotificationHasNoBody(t *testing.T) {
	rec, _ := call(t, NewHandler(nil, nil), map[string]interface{}{"jsonrpc": "2.0", "method": "notifications/initialized"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestHandler_ToolsList(t *testing.T) {
	_, resp := call(t, NewHandler(nil, nil), map[string]interface{}{"jsonrpc": "2.0", "method": "tools/list", "id": 2})
	raw, _ := json.Marshal(resp.Result)
	var list ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Tools, 2)
	assert.Equal(t, ToolSearch, list.Tools[0].Name)
	assert.Equal(t, ToolJobStatus, list.Tools[1].Name)
}

func TestHandler_SearchDocuments(t *testing.T) {
	s := new(MockSearcher)
	s.On("Search", mock.Anything, "vat number", 3).Return([]index.Result{
		{Document: document.New("VAT 123", document.Metadata{"source": "inv.pdf", "page": 1}), Score: 0.75},
	}, nil)

	_, resp := call(t, NewHandler(s, nil), map[string]interface{}{
		"jsonrpc": "2.0", "method": "tools/call", "id": 3,
		"params": map[string]interface{}{"name": ToolSearch, "arguments": map[string]interface{}{"query": "vat number", "k": 3}},
	})

	text, isErr := toolText(t, resp)
	assert.False(t, isErr)
	assert.Contains(t, text, "Source: inv.pdf")
	assert.Contains(t, text, "VAT 123")
	assert.Contains(t, text, "Score: 0.75")
}

func TestHandler_SearchDocuments_Errors(t *testing.T) {
	s := new(MockSearcher)
	s.On("Search", mock.Anything, "boom", 0).Return(nil, errors.New("index down"))
	h := NewHandler(s, nil)

	_, resp := call(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "method": "tools/call", "id": 4,
		"params": map[string]interface{}{"name": ToolSearch, "arguments": map[string]interface{}{"query": ""}},
	})
	assert.Equal(t, float64(ErrInvalidParams), errorCode(resp))

	_, resp = call(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "method": "tools/call", "id": 5,
		"params": map[string]interface{}{"name": ToolSearch, "arguments": map[string]interface{}{"query": "boom"}},
	})
	assert.Equal(t, float64(ErrInternal), errorCode(resp))
}

func TestHandler_GetJobStatus(t *testing.T) {
	jobs := new(MockJobs)
	jobs.On("Status", mock.Anything, "j1").Return(&job.Job{ID: "j1", Filename: "a.pdf", Status: job.StatusSuccess}, nil)
	jobs.On("Status", mock.Anything, "gone").Return(nil, job.ErrNotFound)
	h := NewHandler(nil, jobs)

	_, resp := call(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "method": "tools/call", "id": 6,
		"params": map[string]interface{}{"name": ToolJobStatus, "arguments": map[string]string{"job_id": "j1"}},
	})
	text, isErr := toolText(t, resp)
	assert.False(t, isErr)
	assert.Contains(t, text, `"a.pdf"`)

	_, resp = call(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "method": "tools/call", "id": 7,
		"params": map[string]interface{}{"name": ToolJobStatus, "arguments": map[string]string{"job_id": "gone"}},
	})
	text, isErr = toolText(t, resp)
	assert.True(t, isErr)
	assert.Equal(t, "Upload ID not found or expired", text)
}

func TestHandler_Errors(t *testing.T) {
	h := NewHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString("{invalid")))
	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(ErrParse), errorCode(resp))

	_, resp = call(t, h, map[string]interface{}{"jsonrpc": "2.0", "method": "resources/list", "id": 8})
	assert.Equal(t, float64(ErrMethodNotFound), errorCode(resp))

	_, resp = call(t, h, map[string]interface{}{"jsonrpc": "1.0", "method": "initialize", "id": 9})
	assert.Equal(t, float64(ErrInvalidRequest), errorCode(resp))

	_, resp = call(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "method": "tools/call", "id": 10,
		"params": map[string]interface{}{"name": "read_page"},
	})
	assert.Equal(t, float64(ErrMethodNotFound), errorCode(resp))
}
