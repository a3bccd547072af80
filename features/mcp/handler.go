package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"docrag/features/job"
	"docrag/internal/index"
)

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
}

type JobLookup interface {
	Status(ctx context.Context, id string) (*job.Job, error)
}

type Handler struct {
	searcher Searcher
	jobs     JobLookup
}

func NewHandler(s Searcher, j JobLookup) *Handler {
	return &Handler{searcher: s, jobs: j}
}

// JSON-RPC Request types
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type SearchArgs struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type JobStatusArgs struct {
	JobID string `json:"job_id"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

const (
	ToolSearch    = "search_documents"
	ToolJobStatus = "get_job_status"
)

var tools = []Tool{
	{
		Name: ToolSearch,
		Description: `Semantic search over the indexed documents. Returns the best matching chunks with their source file and page.

USAGE EXAMPLE:
search_documents(query="total due on the March invoice", k=5)`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]string{
					"type":        "string",
					"description": "The search query",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Max results to return. Defaults to the server's retrieval top k.",
					"minimum":     1,
					"maximum":     50,
				},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        ToolJobStatus,
		Description: `Reports the processing status of an uploaded document by its upload id.`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"job_id": map[string]string{
					"type":        "string",
					"description": "The upload id returned by the upload endpoint",
				},
			},
			"required": []string{"job_id"},
		},
	},
}

// processRequest returns nil for notifications.
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "docrag-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools}}
	case "tools/call":
		return h.callTool(ctx, req)
	}

	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		slog.WarnContext(ctx, "invalid params structure", "error", err)
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
		return &resp
	}

	switch params.Name {
	case ToolSearch:
		var args SearchArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid search arguments")
			return &resp
		}
		if strings.TrimSpace(args.Query) == "" {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "Query is required")
			return &resp
		}
		if args.K < 0 {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "k must not be negative")
			return &resp
		}

		results, err := h.searcher.Search(ctx, args.Query, args.K)
		if err != nil {
			slog.ErrorContext(ctx, "search failed", "error", err)
			resp := makeErrorResponse(req.ID, ErrInternal, "Search failed: "+err.Error())
			return &resp
		}
		slog.InfoContext(ctx, "tool execution completed", "tool", ToolSearch, "result_count", len(results))
		return textResult(req.ID, formatResults(results), false)

	case ToolJobStatus:
		var args JobStatusArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || args.JobID == "" {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "job_id is required")
			return &resp
		}

		j, err := h.jobs.Status(ctx, args.JobID)
		if errors.Is(err, job.ErrNotFound) {
			return textResult(req.ID, "Upload ID not found or expired", true)
		}
		if err != nil {
			slog.ErrorContext(ctx, "job lookup failed", "error", err)
			resp := makeErrorResponse(req.ID, ErrInternal, "Job lookup failed")
			return &resp
		}
		body, err := json.MarshalIndent(j, "", "  ")
		if err != nil {
			resp := makeErrorResponse(req.ID, ErrInternal, "Error marshalling job")
			return &resp
		}
		return textResult(req.ID, string(body), false)
	}

	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Tool not found: "+params.Name)
	return &resp
}

func formatResults(results []index.Result) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "Result %d (Score: %.2f):\n", i+1, res.Score)
		if src := res.Metadata.String("source"); src != "" {
			fmt.Fprintf(&b, "Source: %s\n", src)
		}
		if page, ok := res.Metadata["page"]; ok {
			fmt.Fprintf(&b, "Page: %v\n", page)
		}
		fmt.Fprintf(&b, "Content:\n%s\n\n---\n", res.Content)
	}
	return b.String()
}

func textResult(id interface{}, text string, isError bool) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: text}},
			IsError: isError,
		},
	}
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.DebugContext(r.Context(), "mcp request received", "method", r.Method, "path", r.URL.Path)

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, nil, ErrParse, "Parse error")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		h.writeError(w, req.ID, ErrInvalidRequest, "Invalid request")
		return
	}

	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// JSON-RPC errors travel with HTTP 200.
func (h *Handler) writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := makeErrorResponse(id, code, message)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
