// Package mcptest provides an in-process MCP backend for tests.
package mcptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type callParams struct {
	Name      string         `json:"name"`
	URI       string         `json:"uri"`
	Arguments map[string]any `json:"arguments"`
}

// Server answers the JSON-RPC methods the gateway sends and serves /health.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	tools        []*mcp.Tool
	resources    []*mcp.Resource
	prompts      []*mcp.Prompt
	healthStatus int
	failCalls    bool
	useSSE       bool
	sessions     bool
	calls        map[string]int
	lastArgs     map[string]any
}

func NewServer() *Server {
	s := NewUnstartedServer()
	s.Start()
	return s
}

// NewUnstartedServer returns a server whose listener can be replaced before
// Start is called.
func NewUnstartedServer() *Server {
	s := &Server{healthStatus: http.StatusOK, calls: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /mcp", s.handleRPC)
	s.Server = httptest.NewUnstartedServer(mux)
	return s
}

func (s *Server) Endpoint() string {
	return s.URL + "/mcp"
}

func (s *Server) AddTool(name, description string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = append(s.tools, &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: map[string]any{"type": "object"},
	})
	return s
}

func (s *Server) AddResource(uri, name string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, &mcp.Resource{URI: uri, Name: name})
	return s
}

func (s *Server) AddPrompt(name string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, &mcp.Prompt{Name: name})
	return s
}

func (s *Server) SetHealthStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = code
}

// FailCalls makes every call answer 500 when fail is true.
func (s *Server) FailCalls(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCalls = fail
}

// UseSSE switches responses to a single event-stream record.
func (s *Server) UseSSE(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useSSE = on
}

// RequireSessions makes the server issue a session on initialize and
// reject calls without one.
func (s *Server) RequireSessions(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = on
}

func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Server) LastArguments() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastArgs
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	code := s.healthStatus
	s.mu.Unlock()
	w.WriteHeader(code)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "parse error", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Method]++

	if req.Method == "initialize" {
		if s.sessions {
			w.Header().Set("Mcp-Session-Id", uuid.NewString())
		}
		s.reply(w, req.ID, map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"serverInfo":      map[string]any{"name": "mcptest", "version": "0.0.0"},
		})
		return
	}

	if s.sessions && r.Header.Get("Mcp-Session-Id") == "" {
		http.Error(w, "Bad Request: No valid session ID provided", http.StatusBadRequest)
		return
	}

	var params callParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}

	switch req.Method {
	case "tools/list":
		s.reply(w, req.ID, mcp.ListToolsResult{Tools: s.tools})
	case "resources/list":
		s.reply(w, req.ID, mcp.ListResourcesResult{Resources: s.resources})
	case "prompts/list":
		s.reply(w, req.ID, mcp.ListPromptsResult{Prompts: s.prompts})
	case "tools/call", "resources/read", "prompts/get":
		if s.failCalls {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.lastArgs = params.Arguments
		target := params.Name
		if req.Method == "resources/read" {
			target = params.URI
		}
		s.reply(w, req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": fmt.Sprintf("%s %s", req.Method, target)}},
		})
	default:
		s.replyError(w, req.ID, -32601, "Method not found")
	}
}

func (s *Server) reply(w http.ResponseWriter, id json.RawMessage, result any) {
	s.write(w, map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *Server) replyError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.write(w, map[string]any{"jsonrpc": "2.0", "id": id, "error": map[string]any{"code": code, "message": message}})
}

func (s *Server) write(w http.ResponseWriter, envelope map[string]any) {
	body, err := json.Marshal(envelope)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.useSSE {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
