package client_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

type rpcRequest struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Session string          `json:"-"`
}

// fakeBackend records every JSON-RPC request and answers through respond.
type fakeBackend struct {
	*httptest.Server

	mu       sync.Mutex
	requests []rpcRequest
	respond  func(w http.ResponseWriter, req rpcRequest)
}

func newFakeBackend(respond func(w http.ResponseWriter, req rpcRequest)) *fakeBackend {
	fb := &fakeBackend{respond: respond}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		req.Session = r.Header.Get("Mcp-Session-Id")

		fb.mu.Lock()
		fb.requests = append(fb.requests, req)
		respond := fb.respond
		fb.mu.Unlock()

		respond(w, req)
	}))
	return fb
}

func (fb *fakeBackend) setRespond(respond func(w http.ResponseWriter, req rpcRequest)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.respond = respond
}

func (fb *fakeBackend) Requests() []rpcRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]rpcRequest, len(fb.requests))
	copy(out, fb.requests)
	return out
}

func (fb *fakeBackend) Count(method string) int {
	n := 0
	for _, r := range fb.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (fb *fakeBackend) Endpoint() string {
	return fb.URL + "/mcp"
}

func writeResult(w http.ResponseWriter, id int64, result string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result)
}

func writeSSEResult(w http.ResponseWriter, id int64, result string) {
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":%d,\"result\":%s}\n\n", id, result)
}

func writeRPCError(w http.ResponseWriter, id int64, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%q}}`, id, code, message)
}
