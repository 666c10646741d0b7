package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/gateway"
	"github.com/angeloszaimis/mcp-gateway/internal/validator"
)

// JSON-RPC error codes returned to callers.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32002
	CodeCircuitOpen    = -32003
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

var nullID = json.RawMessage("null")

func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeRPC(w, nullID, nil, &rpcError{Code: CodeParseError, Message: "could not read request body"})
		return
	}

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
		writeRPC(w, nullID, nil, &rpcError{Code: CodeInvalidRequest, Message: "batch requests are not supported"})
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPC(w, nullID, nil, &rpcError{Code: CodeParseError, Message: "parse error: " + err.Error()})
		return
	}

	id := req.ID
	if len(id) == 0 {
		id = nullID
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(w, id, nil, &rpcError{Code: CodeInvalidRequest, Message: `request must carry jsonrpc "2.0" and a method`})
		return
	}

	// Notifications get no response body.
	if len(req.ID) == 0 {
		h.requestLogger(r).Debug("notification received", slog.String("method", req.Method))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	result, rpcErr := h.dispatch(r.Context(), h.requestLogger(r), req)
	writeRPC(w, id, result, rpcErr)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return buf.Bytes(), err
}

func (h *Handler) dispatch(ctx context.Context, log *slog.Logger, req rpcRequest) (any, *rpcError) {
	if !validator.Supports(req.Method) {
		return nil, &rpcError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	parsed, res := validator.Parse(req.Method, req.Params)
	if !res.Valid {
		log.Warn("rejected invalid request",
			slog.String("method", req.Method),
			slog.Any("errors", res.Errors))
		return nil, &rpcError{
			Code:    CodeInvalidParams,
			Message: "invalid params",
			Data:    map[string]any{"errors": res.Errors},
		}
	}

	agg := h.gateway.Aggregator

	var (
		result any
		err    error
	)
	switch p := parsed.(type) {
	case validator.Initialize:
		result = h.initializeResult()
	case validator.Ping:
		result = struct{}{}
	case validator.ListTools:
		result = &mcp.ListToolsResult{Tools: agg.ListTools(ctx)}
	case validator.ListResources:
		result = &mcp.ListResourcesResult{Resources: agg.ListResources(ctx)}
	case validator.ListPrompts:
		result = &mcp.ListPromptsResult{Prompts: agg.ListPrompts(ctx)}
	case validator.ToolCall:
		result, err = agg.CallTool(ctx, p.Name, p.Arguments)
	case validator.ResourceRead:
		result, err = agg.ReadResource(ctx, p.URI)
	case validator.PromptGet:
		result, err = agg.GetPrompt(ctx, p.Name, p.Arguments)
	}

	if err != nil {
		log.Warn("request failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
		return nil, toRPCError(err)
	}
	return result, nil
}

func (h *Handler) initializeResult() *mcp.InitializeResult {
	return &mcp.InitializeResult{
		ProtocolVersion: h.gateway.Config.Client.ProtocolVersion,
		Capabilities: &mcp.ServerCapabilities{
			Tools:     &mcp.ToolCapabilities{},
			Resources: &mcp.ResourceCapabilities{},
			Prompts:   &mcp.PromptCapabilities{},
		},
		ServerInfo: &mcp.Implementation{
			Name:    gateway.ServerName,
			Version: h.gateway.Version,
		},
	}
}

// toRPCError maps the error taxonomy onto JSON-RPC error objects. Backend
// RPC errors pass through with their own code.
func toRPCError(err error) *rpcError {
	var (
		vErr    *apperr.ValidationError
		nfErr   *apperr.NotFoundError
		openErr *apperr.CircuitOpenError
		rpcErr  *apperr.RPCError
	)

	switch {
	case errors.As(err, &vErr):
		return &rpcError{Code: CodeInvalidParams, Message: "invalid params", Data: map[string]any{"errors": vErr.Problems}}
	case errors.As(err, &nfErr):
		return &rpcError{Code: CodeNotFound, Message: err.Error()}
	case errors.As(err, &openErr):
		return &rpcError{
			Code:    CodeCircuitOpen,
			Message: err.Error(),
			Data:    map[string]any{"retryAfterMs": openErr.RetryAfter.Milliseconds()},
		}
	case errors.As(err, &rpcErr):
		out := &rpcError{Code: rpcErr.Code, Message: rpcErr.Message}
		if len(rpcErr.Data) > 0 {
			out.Data = rpcErr.Data
		}
		return out
	default:
		return &rpcError{Code: CodeInternalError, Message: err.Error()}
	}
}

func writeRPC(w http.ResponseWriter, id json.RawMessage, result any, rpcErr *rpcError) {
	resp := rpcResponse{JSONRPC: "2.0", ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeJSON(w, http.StatusOK, resp)
}
