package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
)

// SessionHeader carries the backend-issued session token.
const SessionHeader = "Mcp-Session-Id"

const maxResponseBytes = 16 << 20

// Call describes one JSON-RPC request.
type Call struct {
	Endpoint string
	Method   string
	Params   any
	// Timeout bounds the attempt; zero uses the configured read timeout.
	Timeout time.Duration
	// BackendID enables session handling for the call when set.
	BackendID string
}

type requestEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type responseEnvelope struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *apperr.RPCError `json:"error"`
}

// sessionExpiredError signals a 400 whose body mentions the session. It never
// leaves this package.
type sessionExpiredError struct {
	endpoint string
	body     string
}

func (e *sessionExpiredError) Error() string {
	return fmt.Sprintf("session expired at %s: %s", e.endpoint, e.body)
}

type httpReply struct {
	header http.Header
	body   []byte
}

// SendJSONRPC posts one request and returns the result member of the
// response. When call.BackendID is set the cached session is attached, and a
// session-expired reply triggers one re-initialize and one retry.
func (c *Client) SendJSONRPC(ctx context.Context, call Call) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	session := ""
	if call.BackendID != "" {
		session = c.GetSession(ctx, call.BackendID, call.Endpoint, call.Timeout)
	}

	reply, err := c.post(ctx, call, id, session)

	var expired *sessionExpiredError
	if errors.As(err, &expired) {
		if call.BackendID == "" {
			return nil, expired.asTransportError()
		}

		c.logger.Info("backend session expired, re-initializing",
			slog.String("backend", call.BackendID),
			slog.String("method", call.Method))

		c.sessions.drop(call.BackendID)
		session = c.InitializeSession(ctx, call.BackendID, call.Endpoint, call.Timeout)

		reply, err = c.post(ctx, call, id, session)
		if errors.As(err, &expired) {
			return nil, expired.asTransportError()
		}
	}
	if err != nil {
		return nil, err
	}

	return parseResponse(call.Endpoint, reply)
}

func (e *sessionExpiredError) asTransportError() error {
	return &apperr.TransportError{
		Endpoint:   e.endpoint,
		StatusCode: http.StatusBadRequest,
		Reason:     http.StatusText(http.StatusBadRequest),
		Cause:      e,
	}
}

// post performs a single HTTP attempt bounded by the call timeout.
func (c *Client) post(ctx context.Context, call Call, id int64, session string) (*httpReply, error) {
	payload, err := json.Marshal(requestEnvelope{
		JSONRPC: "2.0",
		ID:      id,
		Method:  call.Method,
		Params:  call.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", call.Method, err)
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = c.opts.ReadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &apperr.TransportError{Endpoint: call.Endpoint, Reason: "invalid request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Endpoint: call.Endpoint, Reason: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &apperr.TransportError{Endpoint: call.Endpoint, StatusCode: resp.StatusCode, Reason: "reading response body", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusBadRequest && mentionsSession(body) {
			return nil, &sessionExpiredError{endpoint: call.Endpoint, body: string(body)}
		}
		return nil, &apperr.TransportError{
			Endpoint:   call.Endpoint,
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
		}
	}

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", resp.Header.Get("Content-Type"))

	return &httpReply{header: header, body: body}, nil
}

func mentionsSession(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "session")
}

// parseResponse accepts a bare JSON-RPC envelope or an event stream whose
// first data line holds the envelope.
func parseResponse(endpoint string, reply *httpReply) (json.RawMessage, error) {
	payload := bytes.TrimSpace(reply.body)

	if isEventStream(reply.header.Get("Content-Type"), payload) {
		data, ok := firstDataLine(payload)
		if !ok {
			return nil, &apperr.ProtocolError{Endpoint: endpoint, Reason: "event stream carried no data line"}
		}
		payload = data
	}

	if len(payload) == 0 {
		return nil, &apperr.ProtocolError{Endpoint: endpoint, Reason: "empty response body"}
	}

	var env responseEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &apperr.ProtocolError{Endpoint: endpoint, Reason: "malformed JSON-RPC envelope: " + err.Error()}
	}

	if env.Error != nil {
		return nil, env.Error
	}

	if len(env.Result) == 0 {
		return nil, &apperr.ProtocolError{Endpoint: endpoint, Reason: "response has no result"}
	}

	return env.Result, nil
}

func isEventStream(contentType string, body []byte) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "text/event-stream") {
		return true
	}
	return bytes.HasPrefix(body, []byte("event:")) || bytes.HasPrefix(body, []byte("data:"))
}

func firstDataLine(body []byte) ([]byte, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			return []byte(strings.TrimSpace(data)), true
		}
	}
	return nil, false
}
