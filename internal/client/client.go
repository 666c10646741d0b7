package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

// DefaultListTimeout bounds capability discovery per backend so one slow
// backend cannot stall a gateway-wide list.
const DefaultListTimeout = 5 * time.Second

const maxListPages = 20

type Options struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	ListTimeout     time.Duration
	HealthTimeout   time.Duration
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	SessionTTL      time.Duration
	Retry           RetryPolicy
	// HTTPClient replaces the client built from ConnectTimeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.ListTimeout <= 0 {
		o.ListTimeout = DefaultListTimeout
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = 5 * time.Second
	}
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = "2025-03-26"
	}
	if o.ClientName == "" {
		o.ClientName = "mcp-gateway"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "1.0.0"
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

// Target identifies the backend a call is sent to.
type Target struct {
	ID              string
	Endpoint        string
	Transport       registry.Transport
	RequiresSession bool
}

func TargetFor(reg registry.Registration) Target {
	return Target{
		ID:              reg.ID,
		Endpoint:        reg.Endpoint,
		Transport:       reg.Transport,
		RequiresSession: reg.RequiresSession,
	}
}

// sessionKey is the backend id for stateful backends and empty otherwise,
// which makes SendJSONRPC skip session handling.
func (t Target) sessionKey() string {
	if t.RequiresSession {
		return t.ID
	}
	return ""
}

func (t Target) check() error {
	if t.Transport == registry.TransportStdio {
		return &apperr.TransportError{Endpoint: t.Endpoint, Reason: "stdio transport is not supported by the HTTP client"}
	}
	return nil
}

// Client executes JSON-RPC calls against backends. It is safe for
// concurrent use.
type Client struct {
	opts     Options
	http     *http.Client
	sessions *sessionStore
	nextID   atomic.Int64
	logger   *slog.Logger
}

func New(opts Options) *Client {
	opts = opts.withDefaults()

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		transport.TLSHandshakeTimeout = opts.ConnectTimeout
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		opts:     opts,
		http:     httpClient,
		sessions: newSessionStore(opts.SessionTTL),
		logger:   logger.Component(opts.Logger, "client"),
	}
}

func (c *Client) ListTools(ctx context.Context, t Target) ([]*mcp.Tool, error) {
	var tools []*mcp.Tool
	err := c.paginate(ctx, t, "tools/list", func(raw json.RawMessage) (string, error) {
		var page mcp.ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", &apperr.ProtocolError{Endpoint: t.Endpoint, Reason: "malformed tools/list result: " + err.Error()}
		}
		tools = append(tools, page.Tools...)
		return page.NextCursor, nil
	})
	return tools, err
}

func (c *Client) ListResources(ctx context.Context, t Target) ([]*mcp.Resource, error) {
	var resources []*mcp.Resource
	err := c.paginate(ctx, t, "resources/list", func(raw json.RawMessage) (string, error) {
		var page mcp.ListResourcesResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", &apperr.ProtocolError{Endpoint: t.Endpoint, Reason: "malformed resources/list result: " + err.Error()}
		}
		resources = append(resources, page.Resources...)
		return page.NextCursor, nil
	})
	return resources, err
}

func (c *Client) ListPrompts(ctx context.Context, t Target) ([]*mcp.Prompt, error) {
	var prompts []*mcp.Prompt
	err := c.paginate(ctx, t, "prompts/list", func(raw json.RawMessage) (string, error) {
		var page mcp.ListPromptsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", &apperr.ProtocolError{Endpoint: t.Endpoint, Reason: "malformed prompts/list result: " + err.Error()}
		}
		prompts = append(prompts, page.Prompts...)
		return page.NextCursor, nil
	})
	return prompts, err
}

// paginate follows nextCursor with the list timeout on every page. List
// calls are not retried.
func (c *Client) paginate(ctx context.Context, t Target, method string, page func(json.RawMessage) (string, error)) error {
	if err := t.check(); err != nil {
		return err
	}

	cursor := ""
	for i := 0; i < maxListPages; i++ {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}

		raw, err := c.SendJSONRPC(ctx, Call{
			Endpoint:  t.Endpoint,
			Method:    method,
			Params:    params,
			Timeout:   c.opts.ListTimeout,
			BackendID: t.sessionKey(),
		})
		if err != nil {
			return err
		}

		next, err := page(raw)
		if err != nil {
			return err
		}
		if next == "" || next == cursor {
			return nil
		}
		cursor = next
	}

	c.logger.Warn("stopped following list cursor",
		slog.String("backend", t.ID),
		slog.String("method", method),
		slog.Int("pages", maxListPages))
	return nil
}

// CallTool invokes tools/call with retries and returns the raw result.
func (c *Client) CallTool(ctx context.Context, t Target, name string, args map[string]any) (json.RawMessage, error) {
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return c.callWithRetry(ctx, t, "tools/call", params)
}

func (c *Client) ReadResource(ctx context.Context, t Target, uri string) (json.RawMessage, error) {
	return c.callWithRetry(ctx, t, "resources/read", map[string]any{"uri": uri})
}

func (c *Client) GetPrompt(ctx context.Context, t Target, name string, args map[string]any) (json.RawMessage, error) {
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return c.callWithRetry(ctx, t, "prompts/get", params)
}

func (c *Client) callWithRetry(ctx context.Context, t Target, method string, params any) (json.RawMessage, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	var result json.RawMessage
	err := c.RetryRequest(ctx, func() error {
		raw, err := c.SendJSONRPC(ctx, Call{
			Endpoint:  t.Endpoint,
			Method:    method,
			Params:    params,
			BackendID: t.sessionKey(),
		})
		if err != nil {
			return err
		}
		result = raw
		return nil
	})
	return result, err
}
