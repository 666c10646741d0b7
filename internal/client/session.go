package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/patrickmn/go-cache"
)

type sessionStore struct {
	cache *cache.Cache
}

// newSessionStore keeps tokens for ttl; a non-positive ttl keeps them until
// dropped.
func newSessionStore(ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		return &sessionStore{cache: cache.New(cache.NoExpiration, 0)}
	}
	return &sessionStore{cache: cache.New(ttl, 2*ttl)}
}

func (s *sessionStore) get(backendID string) (string, bool) {
	v, ok := s.cache.Get(backendID)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

func (s *sessionStore) set(backendID, token string) {
	s.cache.Set(backendID, token, cache.DefaultExpiration)
}

func (s *sessionStore) drop(backendID string) {
	s.cache.Delete(backendID)
}

// GetSession returns the cached session for a backend, initializing one when
// none is cached. An empty string means the backend issued no session.
func (c *Client) GetSession(ctx context.Context, backendID, endpoint string, timeout time.Duration) string {
	if token, ok := c.sessions.get(backendID); ok {
		return token
	}
	return c.InitializeSession(ctx, backendID, endpoint, timeout)
}

// InitializeSession performs the initialize handshake and caches the session
// token from the response header. Failures are logged and yield "".
func (c *Client) InitializeSession(ctx context.Context, backendID, endpoint string, timeout time.Duration) string {
	params := &mcp.InitializeParams{
		ProtocolVersion: c.opts.ProtocolVersion,
		Capabilities:    &mcp.ClientCapabilities{},
		ClientInfo: &mcp.Implementation{
			Name:    c.opts.ClientName,
			Version: c.opts.ClientVersion,
		},
	}

	reply, err := c.post(ctx, Call{
		Endpoint: endpoint,
		Method:   "initialize",
		Params:   params,
		Timeout:  timeout,
	}, c.nextID.Add(1), "")
	if err != nil {
		c.logger.Warn("session initialize failed",
			slog.String("backend", backendID),
			slog.String("error", err.Error()))
		return ""
	}

	token := reply.header.Get(SessionHeader)
	if token == "" {
		c.logger.Debug("backend issued no session", slog.String("backend", backendID))
		return ""
	}

	c.sessions.set(backendID, token)
	c.logger.Debug("session initialized", slog.String("backend", backendID))
	return token
}

// ForgetSession drops the cached session for a backend, if any.
func (c *Client) ForgetSession(backendID string) {
	c.sessions.drop(backendID)
}
