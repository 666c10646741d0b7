// Package client talks JSON-RPC 2.0 over HTTP to MCP backends.
//
// Responses may be plain JSON or a server-sent event stream; for streams the
// first data line holds the envelope. Backends that require a session get an
// initialize handshake first and the returned Mcp-Session-Id is cached and
// sent on every later call. Tool calls, resource reads and prompt fetches are
// retried with capped exponential backoff; list calls are not.
package client
