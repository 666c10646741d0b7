// Package handler is the gateway's inbound HTTP surface.
//
// POST /mcp takes JSON-RPC 2.0 requests and routes them through the
// validator to the aggregator. /servers registers, lists and removes
// backends; /health and /metrics report gateway state. Every request gets a
// request id that is echoed in the X-Request-Id header and logged.
package handler
