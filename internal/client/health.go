package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angeloszaimis/mcp-gateway/internal/registry"
)

var rpcPathSuffixes = []string{"/mcp", "/sse"}

// HealthURL derives a backend's health endpoint from its JSON-RPC endpoint:
// a trailing /mcp or /sse is replaced by /health.
func HealthURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	path := strings.TrimRight(u.Path, "/")
	for _, suffix := range rpcPathSuffixes {
		if strings.HasSuffix(path, suffix) {
			path = strings.TrimSuffix(path, suffix)
			break
		}
	}

	u.Path = path + "/health"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// CheckHealth probes the backend and returns its new health. A 2xx answer is
// HEALTHY, any other answer DEGRADED and no answer DOWN; failures extend the
// previous consecutive failure count.
func (c *Client) CheckHealth(ctx context.Context, reg registry.Registration) registry.Health {
	prevFailures := 0
	if reg.Health != nil {
		prevFailures = reg.Health.ConsecutiveFailures
	}

	start := time.Now()
	failed := func(status registry.HealthStatus, reason string) registry.Health {
		return registry.Health{
			Status:              status,
			LastCheck:           time.Now(),
			Latency:             time.Since(start),
			ConsecutiveFailures: prevFailures + 1,
			Error:               reason,
		}
	}

	if reg.Transport == registry.TransportStdio {
		return registry.Health{Status: registry.StatusUnknown, LastCheck: time.Now(), Error: "stdio backends are not probed"}
	}

	target, err := HealthURL(reg.Endpoint)
	if err != nil {
		return failed(registry.StatusDown, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return failed(registry.StatusDown, err.Error())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return failed(registry.StatusDown, err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(registry.StatusDegraded, fmt.Sprintf("health endpoint returned status %d", resp.StatusCode))
	}

	return registry.Health{
		Status:    registry.StatusHealthy,
		LastCheck: time.Now(),
		Latency:   time.Since(start),
	}
}
