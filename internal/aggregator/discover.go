package aggregator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/angeloszaimis/mcp-gateway/internal/client"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
)

// Discover lists the capabilities of one backend and re-indexes it. A kind
// whose list call fails keeps its previous entries; the failures are
// returned together.
func (a *Aggregator) Discover(ctx context.Context, backendID string) (registry.Capabilities, error) {
	srv, err := a.registry.GetServer(backendID)
	if err != nil {
		return registry.Capabilities{}, err
	}

	target := client.TargetFor(srv)
	caps := srv.Capabilities
	var result *multierror.Error

	if tools, err := a.client.ListTools(ctx, target); err != nil {
		result = multierror.Append(result, fmt.Errorf("list tools: %w", err))
	} else {
		caps.Tools = caps.Tools[:0:0]
		for _, t := range tools {
			if t != nil {
				caps.Tools = append(caps.Tools, t.Name)
			}
		}
	}

	if resources, err := a.client.ListResources(ctx, target); err != nil {
		result = multierror.Append(result, fmt.Errorf("list resources: %w", err))
	} else {
		caps.Resources = caps.Resources[:0:0]
		for _, r := range resources {
			if r != nil {
				caps.Resources = append(caps.Resources, r.URI)
			}
		}
	}

	if prompts, err := a.client.ListPrompts(ctx, target); err != nil {
		result = multierror.Append(result, fmt.Errorf("list prompts: %w", err))
	} else {
		caps.Prompts = caps.Prompts[:0:0]
		for _, p := range prompts {
			if p != nil {
				caps.Prompts = append(caps.Prompts, p.Name)
			}
		}
	}

	if err := a.registry.UpdateCapabilities(backendID, caps); err != nil {
		return registry.Capabilities{}, err
	}

	a.logger.Info("capabilities discovered",
		slog.String("backend", backendID),
		slog.Int("tools", len(caps.Tools)),
		slog.Int("resources", len(caps.Resources)),
		slog.Int("prompts", len(caps.Prompts)))

	return caps, result.ErrorOrNil()
}

// DiscoverAll runs Discover for every registered backend in turn and
// returns the combined failures.
func (a *Aggregator) DiscoverAll(ctx context.Context) error {
	var result *multierror.Error
	for _, srv := range a.registry.ListServers() {
		if srv.Transport == registry.TransportStdio {
			continue
		}
		if _, err := a.Discover(ctx, srv.ID); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", srv.ID, err))
		}
	}
	return result.ErrorOrNil()
}
