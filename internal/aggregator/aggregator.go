package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/mcp-gateway/internal/client"
	"github.com/angeloszaimis/mcp-gateway/internal/metrics"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

// Client is the part of the backend client the aggregator drives.
type Client interface {
	ListTools(ctx context.Context, t client.Target) ([]*mcp.Tool, error)
	ListResources(ctx context.Context, t client.Target) ([]*mcp.Resource, error)
	ListPrompts(ctx context.Context, t client.Target) ([]*mcp.Prompt, error)
	CallTool(ctx context.Context, t client.Target, name string, args map[string]any) (json.RawMessage, error)
	ReadResource(ctx context.Context, t client.Target, uri string) (json.RawMessage, error)
	GetPrompt(ctx context.Context, t client.Target, name string, args map[string]any) (json.RawMessage, error)
}

// EventSink receives call metrics. Emit must not block.
type EventSink interface {
	Emit(event metrics.MetricEvent)
}

type Options struct {
	Namespacer *Namespacer
	Breaker    circuitbreaker.Config
	// FanOutLimit caps concurrent backend calls per list; zero is unlimited.
	FanOutLimit int
	Events      EventSink
	Logger      *slog.Logger
}

type Aggregator struct {
	registry    *registry.Registry
	breakers    *circuitbreaker.Registry
	client      Client
	namespacer  *Namespacer
	breakerCfg  circuitbreaker.Config
	fanOutLimit int
	events      EventSink
	logger      *slog.Logger
}

func New(reg *registry.Registry, breakers *circuitbreaker.Registry, c Client, opts Options) *Aggregator {
	ns := opts.Namespacer
	if ns == nil {
		ns = NewNamespacer(nil, "")
	}

	return &Aggregator{
		registry:    reg,
		breakers:    breakers,
		client:      c,
		namespacer:  ns,
		breakerCfg:  opts.Breaker,
		fanOutLimit: opts.FanOutLimit,
		events:      opts.Events,
		logger:      logger.Component(opts.Logger, "aggregator"),
	}
}

func (a *Aggregator) Namespacer() *Namespacer {
	return a.namespacer
}

// ListTools returns the namespaced tools of every eligible backend. Backends
// that fail are logged and left out.
func (a *Aggregator) ListTools(ctx context.Context) []*mcp.Tool {
	return fanOut(ctx, a, "tools/list", a.client.ListTools, func(srv registry.Registration, tool *mcp.Tool) *mcp.Tool {
		out := *tool
		out.Name = a.namespacer.Qualify(srv.ID, tool.Name)
		if out.Description == "" {
			out.Description = fmt.Sprintf("%s from %s", tool.Name, srv.DisplayName())
		}
		return &out
	})
}

// ListResources returns the resources of every eligible backend. URIs are
// already global and are not rewritten.
func (a *Aggregator) ListResources(ctx context.Context) []*mcp.Resource {
	return fanOut(ctx, a, "resources/list", a.client.ListResources, func(srv registry.Registration, res *mcp.Resource) *mcp.Resource {
		out := *res
		if out.Description == "" {
			out.Description = fmt.Sprintf("%s from %s", res.Name, srv.DisplayName())
		}
		return &out
	})
}

func (a *Aggregator) ListPrompts(ctx context.Context) []*mcp.Prompt {
	return fanOut(ctx, a, "prompts/list", a.client.ListPrompts, func(srv registry.Registration, prompt *mcp.Prompt) *mcp.Prompt {
		out := *prompt
		out.Name = a.namespacer.Qualify(srv.ID, prompt.Name)
		if out.Description == "" {
			out.Description = fmt.Sprintf("%s from %s", prompt.Name, srv.DisplayName())
		}
		return &out
	})
}

// fanOut lists one capability kind on every eligible HTTP backend in
// parallel and concatenates the results in registration order.
func fanOut[T any](
	ctx context.Context,
	a *Aggregator,
	operation string,
	list func(context.Context, client.Target) ([]*T, error),
	rewrite func(registry.Registration, *T) *T,
) []*T {
	var servers []registry.Registration
	for _, srv := range a.registry.ListHealthyServers() {
		// No client transport can reach a stdio backend.
		if srv.Transport == registry.TransportStdio {
			continue
		}
		servers = append(servers, srv)
	}
	results := make([][]*T, len(servers))

	var g errgroup.Group
	if a.fanOutLimit > 0 {
		g.SetLimit(a.fanOutLimit)
	}

	for i, srv := range servers {
		g.Go(func() error {
			start := time.Now()
			items, err := list(ctx, client.TargetFor(srv))
			a.emit(srv.ID, operation, time.Since(start), err)

			if err != nil {
				a.logger.Warn("backend list failed",
					slog.String("backend", srv.ID),
					slog.String("operation", operation),
					slog.String("error", err.Error()))
				return nil
			}

			out := make([]*T, 0, len(items))
			for _, item := range items {
				if item == nil {
					continue
				}
				out = append(out, rewrite(srv, item))
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var merged []*T
	for _, r := range results {
		merged = append(merged, r...)
	}
	if merged == nil {
		merged = []*T{}
	}
	return merged
}

// CallTool routes a namespaced tool call to its backend through the
// backend's breaker.
func (a *Aggregator) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	srv, local, err := a.resolveNamed(registry.KindTool, name)
	if err != nil {
		return nil, err
	}

	return a.execute(srv, "tools/call", func() (json.RawMessage, error) {
		return a.client.CallTool(ctx, client.TargetFor(srv), local, args)
	})
}

func (a *Aggregator) GetPrompt(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	srv, local, err := a.resolveNamed(registry.KindPrompt, name)
	if err != nil {
		return nil, err
	}

	return a.execute(srv, "prompts/get", func() (json.RawMessage, error) {
		return a.client.GetPrompt(ctx, client.TargetFor(srv), local, args)
	})
}

func (a *Aggregator) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	res, err := a.registry.ResolveResourceServer(uri)
	if err != nil {
		return nil, err
	}

	srv, err := a.registry.GetServer(res.BackendID)
	if err != nil {
		return nil, err
	}

	return a.execute(srv, "resources/read", func() (json.RawMessage, error) {
		return a.client.ReadResource(ctx, client.TargetFor(srv), uri)
	})
}

// resolveNamed maps a caller-visible "namespace.local" name to the owning
// backend and the name that backend knows the capability by.
func (a *Aggregator) resolveNamed(kind registry.CapabilityKind, name string) (registry.Registration, string, error) {
	namespace, local, ok := SplitName(name)
	if !ok {
		return registry.Registration{}, "", apperr.NewNotFoundError(kind.String(), name)
	}

	candidates := a.namespacer.Candidates(namespace, a.registry.ListServers())

	// The candidate whose index holds the name owns it. Only when none does
	// is the most specific candidate tried with the id prefix fallback.
	var res registry.Resolution
	found := false
	for _, id := range candidates {
		r, err := a.resolveKey(kind, registry.NamespacedKey(id, local))
		if err == nil && r.Via == registry.ViaIndex {
			res, found = r, true
			break
		}
	}
	if !found {
		r, err := a.resolveKey(kind, registry.NamespacedKey(candidates[0], local))
		if err != nil {
			return registry.Registration{}, "", apperr.NewNotFoundError(kind.String(), name)
		}
		res = r
	}

	srv, err := a.registry.GetServer(res.BackendID)
	if err != nil {
		return registry.Registration{}, "", err
	}
	return srv, local, nil
}

func (a *Aggregator) resolveKey(kind registry.CapabilityKind, key string) (registry.Resolution, error) {
	if kind == registry.KindPrompt {
		return a.registry.ResolvePromptServer(key)
	}
	return a.registry.ResolveToolServer(key)
}

func (a *Aggregator) execute(srv registry.Registration, operation string, call func() (json.RawMessage, error)) (json.RawMessage, error) {
	breaker := a.breakers.GetOrCreate(srv.ID, a.breakerCfg)

	var result json.RawMessage
	start := time.Now()
	err := breaker.Execute(func() error {
		raw, err := call()
		if err != nil {
			return err
		}
		result = raw
		return nil
	})
	a.emit(srv.ID, operation, time.Since(start), err)

	if err != nil {
		a.logger.Debug("backend call failed",
			slog.String("backend", srv.ID),
			slog.String("operation", operation),
			slog.String("error", err.Error()))
		return nil, err
	}
	return result, nil
}

func (a *Aggregator) emit(backendID, operation string, d time.Duration, err error) {
	if a.events == nil {
		return
	}
	a.events.Emit(metrics.MetricEvent{
		Type:      metrics.EventCallCompleted,
		Backend:   backendID,
		Operation: operation,
		Duration:  d,
		Outcome:   metrics.OutcomeOf(err),
	})
}
