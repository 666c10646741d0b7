package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/angeloszaimis/mcp-gateway/config"
	"github.com/angeloszaimis/mcp-gateway/internal/aggregator"
	"github.com/angeloszaimis/mcp-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/mcp-gateway/internal/client"
	"github.com/angeloszaimis/mcp-gateway/internal/healthcheck"
	"github.com/angeloszaimis/mcp-gateway/internal/metrics"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

const (
	ServerName        = "mcp-gateway"
	metricsBufferSize = 1000
)

type Gateway struct {
	Config     *config.Config
	Version    string
	Registry   *registry.Registry
	Breakers   *circuitbreaker.Registry
	Client     *client.Client
	Aggregator *aggregator.Aggregator
	Metrics    *metrics.Collector
	Prober     *healthcheck.Prober

	startedAt time.Time
	logger    *slog.Logger
}

// New builds a gateway from cfg and registers its static backends.
func New(cfg *config.Config, version string, l *slog.Logger) (*Gateway, error) {
	if l == nil {
		l = slog.Default()
	}

	collector := metrics.NewCollector(metricsBufferSize, l)

	c := client.New(client.Options{
		ConnectTimeout:  cfg.Client.ConnectTimeout,
		ReadTimeout:     cfg.Client.ReadTimeout,
		ListTimeout:     cfg.Client.ListTimeout,
		HealthTimeout:   cfg.HealthCheck.Timeout,
		ProtocolVersion: cfg.Client.ProtocolVersion,
		ClientName:      ServerName,
		ClientVersion:   version,
		SessionTTL:      cfg.Session.TTL,
		Retry: client.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		Logger: l,
	})

	reg := registry.New()
	breakers := circuitbreaker.NewRegistry()

	agg := aggregator.New(reg, breakers, c, aggregator.Options{
		Namespacer: aggregator.NewNamespacer(cfg.Namespace.Aliases, cfg.Namespace.StripSuffix),
		Breaker:    BreakerConfig(cfg.CircuitBreaker),
		Events:     collector,
		Logger:     l,
	})

	g := &Gateway{
		Config:     cfg,
		Version:    version,
		Registry:   reg,
		Breakers:   breakers,
		Client:     c,
		Aggregator: agg,
		Metrics:    collector,
		Prober:     healthcheck.NewProber(reg, c, cfg.HealthCheck.Interval, collector, l),
		startedAt:  time.Now(),
		logger:     logger.Component(l, "gateway"),
	}

	if err := g.registerStatic(cfg.Backends); err != nil {
		return nil, err
	}

	return g, nil
}

func BreakerConfig(c config.CircuitBreakerConfig) circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		Timeout:          c.Timeout,
		MonitorWindow:    c.MonitorWindow,
	}
}

// RegistrationFromConfig converts a static backend entry.
func RegistrationFromConfig(b config.BackendConfig) registry.Registration {
	return registry.Registration{
		ID:              b.ID,
		Name:            b.Name,
		Endpoint:        b.Endpoint,
		Transport:       registry.Transport(b.Transport),
		Priority:        b.Priority,
		RequiresSession: b.RequiresSession,
		Capabilities: registry.Capabilities{
			Tools:     b.Tools,
			Resources: b.Resources,
			Prompts:   b.Prompts,
		},
	}
}

func (g *Gateway) registerStatic(backends []config.BackendConfig) error {
	var result *multierror.Error
	for _, b := range backends {
		if _, err := g.Registry.Register(RegistrationFromConfig(b)); err != nil {
			result = multierror.Append(result, fmt.Errorf("backend %q: %w", b.ID, err))
			continue
		}
		g.logger.Info("registered static backend",
			slog.String("backend", b.ID),
			slog.String("endpoint", b.Endpoint))
	}
	return result.ErrorOrNil()
}

// Start runs the metrics collector, the health prober and an initial
// discovery of static backends. All of them stop with ctx.
func (g *Gateway) Start(ctx context.Context) {
	g.Metrics.Start(ctx)
	go g.Prober.Run(ctx)

	go func() {
		if err := g.Aggregator.DiscoverAll(ctx); err != nil {
			g.logger.Warn("initial discovery incomplete", slog.String("error", err.Error()))
		}
	}()
}

// RegisterBackend adds or replaces a backend and discovers its capabilities.
// Discovery failures are logged; the registration stands.
func (g *Gateway) RegisterBackend(ctx context.Context, reg registry.Registration) (registry.Registration, error) {
	stored, err := g.Registry.Register(reg)
	if err != nil {
		return registry.Registration{}, err
	}

	g.Breakers.Remove(stored.ID)
	g.Client.ForgetSession(stored.ID)

	g.logger.Info("backend registered",
		slog.String("backend", stored.ID),
		slog.String("endpoint", stored.Endpoint),
		slog.String("transport", string(stored.Transport)))

	if stored.Transport == registry.TransportStdio {
		return stored, nil
	}

	if _, err := g.Aggregator.Discover(ctx, stored.ID); err != nil {
		g.logger.Warn("capability discovery failed",
			slog.String("backend", stored.ID),
			slog.String("error", err.Error()))
	}

	if updated, err := g.Registry.GetServer(stored.ID); err == nil {
		stored = updated
	}
	return stored, nil
}

// UnregisterBackend removes a backend with its breaker, session and metrics.
func (g *Gateway) UnregisterBackend(id string) error {
	if err := g.Registry.Unregister(id); err != nil {
		return err
	}

	g.Breakers.Remove(id)
	g.Client.ForgetSession(id)
	g.Metrics.Emit(metrics.MetricEvent{Type: metrics.EventBackendRemoved, Backend: id})

	g.logger.Info("backend unregistered", slog.String("backend", id))
	return nil
}

type HealthReport struct {
	Status   string                           `json:"status"`
	Version  string                           `json:"version"`
	Uptime   string                           `json:"uptime"`
	Backends []registry.Registration          `json:"backends"`
	Breakers map[string]circuitbreaker.Status `json:"breakers"`
}

// Health reports "ok" when every backend is eligible for fan-out and no
// breaker is open, and "degraded" otherwise.
func (g *Gateway) Health() HealthReport {
	report := HealthReport{
		Status:   "ok",
		Version:  g.Version,
		Uptime:   time.Since(g.startedAt).Round(time.Second).String(),
		Backends: g.Registry.ListServers(),
		Breakers: g.Breakers.GetAllStatuses(),
	}

	for _, srv := range report.Backends {
		if srv.Health != nil && !srv.Health.Status.Eligible() {
			report.Status = "degraded"
		}
	}
	for _, st := range report.Breakers {
		if !st.IsHealthy {
			report.Status = "degraded"
		}
	}
	return report
}
