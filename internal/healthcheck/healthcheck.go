package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/metrics"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

// Checker probes a single backend.
type Checker interface {
	CheckHealth(ctx context.Context, reg registry.Registration) registry.Health
}

type EventSink interface {
	Emit(event metrics.MetricEvent)
}

type Prober struct {
	registry *registry.Registry
	checker  Checker
	interval time.Duration
	events   EventSink
	logger   *slog.Logger
}

const DefaultInterval = 30 * time.Second

func NewProber(reg *registry.Registry, checker Checker, interval time.Duration, events EventSink, l *slog.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Prober{
		registry: reg,
		checker:  checker,
		interval: interval,
		events:   events,
		logger:   logger.Component(l, "healthcheck"),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("health prober started", slog.Duration("interval", p.interval))

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("health prober stopped")
			return

		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Prober) sweep(ctx context.Context) {
	if err := p.CheckAll(ctx); err != nil {
		p.logger.Debug("health sweep finished with unhealthy backends", slog.String("error", err.Error()))
	}
}

// CheckAll probes every registered backend in parallel and records the
// results. The returned error lists the backends that are not HEALTHY.
func (p *Prober) CheckAll(ctx context.Context) error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		result *multierror.Error
	)

	for _, srv := range p.registry.ListServers() {
		g.Go(func() error {
			if err := p.Check(ctx, srv); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return result.ErrorOrNil()
}

// Check probes one backend and stores its health. It returns an error when
// the backend is not HEALTHY.
func (p *Prober) Check(ctx context.Context, srv registry.Registration) error {
	if srv.Transport == registry.TransportStdio {
		return nil
	}

	health := p.checker.CheckHealth(ctx, srv)

	if err := p.registry.UpdateHealth(srv.ID, health); err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			// Unregistered while the probe was in flight.
			return nil
		}
		return err
	}

	previous := registry.StatusUnknown
	if srv.Health != nil {
		previous = srv.Health.Status
	}
	p.logTransition(srv.ID, previous, health)

	if p.events != nil {
		p.events.Emit(metrics.MetricEvent{
			Type:     metrics.EventHealthChanged,
			Backend:  srv.ID,
			Duration: health.Latency,
			Health:   string(health.Status),
		})
	}

	if health.Status != registry.StatusHealthy {
		return fmt.Errorf("%s is %s: %s", srv.ID, health.Status, health.Error)
	}
	return nil
}

func (p *Prober) logTransition(id string, previous registry.HealthStatus, health registry.Health) {
	if previous == health.Status {
		return
	}

	attrs := []any{
		slog.String("backend", id),
		slog.String("from", string(previous)),
		slog.String("to", string(health.Status)),
	}

	switch health.Status {
	case registry.StatusHealthy:
		p.logger.Info("backend is healthy", attrs...)
	default:
		attrs = append(attrs,
			slog.Int("consecutive_failures", health.ConsecutiveFailures),
			slog.String("error", health.Error))
		p.logger.Warn("backend health degraded", attrs...)
	}
}
