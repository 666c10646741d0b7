package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

type EventType string

const (
	EventCallCompleted  EventType = "call_completed"
	EventHealthChanged  EventType = "health_changed"
	EventBackendRemoved EventType = "backend_removed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Operation string
	Duration  time.Duration
	Outcome   Outcome
	Health    string
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, l *slog.Logger) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger.Component(l, "metrics"),
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues an event without blocking. A full buffer drops the event.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.metrics.recordDropped()
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("metrics collector started")
	defer c.logger.Info("metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventCallCompleted:
		c.metrics.RecordCall(event.Backend, event.Operation, event.Duration, event.Outcome)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Health)

	case EventBackendRemoved:
		c.metrics.Forget(event.Backend)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
