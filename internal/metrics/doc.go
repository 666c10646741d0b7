// Package metrics collects per-backend call metrics for the gateway.
//
// Call outcomes, circuit rejections and health changes are sent as events
// to a buffered channel and folded into the in-memory store by one
// goroutine, so emitting never blocks a request. When the buffer is full the
// event is dropped and counted.
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:      metrics.EventCallCompleted,
//		Backend:   "journey-service-mcp",
//		Operation: "tools/call",
//		Duration:  150 * time.Millisecond,
//		Outcome:   metrics.OutcomeSuccess,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
