// Package circuitbreaker isolates failing backends.
//
// Each backend id gets its own breaker with three states:
//
//   - CLOSED: calls pass through; failures are counted
//   - OPEN: calls are rejected with *apperr.CircuitOpenError until the timeout elapses
//   - HALF_OPEN: calls pass through; enough successes close the circuit, any failure re-opens it
//
// Failures separated by more than the monitor window do not accumulate.
//
// Usage:
//
//	breakers := circuitbreaker.NewRegistry()
//	cb := breakers.GetOrCreate("weather", circuitbreaker.DefaultConfig())
//	err := cb.Execute(func() error {
//	    return callBackend(ctx)
//	})
package circuitbreaker
