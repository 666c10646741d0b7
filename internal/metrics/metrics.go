package metrics

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
)

const maxSamples = 1000

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRPCError       Outcome = "rpc_error"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeRejected       Outcome = "circuit_open"
	OutcomeError          Outcome = "error"
)

// OutcomeOf classifies the error a backend call ended with.
func OutcomeOf(err error) Outcome {
	var (
		openErr      *apperr.CircuitOpenError
		rpcErr       *apperr.RPCError
		transportErr *apperr.TransportError
	)

	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &openErr):
		return OutcomeRejected
	case errors.As(err, &rpcErr):
		return OutcomeRPCError
	case errors.As(err, &transportErr):
		return OutcomeTransportError
	default:
		return OutcomeError
	}
}

type Metrics struct {
	mutex         sync.RWMutex
	calls         map[string]int64
	failures      map[string]int64
	rejections    map[string]int64
	responseTimes map[string][]time.Duration
	outcomes      map[string]map[Outcome]int64
	operations    map[string]map[string]int64
	healthStatus  map[string]string
	dropped       int64
	startTime     time.Time
}

type Snapshot struct {
	TotalCalls    int64                     `json:"total_calls"`
	TotalFailures int64                     `json:"total_failures"`
	DroppedEvents int64                     `json:"dropped_events"`
	Uptime        time.Duration             `json:"uptime"`
	Backends      map[string]BackendMetrics `json:"backends"`
}

type BackendMetrics struct {
	Calls       int64             `json:"calls"`
	Failures    int64             `json:"failures"`
	Rejections  int64             `json:"circuit_rejections"`
	Health      string            `json:"health,omitempty"`
	AvgResponse time.Duration     `json:"avg_response"`
	P50Response time.Duration     `json:"p50_response"`
	P95Response time.Duration     `json:"p95_response"`
	P99Response time.Duration     `json:"p99_response"`
	Outcomes    map[Outcome]int64 `json:"outcomes"`
	Operations  map[string]int64  `json:"operations"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		calls:         make(map[string]int64),
		failures:      make(map[string]int64),
		rejections:    make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		outcomes:      make(map[string]map[Outcome]int64),
		operations:    make(map[string]map[string]int64),
		healthStatus:  make(map[string]string),
		startTime:     time.Now(),
	}
}

// RecordCall counts one completed backend call. Rejected calls never reached
// the backend, so they carry no latency sample.
func (m *Metrics) RecordCall(backend, operation string, duration time.Duration, outcome Outcome) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.calls[backend]++

	if m.operations[backend] == nil {
		m.operations[backend] = make(map[string]int64)
	}
	if operation != "" {
		m.operations[backend][operation]++
	}

	if m.outcomes[backend] == nil {
		m.outcomes[backend] = make(map[Outcome]int64)
	}
	m.outcomes[backend][outcome]++

	switch outcome {
	case OutcomeSuccess:
	case OutcomeRejected:
		m.rejections[backend]++
		return
	default:
		m.failures[backend]++
	}

	m.responseTimes[backend] = append(m.responseTimes[backend], duration)
	if len(m.responseTimes[backend]) > maxSamples {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}
}

func (m *Metrics) UpdateHealthStatus(backend, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[backend] = status
}

// Forget removes every series for a backend that left the gateway.
func (m *Metrics) Forget(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.calls, backend)
	delete(m.failures, backend)
	delete(m.rejections, backend)
	delete(m.responseTimes, backend)
	delete(m.outcomes, backend)
	delete(m.operations, backend)
	delete(m.healthStatus, backend)
}

func (m *Metrics) recordDropped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dropped++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		DroppedEvents: m.dropped,
		Uptime:        time.Since(m.startTime),
		Backends:      make(map[string]BackendMetrics),
	}

	allBackends := make(map[string]bool)
	for backend := range m.calls {
		allBackends[backend] = true
	}
	for backend := range m.healthStatus {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		snap.TotalCalls += m.calls[backend]
		snap.TotalFailures += m.failures[backend]

		bm := BackendMetrics{
			Calls:      m.calls[backend],
			Failures:   m.failures[backend],
			Rejections: m.rejections[backend],
			Health:     m.healthStatus[backend],
			Outcomes:   copyCounts(m.outcomes[backend]),
			Operations: copyCounts(m.operations[backend]),
		}

		durations := m.responseTimes[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func copyCounts[K comparable](in map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
