package circuitbreaker

import (
	"sync"
	"time"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // Probing for recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the thresholds of one breaker.
type Config struct {
	// FailureThreshold failures inside MonitorWindow open the circuit.
	FailureThreshold int
	// SuccessThreshold consecutive successes in HALF_OPEN close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// MonitorWindow is the longest gap between failures that still counts
	// them as a streak.
	MonitorWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MonitorWindow:    60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold < 1 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MonitorWindow <= 0 {
		c.MonitorWindow = def.MonitorWindow
	}
	return c
}

// Status is a point-in-time view of a breaker.
type Status struct {
	State        State `json:"state"`
	FailureCount int   `json:"failureCount"`
	SuccessCount int   `json:"successCount"`
	IsHealthy    bool  `json:"isHealthy"`
}

type CircuitBreaker struct {
	mutex       sync.Mutex
	name        string
	config      Config
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	openedAt    time.Time
	now         func() time.Time
}

func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		state:  StateClosed,
		now:    time.Now,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs operation unless the circuit is open. The operation's error
// is recorded and returned unchanged; a call rejected by an open circuit
// returns *apperr.CircuitOpenError without invoking operation.
func (cb *CircuitBreaker) Execute(operation func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	if err := operation(); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	elapsed := cb.now().Sub(cb.openedAt)
	if elapsed < cb.config.Timeout {
		return &apperr.CircuitOpenError{
			Name:       cb.name,
			RetryAfter: cb.config.Timeout - elapsed,
		}
	}

	cb.state = StateHalfOpen
	cb.successes = 0
	return nil
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.trip(now)
	case StateClosed:
		if !cb.lastFailure.IsZero() && now.Sub(cb.lastFailure) > cb.config.MonitorWindow {
			cb.failures = 1
		} else {
			cb.failures++
		}
		if cb.failures >= cb.config.FailureThreshold {
			cb.trip(now)
		}
	case StateOpen:
		cb.failures++
	}

	cb.lastFailure = now
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.resetLocked()
		}
	case StateClosed:
		cb.failures = 0
	}
}

// trip opens the circuit and re-arms its timeout. Callers hold the mutex.
func (cb *CircuitBreaker) trip(now time.Time) {
	cb.state = StateOpen
	cb.openedAt = now
	cb.successes = 0
}

func (cb *CircuitBreaker) resetLocked() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.lastFailure = time.Time{}
	cb.openedAt = time.Time{}
}

// Reset closes the circuit and zeroes its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.resetLocked()
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Status() Status {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Status{
		State:        cb.state,
		FailureCount: cb.failures,
		SuccessCount: cb.successes,
		IsHealthy:    cb.state == StateClosed,
	}
}
