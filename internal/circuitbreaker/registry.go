package circuitbreaker

import (
	"sync"
)

// Registry lazily creates one breaker per backend id and keeps it for the
// life of the process.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for id, creating it with config on first
// use. Later calls return the same instance and ignore config.
func (r *Registry) GetOrCreate(id string, config Config) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[id]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[id]; exists {
		return cb
	}

	cb = NewCircuitBreaker(id, config)
	r.breakers[id] = cb
	return cb
}

func (r *Registry) Get(id string) (*CircuitBreaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	cb, exists := r.breakers[id]
	return cb, exists
}

// Remove forgets the breaker for a backend that left the gateway.
func (r *Registry) Remove(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.breakers, id)
}

// ResetAll closes every tracked breaker and zeroes its counters.
func (r *Registry) ResetAll() {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}

func (r *Registry) GetAllStatuses() map[string]Status {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	statuses := make(map[string]Status, len(r.breakers))
	for id, cb := range r.breakers {
		statuses[id] = cb.Status()
	}
	return statuses
}
