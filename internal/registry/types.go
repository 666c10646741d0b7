package registry

import (
	"slices"
	"time"
)

type Transport string

const (
	TransportHTTP  Transport = "http"
	TransportStdio Transport = "stdio"
)

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "HEALTHY"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusDown     HealthStatus = "DOWN"
	StatusUnknown  HealthStatus = "UNKNOWN"
)

// Eligible reports whether a backend in this status takes part in fan-out.
// Only DOWN backends are skipped; DEGRADED and not-yet-probed backends still
// answer and their breakers decide whether a call goes through.
func (s HealthStatus) Eligible() bool {
	return s != StatusDown
}

// Health is the latest health-check outcome for a backend.
type Health struct {
	Status              HealthStatus  `json:"status"`
	LastCheck           time.Time     `json:"lastCheck"`
	Latency             time.Duration `json:"latency"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Error               string        `json:"error,omitempty"`
}

// Capabilities lists the names a backend offers, in backend order.
type Capabilities struct {
	Tools     []string `json:"tools"`
	Resources []string `json:"resources"`
	Prompts   []string `json:"prompts"`
}

func (c Capabilities) clone() Capabilities {
	return Capabilities{
		Tools:     slices.Clone(c.Tools),
		Resources: slices.Clone(c.Resources),
		Prompts:   slices.Clone(c.Prompts),
	}
}

// Registration describes one backend known to the gateway.
type Registration struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Endpoint        string       `json:"endpoint"`
	Transport       Transport    `json:"transport"`
	Capabilities    Capabilities `json:"capabilities"`
	Priority        *int         `json:"priority,omitempty"`
	RequiresSession bool         `json:"requiresSession,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	Health          *Health      `json:"health,omitempty"`
}

// DisplayName returns the human-readable name, falling back to the id.
func (r Registration) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

func (r Registration) clone() Registration {
	out := r
	out.Capabilities = r.Capabilities.clone()
	if r.Priority != nil {
		p := *r.Priority
		out.Priority = &p
	}
	if r.Health != nil {
		h := *r.Health
		out.Health = &h
	}
	return out
}

// CapabilityKind selects one of the three capability indexes.
type CapabilityKind int

const (
	KindTool CapabilityKind = iota
	KindResource
	KindPrompt
)

func (k CapabilityKind) String() string {
	switch k {
	case KindTool:
		return "tool"
	case KindResource:
		return "resource"
	case KindPrompt:
		return "prompt"
	default:
		return "capability"
	}
}

// ResolvedVia records which resolution step found the backend.
type ResolvedVia int

const (
	ViaIndex ResolvedVia = iota
	ViaPrefix
)

// Resolution is the outcome of a successful name lookup.
type Resolution struct {
	BackendID string
	Via       ResolvedVia
}
