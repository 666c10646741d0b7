package registry

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
)

// Separator joins a backend id and a capability name in index keys.
const Separator = "."

var backendIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NamespacedKey builds the index key for a tool or prompt.
func NamespacedKey(backendID, name string) string {
	return backendID + Separator + name
}

// Registry holds backend registrations and the capability index derived
// from them. Every method runs under one lock acquisition, so resolution
// never observes a half-applied registration.
type Registry struct {
	mutex   sync.RWMutex
	servers map[string]*Registration
	order   []string
	index   *capabilityIndex
	now     func() time.Time
}

func New() *Registry {
	return &Registry{
		servers: make(map[string]*Registration),
		index:   newCapabilityIndex(),
		now:     time.Now,
	}
}

// Register stores reg and indexes its capabilities, replacing any previous
// registration with the same id.
func (r *Registry) Register(reg Registration) (Registration, error) {
	stored := reg.clone()
	stored.ID = strings.TrimSpace(stored.ID)
	stored.Endpoint = strings.TrimSpace(stored.Endpoint)
	if stored.Transport == "" {
		stored.Transport = TransportHTTP
	}

	if err := validateRegistration(&stored); err != nil {
		return Registration{}, err
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}
	if stored.Health == nil {
		stored.Health = &Health{Status: StatusUnknown}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.servers[stored.ID]; exists {
		r.index.remove(stored.ID)
	} else {
		r.order = append(r.order, stored.ID)
	}

	r.servers[stored.ID] = &stored
	r.index.add(stored.ID, stored.Capabilities)

	return stored.clone(), nil
}

// Unregister removes a backend and every index entry it owns.
func (r *Registry) Unregister(id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.servers[id]; !exists {
		return apperr.NewNotFoundError("backend", id)
	}

	r.index.remove(id)
	delete(r.servers, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })

	return nil
}

func (r *Registry) GetServer(id string) (Registration, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	reg, exists := r.servers[id]
	if !exists {
		return Registration{}, apperr.NewNotFoundError("backend", id)
	}
	return reg.clone(), nil
}

// ListServers returns every registration in registration order.
func (r *Registry) ListServers() []Registration {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Registration, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.servers[id].clone())
	}
	return out
}

// ListHealthyServers returns the backends eligible for fan-out.
func (r *Registry) ListHealthyServers() []Registration {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Registration, 0, len(r.order))
	for _, id := range r.order {
		reg := r.servers[id]
		if reg.Health == nil || reg.Health.Status.Eligible() {
			out = append(out, reg.clone())
		}
	}
	return out
}

func (r *Registry) ResolveToolServer(name string) (Resolution, error) {
	return r.resolve(KindTool, name)
}

func (r *Registry) ResolvePromptServer(name string) (Resolution, error) {
	return r.resolve(KindPrompt, name)
}

// ResolveResourceServer looks up the literal resource URI. There is no
// prefix fallback for resources.
func (r *Registry) ResolveResourceServer(uri string) (Resolution, error) {
	return r.resolve(KindResource, uri)
}

// resolve tries the exact index key first and then, for tools and prompts,
// matches the part before the first separator against registered ids.
func (r *Registry) resolve(kind CapabilityKind, name string) (Resolution, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if id, ok := r.index.lookup(kind, name); ok {
		return Resolution{BackendID: id, Via: ViaIndex}, nil
	}

	if kind != KindResource {
		if prefix, _, ok := strings.Cut(name, Separator); ok {
			if _, exists := r.servers[prefix]; exists {
				return Resolution{BackendID: prefix, Via: ViaPrefix}, nil
			}
		}
	}

	return Resolution{}, apperr.NewNotFoundError(kind.String(), name)
}

func (r *Registry) UpdateHealth(id string, health Health) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	reg, exists := r.servers[id]
	if !exists {
		return apperr.NewNotFoundError("backend", id)
	}
	reg.Health = &health
	return nil
}

// UpdateCapabilities replaces the capability set of a backend and re-indexes it.
func (r *Registry) UpdateCapabilities(id string, caps Capabilities) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	reg, exists := r.servers[id]
	if !exists {
		return apperr.NewNotFoundError("backend", id)
	}

	r.index.remove(id)
	reg.Capabilities = caps.clone()
	r.index.add(id, reg.Capabilities)
	return nil
}

// IndexKeys returns the sorted keys of one capability index.
func (r *Registry) IndexKeys(kind CapabilityKind) []string {
	r.mutex.RLock()
	entries := r.index.keys(kind)
	r.mutex.RUnlock()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.servers)
}

// Clear drops every registration and index entry.
func (r *Registry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.servers = make(map[string]*Registration)
	r.order = nil
	r.index = newCapabilityIndex()
}

// ResetAll is Clear under the name used by process-reset hooks.
func (r *Registry) ResetAll() {
	r.Clear()
}

// httpEndpoint requires an absolute http or https URL with a host.
func httpEndpoint(value interface{}) error {
	endpoint, _ := value.(string)
	u, err := url.Parse(endpoint)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "must use the http or https scheme")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "must have a host")
	}
	return nil
}

func validateRegistration(reg *Registration) error {
	err := validation.ValidateStruct(reg,
		validation.Field(&reg.ID,
			validation.Required,
			validation.Match(backendIDPattern).Error("must contain only letters, digits, hyphens and underscores"),
		),
		validation.Field(&reg.Endpoint,
			validation.Required,
			validation.When(reg.Transport == TransportHTTP, is.URL, validation.By(httpEndpoint)),
		),
		validation.Field(&reg.Transport,
			validation.In(TransportHTTP, TransportStdio),
		),
	)
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return &apperr.ValidationError{Problems: []string{err.Error()}, Cause: err}
	}

	problems := make([]string, 0, len(fieldErrs))
	for field, fieldErr := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s: %v", field, fieldErr))
	}
	sort.Strings(problems)

	return &apperr.ValidationError{Problems: problems, Cause: err}
}
