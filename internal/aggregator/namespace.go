package aggregator

import (
	"strings"

	"github.com/angeloszaimis/mcp-gateway/internal/registry"
)

// Namespacer maps backend ids to the namespace callers see and back.
type Namespacer struct {
	aliases     map[string]string
	reverse     map[string]string
	stripSuffix string
}

// NewNamespacer builds a namespacer from an alias table keyed by backend id.
// Ids are compared case-insensitively because config keys arrive lowercased.
func NewNamespacer(aliases map[string]string, stripSuffix string) *Namespacer {
	n := &Namespacer{
		aliases:     make(map[string]string, len(aliases)),
		reverse:     make(map[string]string, len(aliases)),
		stripSuffix: stripSuffix,
	}
	for id, alias := range aliases {
		id = strings.ToLower(strings.TrimSpace(id))
		alias = strings.TrimSpace(alias)
		if id == "" || alias == "" {
			continue
		}
		n.aliases[id] = alias
		n.reverse[alias] = id
	}
	return n
}

// Namespace returns the alias for id, or id without the configured suffix.
func (n *Namespacer) Namespace(backendID string) string {
	if alias, ok := n.aliases[strings.ToLower(backendID)]; ok {
		return alias
	}
	if n.stripSuffix != "" {
		if trimmed := strings.TrimSuffix(backendID, n.stripSuffix); trimmed != "" {
			return trimmed
		}
	}
	return backendID
}

func (n *Namespacer) Qualify(backendID, localName string) string {
	return n.Namespace(backendID) + registry.Separator + localName
}

// BackendID maps a caller-visible namespace to a backend id. A registered id
// wins over a derived namespace, so the raw id form always resolves.
func (n *Namespacer) BackendID(namespace string, servers []registry.Registration) string {
	return n.Candidates(namespace, servers)[0]
}

// Candidates lists every backend id the namespace can stand for, most
// specific first: a registered id, then an alias, then each backend whose
// derived namespace matches. A stripped suffix can make "search" name both
// the backend "search" and the backend "search-mcp". When nothing matches
// the namespace itself is the only candidate.
func (n *Namespacer) Candidates(namespace string, servers []registry.Registration) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, srv := range servers {
		if srv.ID == namespace {
			add(srv.ID)
		}
	}

	if id, ok := n.reverse[namespace]; ok {
		matched := false
		for _, srv := range servers {
			if strings.EqualFold(srv.ID, id) {
				add(srv.ID)
				matched = true
			}
		}
		if !matched {
			add(id)
		}
	}

	for _, srv := range servers {
		if n.Namespace(srv.ID) == namespace {
			add(srv.ID)
		}
	}

	if len(out) == 0 {
		add(namespace)
	}
	return out
}

// SplitName splits "namespace.local" at the first separator.
func SplitName(name string) (namespace, local string, ok bool) {
	namespace, local, ok = strings.Cut(name, registry.Separator)
	if !ok || namespace == "" || local == "" {
		return "", "", false
	}
	return namespace, local, true
}
