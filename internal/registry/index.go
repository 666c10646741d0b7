package registry

type indexKey struct {
	kind CapabilityKind
	key  string
}

// capabilityIndex maps namespaced capability keys to backend ids. It also
// remembers which keys each backend wrote so that removing a backend drops
// only entries it still owns. Not safe for concurrent use; Registry guards it.
type capabilityIndex struct {
	entries map[CapabilityKind]map[string]string
	owned   map[string][]indexKey
}

func newCapabilityIndex() *capabilityIndex {
	return &capabilityIndex{
		entries: map[CapabilityKind]map[string]string{
			KindTool:     make(map[string]string),
			KindResource: make(map[string]string),
			KindPrompt:   make(map[string]string),
		},
		owned: make(map[string][]indexKey),
	}
}

func (idx *capabilityIndex) add(backendID string, caps Capabilities) {
	keys := make([]indexKey, 0, len(caps.Tools)+len(caps.Resources)+len(caps.Prompts))

	for _, name := range caps.Tools {
		keys = append(keys, indexKey{kind: KindTool, key: NamespacedKey(backendID, name)})
	}
	for _, uri := range caps.Resources {
		keys = append(keys, indexKey{kind: KindResource, key: uri})
	}
	for _, name := range caps.Prompts {
		keys = append(keys, indexKey{kind: KindPrompt, key: NamespacedKey(backendID, name)})
	}

	for _, k := range keys {
		// Last write wins, even across backends.
		idx.entries[k.kind][k.key] = backendID
	}
	idx.owned[backendID] = keys
}

func (idx *capabilityIndex) remove(backendID string) {
	for _, k := range idx.owned[backendID] {
		if idx.entries[k.kind][k.key] == backendID {
			delete(idx.entries[k.kind], k.key)
		}
	}
	delete(idx.owned, backendID)
}

func (idx *capabilityIndex) lookup(kind CapabilityKind, key string) (string, bool) {
	id, ok := idx.entries[kind][key]
	return id, ok
}

func (idx *capabilityIndex) keys(kind CapabilityKind) map[string]string {
	out := make(map[string]string, len(idx.entries[kind]))
	for k, v := range idx.entries[kind] {
		out[k] = v
	}
	return out
}
