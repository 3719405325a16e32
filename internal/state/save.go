package state

import (
	"maps"
	"slices"
	"sync"
)

// SaveRegistry is the save/restore collaborator: state that should outlive
// a process restart registers a provider under a stable key, and a restarted
// composition consumes the restored value for the same key.
type SaveRegistry struct {
	mu        sync.Mutex
	restored  map[string]any
	providers map[string]provider
	nextID    uint64
}

type provider struct {
	id uint64
	fn func() any
}

// NewSaveRegistry creates a registry seeded with previously saved values.
func NewSaveRegistry(restored map[string]any) *SaveRegistry {
	r := &SaveRegistry{
		restored:  make(map[string]any, len(restored)),
		providers: make(map[string]provider),
	}
	maps.Copy(r.restored, restored)
	return r
}

// Consume returns and forgets the restored value for key.
func (r *SaveRegistry) Consume(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.restored[key]
	delete(r.restored, key)
	return v, ok
}

// Register installs a provider for key and returns a function removing it.
// A later registration under the same key replaces the earlier one.
func (r *SaveRegistry) Register(key string, fn func() any) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.providers[key] = provider{id: id, fn: fn}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if p, ok := r.providers[key]; ok && p.id == id {
			delete(r.providers, key)
		}
	}
}

// Snapshot collects the current value of every provider.
func (r *SaveRegistry) Snapshot() map[string]any {
	r.mu.Lock()
	providers := maps.Clone(r.providers)
	r.mu.Unlock()

	out := make(map[string]any, len(providers))
	for k, p := range providers {
		out[k] = p.fn()
	}
	return out
}

// Keys returns the registered keys in sorted order.
func (r *SaveRegistry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.providers))
}
