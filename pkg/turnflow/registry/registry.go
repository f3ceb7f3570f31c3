package registry

import (
	"maps"
	"slices"
	"sync"
)

// Registry maps keys to values behind an RWMutex, so concurrent lookups
// do not serialize against each other.
type Registry[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New returns an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

// Register stores value under key, replacing any previous entry.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	r.items[key] = value
	r.mu.Unlock()
}

// RegisterMany stores every entry of the given map.
func (r *Registry[K, V]) RegisterMany(items map[K]V) {
	r.mu.Lock()
	maps.Copy(r.items, items)
	r.mu.Unlock()
}

// Get returns the value for key and whether it was present.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// MustGet returns the value for key, panicking when it is absent.
func (r *Registry[K, V]) MustGet(key K) V {
	v, ok := r.Get(key)
	if !ok {
		panic("registry: missing key")
	}
	return v
}

// Has reports whether key is present.
func (r *Registry[K, V]) Has(key K) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes key. Removing an absent key is a no-op.
func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	delete(r.items, key)
	r.mu.Unlock()
}

// Keys returns the registered keys in no particular order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(maps.Keys(r.items))
}

// Len returns the number of items.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Range calls fn for each entry until fn returns false. It walks a copy
// taken up front, so fn may register or delete items freely without
// disturbing the iteration.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	view := maps.Clone(r.items)
	r.mu.RUnlock()

	for k, v := range view {
		if !fn(k, v) {
			return
		}
	}
}

// GetOrCreate returns the value for key, calling factory to build one the
// first time the key is seen. The factory runs at most once per key even
// when callers race.
func (r *Registry[K, V]) GetOrCreate(key K, factory func() V) V {
	if v, ok := r.Get(key); ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the race between the read above and
	// taking the write lock.
	if v, ok := r.items[key]; ok {
		return v
	}
	v := factory()
	r.items[key] = v
	return v
}
