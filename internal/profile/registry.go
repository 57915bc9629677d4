// Package profile identifies browser profiles and keeps bounded per-profile
// state such as carts and search sessions.
package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/groupcache/lru"
)

const defaultRegistrySize = 1024

var errLoaderRequired = errors.New("profile: loader is required")

// Registry lazily loads one value per profile and evicts the least recently
// used once full. Evicted values are loaded again on next use, so a request
// still holding an evicted value can run beside the fresh one; values that
// write shared state should be fenced off in onEvict.
type Registry[T any] struct {
	mu    sync.Mutex
	cache *lru.Cache
	load  func(ctx context.Context, id string) (T, error)
}

// NewRegistry builds a registry of at most size entries. onEvict, when set,
// runs for every value dropped from the registry, including on Purge.
func NewRegistry[T any](size int, load func(ctx context.Context, id string) (T, error), onEvict func(id string, value T)) (*Registry[T], error) {
	if load == nil {
		return nil, errLoaderRequired
	}
	if size <= 0 {
		size = defaultRegistrySize
	}
	cache := lru.New(size)
	if onEvict != nil {
		cache.OnEvicted = func(key lru.Key, value interface{}) {
			onEvict(key.(string), value.(T))
		}
	}
	return &Registry[T]{cache: cache, load: load}, nil
}

// Get returns the value of id, loading it on a miss. Loads run under the
// registry lock so a profile is never loaded twice concurrently.
func (r *Registry[T]) Get(ctx context.Context, id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache.Get(id); ok {
		return v.(T), nil
	}
	v, err := r.load(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	r.cache.Add(id, v)
	return v, nil
}

// Remove drops id, running the eviction callback.
func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(id)
}

// Len is the number of resident values.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// Purge evicts every value.
func (r *Registry[T]) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Clear()
}
