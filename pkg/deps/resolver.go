// Package deps resolves tool dependencies by key.
//
// Production providers are registered once on a Resolver. Tests substitute
// values on a Container they own, so overrides never leak between tests and
// concurrent tests using separate containers are safe.
//
// Usage:
//
//	r := deps.NewResolver()
//	_ = r.Provide("DataStore", deps.Singleton(openStore))
//
//	c := deps.NewContainer()
//	c.SetOverride("DataStore", fakeStore)
//	v, _ := r.Resolve(ctx, "DataStore", c)
package deps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownDependency is returned when no provider or override exists for a key
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDuplicateProvider is returned when a key already has a provider
	ErrDuplicateProvider = errors.New("dependency provider already registered")
)

// Key names a dependency, e.g. "DataStore"
type Key string

// Provider produces the production value for a key
type Provider func(ctx context.Context) (any, error)

// Resolver maps dependency keys to production providers
type Resolver struct {
	mu        sync.RWMutex
	providers map[Key]Provider
}

// NewResolver creates an empty resolver
func NewResolver() *Resolver {
	return &Resolver{
		providers: make(map[Key]Provider),
	}
}

// Provide registers the production provider for key
func (r *Resolver) Provide(key Key, provider Provider) error {
	if key == "" {
		return fmt.Errorf("dependency key cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider for %s cannot be nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, key)
	}
	r.providers[key] = provider
	return nil
}

// ProvideValue registers a provider that always returns value
func (r *Resolver) ProvideValue(key Key, value any) error {
	return r.Provide(key, func(context.Context) (any, error) {
		return value, nil
	})
}

// Has reports whether a production provider exists for key
func (r *Resolver) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[key]
	return ok
}

// Keys returns all keys with a production provider, sorted
func (r *Resolver) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Resolve returns the container's override for key if one is set, otherwise
// the production provider's value. A nil container means no overrides.
func (r *Resolver) Resolve(ctx context.Context, key Key, c *Container) (any, error) {
	if v, ok := c.Override(key); ok {
		return v, nil
	}

	r.mu.RLock()
	provider, ok := r.providers[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDependency, key)
	}

	v, err := provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("dependency %s: %w", key, err)
	}
	return v, nil
}

// Get resolves key and asserts the value to T
func Get[T any](ctx context.Context, r *Resolver, key Key, c *Container) (T, error) {
	var zero T

	v, err := r.Resolve(ctx, key, c)
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("dependency %s has type %T, want %T", key, v, zero)
	}
	return typed, nil
}

// Singleton wraps fn so that its first successful result is returned on every
// later call. Failed attempts are not cached.
func Singleton(fn Provider) Provider {
	var (
		mu    sync.Mutex
		value any
		done  bool
	)

	return func(ctx context.Context) (any, error) {
		mu.Lock()
		defer mu.Unlock()

		if done {
			return value, nil
		}

		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		value = v
		done = true
		return value, nil
	}
}
