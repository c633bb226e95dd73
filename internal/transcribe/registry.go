package transcribe

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrMissingCredentials is returned by a factory whose backend needs a
// credential that the settings do not carry.
var ErrMissingCredentials = errors.New("backend credentials not configured")

// Settings is the flat key/value configuration handed to factories.
type Settings map[string]string

// Get returns the first non-empty value among keys.
func (s Settings) Get(keys ...string) string {
	for _, k := range keys {
		if v := s[k]; v != "" {
			return v
		}
	}
	return ""
}

// GetOr returns the first non-empty value among keys, or def.
func (s Settings) GetOr(def string, keys ...string) string {
	if v := s.Get(keys...); v != "" {
		return v
	}
	return def
}

// Factory creates an instance of T from settings.
type Factory[T any] func(settings Settings) (T, error)

// Registry holds named factories for creating instances of T.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry creates a new empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		factories: make(map[string]Factory[T]),
	}
}

// Register adds a named factory to the registry.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates T using the named factory.
func (r *Registry[T]) Create(name string, settings Settings) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown backend %q", name)
	}

	return factory(settings)
}

// Has returns true if the named factory exists.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered factory names, sorted.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Backends is the global transcription backend registry. Backend packages
// register themselves from init.
var Backends = NewRegistry[Backend]()
