package fhirservice

import (
	"fmt"
	"sync"
)

// Binding pairs a resource type with the provider responsible for it.
type Binding struct {
	ResourceType string
	Provider     ResourceProvider
}

// Registry binds resource types to providers, preserving registration order.
type Registry struct {
	mu       sync.RWMutex
	bindings []Binding
	byType   map[string]ResourceProvider
	frozen   bool
}

// NewRegistry returns an empty, writable registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]ResourceProvider)}
}

// Register binds p under p.ResourceType(). A failed call leaves the registry
// unchanged.
func (r *Registry) Register(p ResourceProvider) error {
	if p == nil {
		return fmt.Errorf("%w: nil provider", ErrInvalidBinding)
	}
	rt := p.ResourceType()
	if rt == "" {
		return fmt.Errorf("%w: provider %T has no resource type", ErrInvalidBinding, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot bind %s", ErrRegistryFrozen, rt)
	}
	if _, exists := r.byType[rt]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBinding, rt)
	}
	r.byType[rt] = p
	r.bindings = append(r.bindings, Binding{ResourceType: rt, Provider: p})
	return nil
}

// Lookup returns the provider bound to resourceType.
func (r *Registry) Lookup(resourceType string) (ResourceProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byType[resourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, resourceType)
	}
	return p, nil
}

// Bindings returns a copy of the bindings in registration order.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// ResourceTypes returns the bound resource types in registration order.
func (r *Registry) ResourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = b.ResourceType
	}
	return out
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// Freeze makes the registry read-only. It is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
