package resource

import (
	"fmt"
	"sync"
)

// Factory builds a Step for a validated spec of one kind.
type Factory func(spec Spec) (Step, error)

// Registry maps kinds to the factories that build their steps.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register installs the factory for kind. Registering a kind twice is an error.
func (r *Registry) Register(kind Kind, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("nil factory for kind %q", kind)
	}
	if _, ok := recognized[kind]; !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("kind %q is already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Has reports whether kind has a factory.
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Build validates spec and builds its step.
func (r *Registry) Build(spec Spec) (Step, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, NewValidationError(spec.Name, fmt.Errorf("no implementation registered for kind %q", spec.Kind))
	}

	step, err := factory(spec)
	if err != nil {
		if _, ok := AsStepError(err); ok {
			return nil, err
		}
		return nil, NewValidationError(spec.Name, err)
	}
	return step, nil
}

// BuildAll builds every spec, stopping at the first invalid one.
func (r *Registry) BuildAll(specs []Spec) ([]Step, error) {
	steps := make([]Step, 0, len(specs))
	for _, spec := range specs {
		step, err := r.Build(spec)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
