package pipeline

import (
	"fmt"

	"github.com/davidcohan/identity-broker/internal/config"
)

// Factory builds one filter instance from its configuration map. A fresh
// instance is built per pipeline execution: filters may hold request-scoped
// connections and are never shared across requests. A factory error is a
// configuration error and aborts the entire pipeline.
type Factory func(options map[string]string) (Filter, error)

// Registry maps filter type names to factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty filter registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a filter type name
func (r *Registry) Register(filterType string, factory Factory) {
	r.factories[filterType] = factory
}

// New instantiates the filter described by spec
func (r *Registry) New(spec config.FilterSpec) (Filter, error) {
	factory, ok := r.factories[spec.Type]
	if !ok {
		return nil, &config.Error{Kind: config.KindMissingOption, Subject: "filter type " + spec.Type}
	}
	f, err := factory(spec.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s filter: %w", spec.Type, err)
	}
	return f, nil
}
