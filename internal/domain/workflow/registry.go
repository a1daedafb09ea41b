package workflow

import (
	"fmt"
	"sort"
)

// Registry maps request types to their definitions
type Registry struct {
	definitions map[RequestType]*Definition
}

// NewRegistry creates a registry from definitions. Later definitions for the
// same request type replace earlier ones.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{definitions: make(map[RequestType]*Definition, len(defs))}
	for _, d := range defs {
		r.definitions[d.RequestType] = d
	}
	return r
}

// DefaultRegistry returns a registry holding the built-in definitions
func DefaultRegistry() *Registry {
	return NewRegistry(LeaveDefinition(), FundRequestDefinition(), FailureToLogDefinition())
}

// Get returns the definition for the request type
func (r *Registry) Get(t RequestType) (*Definition, error) {
	d, ok := r.definitions[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequestType, t)
	}
	return d, nil
}

// With returns a new registry where the given definitions replace existing ones
func (r *Registry) With(defs ...*Definition) *Registry {
	all := make([]*Definition, 0, len(r.definitions)+len(defs))
	for _, t := range r.Types() {
		all = append(all, r.definitions[t])
	}
	return NewRegistry(append(all, defs...)...)
}

// Types returns the registered request types, sorted
func (r *Registry) Types() []RequestType {
	types := make([]RequestType, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
