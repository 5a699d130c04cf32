package payments

import (
	"fmt"
	"sort"
)

// Registry maps backend names to implementations. It is built explicitly at
// process start and injected into the payment service; there is no ambient
// global registration.
type Registry struct {
	backends map[string]Backend
	debug    bool
}

// NewRegistry creates a registry. When debug is false, debug backends are
// hidden from Get and List.
func NewRegistry(debug bool, backends ...Backend) *Registry {
	r := &Registry{
		backends: make(map[string]Backend, len(backends)),
		debug:    debug,
	}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// Get resolves a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	if b.Debug() && !r.debug {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// List returns the usable backends sorted by name.
func (r *Registry) List() []Backend {
	result := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		if !b.Debug() || r.debug {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}
