package entity

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/helixdata/metasearch/internal/domain"
)

// Registry serves entity specs by type name. Specs are loaded once at
// construction; composite cross-entity specs are memoized on demand.
type Registry struct {
	specs map[string]Spec

	mu     sync.Mutex
	unions map[string]Spec
}

// NewRegistry builds a registry from the given specs.
func NewRegistry(specs []Spec) (*Registry, error) {
	byName := make(map[string]Spec, len(specs))
	for _, s := range specs {
		if _, dup := byName[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate entity spec %q", s.Name())
		}
		byName[s.Name()] = s
	}
	return &Registry{
		specs:  byName,
		unions: make(map[string]Spec),
	}, nil
}

// Get returns the spec for an entity type.
func (r *Registry) Get(entityType string) (Spec, error) {
	s, ok := r.specs[entityType]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", domain.ErrEntityNotRegistered, entityType)
	}
	return s, nil
}

// Has reports whether an entity type is registered.
func (r *Registry) Has(entityType string) bool {
	_, ok := r.specs[entityType]
	return ok
}

// Names returns the sorted registered entity type names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetUnion returns a composite spec covering the given entity types. An
// empty list means all registered types. Composite specs are memoized per
// entity set; concurrent callers for the same set receive the same spec.
func (r *Registry) GetUnion(entityTypes []string) (Spec, error) {
	if len(entityTypes) == 0 {
		entityTypes = r.Names()
	}
	sorted := make([]string, len(entityTypes))
	copy(sorted, entityTypes)
	sort.Strings(sorted)
	key := strings.Join(sorted, "+")

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.unions[key]; ok {
		return s, nil
	}
	specs := make([]Spec, 0, len(sorted))
	for _, name := range sorted {
		s, ok := r.specs[name]
		if !ok {
			return Spec{}, fmt.Errorf("%w: %q", domain.ErrEntityNotRegistered, name)
		}
		specs = append(specs, s)
	}
	union, err := Union(specs)
	if err != nil {
		return Spec{}, err
	}
	r.unions[key] = union
	return union, nil
}
