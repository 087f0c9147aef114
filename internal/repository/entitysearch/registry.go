package entitysearch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/domain/entity"
)

// HandlerRegistry memoizes one immutable Handler per entity spec identity.
// Owned by the service root and injected where needed. Concurrent lookups
// for the same spec return the same instance; a construction race is
// resolved first-writer-wins, the loser's handler is discarded.
type HandlerRegistry struct {
	specs    *entity.Registry
	cfg      Config
	logger   *zap.Logger
	handlers sync.Map // spec name -> *Handler
}

// NewHandlerRegistry creates a handler registry over the entity specs.
func NewHandlerRegistry(specs *entity.Registry, cfg Config, logger *zap.Logger) *HandlerRegistry {
	return &HandlerRegistry{specs: specs, cfg: cfg, logger: logger}
}

// ForEntity returns the handler for one entity type.
func (r *HandlerRegistry) ForEntity(entityType string) (*Handler, error) {
	spec, err := r.specs.Get(entityType)
	if err != nil {
		return nil, err
	}
	return r.forSpec(spec, []string{entityType}), nil
}

// ForEntities returns a handler over the composite spec of several entity
// types. An empty list means all registered types.
func (r *HandlerRegistry) ForEntities(entityTypes []string) (*Handler, error) {
	spec, err := r.specs.GetUnion(entityTypes)
	if err != nil {
		return nil, err
	}
	scope := entityTypes
	if len(scope) == 0 {
		scope = r.specs.Names()
	}
	return r.forSpec(spec, scope), nil
}

func (r *HandlerRegistry) forSpec(spec entity.Spec, entityTypes []string) *Handler {
	if cached, ok := r.handlers.Load(spec.Name()); ok {
		return cached.(*Handler)
	}
	created := NewHandler(spec, entityTypes, r.cfg, r.logger)
	actual, _ := r.handlers.LoadOrStore(spec.Name(), created)
	return actual.(*Handler)
}
