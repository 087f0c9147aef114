package lineage

import (
	"context"

	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/lineage"
	"github.com/helixdata/metasearch/internal/domain/search"
	"github.com/helixdata/metasearch/internal/domain/urn"
)

// GraphService resolves hop-limited lineage graphs. External collaborator.
type GraphService interface {
	GetLineage(
		ctx context.Context, source urn.URN, direction lineage.Direction,
		offset, count, maxHops int,
	) (lineage.Result, error)
}

// Searcher is the downstream search contract, normally the caching search
// service. Lineage batches always pass skipCache.
type Searcher interface {
	Search(
		ctx context.Context, entityTypes []string, input string,
		f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
		flags search.Flags,
	) (search.Result, error)
}

// TypeRegistry reports which entity types are searchable. The lineage graph
// can reference types this deployment never registered; those relationships
// are dropped instead of failing the request.
type TypeRegistry interface {
	Has(entityType string) bool
}

// Cache stores serialized lineage graph snapshots. Absence is signaled with
// cache.ErrMiss; any other failure is treated as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
