package search

import (
	"context"

	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/search"
)

// Repository defines the raw engine-backed search contract.
type Repository interface {
	SearchAcrossEntities(
		ctx context.Context, entityTypes []string, input string,
		f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
	) (search.Result, error)

	Autocomplete(
		ctx context.Context, entityType, query, field string, limit int,
	) (search.AutoCompleteResult, error)

	Browse(
		ctx context.Context, entityType, path string,
		f filter.Filter, from, size int,
	) (search.BrowseResult, error)
}

// Cache stores serialized results. Absence is signaled with cache.ErrMiss;
// any other failure is treated as a miss by this service.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
