// Package search implements the caching search service: arbitrary
// pagination windows served from fixed-size cached result batches.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/cache"
	"github.com/helixdata/metasearch/internal/domain"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/search"
)

// DefaultBatchSize is the page size raw engine fetches are cached at.
const DefaultBatchSize = 100

// Cache key namespaces, one per operation.
const (
	nsSearch       = "search"
	nsAutocomplete = "autocomplete"
	nsBrowse       = "browse"
)

// Config tunes the caching behavior.
type Config struct {
	BatchSize int
}

// Service wraps the raw search repository with a result cache. Search
// results are cached in fixed-size batches so every (from, size) window is
// assembled from reusable cache entries; autocomplete and browse results
// are cached whole, keyed by their full signature. A nil cache disables
// caching entirely.
type Service struct {
	repo       Repository
	cache      Cache
	batchSize  int
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching search service.
// cacheTotal is a counter vec with labels "operation" and "result"
// ("hit"/"miss"), passed explicitly.
func New(
	repo Repository, c Cache, cfg Config,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) *Service {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		repo:       repo,
		cache:      c,
		batchSize:  batchSize,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Search serves one pagination window over a scored cross-entity search.
// With caching enabled the window is filled batch by batch: starting at the
// batch containing from, cached or freshly fetched batches accumulate until
// the window is covered or the engine total is exhausted. The returned total
// always reflects the engine-reported match count, not the window size.
func (s *Service) Search(
	ctx context.Context, entityTypes []string, input string,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
	flags search.Flags,
) (search.Result, error) {
	if from < 0 || size < 0 {
		return search.Result{}, fmt.Errorf("%w: pagination window %d/%d", domain.ErrInvalidInput, from, size)
	}
	if s.cache == nil || flags.SkipCache {
		return s.repo.SearchAcrossEntities(ctx, entityTypes, input, f, sortCriterion, from, size)
	}
	return s.searchBatched(ctx, entityTypes, input, f, sortCriterion, from, size)
}

func (s *Service) searchBatched(
	ctx context.Context, entityTypes []string, input string,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
) (search.Result, error) {
	var (
		entities     []search.Entity
		aggregations []search.AggregationMetadata
		total        int
	)
	// Offset of the requested window inside the accumulated batches.
	start := from % s.batchSize

	for batch := from / s.batchSize; ; batch++ {
		result, err := s.searchBatch(ctx, entityTypes, input, f, sortCriterion, batch)
		if err != nil {
			return search.Result{}, err
		}
		total = result.NumEntities
		if aggregations == nil {
			aggregations = result.Aggregations
		}
		entities = append(entities, result.Entities...)

		if len(entities) >= start+size || len(result.Entities) < s.batchSize {
			break
		}
	}

	if start > len(entities) {
		start = len(entities)
	}
	end := start + size
	if end > len(entities) {
		end = len(entities)
	}
	return search.Result{
		Entities:     entities[start:end],
		Aggregations: aggregations,
		From:         from,
		PageSize:     size,
		NumEntities:  total,
	}, nil
}

// searchBatch returns one fixed-size batch, from cache when present.
func (s *Service) searchBatch(
	ctx context.Context, entityTypes []string, input string,
	f filter.Filter, sortCriterion filter.SortCriterion, batch int,
) (search.Result, error) {
	key := cache.Key(nsSearch, entityTypes, input, f, sortCriterion, batch, s.batchSize)

	var cached search.Result
	if s.getFromCache(ctx, nsSearch, key, &cached) {
		return cached, nil
	}

	result, err := s.repo.SearchAcrossEntities(
		ctx, entityTypes, input, f, sortCriterion, batch*s.batchSize, s.batchSize)
	if err != nil {
		return search.Result{}, err
	}
	s.putToCache(ctx, key, result)
	return result, nil
}

// Autocomplete serves typeahead suggestions, cached whole per signature.
func (s *Service) Autocomplete(
	ctx context.Context, entityType, query, field string, limit int,
	flags search.Flags,
) (search.AutoCompleteResult, error) {
	if s.cache == nil || flags.SkipCache {
		return s.repo.Autocomplete(ctx, entityType, query, field, limit)
	}

	key := cache.Key(nsAutocomplete, entityType, query, field, limit)
	var cached search.AutoCompleteResult
	if s.getFromCache(ctx, nsAutocomplete, key, &cached) {
		return cached, nil
	}

	result, err := s.repo.Autocomplete(ctx, entityType, query, field, limit)
	if err != nil {
		return search.AutoCompleteResult{}, err
	}
	s.putToCache(ctx, key, result)
	return result, nil
}

// Browse lists one level of the browse hierarchy, cached whole per signature.
func (s *Service) Browse(
	ctx context.Context, entityType, path string,
	f filter.Filter, from, size int, flags search.Flags,
) (search.BrowseResult, error) {
	if s.cache == nil || flags.SkipCache {
		return s.repo.Browse(ctx, entityType, path, f, from, size)
	}

	key := cache.Key(nsBrowse, entityType, path, f, from, size)
	var cached search.BrowseResult
	if s.getFromCache(ctx, nsBrowse, key, &cached) {
		return cached, nil
	}

	result, err := s.repo.Browse(ctx, entityType, path, f, from, size)
	if err != nil {
		return search.BrowseResult{}, err
	}
	s.putToCache(ctx, key, result)
	return result, nil
}

// getFromCache loads and decodes a cached entry. Every failure besides a
// clean miss is logged and treated as a miss; the request proceeds raw.
func (s *Service) getFromCache(ctx context.Context, operation, key string, out any) bool {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Failed to read result cache",
				zap.String("key", key), zap.Error(err))
		}
		s.incCache(operation, "miss")
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("Failed to decode cached result",
			zap.String("key", key), zap.Error(err))
		s.incCache(operation, "miss")
		return false
	}
	s.incCache(operation, "hit")
	return true
}

func (s *Service) putToCache(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to encode result for cache",
			zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Put(ctx, key, data); err != nil {
		s.logger.Warn("Failed to store result cache",
			zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) incCache(operation, result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues(operation, result).Inc()
	}
}
