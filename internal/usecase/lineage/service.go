// Package lineage implements search across an entity's lineage graph:
// graph resolution with caching, relationship filtering, and term-bounded
// batch search with result merging.
package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/cache"
	"github.com/helixdata/metasearch/internal/domain"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/lineage"
	"github.com/helixdata/metasearch/internal/domain/search"
	"github.com/helixdata/metasearch/internal/domain/urn"
)

// DefaultMaxHops bounds graph traversal when the caller does not.
const DefaultMaxHops = 1000

const (
	// maxRelationships caps how many relationships one resolution considers.
	maxRelationships = 1_000_000
	// maxTermsPerBatch caps urns per engine term filter; larger relationship
	// sets are searched in several batches.
	maxTermsPerBatch = 50_000
	// graphStaleAfter is the snapshot age past which a warning is logged.
	// Stale snapshots are still served; eviction is the cache's concern.
	graphStaleAfter = 24 * time.Hour
)

const (
	nsLineage = "lineage"

	urnField          = "urn"
	degreeField       = "degree"
	degreeDisplayName = "Degree of Dependencies"
	schemaFieldType   = "schemaField"
)

// Service searches across the lineage graph of a source entity.
type Service struct {
	graph    GraphService
	searcher Searcher
	types    TypeRegistry
	cache    Cache
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a lineage search service. A nil types registry disables the
// unregistered-type drop; a nil cache disables graph snapshot caching.
func New(
	graph GraphService, searcher Searcher, types TypeRegistry,
	c Cache, logger *zap.Logger,
) *Service {
	return &Service{
		graph:    graph,
		searcher: searcher,
		types:    types,
		cache:    c,
		logger:   logger,
		now:      time.Now,
	}
}

// SearchAcrossLineage resolves the lineage graph around source, rewrites
// schema-field relationships to their owning dataset, applies the entity
// type allowlist and any degree filter, then searches the surviving
// relationship set in term-bounded batches and merges the answers into one
// paginated result. maxHops zero or negative means DefaultMaxHops.
func (s *Service) SearchAcrossLineage(
	ctx context.Context, source urn.URN, direction lineage.Direction,
	entityTypes []string, input string, maxHops int,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
	flags search.Flags,
) (lineage.SearchResult, error) {
	if from < 0 || size < 0 {
		return lineage.SearchResult{}, fmt.Errorf("%w: pagination window %d/%d",
			domain.ErrInvalidInput, from, size)
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	// Validate the degree filter before touching the graph or the engine.
	matchesDegree, err := degreePredicate(degreeValues(f))
	if err != nil {
		return lineage.SearchResult{}, err
	}

	graph, err := s.resolveGraph(ctx, source, direction, maxHops, flags.SkipCache)
	if err != nil {
		return lineage.SearchResult{}, err
	}

	relationships := coalesceRelationships(s.rewriteSchemaFields(graph.Relationships))
	relationships = keepMatching(relationships, entityTypes, matchesDegree)
	relationships = s.dropUnregistered(relationships)

	// Degree criteria steer relationship selection above; they must not
	// reach the engine, which has no degree field to filter on.
	finalFilter := f.RemoveCriteria(func(crit filter.Criterion) bool {
		return facetField(crit.Field) == degreeField
	})

	merged, err := s.searchBatches(ctx, relationships, input, finalFilter, sortCriterion, from, size, flags)
	if err != nil {
		return lineage.SearchResult{}, err
	}

	merged.Aggregations = search.MergeAggregations(
		[]search.AggregationMetadata{degreeAggregation()}, merged.Aggregations)
	merged.From = from
	merged.PageSize = size
	return merged, nil
}

// resolveGraph returns the lineage snapshot around source, served from cache
// when a snapshot exists. Snapshots older than graphStaleAfter are logged
// and served anyway.
func (s *Service) resolveGraph(
	ctx context.Context, source urn.URN, direction lineage.Direction,
	maxHops int, skipCache bool,
) (lineage.Result, error) {
	if s.cache == nil || skipCache {
		return s.fetchGraph(ctx, source, direction, maxHops)
	}

	key := cache.Key(nsLineage, source, direction, maxHops)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var cached lineage.CachedResult
		if err := json.Unmarshal(data, &cached); err == nil {
			if s.now().Sub(cached.Timestamp) > graphStaleAfter {
				s.logger.Warn("Serving stale lineage graph snapshot",
					zap.String("urn", source.String()),
					zap.Time("capturedAt", cached.Timestamp))
			}
			return cached.Result, nil
		}
		s.logger.Warn("Failed to decode cached lineage graph",
			zap.String("key", key), zap.Error(err))
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Failed to read lineage graph cache",
			zap.String("key", key), zap.Error(err))
	}

	result, err := s.fetchGraph(ctx, source, direction, maxHops)
	if err != nil {
		return lineage.Result{}, err
	}

	data, err := json.Marshal(lineage.CachedResult{Result: result, Timestamp: s.now()})
	if err != nil {
		s.logger.Warn("Failed to encode lineage graph for cache", zap.Error(err))
		return result, nil
	}
	if err := s.cache.Put(ctx, key, data); err != nil {
		s.logger.Warn("Failed to store lineage graph cache",
			zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

func (s *Service) fetchGraph(
	ctx context.Context, source urn.URN, direction lineage.Direction, maxHops int,
) (lineage.Result, error) {
	result, err := s.graph.GetLineage(ctx, source, direction, 0, maxRelationships, maxHops)
	if err != nil {
		return lineage.Result{}, fmt.Errorf("resolve lineage graph: %w", err)
	}
	return result, nil
}

// rewriteSchemaFields retargets schema-field relationships to the dataset
// that owns the field, so the dataset is what gets searched and returned.
// A schema-field urn embeds its dataset urn as the first tuple element.
func (s *Service) rewriteSchemaFields(relationships []lineage.Relationship) []lineage.Relationship {
	out := make([]lineage.Relationship, 0, len(relationships))
	for _, rel := range relationships {
		if rel.Entity.EntityType() == schemaFieldType {
			parent, err := urn.Parse(rel.Entity.TupleParts()[0])
			if err != nil {
				s.logger.Warn("Dropping schema field relationship without a parseable dataset urn",
					zap.String("urn", rel.Entity.String()), zap.Error(err))
				continue
			}
			rel.Entity = parent
		}
		out = append(out, rel)
	}
	return out
}

// coalesceRelationships merges relationships to the same target entity into
// one relationship carrying the union of their path lists. The first
// occurrence wins for degree and type.
func coalesceRelationships(relationships []lineage.Relationship) []lineage.Relationship {
	out := make([]lineage.Relationship, 0, len(relationships))
	index := make(map[string]int, len(relationships))
	seenPaths := make(map[string]map[string]struct{}, len(relationships))

	for _, rel := range relationships {
		target := rel.Entity.String()
		i, ok := index[target]
		if !ok {
			index[target] = len(out)
			paths := make(map[string]struct{}, len(rel.Paths))
			for _, p := range rel.Paths {
				paths[pathKey(p)] = struct{}{}
			}
			seenPaths[target] = paths
			out = append(out, rel)
			continue
		}
		for _, p := range rel.Paths {
			key := pathKey(p)
			if _, dup := seenPaths[target][key]; dup {
				continue
			}
			seenPaths[target][key] = struct{}{}
			out[i].Paths = append(out[i].Paths, p)
		}
	}
	return out
}

func pathKey(path []urn.URN) string {
	parts := make([]string, 0, len(path))
	for _, node := range path {
		parts = append(parts, node.String())
	}
	return strings.Join(parts, ">")
}

// keepMatching applies the entity type allowlist and the degree predicate.
func keepMatching(
	relationships []lineage.Relationship, entityTypes []string,
	matchesDegree func(int) bool,
) []lineage.Relationship {
	allowed := make(map[string]struct{}, len(entityTypes))
	for _, t := range entityTypes {
		allowed[t] = struct{}{}
	}

	out := make([]lineage.Relationship, 0, len(relationships))
	for _, rel := range relationships {
		if len(allowed) > 0 {
			if _, ok := allowed[rel.Entity.EntityType()]; !ok {
				continue
			}
		}
		if matchesDegree != nil && !matchesDegree(rel.Degree) {
			continue
		}
		out = append(out, rel)
	}
	return out
}

// dropUnregistered removes relationships to entity types the search index
// does not serve. Such targets cannot match anything; searching them would
// fail the whole request on the first batch.
func (s *Service) dropUnregistered(relationships []lineage.Relationship) []lineage.Relationship {
	if s.types == nil {
		return relationships
	}
	warned := make(map[string]struct{})
	out := make([]lineage.Relationship, 0, len(relationships))
	for _, rel := range relationships {
		entityType := rel.Entity.EntityType()
		if !s.types.Has(entityType) {
			if _, dup := warned[entityType]; !dup {
				warned[entityType] = struct{}{}
				s.logger.Warn("Dropping lineage relationships of unregistered entity type",
					zap.String("entityType", entityType))
			}
			continue
		}
		out = append(out, rel)
	}
	return out
}

// searchBatches partitions the relationship set into term-bounded batches,
// searches each across the batch's distinct entity types with caching
// skipped, and merges the batch results. The requested window is carried
// across batches by decrementing the remaining offset and limit by what
// each batch already satisfied.
func (s *Service) searchBatches(
	ctx context.Context, relationships []lineage.Relationship, input string,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
	flags search.Flags,
) (lineage.SearchResult, error) {
	if len(relationships) == 0 {
		return lineage.SearchResult{}, nil
	}

	byURN := make(map[string]lineage.Relationship, len(relationships))
	for _, rel := range relationships {
		byURN[rel.Entity.String()] = rel
	}

	var merged lineage.SearchResult
	remainingFrom, remainingSize := from, size
	flags.SkipCache = true

	for start := 0; start < len(relationships); start += maxTermsPerBatch {
		end := start + maxTermsPerBatch
		if end > len(relationships) {
			end = len(relationships)
		}
		batch := relationships[start:end]

		urns := make([]string, 0, len(batch))
		var batchTypes []string
		seenTypes := make(map[string]struct{})
		for _, rel := range batch {
			urns = append(urns, rel.Entity.String())
			entityType := rel.Entity.EntityType()
			if _, dup := seenTypes[entityType]; !dup {
				seenTypes[entityType] = struct{}{}
				batchTypes = append(batchTypes, entityType)
			}
		}

		batchFilter := f.WithCriterion(filter.Criterion{
			Field:     urnField,
			Values:    urns,
			Condition: filter.CondEqual,
		})

		result, err := s.searcher.Search(ctx, batchTypes, input,
			batchFilter, sortCriterion, remainingFrom, remainingSize, flags)
		if err != nil {
			return lineage.SearchResult{}, fmt.Errorf("lineage batch search: %w", err)
		}

		merged = lineage.Merge(merged, s.toLineageResult(result, byURN))

		if remainingFrom >= result.NumEntities {
			remainingFrom -= result.NumEntities
		} else {
			remainingFrom = 0
			remainingSize -= len(result.Entities)
			if remainingSize < 0 {
				remainingSize = 0
			}
		}
	}
	return merged, nil
}

// toLineageResult enriches matched entities with how they relate to the
// lineage source.
func (s *Service) toLineageResult(
	result search.Result, byURN map[string]lineage.Relationship,
) lineage.SearchResult {
	entities := make([]lineage.SearchEntity, 0, len(result.Entities))
	for _, e := range result.Entities {
		enriched := lineage.SearchEntity{Entity: e}
		if rel, ok := byURN[e.URN.String()]; ok {
			enriched.Degree = rel.Degree
			enriched.Paths = rel.Paths
		}
		entities = append(entities, enriched)
	}
	return lineage.SearchResult{
		Entities:     entities,
		Aggregations: result.Aggregations,
		From:         result.From,
		PageSize:     result.PageSize,
		NumEntities:  result.NumEntities,
	}
}

// degreeValues collects the values of every degree criterion in the filter.
func degreeValues(f filter.Filter) []string {
	var values []string
	seen := make(map[string]struct{})
	for _, conj := range f.Or {
		for _, crit := range conj.And {
			if facetField(crit.Field) != degreeField {
				continue
			}
			for _, v := range crit.Values {
				if _, dup := seen[v]; dup {
					continue
				}
				seen[v] = struct{}{}
				values = append(values, v)
			}
		}
	}
	return values
}

// degreePredicate builds an OR of per-value degree predicates. "3+" matches
// any degree greater than 2. Returns nil when no degree filter was given.
// An unrecognized value is a fatal input error.
func degreePredicate(values []string) (func(int) bool, error) {
	if len(values) == 0 {
		return nil, nil
	}
	predicates := make([]func(int) bool, 0, len(values))
	for _, v := range values {
		switch v {
		case "1":
			predicates = append(predicates, func(d int) bool { return d == 1 })
		case "2":
			predicates = append(predicates, func(d int) bool { return d == 2 })
		case "3+":
			predicates = append(predicates, func(d int) bool { return d >= 3 })
		default:
			return nil, domain.NewInvalidDegreeFilter(v)
		}
	}
	return func(d int) bool {
		for _, p := range predicates {
			if p(d) {
				return true
			}
		}
		return false
	}, nil
}

// degreeAggregation is the synthetic facet prepended to every lineage search
// result so degree filtering is always offered.
func degreeAggregation() search.AggregationMetadata {
	values := []string{"1", "2", "3+"}
	counts := make(map[string]int64, len(values))
	filterValues := make([]search.FilterValue, 0, len(values))
	for _, v := range values {
		counts[v] = 0
		filterValues = append(filterValues, search.FilterValue{Value: v})
	}
	return search.AggregationMetadata{
		Name:         degreeField,
		DisplayName:  degreeDisplayName,
		Aggregations: counts,
		FilterValues: filterValues,
	}
}

func facetField(field string) string {
	return strings.TrimSuffix(field, filter.KeywordSuffix)
}
