// Package search holds the typed results the pipeline returns to callers:
// matched entities, facet aggregation metadata, and pagination framing.
package search

import (
	"github.com/helixdata/metasearch/internal/domain/urn"
)

// FeatureEngineScore names the engine-native relevance score feature.
const FeatureEngineScore = "engineScore"

// Flags carries per-request behavior switches.
type Flags struct {
	// SkipCache forces a raw engine call, bypassing cache read and write.
	SkipCache bool `json:"skipCache,omitempty"`
}

// MatchedField records one field/value pair that matched the query text.
type MatchedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Entity is one matched document with its per-hit match metadata.
type Entity struct {
	URN           urn.URN            `json:"urn"`
	MatchedFields []MatchedField     `json:"matchedFields,omitempty"`
	Score         float64            `json:"score"`
	Features      map[string]float64 `json:"features,omitempty"`
}

// FilterValue is one facet bucket surfaced to filter panels. Filtered marks
// a zero-count value injected because the caller filtered on it even though
// the engine reported no matching documents.
type FilterValue struct {
	Value      string `json:"value"`
	FacetCount int64  `json:"facetCount"`
	Filtered   bool   `json:"filtered,omitempty"`
}

// AggregationMetadata is the facet sidecar for one filterable field.
type AggregationMetadata struct {
	Name         string           `json:"name"`
	DisplayName  string           `json:"displayName,omitempty"`
	Aggregations map[string]int64 `json:"aggregations"`
	FilterValues []FilterValue    `json:"filterValues"`
}

// HasValue reports whether the bucket map or filter value list already
// carries the given facet value.
func (a AggregationMetadata) HasValue(value string) bool {
	if _, ok := a.Aggregations[value]; ok {
		return true
	}
	for _, fv := range a.FilterValues {
		if fv.Value == value {
			return true
		}
	}
	return false
}

// Result is a paginated search answer. It is constructed fresh per request
// and never mutated after return; Merge produces a new result.
type Result struct {
	Entities     []Entity              `json:"entities"`
	Aggregations []AggregationMetadata `json:"aggregations"`
	From         int                   `json:"from"`
	PageSize     int                   `json:"pageSize"`
	NumEntities  int                   `json:"numEntities"`
}

// AutoCompleteResult carries typeahead suggestions for a query prefix.
type AutoCompleteResult struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

// BrowseGroup is one child node of a browse path with its entity count.
type BrowseGroup struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// BrowseResult lists the entities and child groups under a browse path.
type BrowseResult struct {
	Entities    []Entity      `json:"entities"`
	Groups      []BrowseGroup `json:"groups"`
	From        int           `json:"from"`
	PageSize    int           `json:"pageSize"`
	NumEntities int           `json:"numEntities"`
}

// MergeAggregations union-merges two facet lists by facet name, preserving
// the order of a and appending facets only present in b. Bucket counts for
// shared facets are summed; merging a list with itself therefore doubles
// counts. Callers merge disjoint result batches, where summing is exact.
func MergeAggregations(a, b []AggregationMetadata) []AggregationMetadata {
	out := make([]AggregationMetadata, 0, len(a)+len(b))
	index := make(map[string]int, len(a))
	for _, agg := range a {
		index[agg.Name] = len(out)
		out = append(out, cloneAggregation(agg))
	}
	for _, agg := range b {
		i, ok := index[agg.Name]
		if !ok {
			index[agg.Name] = len(out)
			out = append(out, cloneAggregation(agg))
			continue
		}
		out[i] = mergeAggregation(out[i], agg)
	}
	return out
}

func mergeAggregation(a, b AggregationMetadata) AggregationMetadata {
	for value, count := range b.Aggregations {
		a.Aggregations[value] += count
	}
	a.FilterValues = filterValuesFromBuckets(a.Aggregations, a.FilterValues, b.FilterValues)
	return a
}

// filterValuesFromBuckets rebuilds the filter value list after a bucket
// merge: existing order is kept, counts are refreshed from the bucket map,
// and values only known to b are appended.
func filterValuesFromBuckets(buckets map[string]int64, a, b []FilterValue) []FilterValue {
	seen := make(map[string]struct{}, len(a))
	out := make([]FilterValue, 0, len(a)+len(b))
	for _, fv := range a {
		fv.FacetCount = buckets[fv.Value]
		seen[fv.Value] = struct{}{}
		out = append(out, fv)
	}
	for _, fv := range b {
		if _, dup := seen[fv.Value]; dup {
			continue
		}
		fv.FacetCount = buckets[fv.Value]
		seen[fv.Value] = struct{}{}
		out = append(out, fv)
	}
	return out
}

func cloneAggregation(a AggregationMetadata) AggregationMetadata {
	buckets := make(map[string]int64, len(a.Aggregations))
	for v, c := range a.Aggregations {
		buckets[v] = c
	}
	values := make([]FilterValue, len(a.FilterValues))
	copy(values, a.FilterValues)
	a.Aggregations = buckets
	a.FilterValues = values
	return a
}
