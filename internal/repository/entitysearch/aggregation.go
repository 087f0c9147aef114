package entitysearch

import (
	"sort"

	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/db"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/search"
)

// extractAggregations reshapes raw engine buckets into facet metadata, then
// reconciles the list against the caller's filter: the engine only reports
// buckets for values with at least one matching document, but the filter
// panel contract requires every explicitly filtered value to appear, at
// count zero when unmatched, so the user can deselect it.
func (h *Handler) extractAggregations(resp *db.SearchResponse, f filter.Filter) []search.AggregationMetadata {
	var metadata []search.AggregationMetadata

	// Keep facet declaration order deterministic rather than map order.
	for _, facet := range h.facetFields {
		buckets, ok := resp.Aggregations[facet]
		if !ok {
			continue
		}
		counts := make(map[string]int64, len(buckets))
		for _, b := range buckets {
			if b.Count > 0 {
				counts[b.Value] = b.Count
			}
		}
		if len(counts) == 0 {
			continue
		}
		metadata = append(metadata, search.AggregationMetadata{
			Name:         facet,
			DisplayName:  h.displayNames[facet],
			Aggregations: counts,
			FilterValues: filterValuesFromCounts(counts),
		})
	}

	return h.addFilterValuesToMetadata(metadata, f)
}

// addFilterValuesToMetadata injects the caller's filter criteria into the
// facet list, one merged entry per facet field, never duplicating facets.
func (h *Handler) addFilterValuesToMetadata(
	metadata []search.AggregationMetadata, f filter.Filter,
) []search.AggregationMetadata {
	for _, conj := range f.Or {
		for _, crit := range conj.And {
			metadata = h.addCriterionToMetadata(crit, metadata)
		}
	}
	return metadata
}

func (h *Handler) addCriterionToMetadata(
	crit filter.Criterion, metadata []search.AggregationMetadata,
) []search.AggregationMetadata {
	facetField := toFacetField(crit.Field)

	// The urn facet is injected internally by lineage search; it is not a
	// user-facing filter panel entry.
	if facetField == URNField {
		return metadata
	}

	displayName, known := h.spec.FacetDisplayName(facetField)
	if !known {
		h.logger.Warn("Unrecognized facet field in filter; skipping aggregation reconciliation",
			zap.String("field", crit.Field),
			zap.String("entitySpec", h.spec.Name()))
		return metadata
	}

	for i := range metadata {
		if metadata[i].Name != facetField {
			continue
		}
		for _, value := range crit.Values {
			if metadata[i].HasValue(value) {
				continue
			}
			metadata[i].Aggregations[value] = 0
			metadata[i].FilterValues = append(metadata[i].FilterValues,
				search.FilterValue{Value: value, FacetCount: 0, Filtered: true})
		}
		return metadata
	}

	// No aggregation data for the facet at all: synthesize one with every
	// criterion value at count zero.
	counts := make(map[string]int64, len(crit.Values))
	values := make([]search.FilterValue, 0, len(crit.Values))
	for _, value := range crit.Values {
		if _, dup := counts[value]; dup {
			continue
		}
		counts[value] = 0
		values = append(values, search.FilterValue{Value: value, FacetCount: 0, Filtered: true})
	}
	return append(metadata, search.AggregationMetadata{
		Name:         facetField,
		DisplayName:  displayName,
		Aggregations: counts,
		FilterValues: values,
	})
}

// filterValuesFromCounts orders buckets by descending count, ties broken by
// value, for stable filter panel rendering.
func filterValuesFromCounts(counts map[string]int64) []search.FilterValue {
	out := make([]search.FilterValue, 0, len(counts))
	for value, count := range counts {
		out = append(out, search.FilterValue{Value: value, FacetCount: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FacetCount != out[j].FacetCount {
			return out[i].FacetCount > out[j].FacetCount
		}
		return out[i].Value < out[j].Value
	})
	return out
}
