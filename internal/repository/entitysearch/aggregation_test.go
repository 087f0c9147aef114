package entitysearch

import (
	"testing"

	"github.com/helixdata/metasearch/internal/db"
	"github.com/helixdata/metasearch/internal/domain/filter"
)

func TestExtractAggregations_BucketOrderAndZeroDrop(t *testing.T) {
	h := datasetHandler(t)
	resp := &db.SearchResponse{
		Aggregations: map[string][]db.Bucket{
			"platform": {
				{Value: "hive", Count: 5},
				{Value: "kafka", Count: 9},
				{Value: "mysql", Count: 0},
			},
		},
	}

	aggs := h.extractAggregations(resp, filter.Filter{})
	if len(aggs) != 1 {
		t.Fatalf("expected 1 facet, got %d", len(aggs))
	}
	agg := aggs[0]
	if agg.Name != "platform" || agg.DisplayName != "Platform" {
		t.Errorf("facet identity = %q/%q", agg.Name, agg.DisplayName)
	}
	if _, ok := agg.Aggregations["mysql"]; ok {
		t.Error("zero-count engine buckets must be dropped")
	}
	if len(agg.FilterValues) != 2 {
		t.Fatalf("filter values = %+v", agg.FilterValues)
	}
	// Descending count order for the filter panel.
	if agg.FilterValues[0].Value != "kafka" || agg.FilterValues[1].Value != "hive" {
		t.Errorf("filter value order = %+v", agg.FilterValues)
	}
}

func TestExtractAggregations_InjectsFilteredZeroCounts(t *testing.T) {
	h := datasetHandler(t)
	resp := &db.SearchResponse{
		Aggregations: map[string][]db.Bucket{
			"platform": {{Value: "hive", Count: 5}},
		},
	}
	f := filter.New(criterion("platform", "hive", "spark"))

	aggs := h.extractAggregations(resp, f)
	if len(aggs) != 1 {
		t.Fatalf("reconciliation must not duplicate facets, got %d", len(aggs))
	}
	agg := aggs[0]
	if agg.Aggregations["hive"] != 5 {
		t.Errorf("engine count clobbered: %v", agg.Aggregations)
	}
	if count, ok := agg.Aggregations["spark"]; !ok || count != 0 {
		t.Errorf("expected injected zero count for spark, got %v", agg.Aggregations)
	}

	var injected bool
	for _, fv := range agg.FilterValues {
		if fv.Value == "spark" {
			injected = true
			if !fv.Filtered || fv.FacetCount != 0 {
				t.Errorf("injected value = %+v", fv)
			}
		}
		if fv.Value == "hive" && fv.Filtered {
			t.Error("engine-backed value must not be marked filtered")
		}
	}
	if !injected {
		t.Error("expected spark in the filter values")
	}
}

func TestExtractAggregations_SynthesizesMissingFacet(t *testing.T) {
	h := datasetHandler(t)
	f := filter.New(criterion("origin", "PROD"))

	aggs := h.extractAggregations(&db.SearchResponse{}, f)
	if len(aggs) != 1 {
		t.Fatalf("expected a synthesized facet, got %d", len(aggs))
	}
	agg := aggs[0]
	if agg.Name != "origin" || agg.DisplayName != "Environment" {
		t.Errorf("facet identity = %q/%q", agg.Name, agg.DisplayName)
	}
	if agg.Aggregations["PROD"] != 0 || !agg.FilterValues[0].Filtered {
		t.Errorf("synthesized facet = %+v", agg)
	}
}

func TestExtractAggregations_KeywordSuffixFoldsIntoFacet(t *testing.T) {
	h := datasetHandler(t)
	resp := &db.SearchResponse{
		Aggregations: map[string][]db.Bucket{
			"platform": {{Value: "hive", Count: 5}},
		},
	}
	f := filter.New(criterion("platform"+filter.KeywordSuffix, "spark"))

	aggs := h.extractAggregations(resp, f)
	if len(aggs) != 1 {
		t.Fatalf("keyword criterion must fold into the existing facet, got %d facets", len(aggs))
	}
	if _, ok := aggs[0].Aggregations["spark"]; !ok {
		t.Errorf("expected injected value, got %v", aggs[0].Aggregations)
	}
}

func TestExtractAggregations_SkipsUnknownAndURNFields(t *testing.T) {
	h := datasetHandler(t)
	f := filter.Filter{Or: []filter.Conjunction{{And: []filter.Criterion{
		criterion("nonexistent", "x"),
		criterion(URNField, "urn:ms:dataset:a"),
	}}}}

	aggs := h.extractAggregations(&db.SearchResponse{}, f)
	if len(aggs) != 0 {
		t.Errorf("unknown and urn criteria must not synthesize facets, got %+v", aggs)
	}
}

func TestExtractAggregations_NoDuplicateInjection(t *testing.T) {
	h := datasetHandler(t)
	resp := &db.SearchResponse{
		Aggregations: map[string][]db.Bucket{
			"platform": {{Value: "hive", Count: 5}},
		},
	}
	// The same criterion appears in two OR branches.
	f := filter.Filter{Or: []filter.Conjunction{
		{And: []filter.Criterion{criterion("platform", "spark")}},
		{And: []filter.Criterion{criterion("platform", "spark")}},
	}}

	aggs := h.extractAggregations(resp, f)
	if len(aggs) != 1 {
		t.Fatalf("expected 1 facet, got %d", len(aggs))
	}
	var sparks int
	for _, fv := range aggs[0].FilterValues {
		if fv.Value == "spark" {
			sparks++
		}
	}
	if sparks != 1 {
		t.Errorf("spark injected %d times", sparks)
	}
}
