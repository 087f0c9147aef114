package entitysearch

import (
	"testing"

	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/db"
	"github.com/helixdata/metasearch/internal/domain/entity"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/search"
)

func datasetSpec(t *testing.T) entity.Spec {
	t.Helper()
	spec, err := entity.NewSpec("dataset", []entity.SearchableField{
		{Name: "name", Boost: 4, QueryByDefault: true},
		{Name: "description", QueryByDefault: true},
		{Name: "fieldPaths", QueryByDefault: true},
		{Name: "platform", AddToFilters: true, DisplayName: "Platform"},
		{Name: "origin", AddToFilters: true, DisplayName: "Environment"},
		{Name: "tags", AddToFilters: true, DisplayName: "Tags"},
	})
	if err != nil {
		t.Fatalf("entity.NewSpec: %v", err)
	}
	return spec
}

func datasetHandler(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(datasetSpec(t), []string{"dataset"}, Config{}, zap.NewNop())
}

func TestBuildSearchRequest(t *testing.T) {
	h := datasetHandler(t)
	f := filter.New(criterion("platform", "hive"))
	sortCrit := filter.SortCriterion{Field: "name", Order: filter.SortDescending}

	req, err := h.BuildSearchRequest("events", f, sortCrit, 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.From != 10 || req.Size != 20 {
		t.Errorf("pagination = %d/%d", req.From, req.Size)
	}

	root, ok := req.Query.(*db.BoolQuery)
	if !ok || len(root.Must) != 2 {
		t.Fatalf("expected text AND filter at the root, got %#v", req.Query)
	}
	if len(req.Aggregations) != 3 {
		t.Fatalf("expected one aggregation per facet field, got %d", len(req.Aggregations))
	}
	if req.Aggregations[0].Name != "platform" || req.Aggregations[0].Field != "platform.keyword" {
		t.Errorf("first aggregation = %+v", req.Aggregations[0])
	}
	if req.Aggregations[0].Size != DefaultMaxTermBucketSize {
		t.Errorf("bucket size = %d", req.Aggregations[0].Size)
	}
	if len(req.Sort) != 1 || req.Sort[0].Field != "name.keyword" || !req.Sort[0].Descending {
		t.Errorf("sort = %+v", req.Sort)
	}
	if req.Highlight == nil || len(req.Highlight.Fields) != 6 {
		t.Errorf("highlight = %+v", req.Highlight)
	}
}

func TestBuildSearchRequest_ScopesEntityType(t *testing.T) {
	h := datasetHandler(t)
	req, err := h.BuildSearchRequest("*", filter.Filter{}, filter.SortCriterion{}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := req.Query.(*db.BoolQuery)
	compiled := root.Must[1].(*db.BoolQuery)

	var scoped *db.TermsQuery
	for _, clause := range compiled.Must {
		if tq, ok := clause.(*db.TermsQuery); ok && tq.Field == EntityTypeField+filter.KeywordSuffix {
			scoped = tq
		}
	}
	if scoped == nil {
		t.Fatal("expected an entity type scope clause")
	}
	if len(scoped.Values) != 1 || scoped.Values[0] != "dataset" {
		t.Errorf("scope values = %v", scoped.Values)
	}
}

func TestBuildFilterRequest_NoScoringExtras(t *testing.T) {
	h := datasetHandler(t)
	req, err := h.BuildFilterRequest(filter.Filter{}, filter.SortCriterion{}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Aggregations) != 0 || req.Highlight != nil {
		t.Error("filter request must not carry aggregations or highlighting")
	}
}

func TestBuildAggregationRequest(t *testing.T) {
	h := datasetHandler(t)
	req, err := h.BuildAggregationRequest("platform", filter.Filter{}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Size != 0 {
		t.Errorf("aggregation request must not fetch hits, size = %d", req.Size)
	}
	if len(req.Aggregations) != 1 || req.Aggregations[0].Field != "platform.keyword" ||
		req.Aggregations[0].Size != 50 {
		t.Errorf("aggregations = %+v", req.Aggregations)
	}
}

func TestExtractResult(t *testing.T) {
	h := datasetHandler(t)
	resp := &db.SearchResponse{
		TotalHits: 42,
		Hits: []db.Hit{
			{
				ID:    "urn:ms:dataset:(hive,logging_events,PROD)",
				Score: 3.5,
				Source: map[string]any{
					"urn":  "urn:ms:dataset:(hive,logging_events,PROD)",
					"name": "logging_events",
				},
				Highlights: map[string][]string{
					"name":          {"logging_events"},
					"fieldPaths.keyword": {"event_name"},
				},
			},
		},
	}

	result, err := h.ExtractResult(resp, filter.Filter{}, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NumEntities != 42 || result.From != 5 || result.PageSize != 10 {
		t.Errorf("framing = %d/%d/%d", result.NumEntities, result.From, result.PageSize)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(result.Entities))
	}
	e := result.Entities[0]
	if e.URN.EntityType() != "dataset" {
		t.Errorf("urn = %v", e.URN)
	}
	if e.Score != 3.5 {
		t.Errorf("score = %v", e.Score)
	}
	if e.Features[search.FeatureEngineScore] != 3.5 {
		t.Errorf("features = %v", e.Features)
	}

	matched := make(map[string]string, len(e.MatchedFields))
	for _, mf := range e.MatchedFields {
		matched[mf.Name] = mf.Value
	}
	if matched["name"] != "logging_events" {
		t.Errorf("matched fields = %v", e.MatchedFields)
	}
	// Keyword subfields fold back into their logical parent field.
	if matched["fieldPaths"] != "event_name" {
		t.Errorf("matched fields = %v", e.MatchedFields)
	}
}

func TestExtractResult_BadURN(t *testing.T) {
	h := datasetHandler(t)
	resp := &db.SearchResponse{
		TotalHits: 1,
		Hits:      []db.Hit{{ID: "not-a-urn", Source: map[string]any{}}},
	}
	if _, err := h.ExtractResult(resp, filter.Filter{}, 0, 10); err == nil {
		t.Fatal("expected an error for an unparseable document urn")
	}
}

func TestHandlerRegistry_MemoizesPerSpec(t *testing.T) {
	specs, err := entity.NewRegistry([]entity.Spec{datasetSpec(t)})
	if err != nil {
		t.Fatalf("entity.NewRegistry: %v", err)
	}
	registry := NewHandlerRegistry(specs, Config{}, zap.NewNop())

	first, err := registry.ForEntity("dataset")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := registry.ForEntity("dataset")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the same handler instance for repeated lookups")
	}
}

func TestHandlerRegistry_UnknownEntity(t *testing.T) {
	specs, err := entity.NewRegistry(nil)
	if err != nil {
		t.Fatalf("entity.NewRegistry: %v", err)
	}
	registry := NewHandlerRegistry(specs, Config{}, zap.NewNop())
	if _, err := registry.ForEntity("chart"); err == nil {
		t.Fatal("expected an error for an unregistered entity type")
	}
}
