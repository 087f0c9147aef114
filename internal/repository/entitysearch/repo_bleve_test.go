package entitysearch

import (
	"context"
	"testing"

	"go.uber.org/zap"

	dbBleve "github.com/helixdata/metasearch/internal/db/bleve"
	"github.com/helixdata/metasearch/internal/domain/entity"
	"github.com/helixdata/metasearch/internal/domain/filter"
)

// End-to-end coverage of the handler-built request against a real index:
// mock-store tests cannot catch the engine reinterpreting the emitted
// boolean structure.

func newBleveRepo(t *testing.T) (*Repo, *dbBleve.Store) {
	t.Helper()
	spec, err := entity.NewSpec("dataset", []entity.SearchableField{
		{Name: "name", Boost: 4, QueryByDefault: true},
		{Name: "platform", AddToFilters: true, DisplayName: "Platform"},
		{Name: "subtypes", AddToFilters: true, DisplayName: "Sub Type"},
	})
	if err != nil {
		t.Fatalf("entity.NewSpec: %v", err)
	}
	specs, err := entity.NewRegistry([]entity.Spec{spec})
	if err != nil {
		t.Fatalf("entity.NewRegistry: %v", err)
	}
	store, err := dbBleve.NewStore(dbBleve.Config{KeywordFields: []string{
		URNField, EntityTypeField, "name", "platform", "subtypes", RemovedField,
	}})
	if err != nil {
		t.Fatalf("dbBleve.NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store, NewHandlerRegistry(specs, Config{}, zap.NewNop())), store
}

func indexBleveDatasets(t *testing.T, store *dbBleve.Store) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]map[string]any{
		"urn:ms:dataset:(hive,orders,PROD)": {
			"name": "orders", "platform": "hive", "subtypes": "view",
		},
		"urn:ms:dataset:(hive,users,PROD)": {
			"name": "users", "platform": "hive", "subtypes": "table",
		},
		"urn:ms:dataset:(snowflake,sessions,PROD)": {
			"name": "sessions", "platform": "snowflake", "subtypes": "view",
		},
		"urn:ms:dataset:(snowflake,payments,PROD)": {
			"name": "payments", "platform": "snowflake", "subtypes": "table",
		},
	}
	for id, doc := range docs {
		doc["urn"] = id
		doc["entityType"] = "dataset"
		doc["removed"] = false
		if err := store.Index(ctx, id, doc); err != nil {
			t.Fatalf("store.Index(%s): %v", id, err)
		}
	}
}

func TestRepoSearch_FilterRestrictsHits(t *testing.T) {
	repo, store := newBleveRepo(t)
	indexBleveDatasets(t, store)

	result, err := repo.Search(context.Background(), "dataset", "*",
		filter.New(criterion("platform", "hive")),
		filter.SortCriterion{}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NumEntities != 2 {
		t.Fatalf("platform=hive matched %d entities, want 2", result.NumEntities)
	}
	for _, e := range result.Entities {
		if e.URN.TupleParts()[0] != "hive" {
			t.Errorf("non-hive entity leaked through the filter: %s", e.URN)
		}
	}
}

func TestRepoSearch_FilterDisjunctionRestrictsHits(t *testing.T) {
	repo, store := newBleveRepo(t)
	indexBleveDatasets(t, store)

	// (platform = hive) OR (subtypes = view)
	f := filter.Filter{Or: []filter.Conjunction{
		{And: []filter.Criterion{criterion("platform", "hive")}},
		{And: []filter.Criterion{criterion("subtypes", "view")}},
	}}
	result, err := repo.Search(context.Background(), "dataset", "*",
		f, filter.SortCriterion{}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NumEntities != 3 {
		t.Fatalf("disjunction matched %d entities, want 3", result.NumEntities)
	}
	for _, e := range result.Entities {
		if e.URN.Key() == "(snowflake,payments,PROD)" {
			t.Errorf("entity outside both branches leaked through: %s", e.URN)
		}
	}
}

func TestRepoSearch_URNCriterionRestrictsHits(t *testing.T) {
	repo, store := newBleveRepo(t)
	indexBleveDatasets(t, store)

	// The shape lineage batches emit: an allowlist of target urns ANDed
	// into the filter.
	f := filter.New(criterion(URNField,
		"urn:ms:dataset:(hive,orders,PROD)",
		"urn:ms:dataset:(snowflake,sessions,PROD)",
	))
	result, err := repo.Search(context.Background(), "dataset", "*",
		f, filter.SortCriterion{}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NumEntities != 2 {
		t.Fatalf("urn allowlist matched %d entities, want 2", result.NumEntities)
	}
	for _, e := range result.Entities {
		if key := e.URN.Key(); key != "(hive,orders,PROD)" && key != "(snowflake,sessions,PROD)" {
			t.Errorf("entity outside the urn allowlist: %s", e.URN)
		}
	}
}
