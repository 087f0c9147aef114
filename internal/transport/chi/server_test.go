package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/domain"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/lineage"
	"github.com/helixdata/metasearch/internal/domain/search"
	"github.com/helixdata/metasearch/internal/domain/urn"
	lineageuc "github.com/helixdata/metasearch/internal/usecase/lineage"
	searchuc "github.com/helixdata/metasearch/internal/usecase/search"
)

type stubRepo struct {
	entityTypes map[string]struct{}
}

func (s *stubRepo) checkEntity(entityType string) error {
	if _, ok := s.entityTypes[entityType]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrEntityNotRegistered, entityType)
	}
	return nil
}

func (s *stubRepo) SearchAcrossEntities(
	_ context.Context, entityTypes []string, _ string,
	_ filter.Filter, _ filter.SortCriterion, from, size int,
) (search.Result, error) {
	for _, t := range entityTypes {
		if err := s.checkEntity(t); err != nil {
			return search.Result{}, err
		}
	}
	return search.Result{
		Entities:    []search.Entity{{URN: urn.MustParse("urn:ms:dataset:a")}},
		From:        from,
		PageSize:    size,
		NumEntities: 1,
	}, nil
}

func (s *stubRepo) Autocomplete(
	_ context.Context, entityType, query, _ string, _ int,
) (search.AutoCompleteResult, error) {
	if err := s.checkEntity(entityType); err != nil {
		return search.AutoCompleteResult{}, err
	}
	return search.AutoCompleteResult{Query: query, Suggestions: []string{"logging_events"}}, nil
}

func (s *stubRepo) Browse(
	_ context.Context, entityType, _ string, _ filter.Filter, from, size int,
) (search.BrowseResult, error) {
	if err := s.checkEntity(entityType); err != nil {
		return search.BrowseResult{}, err
	}
	return search.BrowseResult{From: from, PageSize: size}, nil
}

type stubGraph struct{}

func (stubGraph) GetLineage(
	_ context.Context, _ urn.URN, _ lineage.Direction, _, _, _ int,
) (lineage.Result, error) {
	return lineage.Result{
		Relationships: []lineage.Relationship{
			{Entity: urn.MustParse("urn:ms:dataset:a"), Degree: 1},
		},
		Total: 1,
	}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := &stubRepo{entityTypes: map[string]struct{}{"dataset": {}}}
	searchSvc := searchuc.New(repo, nil, searchuc.Config{}, nil, zap.NewNop())
	lineageSvc := lineageuc.New(stubGraph{}, searchSvc, nil, nil, zap.NewNop())
	server := NewServer(searchSvc, lineageSvc, nil, zap.NewNop())

	r := chirouter.NewRouter()
	server.Routes(r)
	return r
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHandleSearch(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/search",
		`{"entityTypes":["dataset"],"query":"events","size":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var result search.Result
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.NumEntities != 1 || len(result.Entities) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleSearch_BadBody(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/search", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandleSearch_UnknownEntity(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/search",
		`{"entityTypes":["chart"],"query":"*"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != CodeEntityNotRegistered {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestHandleSearch_NegativeWindow(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/search",
		`{"entityTypes":["dataset"],"query":"*","from":-1}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandleAutocomplete(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/autocomplete",
		`{"entityType":"dataset","query":"log"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var result search.AutoCompleteResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Suggestions) != 1 {
		t.Errorf("suggestions = %v", result.Suggestions)
	}
}

func TestHandleAutocomplete_MissingEntityType(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/autocomplete", `{"query":"log"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandleBrowse(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/browse",
		`{"entityType":"dataset","path":"/prod"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
}

func TestHandleLineageSearch(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/lineage/search",
		`{"urn":"urn:ms:dataset:src","direction":"DOWNSTREAM","query":"*"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var result lineage.SearchResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Aggregations) == 0 || result.Aggregations[0].Name != "degree" {
		t.Errorf("aggregations = %+v", result.Aggregations)
	}
}

func TestHandleLineageSearch_InvalidDegree(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/lineage/search",
		`{"urn":"urn:ms:dataset:src","direction":"DOWNSTREAM","query":"*",
		  "filter":{"or":[{"and":[{"field":"degree","values":["5"],"condition":"EQUAL"}]}]}}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != CodeInvalidDegree {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestHandleLineageSearch_BadDirection(t *testing.T) {
	rr := postJSON(t, newTestRouter(t), "/v1/lineage/search",
		`{"urn":"urn:ms:dataset:src","direction":"SIDEWAYS"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}
