package entitysearch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/helixdata/metasearch/internal/db"
	"github.com/helixdata/metasearch/internal/domain"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/search"
)

// maxBrowseGroups bounds the path aggregation a browse request fans out to.
const maxBrowseGroups = 100

// store is the consumer interface for entity search operations (ISP).
type store interface {
	Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResponse, error)
}

// Repo implements the raw entity search operations over the engine store.
// Requests are built and results reshaped by the per-entity handlers.
type Repo struct {
	store    store
	handlers *HandlerRegistry
}

// New creates an entity search repository.
func New(s store, handlers *HandlerRegistry) *Repo {
	return &Repo{store: s, handlers: handlers}
}

// Search runs a scored free-text search over one entity type.
func (r *Repo) Search(
	ctx context.Context, entityType, input string,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
) (search.Result, error) {
	handler, err := r.handlers.ForEntity(entityType)
	if err != nil {
		return search.Result{}, err
	}
	return r.search(ctx, handler, input, f, sortCriterion, from, size)
}

// SearchAcrossEntities runs one scored search over several entity types at
// once, using the composite spec of the listed types. An empty list searches
// every registered type.
func (r *Repo) SearchAcrossEntities(
	ctx context.Context, entityTypes []string, input string,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
) (search.Result, error) {
	handler, err := r.handlers.ForEntities(entityTypes)
	if err != nil {
		return search.Result{}, err
	}
	return r.search(ctx, handler, input, f, sortCriterion, from, size)
}

func (r *Repo) search(
	ctx context.Context, handler *Handler, input string,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
) (search.Result, error) {
	req, err := handler.BuildSearchRequest(input, f, sortCriterion, from, size)
	if err != nil {
		return search.Result{}, err
	}
	resp, err := r.store.Search(ctx, req)
	if err != nil {
		return search.Result{}, fmt.Errorf("%w: search %s: %w", domain.ErrEngine, handler.Spec().Name(), err)
	}
	return handler.ExtractResult(resp, f, from, size)
}

// Filter lists entities of one type matching a structured filter, without
// free-text scoring, aggregations, or highlighting.
func (r *Repo) Filter(
	ctx context.Context, entityType string,
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
) (search.Result, error) {
	handler, err := r.handlers.ForEntity(entityType)
	if err != nil {
		return search.Result{}, err
	}
	req, err := handler.BuildFilterRequest(f, sortCriterion, from, size)
	if err != nil {
		return search.Result{}, err
	}
	resp, err := r.store.Search(ctx, req)
	if err != nil {
		return search.Result{}, fmt.Errorf("%w: filter %s: %w", domain.ErrEngine, entityType, err)
	}
	entities, err := handler.extractEntities(resp)
	if err != nil {
		return search.Result{}, err
	}
	return search.Result{
		Entities:    entities,
		From:        from,
		PageSize:    size,
		NumEntities: int(resp.TotalHits),
	}, nil
}

// Autocomplete suggests values of one field whose terms start with the query
// prefix. An empty field falls back to the spec's first default query field.
// Deleted entities are excluded.
func (r *Repo) Autocomplete(
	ctx context.Context, entityType, query, field string, limit int,
) (search.AutoCompleteResult, error) {
	handler, err := r.handlers.ForEntity(entityType)
	if err != nil {
		return search.AutoCompleteResult{}, err
	}
	if field == "" {
		defaults := handler.Spec().DefaultQueryFields()
		if len(defaults) == 0 {
			return search.AutoCompleteResult{}, fmt.Errorf(
				"autocomplete %s: no default query fields", entityType)
		}
		field = defaults[0].Name
	}

	scope, err := handler.scopedFilterQuery(filter.Filter{})
	if err != nil {
		return search.AutoCompleteResult{}, err
	}
	// The standard analyzer lowercases indexed terms.
	prefix := &db.PrefixQuery{Field: field, Value: strings.ToLower(query)}

	resp, err := r.store.Search(ctx, &db.SearchRequest{
		Query: &db.BoolQuery{Must: []db.Query{prefix, scope}},
		Size:  limit,
	})
	if err != nil {
		return search.AutoCompleteResult{}, fmt.Errorf("%w: autocomplete %s: %w", domain.ErrEngine, entityType, err)
	}

	suggestions := make([]string, 0, len(resp.Hits))
	seen := make(map[string]struct{}, len(resp.Hits))
	for _, hit := range resp.Hits {
		for _, value := range sourceValues(hit.Source[field]) {
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			suggestions = append(suggestions, value)
		}
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return search.AutoCompleteResult{Query: query, Suggestions: suggestions}, nil
}

// Browse lists the entities attached to a browse path and the child groups
// one level below it. Groups come from a terms aggregation over the deeper
// paths; entities from an exact path match.
func (r *Repo) Browse(
	ctx context.Context, entityType, path string,
	f filter.Filter, from, size int,
) (search.BrowseResult, error) {
	handler, err := r.handlers.ForEntity(entityType)
	if err != nil {
		return search.BrowseResult{}, err
	}

	groups, err := r.browseGroups(ctx, handler, path, f)
	if err != nil {
		return search.BrowseResult{}, fmt.Errorf("browse groups %s: %w", entityType, err)
	}

	scoped, err := handler.scopedFilterQuery(f)
	if err != nil {
		return search.BrowseResult{}, err
	}
	exact := &db.TermQuery{Field: BrowsePathField + filter.KeywordSuffix, Value: path}
	resp, err := r.store.Search(ctx, &db.SearchRequest{
		Query: &db.BoolQuery{Must: []db.Query{exact, scoped}},
		From:  from,
		Size:  size,
	})
	if err != nil {
		return search.BrowseResult{}, fmt.Errorf("%w: browse %s: %w", domain.ErrEngine, entityType, err)
	}
	entities, err := handler.extractEntities(resp)
	if err != nil {
		return search.BrowseResult{}, err
	}

	return search.BrowseResult{
		Entities:    entities,
		Groups:      groups,
		From:        from,
		PageSize:    size,
		NumEntities: int(resp.TotalHits),
	}, nil
}

// browseGroups aggregates paths below the prefix and folds them into the
// immediate child segments with their entity counts.
func (r *Repo) browseGroups(
	ctx context.Context, handler *Handler, path string, f filter.Filter,
) ([]search.BrowseGroup, error) {
	scoped, err := handler.scopedFilterQuery(f)
	if err != nil {
		return nil, err
	}
	pathField := BrowsePathField + filter.KeywordSuffix
	prefix := strings.TrimSuffix(path, "/") + "/"
	resp, err := r.store.Search(ctx, &db.SearchRequest{
		Query: &db.BoolQuery{Must: []db.Query{
			&db.PrefixQuery{Field: pathField, Value: prefix},
			scoped,
		}},
		Size: 0,
		Aggregations: []db.TermsAggregation{
			{Name: BrowsePathField, Field: pathField, Size: maxBrowseGroups},
		},
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, bucket := range resp.Aggregations[BrowsePathField] {
		rest, ok := strings.CutPrefix(bucket.Value, prefix)
		if !ok || rest == "" {
			continue
		}
		segment, _, _ := strings.Cut(rest, "/")
		counts[segment] += bucket.Count
	}

	groups := make([]search.BrowseGroup, 0, len(counts))
	for name, count := range counts {
		groups = append(groups, search.BrowseGroup{Name: name, Count: count})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// sourceValues flattens a stored document value into its string values.
func sourceValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, sourceValues(item)...)
		}
		return out
	default:
		return nil
	}
}

// AggregateByValue returns value->count buckets for one field across the
// given entity types, honoring the structured filter.
func (r *Repo) AggregateByValue(
	ctx context.Context, entityTypes []string, field string,
	f filter.Filter, limit int,
) (map[string]int64, error) {
	handler, err := r.handlers.ForEntities(entityTypes)
	if err != nil {
		return nil, err
	}
	req, err := handler.BuildAggregationRequest(field, f, limit)
	if err != nil {
		return nil, err
	}
	resp, err := r.store.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate %s: %w", domain.ErrEngine, field, err)
	}
	counts := make(map[string]int64)
	for _, bucket := range resp.Aggregations[field] {
		counts[bucket.Value] = bucket.Count
	}
	return counts, nil
}
