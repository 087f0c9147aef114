package entitysearch

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/db"
	"github.com/helixdata/metasearch/internal/domain/entity"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/search"
	"github.com/helixdata/metasearch/internal/domain/urn"
)

// Index document fields every entity shares.
const (
	URNField        = "urn"
	EntityTypeField = "entityType"
	BrowsePathField = "browsePaths"
)

// DefaultMaxTermBucketSize caps facet buckets per terms aggregation.
const DefaultMaxTermBucketSize = 20

// Config tunes per-handler request construction.
type Config struct {
	MaxTermBucketSize int
}

// Handler builds engine requests for one entity spec and decompiles raw
// responses into typed results. Immutable after construction; safe for
// concurrent use.
type Handler struct {
	spec               entity.Spec
	entityTypes        []string
	facetFields        []string
	defaultQueryFields []string
	displayNames       map[string]string
	maxTermBucketSize  int
	logger             *zap.Logger
}

// NewHandler creates a request handler for the given spec. entityTypes
// scopes every request to those document types; a composite spec passes the
// full list it was merged from.
func NewHandler(spec entity.Spec, entityTypes []string, cfg Config, logger *zap.Logger) *Handler {
	displayNames := make(map[string]string)
	var facetFields, defaultQueryFields []string
	for _, f := range spec.Fields() {
		if f.AddToFilters {
			facetFields = append(facetFields, f.Name)
			if name, ok := spec.FacetDisplayName(f.Name); ok {
				displayNames[f.Name] = name
			}
		}
		if f.QueryByDefault {
			defaultQueryFields = append(defaultQueryFields, f.Name)
		}
	}
	bucketSize := cfg.MaxTermBucketSize
	if bucketSize <= 0 {
		bucketSize = DefaultMaxTermBucketSize
	}
	return &Handler{
		spec:               spec,
		entityTypes:        entityTypes,
		facetFields:        facetFields,
		defaultQueryFields: defaultQueryFields,
		displayNames:       displayNames,
		maxTermBucketSize:  bucketSize,
		logger:             logger,
	}
}

// Spec returns the entity spec the handler was built for.
func (h *Handler) Spec() entity.Spec { return h.spec }

// BuildSearchRequest composes the full scored request: free-text query ANDed
// with the compiled filter, one terms aggregation per facet field, and
// highlighting over the default query fields.
func (h *Handler) BuildSearchRequest(
	input string, f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
) (*db.SearchRequest, error) {
	filterQuery, err := h.scopedFilterQuery(f)
	if err != nil {
		return nil, err
	}
	return &db.SearchRequest{
		Query: &db.BoolQuery{
			Must: []db.Query{BuildTextQuery(h.spec, input), filterQuery},
		},
		From:         from,
		Size:         size,
		Sort:         buildSortOrder(sortCriterion),
		Aggregations: h.buildAggregations(),
		Highlight:    BuildHighlightSpec(h.spec),
	}, nil
}

// BuildFilterRequest composes a pure filter listing request: match-all text,
// no aggregations or highlighting. Used for browse-style listing.
func (h *Handler) BuildFilterRequest(
	f filter.Filter, sortCriterion filter.SortCriterion, from, size int,
) (*db.SearchRequest, error) {
	filterQuery, err := h.scopedFilterQuery(f)
	if err != nil {
		return nil, err
	}
	return &db.SearchRequest{
		Query: filterQuery,
		From:  from,
		Size:  size,
		Sort:  buildSortOrder(sortCriterion),
	}, nil
}

// BuildAggregationRequest composes a zero-hit request carrying a single
// terms aggregation for one field.
func (h *Handler) BuildAggregationRequest(field string, f filter.Filter, limit int) (*db.SearchRequest, error) {
	filterQuery, err := h.scopedFilterQuery(f)
	if err != nil {
		return nil, err
	}
	return &db.SearchRequest{
		Query: filterQuery,
		Size:  0,
		Aggregations: []db.TermsAggregation{
			{Name: field, Field: keywordFieldName(field), Size: limit},
		},
	}, nil
}

func (h *Handler) scopedFilterQuery(f filter.Filter) (db.Query, error) {
	compiled, err := CompileFilter(f)
	if err != nil {
		return nil, err
	}
	if len(h.entityTypes) > 0 {
		compiled.Must = append(compiled.Must, &db.TermsQuery{
			Field:  EntityTypeField + filter.KeywordSuffix,
			Values: h.entityTypes,
		})
	}
	return compiled, nil
}

func (h *Handler) buildAggregations() []db.TermsAggregation {
	aggs := make([]db.TermsAggregation, 0, len(h.facetFields))
	for _, facet := range h.facetFields {
		// Facet fields always carry the keyword subfield.
		aggs = append(aggs, db.TermsAggregation{
			Name:  facet,
			Field: keywordFieldName(facet),
			Size:  h.maxTermBucketSize,
		})
	}
	return aggs
}

func buildSortOrder(s filter.SortCriterion) []db.SortSpec {
	if s.IsZero() {
		return nil
	}
	return []db.SortSpec{{
		Field:      keywordFieldName(s.Field),
		Descending: s.Order == filter.SortDescending,
	}}
}

// ExtractResult reshapes a raw engine response into the typed result model,
// reconciling facet metadata against the input filter.
func (h *Handler) ExtractResult(
	resp *db.SearchResponse, f filter.Filter, from, size int,
) (search.Result, error) {
	entities, err := h.extractEntities(resp)
	if err != nil {
		return search.Result{}, err
	}
	return search.Result{
		Entities:     entities,
		Aggregations: h.extractAggregations(resp, f),
		From:         from,
		PageSize:     size,
		NumEntities:  int(resp.TotalHits),
	}, nil
}

func (h *Handler) extractEntities(resp *db.SearchResponse) ([]search.Entity, error) {
	entities := make([]search.Entity, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		u, err := urnFromHit(hit)
		if err != nil {
			return nil, fmt.Errorf("search document %q: %w", hit.ID, err)
		}
		entities = append(entities, search.Entity{
			URN:           u,
			MatchedFields: h.extractMatchedFields(hit.Highlights),
			Score:         hit.Score,
			Features:      map[string]float64{search.FeatureEngineScore: hit.Score},
		})
	}
	return entities, nil
}

func urnFromHit(hit db.Hit) (urn.URN, error) {
	raw, _ := hit.Source[URNField].(string)
	if raw == "" {
		raw = hit.ID
	}
	return urn.Parse(raw)
}

// extractMatchedFields attributes each highlighted subfield to its logical
// parent field by longest-prefix match against the default query field
// names, deduplicating literal values per field.
func (h *Handler) extractMatchedFields(highlights map[string][]string) []search.MatchedField {
	if len(highlights) == 0 {
		return nil
	}

	subfields := make([]string, 0, len(highlights))
	for subfield := range highlights {
		subfields = append(subfields, subfield)
	}
	sort.Strings(subfields)

	valuesByField := make(map[string]map[string]struct{})
	var fieldOrder []string
	for _, subfield := range subfields {
		fieldName, ok := h.logicalFieldName(subfield)
		if !ok {
			continue
		}
		seen, exists := valuesByField[fieldName]
		if !exists {
			seen = make(map[string]struct{})
			valuesByField[fieldName] = seen
			fieldOrder = append(fieldOrder, fieldName)
		}
		for _, value := range highlights[subfield] {
			seen[value] = struct{}{}
		}
	}

	var out []search.MatchedField
	for _, fieldName := range fieldOrder {
		values := make([]string, 0, len(valuesByField[fieldName]))
		for value := range valuesByField[fieldName] {
			values = append(values, value)
		}
		sort.Strings(values)
		for _, value := range values {
			out = append(out, search.MatchedField{Name: fieldName, Value: value})
		}
	}
	return out
}

// logicalFieldName maps a highlighted subfield such as "name.delimited" to
// its parent logical field "name" by longest-prefix match.
func (h *Handler) logicalFieldName(subfield string) (string, bool) {
	var best string
	for _, fieldName := range h.defaultQueryFields {
		if subfield != fieldName && !strings.HasPrefix(subfield, fieldName+".") {
			continue
		}
		if len(fieldName) > len(best) {
			best = fieldName
		}
	}
	return best, best != ""
}
