// Package bleve implements the db.Store search engine contract on an
// embedded bleve index.
package bleve

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/helixdata/metasearch/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds index location and field mapping parameters.
type Config struct {
	// Path is the index directory. Empty means an in-memory index.
	Path string
	// KeywordFields lists the fields that also get an unanalyzed
	// <field>.keyword twin for exact term matching, sorting, and facets.
	KeywordFields []string
}

// Store executes engine-neutral search requests against a bleve index.
type Store struct {
	index bleve.Index
}

// NewStore opens or creates a bleve index at cfg.Path. An existing index is
// reused; remove the directory to force a mapping rebuild.
func NewStore(cfg Config) (*Store, error) {
	im := buildIndexMapping(cfg.KeywordFields)

	if cfg.Path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Store{index: index}, nil
	}

	if _, err := os.Stat(cfg.Path); err == nil {
		index, openErr := bleve.Open(cfg.Path)
		if openErr != nil {
			return nil, fmt.Errorf("open index %s: %w", cfg.Path, openErr)
		}
		return &Store{index: index}, nil
	}

	index, err := bleve.New(cfg.Path, im)
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", cfg.Path, err)
	}
	return &Store{index: index}, nil
}

func buildIndexMapping(keywordFields []string) mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()
	for _, field := range keywordFields {
		textMapping := bleve.NewTextFieldMapping()
		textMapping.Analyzer = standard.Name
		textMapping.Store = true
		textMapping.IncludeTermVectors = true

		keywordMapping := bleve.NewTextFieldMapping()
		keywordMapping.Analyzer = keyword.Name
		keywordMapping.Name = field + ".keyword"
		keywordMapping.Store = false
		keywordMapping.IncludeInAll = false

		docMapping.AddFieldMappingsAt(field, textMapping, keywordMapping)
	}
	im.DefaultMapping = docMapping
	return im
}

// Index upserts one document. Boolean values are indexed as "true"/"false"
// strings so they stay matchable as terms.
func (s *Store) Index(_ context.Context, id string, doc map[string]any) error {
	if id == "" {
		return &db.Error{Op: db.OpIndex, Err: fmt.Errorf("document id is required")}
	}
	if err := s.index.Index(id, normalizeDocument(doc)); err != nil {
		return &db.Error{Op: db.OpIndex, Err: err}
	}
	return nil
}

// Delete removes one document.
func (s *Store) Delete(_ context.Context, id string) error {
	if err := s.index.Delete(id); err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	return nil
}

// Search compiles and executes one engine request.
func (s *Store) Search(_ context.Context, req *db.SearchRequest) (*db.SearchResponse, error) {
	q, err := compileQuery(req.Query)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	sr := bleve.NewSearchRequestOptions(q, req.Size, req.From, false)
	sr.Fields = []string{"*"}
	if req.Highlight != nil {
		sr.IncludeLocations = true
	}
	if len(req.Sort) > 0 {
		order := make([]string, 0, len(req.Sort))
		for _, sortSpec := range req.Sort {
			field := sortSpec.Field
			if sortSpec.Descending {
				field = "-" + field
			}
			order = append(order, field)
		}
		sr.SortBy(order)
	}
	for _, agg := range req.Aggregations {
		sr.AddFacet(agg.Name, bleve.NewFacetRequest(agg.Field, agg.Size))
	}

	raw, err := s.index.Search(sr)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	resp := &db.SearchResponse{
		TotalHits:    int64(raw.Total),
		Hits:         make([]db.Hit, 0, len(raw.Hits)),
		Aggregations: make(map[string][]db.Bucket, len(raw.Facets)),
	}

	for _, hit := range raw.Hits {
		h := db.Hit{
			ID:     hit.ID,
			Score:  hit.Score,
			Source: hit.Fields,
		}
		if req.Highlight != nil {
			h.Highlights = extractHighlights(hit.Locations, hit.Fields, req.Highlight.Fields)
		}
		resp.Hits = append(resp.Hits, h)
	}

	for name, facet := range raw.Facets {
		buckets := make([]db.Bucket, 0, len(facet.Terms.Terms()))
		for _, term := range facet.Terms.Terms() {
			buckets = append(buckets, db.Bucket{Value: term.Term, Count: int64(term.Count)})
		}
		resp.Aggregations[name] = buckets
	}

	return resp, nil
}

// Close releases the underlying index.
func (s *Store) Close() error {
	return s.index.Close()
}

// DocCount returns the number of indexed documents.
func (s *Store) DocCount() (uint64, error) {
	return s.index.DocCount()
}

// extractHighlights reports, for each located field covered by the requested
// highlight patterns, the literal stored value(s) of its logical parent
// field. This mirrors empty pre/post highlight tags: fragments carry the
// field text untouched, which is enough to attribute matches to fields.
func extractHighlights(
	locations search.FieldTermLocationMap, fields map[string]any, patterns []string,
) map[string][]string {
	if len(locations) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for field := range locations {
		if !matchesHighlightPattern(field, patterns) {
			continue
		}
		parent := strings.TrimSuffix(field, ".keyword")
		for _, value := range stringValues(fields[parent]) {
			out[field] = append(out[field], value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func matchesHighlightPattern(field string, patterns []string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, ".*"); ok {
			if field == prefix || strings.HasPrefix(field, prefix+".") {
				return true
			}
			continue
		}
		if field == p {
			return true
		}
	}
	return false
}

func stringValues(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, stringValues(item)...)
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}

func normalizeDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return "true"
		}
		return "false"
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
