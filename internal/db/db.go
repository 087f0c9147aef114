// Package db defines the engine-neutral search request and response types
// exchanged with the search engine store, plus the key-value contract used
// by cache backends.
package db

import "context"

// Query is the closed set of engine query variants. Implementations are the
// *Query structs below; the engine store compiles them to its native form.
type Query interface {
	isQuery()
}

// BoolQuery combines sub-queries with boolean semantics. When any Should
// clauses are present at least one of them must match, regardless of Must
// clauses; they are disjunction branches, not scoring hints. A BoolQuery
// with no clauses matches everything.
type BoolQuery struct {
	Must    []Query
	Should  []Query
	MustNot []Query
}

// TermQuery matches an exact value on a keyword field. Boost zero means 1.0.
type TermQuery struct {
	Field string
	Value string
	Boost float64
}

// TermsQuery matches any of the values on a keyword field.
type TermsQuery struct {
	Field  string
	Values []string
}

// MatchQuery matches analyzed text on a field with a scoring boost.
type MatchQuery struct {
	Field string
	Value string
	Boost float64
}

// PrefixQuery matches terms starting with Value on a field.
type PrefixQuery struct {
	Field string
	Value string
}

// WildcardQuery matches terms against a pattern with * wildcards.
type WildcardQuery struct {
	Field   string
	Pattern string
}

// RangeQuery matches values in a bounded interval. Bounds are string-encoded;
// the store compares numerically when both the bound and the indexed value
// parse as numbers.
type RangeQuery struct {
	Field        string
	Min          string
	Max          string
	MinInclusive bool
	MaxInclusive bool
}

// MatchAllQuery matches every document.
type MatchAllQuery struct{}

func (*BoolQuery) isQuery()     {}
func (*TermQuery) isQuery()     {}
func (*TermsQuery) isQuery()    {}
func (*MatchQuery) isQuery()    {}
func (*PrefixQuery) isQuery()   {}
func (*WildcardQuery) isQuery() {}
func (*RangeQuery) isQuery()    {}
func (*MatchAllQuery) isQuery() {}

// SortSpec orders hits by an indexed field.
type SortSpec struct {
	Field      string
	Descending bool
}

// TermsAggregation requests value->count buckets for one field.
type TermsAggregation struct {
	Name  string
	Field string
	Size  int
}

// HighlightSpec requests matched-fragment reporting for the given fields.
// Empty pre/post tags make fragments carry the literal field text.
type HighlightSpec struct {
	Fields  []string
	PreTag  string
	PostTag string
}

// SearchRequest is one executable engine request.
type SearchRequest struct {
	Query        Query
	From         int
	Size         int
	Sort         []SortSpec
	Aggregations []TermsAggregation
	Highlight    *HighlightSpec
}

// Hit is one matched document.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
	// Highlights maps an indexed field (subfields included) to the literal
	// fragment values that matched.
	Highlights map[string][]string
}

// Bucket is one aggregation bucket.
type Bucket struct {
	Value string
	Count int64
}

// SearchResponse is the raw engine answer before result reshaping.
type SearchResponse struct {
	TotalHits    int64
	Hits         []Hit
	Aggregations map[string][]Bucket
}

// Store is the search engine contract consumed by the entity search layer.
type Store interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	Index(ctx context.Context, id string, doc map[string]any) error
	Delete(ctx context.Context, id string) error
	Close() error
}
