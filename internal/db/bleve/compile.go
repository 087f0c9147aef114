package bleve

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/helixdata/metasearch/internal/db"
)

// compileQuery lowers the engine-neutral query AST to bleve queries.
func compileQuery(q db.Query) (query.Query, error) {
	switch qt := q.(type) {
	case nil:
		return bleve.NewMatchAllQuery(), nil
	case *db.MatchAllQuery:
		return bleve.NewMatchAllQuery(), nil
	case *db.BoolQuery:
		return compileBool(qt)
	case *db.TermQuery:
		tq := bleve.NewTermQuery(qt.Value)
		tq.SetField(qt.Field)
		if qt.Boost > 0 {
			tq.SetBoost(qt.Boost)
		}
		return tq, nil
	case *db.TermsQuery:
		return compileTerms(qt)
	case *db.MatchQuery:
		mq := bleve.NewMatchQuery(qt.Value)
		mq.SetField(qt.Field)
		if qt.Boost > 0 {
			mq.SetBoost(qt.Boost)
		}
		return mq, nil
	case *db.PrefixQuery:
		pq := bleve.NewPrefixQuery(qt.Value)
		pq.SetField(qt.Field)
		return pq, nil
	case *db.WildcardQuery:
		wq := bleve.NewWildcardQuery(qt.Pattern)
		wq.SetField(qt.Field)
		return wq, nil
	case *db.RangeQuery:
		return compileRange(qt)
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func compileBool(q *db.BoolQuery) (query.Query, error) {
	must, err := compileAll(q.Must)
	if err != nil {
		return nil, err
	}
	should, err := compileAll(q.Should)
	if err != nil {
		return nil, err
	}
	mustNot, err := compileAll(q.MustNot)
	if err != nil {
		return nil, err
	}

	if len(must) == 0 && len(should) == 0 {
		if len(mustNot) == 0 {
			return bleve.NewMatchAllQuery(), nil
		}
		// bleve boolean queries need a positive clause to subtract from.
		must = append(must, bleve.NewMatchAllQuery())
	}

	bq := query.NewBooleanQuery(must, should, mustNot)
	if len(should) > 0 {
		// Should clauses are disjunction branches. Without this, bleve
		// downgrades them to optional scoring hints as soon as a must
		// clause is present.
		bq.SetMinShould(1)
	}
	return bq, nil
}

func compileAll(qs []db.Query) ([]query.Query, error) {
	if len(qs) == 0 {
		return nil, nil
	}
	out := make([]query.Query, 0, len(qs))
	for _, q := range qs {
		compiled, err := compileQuery(q)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

func compileTerms(q *db.TermsQuery) (query.Query, error) {
	if len(q.Values) == 0 {
		return nil, fmt.Errorf("terms query on field %q has no values", q.Field)
	}
	terms := make([]query.Query, 0, len(q.Values))
	for _, value := range q.Values {
		tq := bleve.NewTermQuery(value)
		tq.SetField(q.Field)
		terms = append(terms, tq)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return bleve.NewDisjunctionQuery(terms...), nil
}

// compileRange prefers numeric comparison when both bounds parse as numbers;
// otherwise the comparison falls back to term (lexicographic) ordering.
func compileRange(q *db.RangeQuery) (query.Query, error) {
	if q.Min == "" && q.Max == "" {
		return nil, fmt.Errorf("range query on field %q has no bounds", q.Field)
	}

	minNum, minNumOK := parseBound(q.Min)
	maxNum, maxNumOK := parseBound(q.Max)
	numeric := (q.Min == "" || minNumOK) && (q.Max == "" || maxNumOK)

	if numeric {
		nq := bleve.NewNumericRangeInclusiveQuery(minNum, maxNum, boolPtr(q.MinInclusive), boolPtr(q.MaxInclusive))
		nq.SetField(q.Field)
		return nq, nil
	}

	tq := bleve.NewTermRangeInclusiveQuery(q.Min, q.Max, boolPtr(q.MinInclusive), boolPtr(q.MaxInclusive))
	tq.SetField(q.Field)
	return tq, nil
}

func parseBound(s string) (*float64, bool) {
	if s == "" {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

func boolPtr(b bool) *bool { return &b }
