package entitysearch

import (
	"fmt"
	"strings"

	"github.com/helixdata/metasearch/internal/db"
	"github.com/helixdata/metasearch/internal/domain"
	"github.com/helixdata/metasearch/internal/domain/filter"
)

// RemovedField is the soft-delete flag field on every indexed document.
const RemovedField = "removed"

// CompileFilter translates a structured filter into an engine boolean query:
// one should-clause per OR branch, each branch ANDing its criteria. Unless
// some criterion references the removed field (either polarity, keyword
// subfield included), a must-not clause excluding soft-deleted documents is
// appended.
func CompileFilter(f filter.Filter) (*db.BoolQuery, error) {
	out := &db.BoolQuery{}

	for _, conj := range f.Or {
		if len(conj.And) == 0 {
			continue
		}
		branch := &db.BoolQuery{}
		for _, crit := range conj.And {
			clause, err := compileCriterion(crit)
			if err != nil {
				return nil, err
			}
			if crit.Negated {
				branch.MustNot = append(branch.MustNot, clause)
			} else {
				branch.Must = append(branch.Must, clause)
			}
		}
		out.Should = append(out.Should, branch)
	}

	if !f.ReferencesField(RemovedField) {
		out.MustNot = append(out.MustNot, &db.MatchQuery{Field: RemovedField, Value: "true"})
	}

	return out, nil
}

func compileCriterion(crit filter.Criterion) (db.Query, error) {
	if crit.Field == "" || len(crit.Values) == 0 {
		return nil, fmt.Errorf("%w: criterion needs a field and at least one value", domain.ErrInvalidFilter)
	}
	keywordField := keywordFieldName(crit.Field)

	switch crit.Condition {
	case filter.CondEqual, "":
		return &db.TermsQuery{Field: keywordField, Values: crit.Values}, nil
	case filter.CondContain:
		return wildcardClauses(keywordField, crit.Values, func(v string) string { return "*" + v + "*" }), nil
	case filter.CondStartWith:
		return wildcardClauses(keywordField, crit.Values, func(v string) string { return v + "*" }), nil
	case filter.CondEndWith:
		return wildcardClauses(keywordField, crit.Values, func(v string) string { return "*" + v }), nil
	case filter.CondGT:
		return &db.RangeQuery{Field: keywordField, Min: crit.Values[0]}, nil
	case filter.CondGTE:
		return &db.RangeQuery{Field: keywordField, Min: crit.Values[0], MinInclusive: true}, nil
	case filter.CondLT:
		return &db.RangeQuery{Field: keywordField, Max: crit.Values[0]}, nil
	case filter.CondLTE:
		return &db.RangeQuery{Field: keywordField, Max: crit.Values[0], MaxInclusive: true}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported condition %q on field %q",
			domain.ErrInvalidFilter, crit.Condition, crit.Field)
	}
}

func wildcardClauses(field string, values []string, pattern func(string) string) db.Query {
	if len(values) == 1 {
		return &db.WildcardQuery{Field: field, Pattern: pattern(values[0])}
	}
	or := &db.BoolQuery{}
	for _, v := range values {
		or.Should = append(or.Should, &db.WildcardQuery{Field: field, Pattern: pattern(v)})
	}
	return or
}

// keywordFieldName maps a logical field to its keyword subfield, leaving
// fields already carrying the suffix untouched.
func keywordFieldName(field string) string {
	if strings.HasSuffix(field, filter.KeywordSuffix) {
		return field
	}
	return field + filter.KeywordSuffix
}

// toFacetField maps a criterion field to its logical facet name by stripping
// the keyword subfield suffix.
func toFacetField(field string) string {
	return strings.TrimSuffix(field, filter.KeywordSuffix)
}
