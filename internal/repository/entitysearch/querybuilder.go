package entitysearch

import (
	"github.com/helixdata/metasearch/internal/db"
	"github.com/helixdata/metasearch/internal/domain/entity"
	"github.com/helixdata/metasearch/internal/domain/filter"
)

// Wildcard is the free-text input meaning "match all".
const Wildcard = "*"

// exactMatchBoostFactor weighs an exact keyword match over an analyzed
// match on the same field.
const exactMatchBoostFactor = 10.0

// BuildTextQuery translates free-text input into a scored multi-field query
// over every field flagged query-by-default. Empty or wildcard input matches
// everything rather than nothing.
func BuildTextQuery(spec entity.Spec, input string) db.Query {
	if input == "" || input == Wildcard {
		return &db.MatchAllQuery{}
	}

	q := &db.BoolQuery{}
	for _, f := range spec.DefaultQueryFields() {
		boost := f.Boost
		if boost <= 0 {
			boost = 1.0
		}
		q.Should = append(q.Should,
			&db.MatchQuery{Field: f.Name, Value: input, Boost: boost},
			&db.TermQuery{
				Field: f.Name + filter.KeywordSuffix,
				Value: input,
				Boost: boost * exactMatchBoostFactor,
			},
		)
	}
	if len(q.Should) == 0 {
		return &db.MatchAllQuery{}
	}
	return q
}

// BuildHighlightSpec requests matched-fragment reporting for the default
// query fields and their subfields. Pre/post tags stay empty so fragments
// carry the literal field text; callers only use them to detect which
// fields matched.
func BuildHighlightSpec(spec entity.Spec) *db.HighlightSpec {
	fields := spec.DefaultQueryFields()
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, 2*len(fields))
	for _, f := range fields {
		names = append(names, f.Name, f.Name+".*")
	}
	return &db.HighlightSpec{Fields: names}
}
