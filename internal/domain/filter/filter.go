// Package filter models the structured boolean filter attached to search
// requests: a disjunction of conjunctions of field criteria.
package filter

import "fmt"

// Condition is the comparison applied by a criterion.
type Condition string

// Supported criterion conditions.
const (
	CondEqual     Condition = "EQUAL"
	CondContain   Condition = "CONTAIN"
	CondStartWith Condition = "START_WITH"
	CondEndWith   Condition = "END_WITH"
	CondGT        Condition = "GREATER_THAN"
	CondGTE       Condition = "GREATER_THAN_OR_EQUAL_TO"
	CondLT        Condition = "LESS_THAN"
	CondLTE       Condition = "LESS_THAN_OR_EQUAL_TO"
)

// Valid reports whether the condition is one of the supported comparisons.
func (c Condition) Valid() bool {
	switch c {
	case CondEqual, CondContain, CondStartWith, CondEndWith, CondGT, CondGTE, CondLT, CondLTE:
		return true
	}
	return false
}

// Criterion is a single field comparison. Values carries one or more
// candidate values; a document matches when any value satisfies the
// condition. Negated inverts the match.
type Criterion struct {
	Field     string    `json:"field"`
	Values    []string  `json:"values"`
	Condition Condition `json:"condition"`
	Negated   bool      `json:"negated,omitempty"`
}

// NewCriterion creates a validated equality criterion.
func NewCriterion(field string, values ...string) (Criterion, error) {
	return NewConditionCriterion(field, CondEqual, values...)
}

// NewConditionCriterion creates a validated criterion with an explicit condition.
func NewConditionCriterion(field string, cond Condition, values ...string) (Criterion, error) {
	if field == "" {
		return Criterion{}, fmt.Errorf("criterion field is required")
	}
	if len(values) == 0 {
		return Criterion{}, fmt.Errorf("criterion on field %q needs at least one value", field)
	}
	if !cond.Valid() {
		return Criterion{}, fmt.Errorf("unknown condition %q on field %q", cond, field)
	}
	return Criterion{Field: field, Values: values, Condition: cond}, nil
}

// Conjunction is an ordered AND-list of criteria.
type Conjunction struct {
	And []Criterion `json:"and"`
}

// Filter is a disjunction of conjunctions. The zero value matches everything.
type Filter struct {
	Or []Conjunction `json:"or"`
}

// New builds a single-conjunction filter from the given criteria.
func New(criteria ...Criterion) Filter {
	if len(criteria) == 0 {
		return Filter{}
	}
	return Filter{Or: []Conjunction{{And: criteria}}}
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	for _, conj := range f.Or {
		if len(conj.And) > 0 {
			return false
		}
	}
	return true
}

// ReferencesField reports whether any criterion targets the given logical
// field, with or without the keyword subfield suffix.
func (f Filter) ReferencesField(field string) bool {
	for _, conj := range f.Or {
		for _, crit := range conj.And {
			if crit.Field == field || crit.Field == field+KeywordSuffix {
				return true
			}
		}
	}
	return false
}

// RemoveCriteria returns a deep copy of the filter without criteria matching
// the predicate. Conjunctions left empty are dropped.
func (f Filter) RemoveCriteria(remove func(Criterion) bool) Filter {
	var out Filter
	for _, conj := range f.Or {
		var kept []Criterion
		for _, crit := range conj.And {
			if !remove(crit) {
				kept = append(kept, crit)
			}
		}
		if len(kept) > 0 {
			out.Or = append(out.Or, Conjunction{And: kept})
		}
	}
	return out
}

// WithCriterion returns a deep copy with the criterion ANDed into every OR
// branch. An empty filter becomes a single conjunction holding only the
// criterion.
func (f Filter) WithCriterion(crit Criterion) Filter {
	if f.IsEmpty() {
		return New(crit)
	}
	out := Filter{Or: make([]Conjunction, 0, len(f.Or))}
	for _, conj := range f.Or {
		and := make([]Criterion, 0, len(conj.And)+1)
		and = append(and, conj.And...)
		and = append(and, crit)
		out.Or = append(out.Or, Conjunction{And: and})
	}
	return out
}

// KeywordSuffix is the engine subfield suffix for exact-value matching.
const KeywordSuffix = ".keyword"

// SortOrder is the direction of a sort criterion.
type SortOrder string

// Sort directions.
const (
	SortAscending  SortOrder = "ASCENDING"
	SortDescending SortOrder = "DESCENDING"
)

// SortCriterion orders results by a field. The zero value means engine
// relevance order.
type SortCriterion struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// IsZero reports whether no explicit sort was requested.
func (s SortCriterion) IsZero() bool { return s.Field == "" }
