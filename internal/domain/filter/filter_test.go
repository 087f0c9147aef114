package filter

import (
	"reflect"
	"testing"
)

func TestIsEmpty(t *testing.T) {
	if !(Filter{}).IsEmpty() {
		t.Error("zero filter should be empty")
	}
	if !(Filter{Or: []Conjunction{{}}}).IsEmpty() {
		t.Error("filter with empty conjunctions should be empty")
	}
	f := New(Criterion{Field: "platform", Values: []string{"hive"}, Condition: CondEqual})
	if f.IsEmpty() {
		t.Error("filter with a criterion should not be empty")
	}
}

func TestReferencesField(t *testing.T) {
	f := New(Criterion{Field: "removed" + KeywordSuffix, Values: []string{"true"}, Condition: CondEqual})
	if !f.ReferencesField("removed") {
		t.Error("keyword subfield criterion should count as a reference")
	}
	if f.ReferencesField("platform") {
		t.Error("unreferenced field reported as referenced")
	}
}

func TestRemoveCriteria_DropsEmptyConjunctions(t *testing.T) {
	degree := Criterion{Field: "degree", Values: []string{"1"}, Condition: CondEqual}
	platform := Criterion{Field: "platform", Values: []string{"hive"}, Condition: CondEqual}
	f := Filter{Or: []Conjunction{
		{And: []Criterion{degree}},
		{And: []Criterion{degree, platform}},
	}}

	out := f.RemoveCriteria(func(c Criterion) bool { return c.Field == "degree" })

	want := Filter{Or: []Conjunction{{And: []Criterion{platform}}}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %+v, want %+v", out, want)
	}
	if len(f.Or[0].And) != 1 {
		t.Error("source filter must not be mutated")
	}
}

func TestWithCriterion_EveryBranch(t *testing.T) {
	platform := Criterion{Field: "platform", Values: []string{"hive"}, Condition: CondEqual}
	origin := Criterion{Field: "origin", Values: []string{"PROD"}, Condition: CondEqual}
	urns := Criterion{Field: "urn", Values: []string{"urn:ms:dataset:x"}, Condition: CondEqual}
	f := Filter{Or: []Conjunction{
		{And: []Criterion{platform}},
		{And: []Criterion{origin}},
	}}

	out := f.WithCriterion(urns)
	for i, conj := range out.Or {
		last := conj.And[len(conj.And)-1]
		if !reflect.DeepEqual(last, urns) {
			t.Errorf("branch %d missing the added criterion: %+v", i, conj.And)
		}
	}
	if len(f.Or[0].And) != 1 {
		t.Error("source filter must not be mutated")
	}
}

func TestWithCriterion_EmptyFilter(t *testing.T) {
	urns := Criterion{Field: "urn", Values: []string{"urn:ms:dataset:x"}, Condition: CondEqual}
	out := (Filter{}).WithCriterion(urns)
	if len(out.Or) != 1 || len(out.Or[0].And) != 1 {
		t.Fatalf("got %+v", out)
	}
}

func TestNewConditionCriterion_Validation(t *testing.T) {
	if _, err := NewConditionCriterion("", CondEqual, "x"); err == nil {
		t.Error("missing field should fail")
	}
	if _, err := NewConditionCriterion("platform", CondEqual); err == nil {
		t.Error("missing values should fail")
	}
	if _, err := NewConditionCriterion("platform", "LIKE", "x"); err == nil {
		t.Error("unknown condition should fail")
	}
	if _, err := NewCriterion("platform", "hive"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
