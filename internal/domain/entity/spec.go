// Package entity holds the immutable per-entity-type search metadata and
// the registry that serves it to the rest of the pipeline.
package entity

import (
	"fmt"
	"sort"
)

// SearchableField describes how one document field participates in search.
type SearchableField struct {
	// Name is the logical field name as indexed.
	Name string `yaml:"name"`
	// Boost weighs the field in free-text scoring. Zero means 1.0.
	Boost float64 `yaml:"boost"`
	// QueryByDefault includes the field in free-text matching and highlighting.
	QueryByDefault bool `yaml:"query_by_default"`
	// AddToFilters exposes the field as a facet with a terms aggregation.
	AddToFilters bool `yaml:"add_to_filters"`
	// DisplayName labels the facet in UI filter panels.
	DisplayName string `yaml:"display_name"`
}

// Spec is the immutable searchable-field metadata for one entity type.
// Construct once at startup; safe for concurrent reads afterward.
type Spec struct {
	name   string
	fields []SearchableField
}

// NewSpec validates and creates an entity spec.
func NewSpec(name string, fields []SearchableField) (Spec, error) {
	if name == "" {
		return Spec{}, fmt.Errorf("entity spec name is required")
	}
	if len(fields) == 0 {
		return Spec{}, fmt.Errorf("entity spec %q needs at least one searchable field", name)
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return Spec{}, fmt.Errorf("entity spec %q has a searchable field without a name", name)
		}
		if _, dup := seen[f.Name]; dup {
			return Spec{}, fmt.Errorf("entity spec %q declares field %q twice", name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	copied := make([]SearchableField, len(fields))
	copy(copied, fields)
	return Spec{name: name, fields: copied}, nil
}

// Name returns the entity type name.
func (s Spec) Name() string { return s.name }

// Fields returns the ordered searchable fields.
func (s Spec) Fields() []SearchableField {
	out := make([]SearchableField, len(s.fields))
	copy(out, s.fields)
	return out
}

// DefaultQueryFields returns the ordered fields flagged query-by-default.
func (s Spec) DefaultQueryFields() []SearchableField {
	var out []SearchableField
	for _, f := range s.fields {
		if f.QueryByDefault {
			out = append(out, f)
		}
	}
	return out
}

// FacetFields returns the ordered names of fields flagged as facets.
func (s Spec) FacetFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.AddToFilters {
			out = append(out, f.Name)
		}
	}
	return out
}

// FacetDisplayName returns the UI label for a facet field, defaulting to the
// field name itself. ok is false when the field is not a facet.
func (s Spec) FacetDisplayName(field string) (string, bool) {
	for _, f := range s.fields {
		if f.Name == field && f.AddToFilters {
			if f.DisplayName != "" {
				return f.DisplayName, true
			}
			return f.Name, true
		}
	}
	return "", false
}

// Union combines several specs into one composite spec for cross-entity
// search: field lists are merged by name, facet and query flags OR-ed, and
// the highest boost wins. The composite name is the sorted entity names
// joined by "+", so equal entity sets produce the same spec identity.
func Union(specs []Spec) (Spec, error) {
	if len(specs) == 0 {
		return Spec{}, fmt.Errorf("union of zero entity specs")
	}
	names := make([]string, 0, len(specs))
	merged := make(map[string]SearchableField)
	var order []string
	for _, s := range specs {
		names = append(names, s.name)
		for _, f := range s.fields {
			existing, ok := merged[f.Name]
			if !ok {
				merged[f.Name] = f
				order = append(order, f.Name)
				continue
			}
			existing.QueryByDefault = existing.QueryByDefault || f.QueryByDefault
			existing.AddToFilters = existing.AddToFilters || f.AddToFilters
			if f.Boost > existing.Boost {
				existing.Boost = f.Boost
			}
			if existing.DisplayName == "" {
				existing.DisplayName = f.DisplayName
			}
			merged[f.Name] = existing
		}
	}
	sort.Strings(names)
	fields := make([]SearchableField, 0, len(order))
	for _, name := range order {
		fields = append(fields, merged[name])
	}
	name := names[0]
	for _, n := range names[1:] {
		name += "+" + n
	}
	return NewSpec(name, fields)
}
