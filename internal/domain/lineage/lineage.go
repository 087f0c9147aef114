// Package lineage models multi-hop relationship graphs and the search
// results produced by searching across them.
package lineage

import (
	"fmt"
	"time"

	"github.com/helixdata/metasearch/internal/domain/search"
	"github.com/helixdata/metasearch/internal/domain/urn"
)

// Direction is the traversal direction from the source entity.
type Direction string

// Traversal directions.
const (
	Upstream   Direction = "UPSTREAM"
	Downstream Direction = "DOWNSTREAM"
)

// ParseDirection validates a direction string.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case Upstream, Downstream:
		return Direction(raw), nil
	}
	return "", fmt.Errorf("unknown lineage direction %q", raw)
}

// Relationship is one edge-set from the source to a target entity. Degree is
// the hop distance; Paths lists every urn sequence by which the target was
// reached.
type Relationship struct {
	Entity urn.URN     `json:"entity"`
	Type   string      `json:"type,omitempty"`
	Degree int         `json:"degree"`
	Paths  [][]urn.URN `json:"paths,omitempty"`
}

// Result is a hop-limited lineage graph snapshot for one source entity.
type Result struct {
	Relationships []Relationship `json:"relationships"`
	Start         int            `json:"start"`
	Count         int            `json:"count"`
	Total         int            `json:"total"`
}

// CachedResult is a lineage graph snapshot with its capture time. Snapshots
// older than a day are served anyway; the staleness check only logs.
type CachedResult struct {
	Result    Result    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchEntity is a matched entity enriched with how it relates to the
// lineage source.
type SearchEntity struct {
	search.Entity
	Paths  [][]urn.URN `json:"paths,omitempty"`
	Degree int         `json:"degree,omitempty"`
}

// SearchResult is a paginated lineage search answer.
type SearchResult struct {
	Entities     []SearchEntity               `json:"entities"`
	Aggregations []search.AggregationMetadata `json:"aggregations"`
	From         int                          `json:"from"`
	PageSize     int                          `json:"pageSize"`
	NumEntities  int                          `json:"numEntities"`
}

// Merge combines two batch results into a new one: entities concatenate in
// argument order, totals sum, and aggregations union-merge by facet name.
// Merge is associative. Merging overlapping batches doubles shared bucket
// counts; batch construction keeps batches disjoint, so counts stay exact.
func Merge(one, two SearchResult) SearchResult {
	entities := make([]SearchEntity, 0, len(one.Entities)+len(two.Entities))
	entities = append(entities, one.Entities...)
	entities = append(entities, two.Entities...)
	return SearchResult{
		Entities:     entities,
		Aggregations: search.MergeAggregations(one.Aggregations, two.Aggregations),
		From:         one.From,
		PageSize:     one.PageSize,
		NumEntities:  one.NumEntities + two.NumEntities,
	}
}
