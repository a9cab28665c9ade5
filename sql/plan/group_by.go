// Copyright 2024 The aggexec Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plan provides the aggregate plan node tree consumed by
// sql/rowexec: GroupBy, its grouping sets, phases and aggregate call
// descriptors, exactly as named in spec §3 and §6. Nothing here executes a
// query; it only describes one.
package plan

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/expression"
)

// Strategy is a Phase's execution strategy (spec §3 PH, §4.1).
type Strategy int

const (
	Plain Strategy = iota
	Sorted
	Hashed
	Mixed
)

func (s Strategy) String() string {
	switch s {
	case Plain:
		return "PLAIN"
	case Sorted:
		return "SORTED"
	case Hashed:
		return "HASHED"
	case Mixed:
		return "MIXED"
	default:
		return "UNKNOWN"
	}
}

// GroupingSet is one keying of the aggregation: a bitset of group-by column
// ordinals (spec §3 PH "grouping sets"), backed by a roaring bitmap so
// rollup/grouping-set containment and column-needed computation (spec
// §4.3's compact key-tuple mapping) reuse a battle-tested bitset instead of
// a hand-rolled one.
type GroupingSet struct {
	bits *roaring.Bitmap
	// cols are the group-by expression indices (into GroupBy.GroupByExprs)
	// belonging to this set, in the order they should appear in the
	// compact key tuple.
	cols []int
}

// NewGroupingSet builds a grouping set from a list of group-by expression
// indices.
func NewGroupingSet(cols []int) *GroupingSet {
	bm := roaring.New()
	for _, c := range cols {
		bm.Add(uint32(c))
	}
	return &GroupingSet{bits: bm, cols: cols}
}

// Columns returns the grouping set's column indices in declared order.
func (g *GroupingSet) Columns() []int { return g.cols }

// Len is the grouping set's column count (spec §3 "bitset of column
// indices plus its column count").
func (g *GroupingSet) Len() int { return len(g.cols) }

// Contains reports whether col is one of this set's columns.
func (g *GroupingSet) Contains(col int) bool { return g.bits.Contains(uint32(col)) }

// IsSubsetOf reports whether every column of g is also a column of other,
// used to order rollup sets from most specific to least specific (spec
// §4.2).
func (g *GroupingSet) IsSubsetOf(other *GroupingSet) bool {
	return g.bits.AndCardinality(other.bits) == g.bits.GetCardinality()
}

func (g *GroupingSet) String() string {
	if len(g.cols) == 0 {
		return "()"
	}
	parts := make([]string, len(g.cols))
	for i, c := range g.cols {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Rollup builds the chain of grouping sets `(k1,...,kn) -> (k1,...,kn-1)
// -> ... -> ()` for a ROLLUP(k1,...,kn) clause, ordered most specific
// first as spec §4.2 requires.
func Rollup(cols []int) []*GroupingSet {
	sets := make([]*GroupingSet, 0, len(cols)+1)
	for n := len(cols); n >= 0; n-- {
		sets = append(sets, NewGroupingSet(append([]int(nil), cols[:n]...)))
	}
	return sets
}

// AggregateCall is the planner-provided aggregate call descriptor of spec
// §3: an aggregate function instance plus the per-call modifiers
// (FILTER, ORDER BY, DISTINCT is folded into Agg's argument expression via
// expression.DistinctExpression, exactly as sum_test.go's
// TestSumWithDistinct demonstrates).
type AggregateCall struct {
	// Alias names this call's output column.
	Alias string
	// Agg is the aggregate function instance (NewSum, NewCount, ...).
	Agg sql.Aggregation
	// Filter is evaluated per input row before Agg ever sees it; a null or
	// false result skips this call for this row only (spec §4.5 FILTER).
	Filter sql.Expression
	// OrderBy is part of the call's de-duplication key in sql/rowexec
	// (calls that differ only in OrderBy do not share a transition slot).
	// The executor does not reorder the values fed to Agg by it;
	// GroupConcat orders by the SortFields passed to NewGroupConcat instead.
	OrderBy sql.SortFields
}

func (c *AggregateCall) String() string {
	if c.Filter != nil {
		return fmt.Sprintf("%s FILTER (WHERE %s) AS %s", c.Agg, c.Filter, c.Alias)
	}
	return fmt.Sprintf("%s AS %s", c.Agg, c.Alias)
}

// Phase is one scan pass over the input (spec §3 PH): a strategy, the
// grouping sets active in this pass, and the sort order the next phase's
// input sorter must produce (nil for the last phase).
type Phase struct {
	Strategy   Strategy
	Sets       []*GroupingSet
	NextSort   sql.SortFields
}

// GroupBy is the aggregate plan node (spec §6 "Plan node"): a strategy,
// grouping sets, sort-order requirement, aggregate call descriptors, and a
// chain of secondary phases. Chain ordering rule: hashed phases first,
// sorted phases next, at most one PLAIN phase last (enforced by
// NewGroupBy, not by the caller).
type GroupBy struct {
	// GroupByExprs evaluate the group-by key columns against an input row,
	// in the order GroupingSet column indices reference them.
	GroupByExprs []sql.Expression
	// Calls is the aggregate call list, alias order matching output schema
	// order after the group-by columns.
	Calls []*AggregateCall
	// Phases is the chain described above, built by NewGroupBy from Sets.
	Phases []*Phase
	Child  sql.Node
	// Qual is the HAVING/qual expression of spec §4.2 step 3: evaluated
	// against a finalized group's projected output row (the grouping set's
	// own group-by columns followed by call results; for a set over every
	// group-by column this is Schema()'s column order), a false or null
	// result drops that group's row instead of emitting it. Nil means every
	// finalized group is emitted, matching ordinary GROUP BY with no HAVING.
	Qual sql.Expression
}

var _ sql.Node = (*GroupBy)(nil)

// NewGroupBy builds a GroupBy node over child, grouping by groupByExprs and
// computing calls once per row of each grouping set in sets (a single
// `sets == [NewGroupingSet(all columns)]` is an ordinary GROUP BY; Rollup
// builds a ROLLUP chain; an empty sets list is a PLAIN whole-input
// aggregation).
func NewGroupBy(child sql.Node, groupByExprs []sql.Expression, calls []*AggregateCall, sets []*GroupingSet) *GroupBy {
	gb := &GroupBy{GroupByExprs: groupByExprs, Calls: calls, Child: child}
	gb.Phases = buildPhases(sets)
	return gb
}

// buildPhases partitions sets into phases under the chain-ordering rule:
// every non-empty set goes into one HASHED phase (the default strategy
// absent a planner cost decision, since cost-based strategy selection is the
// planner's job and out of scope per spec §1), and any empty set (no
// group-by columns at all) into a PLAIN phase placed last. It never builds a
// SORTED phase; one comes from NewSortedRollup or from a caller that sets
// GroupBy.Phases directly.
func buildPhases(sets []*GroupingSet) []*Phase {
	if len(sets) == 0 {
		return []*Phase{{Strategy: Plain, Sets: []*GroupingSet{NewGroupingSet(nil)}}}
	}
	var plain []*GroupingSet
	var rest []*GroupingSet
	for _, s := range sets {
		if s.Len() == 0 {
			plain = append(plain, s)
		} else {
			rest = append(rest, s)
		}
	}
	var phases []*Phase
	if len(rest) > 0 {
		phases = append(phases, &Phase{Strategy: Hashed, Sets: rest})
	}
	if len(plain) > 0 {
		phases = append(phases, &Phase{Strategy: Plain, Sets: plain})
	}
	return phases
}

// NewSortedRollup builds a GroupBy whose single SORTED phase walks sets
// (most specific first, as Rollup returns them) against sorted input,
// using the sorted path's group-boundary/rollup re-sort algorithm (spec
// §4.2) instead of hashing.
func NewSortedRollup(child sql.Node, groupByExprs []sql.Expression, calls []*AggregateCall, sets []*GroupingSet) *GroupBy {
	return &GroupBy{
		GroupByExprs: groupByExprs,
		Calls:        calls,
		Child:        child,
		Phases:       []*Phase{{Strategy: Sorted, Sets: sets}},
	}
}

func (g *GroupBy) Schema() sql.Schema {
	schema := make(sql.Schema, 0, len(g.GroupByExprs)+len(g.Calls))
	for i, e := range g.GroupByExprs {
		schema = append(schema, &sql.Column{Name: fmt.Sprintf("col%d", i), Type: e.Type(), Nullable: e.IsNullable()})
	}
	for _, c := range g.Calls {
		schema = append(schema, &sql.Column{Name: c.Alias, Type: c.Agg.Type(), Nullable: c.Agg.IsNullable()})
	}
	return schema
}

func (g *GroupBy) Resolved() bool {
	for _, e := range g.GroupByExprs {
		if _, ok := e.(*expression.UnresolvedColumn); ok {
			return false
		}
	}
	return g.Child.Resolved()
}

func (g *GroupBy) Children() []sql.Node { return []sql.Node{g.Child} }

func (g *GroupBy) String() string {
	parts := make([]string, len(g.Calls))
	for i, c := range g.Calls {
		parts[i] = c.String()
	}
	if g.Qual != nil {
		return fmt.Sprintf("GroupBy(%s) HAVING %s", strings.Join(parts, ", "), g.Qual)
	}
	return fmt.Sprintf("GroupBy(%s)", strings.Join(parts, ", "))
}
