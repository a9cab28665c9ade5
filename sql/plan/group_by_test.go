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

package plan_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/aggexec/memory"
	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/expression"
	"github.com/dolthub/aggexec/sql/expression/function/aggregation"
	"github.com/dolthub/aggexec/sql/plan"
)

func testCalls() []*plan.AggregateCall {
	return []*plan.AggregateCall{
		{Alias: "s", Agg: aggregation.NewSum(sql.NewEmptyContext(), expression.NewGetField(1, sql.Float64, "n", false))},
	}
}

func TestGroupingSet(t *testing.T) {
	require := require.New(t)

	gs := plan.NewGroupingSet([]int{0, 2})
	require.Equal([]int{0, 2}, gs.Columns())
	require.Equal(2, gs.Len())
	require.True(gs.Contains(0))
	require.True(gs.Contains(2))
	require.False(gs.Contains(1))
	require.Equal("(0,2)", gs.String())

	empty := plan.NewGroupingSet(nil)
	require.Equal(0, empty.Len())
	require.Equal("()", empty.String())
}

func TestGroupingSetIsSubsetOf(t *testing.T) {
	require := require.New(t)

	narrow := plan.NewGroupingSet([]int{0})
	wide := plan.NewGroupingSet([]int{0, 1})
	require.True(narrow.IsSubsetOf(wide))
	require.False(wide.IsSubsetOf(narrow))

	empty := plan.NewGroupingSet(nil)
	require.True(empty.IsSubsetOf(narrow))
}

// TestRollup checks the chain order NewGroupBy/sortedPath both depend on:
// most columns first, empty set last.
func TestRollup(t *testing.T) {
	require := require.New(t)

	sets := plan.Rollup([]int{0, 1, 2})
	require.Len(sets, 4)
	require.Equal([]int{0, 1, 2}, sets[0].Columns())
	require.Equal([]int{0, 1}, sets[1].Columns())
	require.Equal([]int{0}, sets[2].Columns())
	require.Equal(0, sets[3].Len())

	for i := 1; i < len(sets); i++ {
		require.True(sets[i].IsSubsetOf(sets[i-1]))
	}
}

func TestNewGroupByPlain(t *testing.T) {
	require := require.New(t)

	child := memory.NewTable("t", sql.Schema{
		{Name: "k", Type: sql.Text},
		{Name: "n", Type: sql.Float64},
	})
	gb := plan.NewGroupBy(child, nil, testCalls(), nil)

	require.Len(gb.Phases, 1)
	require.Equal(plan.Plain, gb.Phases[0].Strategy)
	require.Len(gb.Phases[0].Sets, 1)
	require.Equal(0, gb.Phases[0].Sets[0].Len())
}

// TestNewGroupByHashed checks buildPhases' default: any non-empty set list
// becomes one HASHED phase, per the chain-ordering rule documented on
// buildPhases (hashed phases first, a single PLAIN phase only if one of the
// sets passed in is itself empty).
func TestNewGroupByHashed(t *testing.T) {
	require := require.New(t)

	child := memory.NewTable("t", sql.Schema{
		{Name: "k", Type: sql.Text},
		{Name: "n", Type: sql.Float64},
	})
	keyExpr := []sql.Expression{expression.NewGetField(0, sql.Text, "k", false)}
	gb := plan.NewGroupBy(child, keyExpr, testCalls(), []*plan.GroupingSet{plan.NewGroupingSet([]int{0})})

	require.Len(gb.Phases, 1)
	require.Equal(plan.Hashed, gb.Phases[0].Strategy)
	require.Equal([]int{0}, gb.Phases[0].Sets[0].Columns())
}

// TestNewGroupByMixedSets checks that passing both an empty set and a
// non-empty set produces two phases, HASHED before PLAIN.
func TestNewGroupByMixedSets(t *testing.T) {
	require := require.New(t)

	child := memory.NewTable("t", sql.Schema{
		{Name: "k", Type: sql.Text},
		{Name: "n", Type: sql.Float64},
	})
	keyExpr := []sql.Expression{expression.NewGetField(0, sql.Text, "k", false)}
	sets := []*plan.GroupingSet{plan.NewGroupingSet([]int{0}), plan.NewGroupingSet(nil)}
	gb := plan.NewGroupBy(child, keyExpr, testCalls(), sets)

	require.Len(gb.Phases, 2)
	require.Equal(plan.Hashed, gb.Phases[0].Strategy)
	require.Equal(plan.Plain, gb.Phases[1].Strategy)
}

func TestNewSortedRollup(t *testing.T) {
	require := require.New(t)

	child := memory.NewTable("t", sql.Schema{
		{Name: "region", Type: sql.Text},
		{Name: "city", Type: sql.Text},
		{Name: "n", Type: sql.Float64},
	})
	keyExpr := []sql.Expression{
		expression.NewGetField(0, sql.Text, "region", false),
		expression.NewGetField(1, sql.Text, "city", false),
	}
	calls := []*plan.AggregateCall{
		{Alias: "s", Agg: aggregation.NewSum(sql.NewEmptyContext(), expression.NewGetField(2, sql.Float64, "n", false))},
	}
	sets := plan.Rollup([]int{0, 1})
	gb := plan.NewSortedRollup(child, keyExpr, calls, sets)

	require.Len(gb.Phases, 1)
	require.Equal(plan.Sorted, gb.Phases[0].Strategy)
	require.Equal(sets, gb.Phases[0].Sets)
}

func TestGroupBySchema(t *testing.T) {
	require := require.New(t)

	child := memory.NewTable("t", sql.Schema{
		{Name: "k", Type: sql.Text},
		{Name: "n", Type: sql.Float64},
	})
	keyExpr := []sql.Expression{expression.NewGetField(0, sql.Text, "k", false)}
	gb := plan.NewGroupBy(child, keyExpr, testCalls(), []*plan.GroupingSet{plan.NewGroupingSet([]int{0})})

	schema := gb.Schema()
	require.Len(schema, 2)
	require.Equal(sql.Text, schema[0].Type)
	require.Equal("s", schema[1].Name)
	require.Equal(sql.Float64, schema[1].Type)
}

func TestGroupByResolvedAndChildren(t *testing.T) {
	require := require.New(t)

	child := memory.NewTable("t", sql.Schema{
		{Name: "k", Type: sql.Text},
		{Name: "n", Type: sql.Float64},
	})
	keyExpr := []sql.Expression{expression.NewGetField(0, sql.Text, "k", false)}
	gb := plan.NewGroupBy(child, keyExpr, testCalls(), []*plan.GroupingSet{plan.NewGroupingSet([]int{0})})

	require.True(gb.Resolved())
	require.Equal([]sql.Node{child}, gb.Children())

	unresolved := plan.NewGroupBy(child, []sql.Expression{expression.NewUnresolvedColumn("k")}, testCalls(), []*plan.GroupingSet{plan.NewGroupingSet([]int{0})})
	require.False(unresolved.Resolved())
}

func TestGroupByString(t *testing.T) {
	require := require.New(t)

	child := memory.NewTable("t", sql.Schema{{Name: "n", Type: sql.Float64}})
	gb := plan.NewGroupBy(child, nil, testCalls(), nil)
	require.Contains(gb.String(), "GroupBy(")
	require.Contains(gb.String(), "SUM(n) AS s")
}
