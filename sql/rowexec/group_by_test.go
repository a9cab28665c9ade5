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

package rowexec_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/aggexec/memory"
	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/expression"
	"github.com/dolthub/aggexec/sql/expression/function/aggregation"
	"github.com/dolthub/aggexec/sql/plan"
	"github.com/dolthub/aggexec/sql/rowexec"
)

func newTable(ctx *sql.Context, schema sql.Schema, rows ...sql.Row) *memory.Table {
	t := memory.NewTable("t", schema)
	for _, r := range rows {
		if err := t.Insert(ctx, r); err != nil {
			panic(err)
		}
	}
	return t
}

func runGroupBy(t *testing.T, gb *plan.GroupBy, cfg *sql.AggregateConfig) []sql.Row {
	t.Helper()
	ctx := sql.NewEmptyContext()
	iter, err := rowexec.Build(ctx, gb, cfg)
	require.NoError(t, err)
	rows, err := sql.RowIterToRows(ctx, gb.Schema(), iter)
	require.NoError(t, err)
	return rows
}

// TestPlainAggregation covers spec §8's whole-input aggregation (PLAIN
// strategy, an empty grouping set producing exactly one output row, even
// over an empty child).
func TestPlainAggregation(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "n", Type: sql.Float64}}
	tbl := newTable(ctx, schema,
		sql.NewRow(float64(1)),
		sql.NewRow(float64(2)),
		sql.NewRow(float64(3)),
	)

	n := expression.NewGetField(0, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
		{Alias: "count_n", Agg: aggregation.NewCount(ctx, n)},
	}
	gb := plan.NewGroupBy(tbl, nil, calls, nil)

	rows := runGroupBy(t, gb, nil)
	require.Len(t, rows, 1)
	require.Equal(t, float64(6), rows[0][0])
	require.Equal(t, int64(3), rows[0][1])
}

// TestPlainAggregation_EmptyInput checks spec §4.2 step 4: an empty input
// against the empty grouping set still emits one row, with SUM null and
// COUNT zero.
func TestPlainAggregation_EmptyInput(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "n", Type: sql.Float64}}
	tbl := newTable(ctx, schema)

	n := expression.NewGetField(0, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
		{Alias: "count_n", Agg: aggregation.NewCount(ctx, n)},
	}
	gb := plan.NewGroupBy(tbl, nil, calls, nil)

	rows := runGroupBy(t, gb, nil)
	require.Len(t, rows, 1)
	require.Nil(t, rows[0][0])
	require.Equal(t, int64(0), rows[0][1])
}

// TestHashedGroupBy covers the HASHED strategy over a single ordinary
// GROUP BY, spec §4.3.
func TestHashedGroupBy(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "k", Type: sql.Text}, {Name: "n", Type: sql.Float64}}
	tbl := newTable(ctx, schema,
		sql.NewRow("a", float64(1)),
		sql.NewRow("b", float64(10)),
		sql.NewRow("a", float64(2)),
		sql.NewRow("b", float64(20)),
		sql.NewRow("a", float64(3)),
	)

	k := expression.NewGetField(0, sql.Text, "k", false)
	n := expression.NewGetField(1, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
		{Alias: "count_n", Agg: aggregation.NewCount(ctx, n)},
	}
	set := plan.NewGroupingSet([]int{0})
	gb := plan.NewGroupBy(tbl, []sql.Expression{k}, calls, []*plan.GroupingSet{set})

	rows := runGroupBy(t, gb, nil)
	require.Len(t, rows, 2)
	sortRowsByKey(rows)

	require.Equal(t, "a", rows[0][0])
	require.Equal(t, float64(6), rows[0][1])
	require.Equal(t, int64(3), rows[0][2])

	require.Equal(t, "b", rows[1][0])
	require.Equal(t, float64(30), rows[1][1])
	require.Equal(t, int64(2), rows[1][2])
}

// TestSortedRollup covers spec §4.2's rollup group-boundary algorithm: most
// specific set first, coarser sets closing out as the key columns diverge,
// with pre-sorted input (NewSortedRollup expects input already ordered by
// the rollup's key columns).
func TestSortedRollup(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{
		{Name: "region", Type: sql.Text},
		{Name: "city", Type: sql.Text},
		{Name: "n", Type: sql.Float64},
	}
	tbl := newTable(ctx, schema,
		sql.NewRow("east", "nyc", float64(1)),
		sql.NewRow("east", "nyc", float64(2)),
		sql.NewRow("east", "bos", float64(3)),
		sql.NewRow("west", "sf", float64(4)),
	)

	region := expression.NewGetField(0, sql.Text, "region", false)
	city := expression.NewGetField(1, sql.Text, "city", false)
	n := expression.NewGetField(2, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
	}
	sets := plan.Rollup([]int{0, 1})
	gb := plan.NewSortedRollup(tbl, []sql.Expression{region, city}, calls, sets)

	rows := runGroupBy(t, gb, nil)

	// 3 (region,city) groups + 2 region subtotals + 1 grand total = 6 rows.
	require.Len(t, rows, 6)

	var grandTotal sql.Row
	var regionTotals, cityTotals []sql.Row
	for _, r := range rows {
		switch len(r) {
		case 1:
			grandTotal = r
		case 2:
			regionTotals = append(regionTotals, r)
		case 3:
			cityTotals = append(cityTotals, r)
		}
	}
	require.NotNil(t, grandTotal)
	require.Equal(t, float64(10), grandTotal[0])
	require.Len(t, regionTotals, 2)
	require.Len(t, cityTotals, 3)
}

// TestDistinctAggregate covers spec §4.5's single-input DISTINCT path: a
// SUM(DISTINCT n) composed from expression.DistinctExpression only folds
// each distinct value once, even when it recurs non-adjacently in arrival
// order.
func TestDistinctAggregate(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "n", Type: sql.Float64}}
	tbl := newTable(ctx, schema,
		sql.NewRow(float64(1)),
		sql.NewRow(float64(2)),
		sql.NewRow(float64(1)),
		sql.NewRow(float64(2)),
		sql.NewRow(float64(3)),
	)

	n := expression.NewGetField(0, sql.Float64, "n", false)
	dn := expression.NewDistinctExpression(n)
	calls := []*plan.AggregateCall{
		{Alias: "sum_distinct_n", Agg: aggregation.NewSum(ctx, dn)},
	}
	gb := plan.NewGroupBy(tbl, nil, calls, nil)

	rows := runGroupBy(t, gb, nil)
	require.Len(t, rows, 1)
	require.Equal(t, float64(6), rows[0][0])
}

// TestFilterClause covers spec §4.5's FILTER modifier: rows failing the
// filter are skipped for that call only.
func TestFilterClause(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "n", Type: sql.Float64}, {Name: "big", Type: sql.Boolean}}
	tbl := newTable(ctx, schema,
		sql.NewRow(float64(1), false),
		sql.NewRow(float64(10), true),
		sql.NewRow(float64(20), true),
	)

	n := expression.NewGetField(0, sql.Float64, "n", false)
	big := expression.NewGetField(1, sql.Boolean, "big", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_big", Agg: aggregation.NewSum(ctx, n), Filter: big},
	}
	gb := plan.NewGroupBy(tbl, nil, calls, nil)

	rows := runGroupBy(t, gb, nil)
	require.Len(t, rows, 1)
	require.Equal(t, float64(30), rows[0][0])
}

// TestHybridHashSpill forces a tiny work_mem (room for two entries) so the
// table dumps to disk repeatedly (spec §4.4), and checks the final grouped
// sums still come out correct once FILL_HASH/DRAIN_HASH finish reloading.
func TestHybridHashSpill(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "k", Type: sql.Text}, {Name: "n", Type: sql.Float64}}
	var rows []sql.Row
	want := map[string]float64{}
	for i := 0; i < 40; i++ {
		key := string(rune('a' + i%5))
		rows = append(rows, sql.NewRow(key, float64(i)))
		want[key] += float64(i)
	}
	tbl := newTable(ctx, schema, rows...)

	k := expression.NewGetField(0, sql.Text, "k", false)
	n := expression.NewGetField(1, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
	}
	set := plan.NewGroupingSet([]int{0})
	gb := plan.NewGroupBy(tbl, []sql.Expression{k}, calls, []*plan.GroupingSet{set})

	cfg := sql.DefaultAggregateConfig()
	cfg.EnableHybridHashAgg = true
	cfg.WorkMem = 512 // small enough that defaultEntrySize forces maxEntries==2
	cfg.DefaultHashAggNBatches = 4

	out := runGroupBy(t, gb, cfg)
	require.Len(t, out, len(want))
	got := map[string]float64{}
	for _, r := range out {
		got[r[0].(string)] = r[1].(float64)
	}
	require.Equal(t, want, got)
}

// TestNonHybridOverflow covers spec §6's "enable_hybrid_hash_agg=false ⇒
// hash aggregation never spills and will fail on overflow" contract.
func TestNonHybridOverflow(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "k", Type: sql.Text}, {Name: "n", Type: sql.Float64}}
	var rows []sql.Row
	for i := 0; i < 40; i++ {
		rows = append(rows, sql.NewRow(string(rune('a'+i)), float64(i)))
	}
	tbl := newTable(ctx, schema, rows...)

	k := expression.NewGetField(0, sql.Text, "k", false)
	n := expression.NewGetField(1, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
	}
	set := plan.NewGroupingSet([]int{0})
	gb := plan.NewGroupBy(tbl, []sql.Expression{k}, calls, []*plan.GroupingSet{set})

	cfg := sql.DefaultAggregateConfig()
	cfg.EnableHybridHashAgg = false
	cfg.WorkMem = 512

	ctx2 := sql.NewEmptyContext()
	iter, err := rowexec.Build(ctx2, gb, cfg)
	require.NoError(t, err)
	_, err = sql.RowIterToRows(ctx2, gb.Schema(), iter)
	require.Error(t, err)
}

// gtPredicate is a minimal sql.Expression for HAVING-clause tests: reports
// whether row[col] (a float64) is greater than threshold. The real
// comparison-expression machinery lives in the (out-of-scope) planner's
// expression package; this stands in for it.
type gtPredicate struct {
	col       int
	threshold float64
}

func (p *gtPredicate) Type() sql.Type       { return sql.Boolean }
func (p *gtPredicate) IsNullable() bool     { return false }
func (p *gtPredicate) Children() []sql.Expression { return nil }
func (p *gtPredicate) String() string {
	return fmt.Sprintf("col%d > %v", p.col, p.threshold)
}
func (p *gtPredicate) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	v := row[p.col]
	if v == nil {
		return nil, nil
	}
	return v.(float64) > p.threshold, nil
}

// TestHavingClauseHashed covers spec §4.2 step 3's qual/HAVING check on the
// HASHED strategy's output path (aggIter.nextHashRow): a
// group whose finalized sum doesn't clear the HAVING threshold is dropped
// instead of emitted.
func TestHavingClauseHashed(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "k", Type: sql.Text}, {Name: "n", Type: sql.Float64}}
	tbl := newTable(ctx, schema,
		sql.NewRow("a", float64(1)),
		sql.NewRow("b", float64(10)),
		sql.NewRow("a", float64(2)),
		sql.NewRow("b", float64(20)),
		sql.NewRow("a", float64(3)),
	)

	k := expression.NewGetField(0, sql.Text, "k", false)
	n := expression.NewGetField(1, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
	}
	set := plan.NewGroupingSet([]int{0})
	gb := plan.NewGroupBy(tbl, []sql.Expression{k}, calls, []*plan.GroupingSet{set})
	// sum("a") == 6, sum("b") == 30; only "b" clears the threshold.
	gb.Qual = &gtPredicate{col: 1, threshold: 10}

	rows := runGroupBy(t, gb, nil)
	require.Len(t, rows, 1)
	require.Equal(t, "b", rows[0][0])
	require.Equal(t, float64(30), rows[0][1])
}

// TestHavingClausePlain covers the qual/HAVING check on the PLAIN/SORTED
// path (sortedPath.closeGroup/finish): a whole-input aggregation whose
// single group fails HAVING emits no rows at all.
func TestHavingClausePlain(t *testing.T) {
	ctx := sql.NewEmptyContext()
	schema := sql.Schema{{Name: "n", Type: sql.Float64}}
	tbl := newTable(ctx, schema,
		sql.NewRow(float64(1)),
		sql.NewRow(float64(2)),
		sql.NewRow(float64(3)),
	)

	n := expression.NewGetField(0, sql.Float64, "n", false)
	calls := []*plan.AggregateCall{
		{Alias: "sum_n", Agg: aggregation.NewSum(ctx, n)},
	}
	gb := plan.NewGroupBy(tbl, nil, calls, nil)
	// sum == 6, threshold rejects it.
	gb.Qual = &gtPredicate{col: 0, threshold: 100}

	rows := runGroupBy(t, gb, nil)
	require.Len(t, rows, 0)
}

func sortRowsByKey(rows []sql.Row) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i][0].(string) < rows[j][0].(string)
	})
}
