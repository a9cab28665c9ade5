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

// Package rowexec is the aggregation orchestrator: given a *plan.GroupBy and
// a child sql.RowIter, it drives the state machine, grouping strategy and
// per-aggregate machinery described by the governing specification, the way
// the teacher's own sql/rowexec package turns a plan.Node into a running
// sql.RowIter.
package rowexec

import (
	"github.com/mitchellh/hashstructure"

	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/plan"
)

// pt is one per-transition slot (spec §3 "PT"): the shared identity of a
// transition pipeline. Every aggregate call whose dedup key matches folds
// its input rows through the same buffer rather than a private one.
//
// This engine's sql.Aggregation bundles transition, combine and final into
// one value (unlike the catalog's five-way split used for spill-aware
// builtins), so a PT and its PA are the same object here: calls sharing a PT
// necessarily also share a final function, because they share an Agg.
type pt struct {
	agg     sql.Aggregation
	filter  sql.Expression
	orderBy sql.SortFields
	// calls lists the indices into GroupBy.Calls that fold into this PT.
	calls []int
}

type dedupKey struct {
	Agg     string
	Filter  string
	OrderBy string
}

// dedupHash computes the structural de-duplication key named in spec §4.6:
// two calls with the same function, arguments, filter and order collapse to
// one PT. This engine does not track function volatility (out of scope for
// the simplified expression evaluator it ships), so the caller is expected
// not to feed it calls whose arguments embed a volatile function -- the same
// caveat spec §4.6 places on the planner itself.
func dedupHash(call *plan.AggregateCall) (uint64, error) {
	var filterStr, orderStr string
	if call.Filter != nil {
		filterStr = call.Filter.String()
	}
	for _, sf := range call.OrderBy {
		orderStr += sf.String() + ";"
	}
	return hashstructure.Hash(dedupKey{Agg: call.Agg.String(), Filter: filterStr, OrderBy: orderStr}, nil)
}

// buildPTs partitions calls into per-transition slots and returns, for each
// call index, which PT it folds into.
func buildPTs(calls []*plan.AggregateCall) ([]*pt, []int, error) {
	byHash := make(map[uint64]int, len(calls))
	pts := make([]*pt, 0, len(calls))
	callToPT := make([]int, len(calls))
	for i, c := range calls {
		h, err := dedupHash(c)
		if err != nil {
			return nil, nil, err
		}
		if idx, ok := byHash[h]; ok {
			pts[idx].calls = append(pts[idx].calls, i)
			callToPT[i] = idx
			continue
		}
		idx := len(pts)
		pts = append(pts, &pt{agg: c.Agg, filter: c.Filter, orderBy: c.OrderBy, calls: []int{i}})
		byHash[h] = idx
		callToPT[i] = idx
	}
	return pts, callToPT, nil
}

// newBuffers allocates one fresh PG cell (spec §3) per PT.
func newBuffers(pts []*pt) []sql.Row {
	bufs := make([]sql.Row, len(pts))
	for i, p := range pts {
		bufs[i] = p.agg.NewBuffer()
	}
	return bufs
}

// passesFilter evaluates a PT's FILTER clause against row, per spec §4.5
// "FILTER": a null or false result skips this PT for this row only.
func passesFilter(ctx *sql.Context, p *pt, row sql.Row) (bool, error) {
	if p.filter == nil {
		return true, nil
	}
	v, err := p.filter.Eval(ctx, row)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	return ok && b, nil
}

// advanceRow runs spec §4.5's transition step for every PT against row,
// mutating bufs in place. DISTINCT is handled upstream, either by an
// expression.DistinctExpression wrapping a PT's single argument (the
// single-input case) or, for aggregates like GroupConcat that need to order
// by columns other than the one deduplicated, by the aggregate's own
// internal row buffering (the multi-input case) -- both fold into the same
// Update call here, so advanceRow itself never special-cases DISTINCT.
func advanceRow(ctx *sql.Context, pts []*pt, bufs []sql.Row, row sql.Row) error {
	for i, p := range pts {
		ok, err := passesFilter(ctx, p, row)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := p.agg.Update(ctx, bufs[i], row); err != nil {
			return err
		}
	}
	return nil
}

// mergeBuffers runs spec §4.5's combine step, folding src into dst in place.
func mergeBuffers(ctx *sql.Context, pts []*pt, dst, src []sql.Row) error {
	for i, p := range pts {
		if err := p.agg.Merge(ctx, dst[i], src[i]); err != nil {
			return err
		}
	}
	return nil
}

// passesQual evaluates a GroupBy's HAVING/qual expression (spec §4.2 step 3)
// against a finalized group's projected output row. A nil qual always
// passes, matching ordinary GROUP BY with no HAVING; a null or non-true
// result rejects the group, the same "ignore it" rule passesFilter applies
// per-row for FILTER.
func passesQual(ctx *sql.Context, qual sql.Expression, row sql.Row) (bool, error) {
	if qual == nil {
		return true, nil
	}
	v, err := qual.Eval(ctx, row)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	return ok && b, nil
}

// finalizeRow runs spec §4.5's finalize step for every aggregate call and
// projects the output row: the grouping-set's key values followed by each
// call's result, in GroupBy.Calls order.
func finalizeRow(ctx *sql.Context, calls []*plan.AggregateCall, callToPT []int, bufs []sql.Row, keyVals []interface{}) (sql.Row, error) {
	out := make(sql.Row, 0, len(keyVals)+len(calls))
	out = append(out, keyVals...)
	for i, c := range calls {
		v, err := c.Agg.Eval(ctx, bufs[callToPT[i]])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
