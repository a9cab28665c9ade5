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

package rowexec

import (
	"fmt"
	"io"

	"github.com/dolthub/aggexec/internal/arena"
	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/plan"
)

// sortedPath drives one PLAIN or SORTED phase (spec §4.2): a single scan
// over input already ordered (PLAIN trivially so, since it has one set with
// no columns) that maintains one set of PG buffers per grouping set of the
// phase, most specific first, and emits a finished group's row every time a
// coarser boundary is crossed.
//
// Sets is expected most-specific-first, exactly as plan.Rollup returns them;
// a single-set SORTED phase and plan.GroupBy's PLAIN phase both satisfy
// this trivially with a one-element Sets.
type sortedPath struct {
	gb    *plan.GroupBy
	phase *plan.Phase
	pts   []*pt
	arena *arena.Arena

	// pending holds rows queued for emission once the next Next() call;
	// finalizing one group boundary can close out multiple sets at once
	// (rollup), each producing its own output row.
	pending []sql.Row

	// setArenas holds one child arena per grouping set of phase -- spec §5's
	// "PG transition value lives in its group's aggcontext" -- so that a
	// group boundary's buffer reset (closeGroup) is a real Arena.Reset, not a
	// bare Go slice reassignment.
	setArenas []*arena.Arena
	rep       sql.Row // representative first tuple of the current group
	have      bool    // whether a group is currently open
	done      bool

	// also, for MIXED mode, every row is additionally routed into these
	// hash tables (spec §4.2 step 2).
	hashSinks []*pht

	// outputSorter, when set, receives every raw input row so the next
	// phase can adopt it as its pre-sorted input once Finalized (spec
	// §4.2 "Rollup re-sort handoff").
	outputSorter sql.RowSorter
}

const bufsKey = "bufs"

func newSortedPath(gb *plan.GroupBy, phase *plan.Phase, pts []*pt, parentArena *arena.Arena) *sortedPath {
	sp := &sortedPath{gb: gb, phase: phase, pts: pts, arena: parentArena.Child("sorted")}
	sp.setArenas = make([]*arena.Arena, len(phase.Sets))
	for i, set := range phase.Sets {
		a := sp.arena.Child(fmt.Sprintf("aggcontexts[%s]", set))
		a.Put(bufsKey, newBuffers(pts))
		sp.setArenas[i] = a
	}
	return sp
}

// bufs returns set i's PG buffer array, its group's aggcontext value (spec
// §5), re-creating it if a prior reset dropped it.
func (sp *sortedPath) bufs(i int) []sql.Row {
	v, ok := sp.setArenas[i].Get(bufsKey)
	if !ok {
		b := newBuffers(sp.pts)
		sp.setArenas[i].Put(bufsKey, b)
		return b
	}
	return v.([]sql.Row)
}

// resetBufs drops set i's aggcontext (a group-boundary Reset, per spec §5:
// values are dropped, any registered teardown hooks stay pending) and
// installs a fresh buffer array for the next group.
func (sp *sortedPath) resetBufs(i int) {
	sp.setArenas[i].Reset()
	sp.setArenas[i].Put(bufsKey, newBuffers(sp.pts))
}

// sameGroup reports whether row shares set's key columns with the saved
// representative tuple. Equality (not the sort operator's collation) is
// what spec §4.2's "Boundary semantics (ties)" calls for.
func sameGroup(ctx *sql.Context, gb *plan.GroupBy, set *plan.GroupingSet, rep, row sql.Row) (bool, error) {
	for _, c := range set.Columns() {
		a, err := gb.GroupByExprs[c].Eval(ctx, rep)
		if err != nil {
			return false, err
		}
		b, err := gb.GroupByExprs[c].Eval(ctx, row)
		if err != nil {
			return false, err
		}
		cmp, err := gb.GroupByExprs[c].Type().Compare(a, b)
		if err != nil {
			return false, err
		}
		if cmp != 0 {
			return false, nil
		}
	}
	return true, nil
}

// divergence returns the boundary between sets that must close and sets
// that keep accumulating when row joins the currently open group.
//
// Sets run most-specific (most columns) to least-specific (fewest) in
// sp.phase.Sets, each a narrower column-list than the last, so sameGroup
// across the list is monotone non-decreasing: once a coarser set matches,
// every still-coarser set (being keyed on a subset of its columns) must
// also match, and conversely a coarser mismatch forces every finer set to
// mismatch too. divergence finds the first index where the set matches --
// everything before it (finer, still-open) belongs to a group that just
// ended and must close; everything from it on (coarser) is still the same
// group and keeps accumulating. The empty grouping set (), when the phase
// has one, always matches vacuously; when even the phase's coarsest set
// mismatches, divergence returns len(Sets) and every open set closes.
func (sp *sortedPath) divergence(ctx *sql.Context, row sql.Row) (int, error) {
	for i, set := range sp.phase.Sets {
		eq, err := sameGroup(ctx, sp.gb, set, sp.rep, row)
		if err != nil {
			return 0, err
		}
		if eq {
			return i, nil
		}
	}
	return len(sp.phase.Sets), nil
}

// closeGroup finalizes every set from index 0 up to (exclusive) upto,
// queuing their output rows (after the qual/HAVING check of spec §4.2 step 3
// -- a rejected group is dropped, not emitted), then resets those sets'
// buffers for the next group.
func (sp *sortedPath) closeGroup(ctx *sql.Context, upto int) error {
	for i := 0; i < upto; i++ {
		set := sp.phase.Sets[i]
		keyVals := make([]interface{}, set.Len())
		for j, c := range set.Columns() {
			v, err := sp.gb.GroupByExprs[c].Eval(ctx, sp.rep)
			if err != nil {
				return err
			}
			keyVals[j] = v
		}
		row, err := finalizeRow(ctx, sp.gb.Calls, callToPTFor(sp.gb, sp.pts), sp.bufs(i), keyVals)
		if err != nil {
			return err
		}
		ok, err := passesQual(ctx, sp.gb.Qual, row)
		if err != nil {
			return err
		}
		if ok {
			sp.pending = append(sp.pending, row)
		}
		sp.resetBufs(i)
	}
	return nil
}

// push feeds one child row through the sorted path algorithm (spec §4.2).
func (sp *sortedPath) push(ctx *sql.Context, row sql.Row) error {
	if !sp.have {
		sp.rep = row.Copy()
		sp.have = true
	} else {
		boundary, err := sp.divergence(ctx, row)
		if err != nil {
			return err
		}
		if boundary > 0 {
			if err := sp.closeGroup(ctx, boundary); err != nil {
				return err
			}
			sp.rep = row.Copy()
		}
	}

	if sp.outputSorter != nil {
		if err := sp.outputSorter.Put(ctx, row); err != nil {
			return err
		}
	}

	for i := range sp.phase.Sets {
		if err := advanceRow(ctx, sp.pts, sp.bufs(i), row); err != nil {
			return err
		}
	}
	for _, h := range sp.hashSinks {
		e, err := h.lookupOrInsert(ctx, row)
		if err != nil {
			return err
		}
		if err := advanceRow(ctx, h.pts, e.bufs, row); err != nil {
			return err
		}
	}
	return nil
}

// finish closes out whatever group is still open at end of input, per spec
// §4.2 step 4: an empty input with an empty grouping set () still emits one
// row.
func (sp *sortedPath) finish(ctx *sql.Context) error {
	if sp.outputSorter != nil {
		if err := sp.outputSorter.Finalize(ctx); err != nil {
			return err
		}
	}
	if sp.have {
		return sp.closeGroup(ctx, len(sp.phase.Sets))
	}
	for i, set := range sp.phase.Sets {
		if set.Len() == 0 {
			row, err := finalizeRow(ctx, sp.gb.Calls, callToPTFor(sp.gb, sp.pts), sp.bufs(i), nil)
			if err != nil {
				return err
			}
			ok, err := passesQual(ctx, sp.gb.Qual, row)
			if err != nil {
				return err
			}
			if ok {
				sp.pending = append(sp.pending, row)
			}
		}
	}
	return nil
}

// next pops one pending output row, reading more input from child as
// needed. Returns io.EOF once the phase is exhausted.
func (sp *sortedPath) next(ctx *sql.Context, child sql.RowIter) (sql.Row, error) {
	for len(sp.pending) == 0 {
		if sp.done {
			return nil, io.EOF
		}
		if err := ctx.CheckInterrupt(); err != nil {
			return nil, err
		}
		row, err := child.Next(ctx)
		if err == io.EOF {
			sp.done = true
			if err := sp.finish(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := sp.push(ctx, row); err != nil {
			return nil, err
		}
	}
	row := sp.pending[0]
	sp.pending = sp.pending[1:]
	return row, nil
}

// callToPTFor recomputes the call->PT index mapping on demand; cheap enough
// for the call volume of one finalize, and keeps sortedPath from having to
// carry a second derived slice alongside pts.
func callToPTFor(gb *plan.GroupBy, pts []*pt) []int {
	callToPT := make([]int, len(gb.Calls))
	for i, p := range pts {
		for _, ci := range p.calls {
			callToPT[ci] = i
		}
	}
	return callToPT
}
