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

	opentracing "github.com/opentracing/opentracing-go"

	"github.com/dolthub/aggexec/internal/arena"
	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/plan"
)

// orchState is the aggregator's top-level state machine, spec §4.1:
// INIT, FILL_HASH, DRAIN_HASH, RETRIEVE_SORTED, PHASE_SWITCH, DONE.
type orchState int

const (
	stateInit orchState = iota
	stateFillHash
	stateDrainHash
	stateRetrieveSorted
	statePhaseSwitch
	stateDone
)

func (s orchState) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateFillHash:
		return "FILL_HASH"
	case stateDrainHash:
		return "DRAIN_HASH"
	case stateRetrieveSorted:
		return "RETRIEVE_SORTED"
	case statePhaseSwitch:
		return "PHASE_SWITCH"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// RowSource is the structural interface a leaf plan.Node implements to hand
// Build a concrete iterator, letting Build stay ignorant of any specific
// storage package (e.g. the memory package) and avoid an import cycle.
type RowSource interface {
	sql.Node
	RowIter(ctx *sql.Context) (sql.RowIter, error)
}

// Build turns a plan.Node into a running sql.RowIter, dispatching by
// concrete type the way the teacher's own rowexec package does, with
// sql/plan kept free of any dependency on sql/rowexec.
func Build(ctx *sql.Context, n sql.Node, cfg *sql.AggregateConfig) (sql.RowIter, error) {
	switch node := n.(type) {
	case *plan.GroupBy:
		child, err := Build(ctx, node.Child, cfg)
		if err != nil {
			return nil, err
		}
		return NewAggIter(ctx, node, child, cfg)
	case RowSource:
		return node.RowIter(ctx)
	default:
		return nil, fmt.Errorf("rowexec: cannot build an iterator for %T", n)
	}
}

// aggIter is the orchestrator of spec §4.1, implementing sql.RowIter over a
// *plan.GroupBy.
type aggIter struct {
	gb    *plan.GroupBy
	child sql.RowIter
	cfg   *sql.AggregateConfig

	pts     []*pt
	root    *arena.Arena
	tempSvc sql.TempFileService

	tracer opentracing.Tracer

	state orchState

	// Non-hash phases (PLAIN/SORTED), in chain order.
	otherPhases []*plan.Phase
	otherIdx    int
	sorted      *sortedPath

	// Hash phases: every grouping set across every Hashed phase gets one
	// pht, flattened into a single slice since retrieval order across
	// hash tables is unspecified anyway (spec §5).
	hashTables  []*pht
	hashDrained []bool
	hashIdx     int
	hashCursor  int

	mixed bool
}

var _ sql.RowIter = (*aggIter)(nil)

// NewAggIter builds the orchestrator for gb over child.
func NewAggIter(ctx *sql.Context, gb *plan.GroupBy, child sql.RowIter, cfg *sql.AggregateConfig) (*aggIter, error) {
	if cfg == nil {
		cfg = sql.DefaultAggregateConfig()
	}
	pts, _, err := buildPTs(gb.Calls)
	if err != nil {
		return nil, err
	}

	it := &aggIter{
		gb:     gb,
		child:  child,
		cfg:    cfg,
		pts:    pts,
		root:   arena.New("aggregate"),
		tracer: ctx.Tracer(),
	}

	var hashPhases []*plan.Phase
	for _, ph := range gb.Phases {
		if ph.Strategy == plan.Hashed {
			hashPhases = append(hashPhases, ph)
		} else {
			it.otherPhases = append(it.otherPhases, ph)
		}
	}
	it.mixed = len(hashPhases) > 0 && len(it.otherPhases) > 0

	if len(hashPhases) > 0 {
		nonHybridLimit := 0
		if !cfg.EnableHybridHashAgg {
			nonHybridLimit = int(cfg.WorkMem / defaultEntrySize)
		}
		for _, ph := range hashPhases {
			for _, set := range ph.Sets {
				t := newPHT(gb, set, pts, it.root.Child("hashcontext"))
				t.nonHybridLimit = nonHybridLimit
				if cfg.EnableHybridHashAgg {
					if it.tempSvc == nil {
						svc, err := NewBoltTempFileService("")
						if err != nil {
							return nil, err
						}
						it.tempSvc = svc
					}
					t.enableHybrid(cfg, it.tempSvc)
				}
				it.hashTables = append(it.hashTables, t)
			}
		}
		it.hashDrained = make([]bool, len(it.hashTables))
	}

	switch {
	case it.mixed:
		it.sorted = newSortedPath(gb, it.otherPhases[0], pts, it.root)
		it.sorted.hashSinks = it.hashTables
		it.state = stateRetrieveSorted
	case len(it.otherPhases) > 0:
		it.sorted = newSortedPath(gb, it.otherPhases[0], pts, it.root)
		if len(it.otherPhases[0].NextSort) > 0 && len(it.otherPhases) > 1 {
			it.sorted.outputSorter = NewMemRowSorter(it.otherPhases[0].NextSort)
		}
		it.state = stateRetrieveSorted
	default:
		it.state = stateFillHash
	}

	return it, nil
}

func (it *aggIter) span(ctx *sql.Context, op string) opentracing.Span {
	span := it.tracer.StartSpan("aggexec.Next")
	span.SetTag("state", it.state.String())
	span.SetTag("op", op)
	return span
}

// Next implements spec §4.1's produce loop, idempotent after the first
// EndOfStream.
func (it *aggIter) Next(ctx *sql.Context) (sql.Row, error) {
	for {
		if err := ctx.CheckInterrupt(); err != nil {
			return nil, err
		}
		span := it.span(ctx, "next")
		row, done, err := it.step(ctx)
		span.Finish()
		if err != nil {
			return nil, err
		}
		if done {
			return row, nil
		}
		// done==false means "state transitioned, try again" with no row
		// produced yet.
	}
}

// step runs one iteration of the state machine. done==true means row (which
// may be nil alongside io.EOF) is the call's result; done==false means the
// caller should loop again immediately.
func (it *aggIter) step(ctx *sql.Context) (sql.Row, bool, error) {
	switch it.state {
	case stateFillHash:
		if err := it.fillHash(ctx); err != nil {
			return nil, true, err
		}
		it.state = stateDrainHash
		return nil, false, nil

	case stateRetrieveSorted:
		row, err := it.sorted.next(ctx, it.child)
		if err == io.EOF {
			if it.mixed {
				it.state = stateDrainHash
				return nil, false, nil
			}
			it.otherIdx++
			if it.otherIdx < len(it.otherPhases) {
				it.state = statePhaseSwitch
				return nil, false, nil
			}
			it.state = stateDone
			return nil, false, nil
		}
		if err != nil {
			return nil, true, err
		}
		return row, true, nil

	case statePhaseSwitch:
		next := it.otherPhases[it.otherIdx]
		var nextChild sql.RowIter
		if it.sorted.outputSorter != nil {
			nextChild = &sorterRowIter{s: it.sorted.outputSorter}
		} else {
			nextChild = it.child
		}
		it.sorted = newSortedPath(it.gb, next, it.pts, it.root)
		if len(next.NextSort) > 0 && it.otherIdx+1 < len(it.otherPhases) {
			it.sorted.outputSorter = NewMemRowSorter(next.NextSort)
		}
		it.child = nextChild
		it.state = stateRetrieveSorted
		return nil, false, nil

	case stateDrainHash:
		row, eof, err := it.nextHashRow(ctx)
		if err != nil {
			return nil, true, err
		}
		if eof {
			it.state = stateDone
			return nil, false, nil
		}
		return row, true, nil

	case stateDone:
		return nil, true, io.EOF

	default:
		return nil, true, fmt.Errorf("rowexec: unknown aggregator state %v", it.state)
	}
}

// fillHash implements the HASHED strategy's scan: every child row is routed
// into every hash table's lookup_or_insert/advance_transition (spec §4.3).
func (it *aggIter) fillHash(ctx *sql.Context) error {
	for {
		if err := ctx.CheckInterrupt(); err != nil {
			return err
		}
		row, err := it.child.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		for _, t := range it.hashTables {
			e, err := t.lookupOrInsert(ctx, row)
			if err != nil {
				return err
			}
			if err := advanceRow(ctx, t.pts, e.bufs, row); err != nil {
				return err
			}
		}
	}
}

// nextHashRow pulls the next row out of hash table retrieval, draining each
// table's spill set (if any) before iterating it the first time. A group
// that fails the qual/HAVING check of spec §4.2 step 3 is skipped -- looped
// past, never emitted -- rather than returned to the caller.
func (it *aggIter) nextHashRow(ctx *sql.Context) (sql.Row, bool, error) {
	for it.hashIdx < len(it.hashTables) {
		t := it.hashTables[it.hashIdx]
		if !it.hashDrained[it.hashIdx] {
			if err := t.drain(ctx); err != nil {
				return nil, false, err
			}
			it.hashDrained[it.hashIdx] = true
			it.hashCursor = 0
		}
		order := t.order()
		for it.hashCursor < len(order) {
			e := order[it.hashCursor]
			it.hashCursor++
			row, err := finalizeRow(ctx, it.gb.Calls, callToPTFor(it.gb, it.pts), e.bufs, e.key)
			if err != nil {
				return nil, false, err
			}
			ok, err := passesQual(ctx, it.gb.Qual, row)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			return row, false, nil
		}
		it.hashIdx++
		it.hashCursor = 0
	}
	return nil, true, nil
}

// Close releases every resource the orchestrator holds: the child iterator,
// every hash table's arena, and the temp file service backing any spill
// set.
func (it *aggIter) Close(ctx *sql.Context) error {
	var firstErr error
	if it.child != nil {
		if err := it.child.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	it.root.Destroy()
	if closer, ok := it.tempSvc.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sorterRowIter adapts a finalized sql.RowSorter into a sql.RowIter so
// PHASE_SWITCH can feed the rolled-up next phase from it.
type sorterRowIter struct {
	s sql.RowSorter
}

func (r *sorterRowIter) Next(ctx *sql.Context) (sql.Row, error) { return r.s.Get(ctx) }
func (r *sorterRowIter) Close(ctx *sql.Context) error           { return r.s.Close(ctx) }
