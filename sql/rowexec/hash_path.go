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

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"

	"github.com/dolthub/aggexec/internal/arena"
	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/plan"
)

// hashEntry is spec §3's PHT entry: a representative tuple plus one PG per
// PT, keyed by the grouping set's compact key tuple.
type hashEntry struct {
	hash uint64
	key  []interface{}
	rep  sql.Row
	bufs []sql.Row
}

// pht is one per-hash-table (spec §3 "PHT"): everything needed to hash,
// probe, insert and iterate one grouping set's groups, plus the optional
// hybrid spill extensions of spec §4.4.
//
// The table's entries live in arena (spec §5's hashcontext / per-table
// sub-arena), under entriesKey/orderKey, rather than as plain struct fields:
// dump's h.arena.Reset() (hybrid.go) needs to actually drop the PG storage
// it names, not just reassign two Go fields that happen to sit next to it.
type pht struct {
	gb    *plan.GroupBy
	set   *plan.GroupingSet
	pts   []*pt
	arena *arena.Arena

	hybrid *hybridState // nil unless hybrid hash aggregation is engaged
	// nonHybridLimit caps in-memory entries when hybrid hash aggregation is
	// disabled (spec §6 "enable_hybrid_hash_agg": "hash aggregation never
	// spills and will fail on overflow"). Zero means unbounded.
	nonHybridLimit int
}

const (
	entriesKey = "entries"
	orderKey   = "order"
)

// newPHT builds an empty hash table for one grouping set.
func newPHT(gb *plan.GroupBy, set *plan.GroupingSet, pts []*pt, parent *arena.Arena) *pht {
	h := &pht{
		gb:    gb,
		set:   set,
		pts:   pts,
		arena: parent.Child(fmt.Sprintf("hash[%s]", set)),
	}
	h.arena.Put(entriesKey, make(map[uint64][]*hashEntry))
	return h
}

// entriesMap returns this table's hash -> bucket map, re-creating it if a
// prior dump's Reset dropped it.
func (h *pht) entriesMap() map[uint64][]*hashEntry {
	v, ok := h.arena.Get(entriesKey)
	if !ok {
		m := make(map[uint64][]*hashEntry)
		h.arena.Put(entriesKey, m)
		return m
	}
	return v.(map[uint64][]*hashEntry)
}

// order returns this table's insertion-order entry list, empty once a dump's
// Reset has dropped it.
func (h *pht) order() []*hashEntry {
	v, ok := h.arena.Get(orderKey)
	if !ok {
		return nil
	}
	return v.([]*hashEntry)
}

func (h *pht) appendOrder(e *hashEntry) {
	h.arena.Put(orderKey, append(h.order(), e))
}

// keyValues evaluates the grouping set's key columns against row.
func (h *pht) keyValues(ctx *sql.Context, row sql.Row) ([]interface{}, error) {
	cols := h.set.Columns()
	vals := make([]interface{}, len(cols))
	for i, c := range cols {
		v, err := h.gb.GroupByExprs[c].Eval(ctx, row)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (h *pht) hashKey(vals []interface{}) uint64 {
	return xxhash.Sum64String(fmt.Sprint(vals))
}

func (h *pht) keysEqual(a, b []interface{}) (bool, error) {
	cols := h.set.Columns()
	for i, c := range cols {
		cmp, err := h.gb.GroupByExprs[c].Type().Compare(a[i], b[i])
		if err != nil {
			return false, err
		}
		if cmp != 0 {
			return false, nil
		}
	}
	return true, nil
}

// find probes the in-memory table only (no spill/dump involved), per spec
// §4.3's "Probe the table" step.
func (h *pht) find(key []interface{}, hash uint64) (*hashEntry, error) {
	for _, e := range h.entriesMap()[hash] {
		eq, err := h.keysEqual(e.key, key)
		if err != nil {
			return nil, err
		}
		if eq {
			return e, nil
		}
	}
	return nil, nil
}

func (h *pht) count() int {
	n := 0
	for _, b := range h.entriesMap() {
		n += len(b)
	}
	return n
}

func (h *pht) insertNew(ctx *sql.Context, row sql.Row, key []interface{}, hash uint64) *hashEntry {
	e := &hashEntry{hash: hash, key: key, rep: row.Copy(), bufs: newBuffers(h.pts)}
	entries := h.entriesMap()
	entries[hash] = append(entries[hash], e)
	h.appendOrder(e)
	return e
}

// lookupOrInsert implements spec §4.3's insertion contract, including the
// hybrid dump-and-retry admission check of spec §4.4. The caller then runs
// advanceRow against the returned entry's bufs.
func (h *pht) lookupOrInsert(ctx *sql.Context, row sql.Row) (*hashEntry, error) {
	key, err := h.keyValues(ctx, row)
	if err != nil {
		return nil, err
	}
	hash := h.hashKey(key)

	e, err := h.find(key, hash)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return e, nil
	}

	if h.hybrid != nil && h.count() >= h.hybrid.maxEntries {
		if err := h.dump(ctx); err != nil {
			return nil, err
		}
		// The dumped table is empty; this key is guaranteed new.
	} else if h.hybrid == nil && h.nonHybridLimit > 0 && h.count() >= h.nonHybridLimit {
		return nil, errors.Errorf("hash aggregation on %s exceeded work_mem (%d entries) with hybrid hash aggregation disabled", h.set, h.nonHybridLimit)
	}
	return h.insertNew(ctx, row, key, hash), nil
}

// retrieve iterates every entry of the table in (unspecified, per spec §5)
// order, finalizing and emitting one output row per group that passes the
// qual/HAVING check of spec §4.2 step 3; a rejected group is skipped, not
// emitted.
func (h *pht) retrieve(ctx *sql.Context, calls []*plan.AggregateCall, callToPT []int, emit func(sql.Row) error) error {
	for _, e := range h.order() {
		row, err := finalizeRow(ctx, calls, callToPT, e.bufs, e.key)
		if err != nil {
			return err
		}
		ok, err := passesQual(ctx, h.gb.Qual, row)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return nil
}
