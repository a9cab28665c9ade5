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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dolthub/aggexec/sql"
)

// defaultEntrySize estimates the in-memory footprint of one hash entry when
// the planner (out of scope, spec §4.4) hasn't supplied a real per-entry
// size estimate; this engine's simplified plan.GroupBy carries no such
// annotation, so work_mem / defaultEntrySize stands in for E, documented as
// a simplification in DESIGN.md.
const defaultEntrySize = 256

var (
	spillDumpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggexec_spill_dumps_total",
		Help: "Number of times a hash table was dumped to a spill set.",
	})
	spillReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggexec_spill_reloads_total",
		Help: "Number of batch files reloaded during hash table drain.",
	})
	spillRecursionDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggexec_spill_recursion_depth",
		Help: "Deepest recursive re-partition level reached while draining.",
	})
)

// hybridState holds the knobs and the (possibly nil) spill set for one PHT
// once hybrid hash aggregation is engaged for it.
type hybridState struct {
	cfg        *sql.AggregateConfig
	tempSvc    sql.TempFileService
	maxEntries int
	nbatches   int

	spill *spillSet
}

// enableHybrid wires the hybrid extensions of spec §4.4 onto an existing
// PHT. Called once at setup for every hash table when cfg.EnableHybridHashAgg
// is set.
func (h *pht) enableHybrid(cfg *sql.AggregateConfig, tempSvc sql.TempFileService) {
	maxEntries := int(cfg.WorkMem / defaultEntrySize)
	if maxEntries < 1 {
		maxEntries = 1
	}
	h.hybrid = &hybridState{
		cfg:        cfg,
		tempSvc:    tempSvc,
		maxEntries: maxEntries,
		nbatches:   cfg.DefaultHashAggNBatches,
	}
}

// spillSet is spec §3's "ordered list of batch files" at one recursion
// level.
type spillSet struct {
	level    int
	nbatches int
	batches  []*spillBatch
}

// spillBatch is one batch file plus the (lazily created) child spill set it
// recurses into if it overflows again during reload (spec §4.4 step 5).
type spillBatch struct {
	file  sql.TempFile
	child *spillSet
}

func newSpillSet(ctx *sql.Context, tempSvc sql.TempFileService, nbatches, level int) (*spillSet, error) {
	ss := &spillSet{level: level, nbatches: nbatches, batches: make([]*spillBatch, nbatches)}
	for i := 0; i < nbatches; i++ {
		f, err := tempSvc.NewFile(ctx, fmt.Sprintf("level%d-batch%d", level, i))
		if err != nil {
			return nil, err
		}
		ss.batches[i] = &spillBatch{file: f}
	}
	if level > 0 {
		spillRecursionDepth.Set(float64(level))
	}
	return ss, nil
}

// spillRecord is the wire shape of spec §3/§6's spill record: hash, key
// tuple, representative tuple, and one codec-encoded buffer per PT.
type spillRecord struct {
	Key  []interface{}
	Rep  []interface{}
	Bufs [][]byte
}

// encodeEntry serializes a hashEntry's PG array via each PT's BufferCodec
// when available (the SUM/COUNT/MIN/MAX and AVG aggregations implement it;
// *GroupConcat does not), matching spec §4.4 step 2's "by-reference... write raw
// bytes" / "INTERNAL... invoke the aggregate's serialize function".
// Aggregates that implement neither fall back to a best-effort generic
// msgpack encoding of the buffer's exported shape, which only round-trips
// for plain scalar transition values.
func encodeEntry(ctx *sql.Context, pts []*pt, e *hashEntry) ([]byte, error) {
	bufs := make([][]byte, len(pts))
	for i, p := range pts {
		if codec, ok := p.agg.(sql.BufferCodec); ok {
			b, err := codec.EncodeBuffer(ctx, e.bufs[i])
			if err != nil {
				return nil, err
			}
			bufs[i] = b
			continue
		}
		b, err := msgpack.Marshal(e.bufs[i])
		if err != nil {
			return nil, err
		}
		bufs[i] = b
	}
	rec := spillRecord{Key: e.key, Rep: []interface{}(e.rep), Bufs: bufs}
	return msgpack.Marshal(rec)
}

func decodeEntry(ctx *sql.Context, pts []*pt, data []byte, hash uint64) (*hashEntry, error) {
	var rec spillRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	bufs := make([]sql.Row, len(pts))
	for i, p := range pts {
		if codec, ok := p.agg.(sql.BufferCodec); ok {
			b, err := codec.DecodeBuffer(ctx, rec.Bufs[i])
			if err != nil {
				return nil, err
			}
			bufs[i] = b
			continue
		}
		var row sql.Row
		if err := msgpack.Unmarshal(rec.Bufs[i], &row); err != nil {
			return nil, err
		}
		bufs[i] = row
	}
	return &hashEntry{hash: hash, key: rec.Key, rep: sql.Row(rec.Rep), bufs: bufs}, nil
}

// dump implements spec §4.4's dump procedure: every in-memory entry is
// written to its batch (chosen by hash mod B), then the table and its arena
// are reset so the caller's retry is guaranteed to succeed.
func (h *pht) dump(ctx *sql.Context) error {
	hs := h.hybrid
	if hs.spill == nil {
		ss, err := newSpillSet(ctx, hs.tempSvc, hs.nbatches, 0)
		if err != nil {
			return err
		}
		hs.spill = ss
	}
	ss := hs.spill
	order := h.order()
	for _, e := range order {
		data, err := encodeEntry(ctx, h.pts, e)
		if err != nil {
			return err
		}
		idx := e.hash % uint64(ss.nbatches)
		if err := ss.batches[idx].file.WriteRecord(ctx, e.hash, data); err != nil {
			return err
		}
	}
	if hs.cfg.HybridHashAggDebug {
		ctx.GetLogger().WithFields(logFields{"table": h.set.String(), "entries": len(order), "level": ss.level}).Debug("hash agg spill dump")
	}
	spillDumpsTotal.Inc()
	// Reset (not Rescan): this drops the table's PG storage -- the actual
	// entriesKey/orderKey values held in h.arena -- while leaving any
	// teardown hooks registered by a still-live parent phase untouched,
	// exactly the distinction spec §5 draws between the two operations.
	h.arena.Reset()
	return nil
}

// drain reloads every batch of the top-level spill set (if any) into the
// now-empty in-memory table, per spec §4.4's reload procedure, recursing
// into child spill sets as needed.
func (h *pht) drain(ctx *sql.Context) error {
	if h.hybrid == nil || h.hybrid.spill == nil {
		return nil
	}
	return h.reloadSpillSet(ctx, h.hybrid.spill)
}

func (h *pht) reloadSpillSet(ctx *sql.Context, ss *spillSet) error {
	for _, batch := range ss.batches {
		if err := h.reloadBatch(ctx, ss, batch); err != nil {
			return err
		}
		if batch.child != nil {
			if err := h.reloadSpillSet(ctx, batch.child); err != nil {
				return err
			}
		}
	}
	return nil
}

// reloadBatch implements spec §4.4's per-batch reload: rewind, read
// sequentially, combine on hit, insert on miss, and recursively spill into a
// finer child set if the table overflows again mid-reload.
func (h *pht) reloadBatch(ctx *sql.Context, ss *spillSet, batch *spillBatch) error {
	if err := batch.file.Rewind(ctx); err != nil {
		return err
	}
	spillReloadsTotal.Inc()
	for {
		if err := ctx.CheckInterrupt(); err != nil {
			return err
		}
		hash, data, err := batch.file.ReadRecord(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		rec, err := decodeEntry(ctx, h.pts, data, hash)
		if err != nil {
			return err
		}
		existing, err := h.find(rec.key, hash)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := mergeBuffers(ctx, h.pts, existing.bufs, rec.bufs); err != nil {
				return err
			}
			continue
		}

		if h.count() >= h.hybrid.maxEntries {
			if batch.child == nil {
				child, err := newSpillSet(ctx, h.hybrid.tempSvc, h.hybrid.nbatches+1, ss.level+1)
				if err != nil {
					return err
				}
				batch.child = child
			}
			idx := hash % uint64(batch.child.nbatches)
			reenc, err := encodeEntry(ctx, h.pts, rec)
			if err != nil {
				return err
			}
			if err := batch.child.batches[idx].file.WriteRecord(ctx, hash, reenc); err != nil {
				return err
			}
			continue
		}

		rec.hash = hash
		entries := h.entriesMap()
		entries[hash] = append(entries[hash], rec)
		h.appendOrder(rec)
	}
	return batch.file.Unlink(ctx)
}

// logFields is a tiny logrus.Fields alias so hybrid.go doesn't need to
// import logrus directly for one call site.
type logFields = map[string]interface{}
