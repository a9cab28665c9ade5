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
	"sync"

	"github.com/cespare/xxhash"
	"github.com/satori/go.uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/plan"
)

// WorkerState is one worker's position in the parallel redistribution
// protocol of spec §4.6.
type WorkerState int

const (
	WorkerNone WorkerState = iota
	WorkerInit
	WorkerProduceDone
	WorkerConsumeDone
	WorkerError
)

func (s WorkerState) String() string {
	switch s {
	case WorkerNone:
		return "None"
	case WorkerInit:
		return "Init"
	case WorkerProduceDone:
		return "ProduceDone"
	case WorkerConsumeDone:
		return "ConsumeDone"
	case WorkerError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Redistributor is the boundary spec §4.6 names: a single shuffle key
// column chosen from the group-by list (the first one in plan order --
// preserved as-is, flagged in spec §9 as "reconsider", not silently fixed
// here), hashed with xxhash and reduced mod N to pick a destination worker.
//
// The real subsystem moves rows between OS processes over shared-memory
// ring buffers backed by spill files; that whole transport is out of scope
// (spec §1). What's modeled here is the interface surface the aggregator
// sees: a per-destination channel standing in for the ring buffer (valid
// within one process, which is the only topology this repository can
// actually exercise), with the same state machine and termination rule.
type Redistributor struct {
	id         string
	self       int
	n          int
	shuffleKey int // index into plan.GroupBy.GroupByExprs

	mu     sync.Mutex
	state  WorkerState
	peers  []*Redistributor
	inbox  chan sql.Row
	peerSt []WorkerState
}

// NewRedistributor builds one worker's endpoint in an N-way parallel
// HASHED aggregation, keyed by the first column of gb's group-by list.
func NewRedistributor(gb *plan.GroupBy, self, n int) *Redistributor {
	shuffleKey := 0
	if len(gb.GroupByExprs) == 0 {
		shuffleKey = -1
	}
	return &Redistributor{
		id:         uuid.NewV4().String(),
		self:       self,
		n:          n,
		shuffleKey: shuffleKey,
		state:      WorkerNone,
		inbox:      make(chan sql.Row, 1024),
		peerSt:     make([]WorkerState, n),
	}
}

// Link connects a set of Redistributors (one per worker) into a peer group
// so Publish can reach every destination's inbox.
func Link(peers []*Redistributor) {
	for _, p := range peers {
		p.peers = peers
	}
}

func (r *Redistributor) setState(s WorkerState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// State reports this worker's current protocol state.
func (r *Redistributor) State() WorkerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OwnIndex reports this worker's position in the peer group, the same index
// passed to NewRedistributor as self.
func (r *Redistributor) OwnIndex() int {
	return r.self
}

// destinationFor computes the shuffle target as the shuffle key's xxhash,
// reduced mod (1<<N) and then mod N. Skew risk and all: a low-cardinality shuffle
// key will send a disproportionate share of rows to one worker, and this
// function will not be the one to fix that (see spec §9).
func (r *Redistributor) destinationFor(gb *plan.GroupBy, ctx *sql.Context, row sql.Row) (int, error) {
	if r.shuffleKey < 0 {
		return r.self, nil
	}
	v, err := gb.GroupByExprs[r.shuffleKey].Eval(ctx, row)
	if err != nil {
		return 0, err
	}
	h := xxhash.Sum64String(fmt.Sprint(v))
	full := uint64(1) << uint(r.n)
	return int((h % full) % uint64(r.n)), nil
}

// Produce routes row to the local worker or publishes it to the owning
// peer's inbox.
func (r *Redistributor) Produce(ctx *sql.Context, gb *plan.GroupBy, row sql.Row) error {
	for _, p := range r.peers {
		if p.State() == WorkerError {
			return sql.ErrParallelPeerError.New(p.id)
		}
	}
	dest, err := r.destinationFor(gb, ctx, row)
	if err != nil {
		return err
	}
	if dest == r.self {
		r.inbox <- row
		return nil
	}
	for _, p := range r.peers {
		if p.self == dest {
			p.inbox <- row
			return nil
		}
	}
	// No peer registered for dest: fall back to local consumption so a
	// standalone Redistributor (n==1, or an incomplete peer group in
	// tests) still behaves like a single worker.
	r.inbox <- row
	return nil
}

// ProduceDone advances this worker past FILL_HASH/scan completion.
func (r *Redistributor) ProduceDone() {
	r.setState(WorkerProduceDone)
	close(r.inbox)
}

// Consume drains this worker's inbox: its own locally-kept rows plus
// whatever peers published to it.
func (r *Redistributor) Consume() <-chan sql.Row {
	return r.inbox
}

// ConsumeDone marks this worker fully finished.
func (r *Redistributor) ConsumeDone() {
	r.setState(WorkerConsumeDone)
}

// Fail marks this worker as having hit a data-integrity error; peers
// observing this state abort per spec §4.6's termination rule.
func (r *Redistributor) Fail() {
	r.setState(WorkerError)
}

// RunWorkers drives an N-way parallel HASHED aggregation to completion: each
// worker's produce and consume phases run as two goroutines in an
// errgroup.Group, so the first error from any worker cancels ctx and is
// returned to the caller instead of being silently dropped on the floor, the
// same all-or-nothing termination rule spec §4.6 describes for the real
// multi-process shuffle.
func RunWorkers(ctx *sql.Context, peers []*Redistributor, gb *plan.GroupBy, produce func(*Redistributor) error, consume func(*Redistributor) error) error {
	Link(peers)
	g, _ := errgroup.WithContext(ctx)

	var producing sync.WaitGroup
	producing.Add(len(peers))
	for _, p := range peers {
		p := p
		p.setState(WorkerInit)
		g.Go(func() error {
			err := produce(p)
			p.setState(WorkerProduceDone)
			producing.Done()
			if err != nil {
				p.Fail()
				return err
			}
			return nil
		})
	}
	// Close every inbox once all producers are done, since any producer may
	// still publish into a peer's inbox; closing even after a producer error
	// keeps consumers from blocking forever on a channel nobody will close.
	go func() {
		producing.Wait()
		for _, p := range peers {
			close(p.inbox)
		}
	}()

	for _, p := range peers {
		p := p
		g.Go(func() error {
			if err := consume(p); err != nil {
				p.Fail()
				return err
			}
			p.ConsumeDone()
			return nil
		})
	}

	return g.Wait()
}
