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

// Package aggregation provides the builtin aggregate functions (SUM, COUNT,
// AVG, MIN, MAX, GROUP_CONCAT) plus a catalog of their transition, combine,
// final, serialize and deserialize handles. Each builtin is implemented
// twice from the same underlying funcs: once as a standalone
// sql.Aggregation (NewSum, NewCount, ...) exactly like the teacher's
// sql/expression/function/aggregation package, and once as a CatalogEntry
// registered in NewBuiltinCatalog. sql/rowexec drives the sql.Aggregation
// values across grouping sets and spill/reload cycles; it does not look up
// the Catalog.
package aggregation

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dolthub/aggexec/sql"
)

// TransitionFunc folds one input row's argument values into a transition
// state, per spec §3/§4.5.
type TransitionFunc func(ctx *sql.Context, state interface{}, args ...interface{}) (interface{}, error)

// CombineFunc merges two transition states, per spec §4.5 "Combine".
type CombineFunc func(ctx *sql.Context, a, b interface{}) (interface{}, error)

// FinalFunc projects a transition state (plus any direct arguments) to the
// aggregate's result value. A nil FinalFunc means "identity": the state
// itself is the result.
type FinalFunc func(ctx *sql.Context, state interface{}, directArgs ...interface{}) (interface{}, error)

// SerializeFunc converts an INTERNAL transition state to bytes for spilling
// or cross-phase partial aggregation.
type SerializeFunc func(ctx *sql.Context, state interface{}) ([]byte, error)

// DeserializeFunc is SerializeFunc's inverse.
type DeserializeFunc func(ctx *sql.Context, data []byte) (interface{}, error)

// CatalogEntry is the aggregate catalog lookup result described in spec §6:
// transition/combine/final/serialize/deserialize handles, an optional
// (possibly null) initial value, and the flags the executor needs to drive
// them correctly.
type CatalogEntry struct {
	ID string

	Transition       TransitionFunc
	TransitionStrict bool

	Combine       CombineFunc
	CombineStrict bool

	Final       FinalFunc
	FinalStrict bool
	// FinalExtra indicates the final function accepts dummy argument
	// positions matching the input args, not just the direct arguments.
	FinalExtra bool

	Serialize   SerializeFunc
	Deserialize DeserializeFunc

	InitialValue       interface{}
	InitialValueIsNull bool

	StateType sql.Type
}

// Catalog resolves an aggregate function identifier to its CatalogEntry, the
// interface boundary named "aggregate catalog" in spec §1/§6.
type Catalog interface {
	Lookup(id string) (*CatalogEntry, error)
}

// MapCatalog is the simplest possible Catalog: a fixed table of entries.
type MapCatalog map[string]*CatalogEntry

// Lookup implements Catalog.
func (m MapCatalog) Lookup(id string) (*CatalogEntry, error) {
	e, ok := m[id]
	if !ok {
		return nil, sql.ErrCatalogMissing.New(id)
	}
	return e, nil
}

// NewBuiltinCatalog returns a Catalog pre-populated with SUM, COUNT, AVG,
// MIN, MAX and GROUP_CONCAT.
func NewBuiltinCatalog() Catalog {
	return MapCatalog{
		"sum":          sumCatalogEntry,
		"count":        countCatalogEntry,
		"avg":          avgCatalogEntry,
		"min":          minCatalogEntry,
		"max":          maxCatalogEntry,
		"group_concat": groupConcatCatalogEntry,
	}
}

// --- shared buffer bookkeeping -------------------------------------------
//
// A transition buffer is a 3-element sql.Row mirroring spec §3's PG cell
// exactly:
//
//	buffer[0] transValue        interface{}
//	buffer[1] transValueIsNull  bool
//	buffer[2] noTransValue      bool
//
// Both the standalone per-function Aggregation wrappers in this package and
// sql/rowexec's general PT/PG machinery build on these three helpers so the
// transition/combine/finalize semantics of spec §4.5 are implemented in
// exactly one place.

// NewBuffer allocates a PG-shaped buffer seeded with a catalog entry's
// initial value.
func NewBuffer(initialValue interface{}, initialIsNull bool) sql.Row {
	return sql.Row{initialValue, initialIsNull, initialIsNull}
}

func bufTransValue(buf sql.Row) interface{} { return buf[0] }
func bufIsNull(buf sql.Row) bool            { return buf[1].(bool) }
func bufNoTransValue(buf sql.Row) bool      { return buf[2].(bool) }

func setBuf(buf sql.Row, v interface{}, isNull, noTransValue bool) {
	buf[0] = v
	buf[1] = isNull
	buf[2] = noTransValue
}

// finishTransition applies a transition or combine function's result to buf.
// A nil result is only treated as "permanently null" (transValueIsNull) once
// the buffer already holds a real value; a nil result while still
// noTransValue just means "no contribution yet", which non-strict functions
// report by echoing back their (possibly nil) input state for a skipped
// row — it must not be confused with a deliberate transition to null.
func finishTransition(buf sql.Row, newState interface{}) {
	if newState == nil && bufNoTransValue(buf) {
		return
	}
	setBuf(buf, newState, newState == nil, false)
}

// ApplyTransition runs the spec §4.5 "Transition (normal)" algorithm against
// buf in place.
func ApplyTransition(ctx *sql.Context, buf sql.Row, fn TransitionFunc, strict bool, args []interface{}) error {
	if strict {
		for _, a := range args {
			if a == nil {
				return nil
			}
		}
		if bufNoTransValue(buf) {
			var first interface{}
			if len(args) > 0 {
				first = args[0]
			}
			setBuf(buf, first, first == nil, false)
			return nil
		}
		if bufIsNull(buf) {
			// transValueIsNull propagates forever once set.
			return nil
		}
		newState, err := fn(ctx, bufTransValue(buf), args...)
		if err != nil {
			return err
		}
		finishTransition(buf, newState)
		return nil
	}

	// Non-strict: the transition function itself decides how to treat a
	// null input or a null (not-yet-seeded) prior state.
	if !bufNoTransValue(buf) && bufIsNull(buf) {
		return nil
	}
	var cur interface{}
	if !bufNoTransValue(buf) {
		cur = bufTransValue(buf)
	}
	newState, err := fn(ctx, cur, args...)
	if err != nil {
		return err
	}
	finishTransition(buf, newState)
	return nil
}

// ApplyCombine runs the spec §4.5 "Combine" algorithm, merging partial into
// buf in place. A partial still at noTransValue contributes nothing, and a
// buf still at noTransValue adopts partial's state outright without calling
// fn.
func ApplyCombine(ctx *sql.Context, buf, partial sql.Row, fn CombineFunc, strict bool) error {
	if bufNoTransValue(partial) {
		return nil
	}
	if strict && bufIsNull(partial) {
		return nil
	}
	if bufNoTransValue(buf) {
		setBuf(buf, bufTransValue(partial), bufIsNull(partial), false)
		return nil
	}
	if bufIsNull(buf) {
		return nil
	}
	newState, err := fn(ctx, bufTransValue(buf), bufTransValue(partial))
	if err != nil {
		return err
	}
	finishTransition(buf, newState)
	return nil
}

// ApplyFinal runs the spec §4.5 "Finalize" algorithm and returns the
// aggregate's result value for buf.
func ApplyFinal(ctx *sql.Context, buf sql.Row, fn FinalFunc, strict bool, directArgs []interface{}) (interface{}, error) {
	if bufNoTransValue(buf) {
		return nil, nil
	}
	if strict {
		if bufIsNull(buf) {
			return nil, nil
		}
		for _, a := range directArgs {
			if a == nil {
				return nil, nil
			}
		}
	}
	if fn == nil {
		return bufTransValue(buf), nil
	}
	return fn(ctx, bufTransValue(buf), directArgs...)
}

// simpleAgg is the standalone, single-argument sql.Aggregation every builtin
// in this package (except AVG and GROUP_CONCAT, which need extra state or
// arguments) is built from: it just drives a CatalogEntry's handles through
// the three generic Apply* helpers above.
type simpleAgg struct {
	name  string
	arg   sql.Expression
	entry *CatalogEntry
}

var _ sql.Aggregation = (*simpleAgg)(nil)

func newSimpleAgg(name string, entry *CatalogEntry, arg sql.Expression) *simpleAgg {
	return &simpleAgg{name: name, arg: arg, entry: entry}
}

func (a *simpleAgg) Type() sql.Type             { return a.entry.StateType }
func (a *simpleAgg) IsNullable() bool           { return true }
func (a *simpleAgg) Children() []sql.Expression { return []sql.Expression{a.arg} }
func (a *simpleAgg) String() string             { return fmt.Sprintf("%s(%s)", a.name, a.arg) }

func (a *simpleAgg) NewBuffer() sql.Row {
	return NewBuffer(a.entry.InitialValue, a.entry.InitialValueIsNull)
}

func (a *simpleAgg) Update(ctx *sql.Context, buffer sql.Row, row sql.Row) error {
	v, err := a.arg.Eval(ctx, row)
	if err != nil {
		return err
	}
	return ApplyTransition(ctx, buffer, a.entry.Transition, a.entry.TransitionStrict, []interface{}{v})
}

func (a *simpleAgg) Merge(ctx *sql.Context, buffer, partial sql.Row) error {
	return ApplyCombine(ctx, buffer, partial, a.entry.Combine, a.entry.CombineStrict)
}

func (a *simpleAgg) Eval(ctx *sql.Context, buffer sql.Row) (interface{}, error) {
	return ApplyFinal(ctx, buffer, a.entry.Final, a.entry.FinalStrict, nil)
}

// --- spill wire format ---------------------------------------------------
//
// wireBuffer is the msgpack-encoded shape of a 3-slot transition buffer,
// the "per_pt_states" record spec §3/§6 describe; Payload holds the
// transValue itself, encoded by whatever codec a specific aggregate needs
// (a plain scalar for simpleAgg, a shadow struct for avgAgg).

type wireBuffer struct {
	IsNull       bool
	NoTransValue bool
	Payload      []byte
}

func encodeBufferWith(buf sql.Row, encodeValue func(interface{}) ([]byte, error)) ([]byte, error) {
	wb := wireBuffer{IsNull: bufIsNull(buf), NoTransValue: bufNoTransValue(buf)}
	if !wb.NoTransValue && !wb.IsNull {
		p, err := encodeValue(bufTransValue(buf))
		if err != nil {
			return nil, err
		}
		wb.Payload = p
	}
	return msgpack.Marshal(wb)
}

func decodeBufferWith(data []byte, decodeValue func([]byte) (interface{}, error)) (sql.Row, error) {
	var wb wireBuffer
	if err := msgpack.Unmarshal(data, &wb); err != nil {
		return nil, err
	}
	if wb.NoTransValue {
		return NewBuffer(nil, true), nil
	}
	if wb.IsNull {
		return sql.Row{nil, true, false}, nil
	}
	v, err := decodeValue(wb.Payload)
	if err != nil {
		return nil, err
	}
	return sql.Row{v, false, false}, nil
}

var _ sql.BufferCodec = (*simpleAgg)(nil)

// EncodeBuffer implements sql.BufferCodec for SUM/COUNT/MIN/MAX's plain
// scalar transition state.
func (a *simpleAgg) EncodeBuffer(ctx *sql.Context, buf sql.Row) ([]byte, error) {
	return encodeBufferWith(buf, func(v interface{}) ([]byte, error) { return msgpack.Marshal(v) })
}

// DecodeBuffer implements sql.BufferCodec, re-coercing the decoded scalar
// back to the entry's StateType so a reloaded int32/float32 min/max state
// doesn't silently widen to msgpack's default int64/float64.
func (a *simpleAgg) DecodeBuffer(ctx *sql.Context, data []byte) (sql.Row, error) {
	return decodeBufferWith(data, func(p []byte) (interface{}, error) {
		var v interface{}
		if err := msgpack.Unmarshal(p, &v); err != nil {
			return nil, err
		}
		return a.entry.StateType.Convert(v)
	})
}
