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

package aggregation

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dolthub/aggexec/sql"
)

// avgState is AVG's INTERNAL transition state: a running sum and count,
// the same sum/count pair Postgres's float8_avg keeps behind an INTERNAL
// transtype, so combining two partials is exact rather than averaging
// averages.
type avgState struct {
	sum   float64
	count int64
}

func avgTransition(ctx *sql.Context, state interface{}, args ...interface{}) (interface{}, error) {
	if args[0] == nil {
		return state, nil
	}
	v, err := cast.ToFloat64E(args[0])
	if err != nil {
		v = 0
	}
	cur, _ := state.(avgState)
	cur.sum += v
	cur.count++
	return cur, nil
}

func avgCombine(ctx *sql.Context, a, b interface{}) (interface{}, error) {
	as, bs := a.(avgState), b.(avgState)
	return avgState{sum: as.sum + bs.sum, count: as.count + bs.count}, nil
}

func avgFinal(ctx *sql.Context, state interface{}, directArgs ...interface{}) (interface{}, error) {
	s := state.(avgState)
	if s.count == 0 {
		return nil, nil
	}
	return s.sum / float64(s.count), nil
}

var avgCatalogEntry = &CatalogEntry{
	ID:                 "avg",
	Transition:         avgTransition,
	TransitionStrict:   false,
	Combine:            avgCombine,
	CombineStrict:      true,
	Final:              avgFinal,
	FinalStrict:        false,
	InitialValue:       nil,
	InitialValueIsNull: true,
	StateType:          sql.Internal,
}

// avgAgg is AVG's sql.Aggregation: it can't reuse simpleAgg's
// Int32/Float64-shaped StateType reporting since the buffer carries an
// opaque avgState, so Type() always reports the nominal result type instead
// of the transition state's type.
type avgAgg struct {
	arg sql.Expression
}

var _ sql.Aggregation = (*avgAgg)(nil)

// NewAvg returns the AVG(arg) aggregate.
func NewAvg(ctx *sql.Context, arg sql.Expression) sql.Aggregation {
	return &avgAgg{arg: arg}
}

func (a *avgAgg) Type() sql.Type             { return sql.Float64 }
func (a *avgAgg) IsNullable() bool           { return true }
func (a *avgAgg) Children() []sql.Expression { return []sql.Expression{a.arg} }
func (a *avgAgg) String() string             { return fmt.Sprintf("AVG(%s)", a.arg) }

func (a *avgAgg) NewBuffer() sql.Row {
	return NewBuffer(nil, true)
}

func (a *avgAgg) Update(ctx *sql.Context, buffer sql.Row, row sql.Row) error {
	v, err := a.arg.Eval(ctx, row)
	if err != nil {
		return err
	}
	return ApplyTransition(ctx, buffer, avgCatalogEntry.Transition, false, []interface{}{v})
}

func (a *avgAgg) Merge(ctx *sql.Context, buffer, partial sql.Row) error {
	return ApplyCombine(ctx, buffer, partial, avgCatalogEntry.Combine, true)
}

func (a *avgAgg) Eval(ctx *sql.Context, buffer sql.Row) (interface{}, error) {
	return ApplyFinal(ctx, buffer, avgCatalogEntry.Final, false, nil)
}

var _ sql.BufferCodec = (*avgAgg)(nil)

// avgStateWire is avgState's exported shadow: msgpack can't walk avgState's
// unexported fields by reflection, so EncodeBuffer/DecodeBuffer round-trip
// through this instead.
type avgStateWire struct {
	Sum   float64
	Count int64
}

// EncodeBuffer implements sql.BufferCodec so the hybrid hash engine can
// spill AVG's running sum/count to a batch file.
func (a *avgAgg) EncodeBuffer(ctx *sql.Context, buf sql.Row) ([]byte, error) {
	return encodeBufferWith(buf, func(v interface{}) ([]byte, error) {
		s := v.(avgState)
		return msgpack.Marshal(avgStateWire{Sum: s.sum, Count: s.count})
	})
}

// DecodeBuffer implements sql.BufferCodec, reconstituting avgState from its
// wire shadow.
func (a *avgAgg) DecodeBuffer(ctx *sql.Context, data []byte) (sql.Row, error) {
	return decodeBufferWith(data, func(p []byte) (interface{}, error) {
		var w avgStateWire
		if err := msgpack.Unmarshal(p, &w); err != nil {
			return nil, err
		}
		return avgState{sum: w.Sum, count: w.Count}, nil
	})
}
