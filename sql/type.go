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

package sql

import (
	"fmt"

	"github.com/spf13/cast"
)

// Type describes the nominal type of an expression, a transition state, or a
// compact hash key column. It is intentionally small: the aggregation engine
// only ever needs to compare, coerce and zero-value a column, never to parse
// or render SQL syntax for it.
type Type interface {
	// Compare returns -1, 0 or 1 the way bytes.Compare does, after coercing
	// both values to this type. A nil value compares less than any non-nil
	// value and equal to another nil value.
	Compare(a, b interface{}) (int, error)
	// Convert coerces an arbitrary Go value into this type's canonical
	// representation.
	Convert(v interface{}) (interface{}, error)
	// ByValue reports whether values of this type are stored inline (byval)
	// rather than by reference, mirroring spec §3's PT byval metadata.
	ByValue() bool
	// Zero returns this type's zero value.
	Zero() interface{}
	String() string
}

type numericType struct {
	name    string
	byValue bool
	convert func(v interface{}) (interface{}, error)
	zero    interface{}
}

func (t numericType) String() string   { return t.name }
func (t numericType) ByValue() bool    { return t.byValue }
func (t numericType) Zero() interface{} { return t.zero }

func (t numericType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return t.convert(v)
}

func (t numericType) Compare(a, b interface{}) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}
	av, err := t.Convert(a)
	if err != nil {
		return 0, err
	}
	bv, err := t.Convert(b)
	if err != nil {
		return 0, err
	}
	af, _ := cast.ToFloat64E(av)
	bf, _ := cast.ToFloat64E(bv)
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// Builtin scalar types. Coercion is delegated to github.com/spf13/cast,
// which is what lets SUM/AVG/COUNT accept strings, all integer widths and
// both float widths interchangeably, as exercised throughout
// sql/expression/function/aggregation/*_test.go.
var (
	Int32 Type = numericType{
		name: "INT32", byValue: true, zero: int32(0),
		convert: func(v interface{}) (interface{}, error) { return cast.ToInt32E(v) },
	}
	Int64 Type = numericType{
		name: "INT64", byValue: true, zero: int64(0),
		convert: func(v interface{}) (interface{}, error) { return cast.ToInt64E(v) },
	}
	Uint64 Type = numericType{
		name: "UINT64", byValue: true, zero: uint64(0),
		convert: func(v interface{}) (interface{}, error) { return cast.ToUint64E(v) },
	}
	Float32 Type = numericType{
		name: "FLOAT32", byValue: true, zero: float32(0),
		convert: func(v interface{}) (interface{}, error) { return cast.ToFloat32E(v) },
	}
	Float64 Type = numericType{
		name: "FLOAT64", byValue: true, zero: float64(0),
		convert: func(v interface{}) (interface{}, error) { return cast.ToFloat64E(v) },
	}
	Boolean Type = numericType{
		name: "BOOLEAN", byValue: true, zero: false,
		convert: func(v interface{}) (interface{}, error) { return cast.ToBoolE(v) },
	}
)

type textType struct{}

func (textType) String() string    { return "TEXT" }
func (textType) ByValue() bool     { return false }
func (textType) Zero() interface{} { return "" }
func (textType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToStringE(v)
}
func (textType) Compare(a, b interface{}) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}
	as, err := cast.ToStringE(a)
	if err != nil {
		return 0, err
	}
	bs, err := cast.ToStringE(b)
	if err != nil {
		return 0, err
	}
	switch {
	case as < bs:
		return -1, nil
	case as > bs:
		return 1, nil
	default:
		return 0, nil
	}
}

// Text is the variable-length, pass-by-reference string type.
var Text Type = textType{}

// InternalType is the nominal type of opaque, type-erased transition state
// (spec §3/§9 "INTERNAL"). It never participates in ordinary comparisons;
// aggregates that use it supply their own serialize/deserialize handles.
type internalType struct{}

func (internalType) String() string                           { return "INTERNAL" }
func (internalType) ByValue() bool                             { return false }
func (internalType) Zero() interface{}                         { return nil }
func (internalType) Convert(v interface{}) (interface{}, error) { return v, nil }
func (internalType) Compare(a, b interface{}) (int, error) {
	return 0, fmt.Errorf("INTERNAL type does not support comparison")
}

// Internal is the shared instance of the opaque transition-state type.
var Internal Type = internalType{}
