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
	"github.com/dolthub/aggexec/sql"
)

// minMaxTransition builds a strict TransitionFunc/CombineFunc pair around a
// Type's Compare, keeping whichever of the two sides the comparator ranks
// lower (pickMin) or higher. Strict's "seed the buffer with args[0] on the
// first call" behavior in ApplyTransition means this func only ever needs
// to handle the steady-state compare-and-keep case.
func minMaxTransition(t sql.Type, pickMin bool) TransitionFunc {
	return func(ctx *sql.Context, state interface{}, args ...interface{}) (interface{}, error) {
		c, err := t.Compare(args[0], state)
		if err != nil {
			return nil, err
		}
		if (pickMin && c < 0) || (!pickMin && c > 0) {
			return args[0], nil
		}
		return state, nil
	}
}

func minMaxCombine(t sql.Type, pickMin bool) CombineFunc {
	return func(ctx *sql.Context, a, b interface{}) (interface{}, error) {
		c, err := t.Compare(b, a)
		if err != nil {
			return nil, err
		}
		if (pickMin && c < 0) || (!pickMin && c > 0) {
			return b, nil
		}
		return a, nil
	}
}

// NewMinEntry builds the MIN catalog entry for columns of type t.
func NewMinEntry(t sql.Type) *CatalogEntry {
	return &CatalogEntry{
		ID:                 "min",
		Transition:         minMaxTransition(t, true),
		TransitionStrict:   true,
		Combine:            minMaxCombine(t, true),
		CombineStrict:      true,
		InitialValue:       nil,
		InitialValueIsNull: true,
		StateType:          t,
	}
}

// minCatalogEntry is the default, Float64-typed MIN registered in
// NewBuiltinCatalog; NewMin builds a column-typed entry per call via
// NewMinEntry instead of relying on this default.
var minCatalogEntry = NewMinEntry(sql.Float64)

// NewMin returns the MIN(arg) aggregate, comparing values with arg.Type().
func NewMin(arg sql.Expression) sql.Aggregation {
	return newSimpleAgg("MIN", NewMinEntry(arg.Type()), arg)
}
