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
	"github.com/spf13/cast"

	"github.com/dolthub/aggexec/sql"
)

// sumTransition is non-strict: a null input row just means "no contribution",
// which must leave a still-unseeded buffer at noTransValue rather than
// forcing transValueIsNull, so a SUM that starts with a run of nulls can
// still pick up a later real value. Values that fail float coercion (e.g.
// non-numeric strings) coerce to 0 rather than erroring, matching
// sum_test.go's "string non-int values" case.
func sumTransition(ctx *sql.Context, state interface{}, args ...interface{}) (interface{}, error) {
	if args[0] == nil {
		return state, nil
	}
	v, err := cast.ToFloat64E(args[0])
	if err != nil {
		v = 0
	}
	if state == nil {
		return v, nil
	}
	return state.(float64) + v, nil
}

func sumCombine(ctx *sql.Context, a, b interface{}) (interface{}, error) {
	return a.(float64) + b.(float64), nil
}

var sumCatalogEntry = &CatalogEntry{
	ID:                 "sum",
	Transition:         sumTransition,
	TransitionStrict:   false,
	Combine:            sumCombine,
	CombineStrict:      true,
	InitialValue:       nil,
	InitialValueIsNull: true,
	StateType:          sql.Float64,
}

// NewSum returns the SUM(arg) aggregate described in spec §4.5's
// single-input path.
func NewSum(ctx *sql.Context, arg sql.Expression) sql.Aggregation {
	return newSimpleAgg("SUM", sumCatalogEntry, arg)
}
