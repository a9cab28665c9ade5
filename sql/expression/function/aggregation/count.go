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
	"github.com/dolthub/aggexec/sql/expression"
)

// countTransition is strict: ApplyTransition already skips the row when the
// argument is null, so reaching here means there's a value to count.
func countTransition(ctx *sql.Context, state interface{}, args ...interface{}) (interface{}, error) {
	return state.(int64) + 1, nil
}

func countCombine(ctx *sql.Context, a, b interface{}) (interface{}, error) {
	return a.(int64) + b.(int64), nil
}

var countCatalogEntry = &CatalogEntry{
	ID:                 "count",
	Transition:         countTransition,
	TransitionStrict:   true,
	Combine:            countCombine,
	CombineStrict:      false,
	InitialValue:       int64(0),
	InitialValueIsNull: false,
	StateType:          sql.Int64,
}

// NewCount returns COUNT(arg): every row whose argument evaluates non-null
// increments the count, per count_test.go's TestCountEvalString. COUNT(*)
// is NewCount with expression.NewStar(), which never evaluates null.
func NewCount(ctx *sql.Context, arg sql.Expression) sql.Aggregation {
	return newSimpleAgg("COUNT", countCatalogEntry, arg)
}

// NewCountDistinct returns COUNT(DISTINCT arg): repeat values of arg, across
// the lifetime of the buffer, are only counted once.
func NewCountDistinct(arg sql.Expression) sql.Aggregation {
	return newSimpleAgg("COUNT", countCatalogEntry, expression.NewDistinctExpression(arg))
}
