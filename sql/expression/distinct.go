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

package expression

import (
	"fmt"

	"github.com/dolthub/aggexec/sql"
)

// DistinctExpression is the single-argument DISTINCT path described in spec
// §4.5: it wraps an argument expression and silently turns repeat values
// into nil, so a plain aggregate (SUM, COUNT, ...) built on top of it only
// ever folds each distinct value once. This mirrors SUM(DISTINCT x)'s actual
// implementation in the teacher, which composes a bare Sum with a
// dedup-aware argument rather than special-casing DISTINCT inside Sum
// itself.
//
// For multi-column DISTINCT and for DISTINCT/ORDER BY combined with an
// ordered-set aggregate, a single seen-set can't express column-wise
// equality or ordering; those cases are handled by the aggregate's own
// internal row buffering instead (spec §4.5 "Multi-input case"), the way
// GroupConcat buffers and sorts its rows directly rather than composing with
// DistinctExpression.
type DistinctExpression struct {
	Child sql.Expression
	seen  map[interface{}]struct{}
}

var (
	_ sql.Expression  = (*DistinctExpression)(nil)
	_ sql.Disposable  = (*DistinctExpression)(nil)
)

// NewDistinctExpression wraps child with duplicate-suppression state.
func NewDistinctExpression(child sql.Expression) *DistinctExpression {
	return &DistinctExpression{Child: child, seen: make(map[interface{}]struct{})}
}

func (d *DistinctExpression) Type() sql.Type             { return d.Child.Type() }
func (d *DistinctExpression) IsNullable() bool           { return true }
func (d *DistinctExpression) Children() []sql.Expression { return []sql.Expression{d.Child} }
func (d *DistinctExpression) String() string             { return fmt.Sprintf("DISTINCT %s", d.Child) }

// Dispose clears the seen-value set, letting the same DistinctExpression
// instance be reused across independent aggregation runs (each test case in
// sum_test.go's TestSumWithDistinct calls this between table-driven cases).
func (d *DistinctExpression) Dispose() {
	d.seen = make(map[interface{}]struct{})
}

func (d *DistinctExpression) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	v, err := d.Child.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	if _, ok := d.seen[v]; ok {
		return nil, nil
	}
	d.seen[v] = struct{}{}
	return v, nil
}
