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

import "fmt"

// Expression is the contract the aggregation engine consumes from the
// (out-of-scope) expression evaluator: something that can be evaluated
// against a row and reports its own type and nullability.
type Expression interface {
	fmt.Stringer
	Type() Type
	IsNullable() bool
	Eval(ctx *Context, row Row) (interface{}, error)
	Children() []Expression
}

// Aggregation is an aggregate function value as seen by the executor: it
// knows how to allocate a fresh transition buffer, fold a row into it,
// merge two buffers together (the combine step used for partial
// aggregation, see spec §4.5), and produce a final value from a buffer.
//
// The buffer itself is a Row rather than an opaque handle so by-value and
// by-reference transition state share the same allocation and copy
// semantics as ordinary data; a PT with a single INTERNAL state simply
// stores one element in that row.
type Aggregation interface {
	Expression
	// NewBuffer allocates a zeroed transition buffer, seeded with this
	// aggregate's initial value.
	NewBuffer() Row
	// Update folds one input row into buffer.
	Update(ctx *Context, buffer Row, row Row) error
	// Merge combines partial's state into buffer in place (spec §4.5
	// "Combine").
	Merge(ctx *Context, buffer, partial Row) error
	// Eval (inherited from Expression) doubles as the final-value step:
	// callers pass the transition buffer itself as the "row" argument,
	// matching NewBuffer's return type. With a Distinct wrapper (see
	// sql/expression.DistinctExpression) a value already seen by a prior
	// Update call on the same buffer is skipped.
}

// Disposable is implemented by expressions (notably DistinctExpression) that
// accumulate state across a series of Eval calls and need that state reset
// between independent aggregation runs that happen to reuse the same
// expression instance.
type Disposable interface {
	Dispose()
}
