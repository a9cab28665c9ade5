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

// Literal is a constant expression, ignoring its input row entirely.
type Literal struct {
	value     interface{}
	fieldType sql.Type
}

var _ sql.Expression = (*Literal)(nil)

// NewLiteral wraps a constant value with its nominal type.
func NewLiteral(value interface{}, fieldType sql.Type) *Literal {
	return &Literal{value: value, fieldType: fieldType}
}

func (l *Literal) Type() sql.Type           { return l.fieldType }
func (l *Literal) IsNullable() bool         { return l.value == nil }
func (l *Literal) Children() []sql.Expression { return nil }
func (l *Literal) String() string           { return fmt.Sprintf("%v", l.value) }

func (l *Literal) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	return l.value, nil
}

// Star represents the `*` argument of COUNT(*): aggregates that receive it
// count rows regardless of any column value, per
// sql/expression/function/aggregation/count_test.go's TestCountEvalStar.
type Star struct{}

var _ sql.Expression = (*Star)(nil)

// NewStar returns the shared Star expression.
func NewStar() *Star { return &Star{} }

func (s *Star) Type() sql.Type             { return sql.Int64 }
func (s *Star) IsNullable() bool           { return false }
func (s *Star) Children() []sql.Expression { return nil }
func (s *Star) String() string             { return "*" }

func (s *Star) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	return row, nil
}

// UnresolvedColumn is a placeholder referencing a column by name only. The
// planner (out of scope) is responsible for replacing it with a GetField
// before the aggregator ever sees it; it exists here purely so
// sql.SortFields can be constructed and printed the way
// sql/expression/function/aggregation/group_concat_test.go does, for
// ORDER BY clauses the planner has not yet bound.
type UnresolvedColumn struct {
	name string
}

var _ sql.Expression = (*UnresolvedColumn)(nil)

// NewUnresolvedColumn creates an UnresolvedColumn referencing name.
func NewUnresolvedColumn(name string) *UnresolvedColumn {
	return &UnresolvedColumn{name: name}
}

func (u *UnresolvedColumn) Type() sql.Type             { return sql.Text }
func (u *UnresolvedColumn) IsNullable() bool           { return true }
func (u *UnresolvedColumn) Children() []sql.Expression { return nil }
func (u *UnresolvedColumn) String() string             { return u.name }

func (u *UnresolvedColumn) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	return nil, fmt.Errorf("column %q is unresolved", u.name)
}
