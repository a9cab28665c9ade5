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

// Package expression provides the concrete sql.Expression implementations
// the aggregation engine's test suite and examples build plans out of:
// column references, literals, COUNT(*)'s star, and the DISTINCT wrapper.
package expression

import (
	"fmt"

	"github.com/dolthub/aggexec/sql"
)

// GetField evaluates to the value of one column of the input row, the
// simplest possible Expression and the one every aggregate argument in the
// test suite is built from.
type GetField struct {
	index     int
	fieldType sql.Type
	name      string
	nullable  bool
}

var _ sql.Expression = (*GetField)(nil)

// NewGetField creates a GetField expression for column index in a row of
// the given nominal type.
func NewGetField(index int, fieldType sql.Type, name string, nullable bool) *GetField {
	return &GetField{index: index, fieldType: fieldType, name: name, nullable: nullable}
}

func (g *GetField) Index() int { return g.index }

func (g *GetField) Type() sql.Type { return g.fieldType }

func (g *GetField) IsNullable() bool { return g.nullable }

func (g *GetField) Children() []sql.Expression { return nil }

func (g *GetField) String() string {
	if g.name != "" {
		return g.name
	}
	return fmt.Sprintf("GetField(%d)", g.index)
}

func (g *GetField) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	if row == nil {
		return nil, nil
	}
	if g.index < 0 || g.index >= len(row) {
		return nil, sql.ErrColumnNotFound.New(g.String())
	}
	return row[g.index], nil
}
