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

// Package memory is a minimal in-process row source, the same role the
// teacher's own memory package plays in its plan/rowexec test suites
// (memory.NewTable, table.Insert, table.RowIter): it exists purely so the
// aggregation engine's own tests have a concrete sql.Node to sit a GroupBy
// node on top of, not as a real storage engine.
package memory

import (
	"sync"

	"github.com/dolthub/aggexec/sql"
)

// Table is an append-only, in-memory row source implementing sql.Node.
type Table struct {
	name   string
	schema sql.Schema

	mu   sync.Mutex
	rows []sql.Row
}

var _ sql.Node = (*Table)(nil)

// NewTable creates an empty table named name with the given schema.
func NewTable(name string, schema sql.Schema) *Table {
	return &Table{name: name, schema: schema}
}

// Insert appends row to the table.
func (t *Table) Insert(ctx *sql.Context, row sql.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, row)
	return nil
}

func (t *Table) Name() string        { return t.name }
func (t *Table) Schema() sql.Schema  { return t.schema }
func (t *Table) Resolved() bool      { return true }
func (t *Table) Children() []sql.Node { return nil }
func (t *Table) String() string      { return "Table(" + t.name + ")" }

// RowIter returns an iterator over a snapshot of the table's rows taken at
// call time, so a GroupBy reading from it mid-insert sees a consistent
// view. sql/rowexec.Build type-switches on concrete Node types that know
// how to produce their own iterator, of which Table is the simplest.
func (t *Table) RowIter(ctx *sql.Context) (sql.RowIter, error) {
	t.mu.Lock()
	rows := make([]sql.Row, len(t.rows))
	copy(rows, t.rows)
	t.mu.Unlock()
	return sql.NewSliceRowIter(rows...), nil
}
