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

package rowexec

import (
	"io"
	"sort"

	"github.com/dolthub/aggexec/sql"
)

// memRowSorter is the default sql.RowSorter (spec §1's "abstract
// tuple-sorter service"): buffer every Put row, sort once on Finalize, then
// hand rows back in order. It is used for a phase's rollup re-sort hand-off
// (spec §4.2); nothing in this repository uses it for per-aggregate
// DISTINCT/ORDER BY sorting. It is deliberately unbounded in memory -- the
// engine's own spill machinery (sql/rowexec/hybrid.go) is reserved for the
// hash path, matching the teacher's own layering of sort vs. hash aggregate
// operators as independent concerns.
type memRowSorter struct {
	fields sql.SortFields
	rows   []sql.Row
	pos    int
	sorted bool
}

var _ sql.RowSorter = (*memRowSorter)(nil)

// NewMemRowSorter returns a RowSorter ordering by fields.
func NewMemRowSorter(fields sql.SortFields) sql.RowSorter {
	return &memRowSorter{fields: fields}
}

func (s *memRowSorter) Put(ctx *sql.Context, row sql.Row) error {
	if s.sorted {
		return io.ErrClosedPipe
	}
	s.rows = append(s.rows, row.Copy())
	return nil
}

func (s *memRowSorter) Finalize(ctx *sql.Context) error {
	var sortErr error
	sort.SliceStable(s.rows, func(i, j int) bool {
		less, err := s.less(ctx, s.rows[i], s.rows[j])
		if err != nil {
			sortErr = err
		}
		return less
	})
	s.sorted = true
	return sortErr
}

func (s *memRowSorter) less(ctx *sql.Context, a, b sql.Row) (bool, error) {
	for _, f := range s.fields {
		av, err := f.Column.Eval(ctx, a)
		if err != nil {
			return false, err
		}
		bv, err := f.Column.Eval(ctx, b)
		if err != nil {
			return false, err
		}
		cmp, err := f.Column.Type().Compare(av, bv)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			continue
		}
		if f.Order == sql.Descending {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
	return false, nil
}

func (s *memRowSorter) Get(ctx *sql.Context) (sql.Row, error) {
	if !s.sorted {
		if err := s.Finalize(ctx); err != nil {
			return nil, err
		}
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *memRowSorter) Close(ctx *sql.Context) error {
	s.rows = nil
	return nil
}
