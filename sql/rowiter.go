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

import "io"

// RowIter is the pull-based row source contract every operator in this
// repository, including the aggregator itself, implements. Next returns
// io.EOF once exhausted and must keep returning io.EOF on every subsequent
// call (spec §4.1: "idempotent after first EndOfStream").
type RowIter interface {
	Next(ctx *Context) (Row, error)
	Close(ctx *Context) error
}

// RowIterToRows drains iter into a slice, closing it on every return path.
// The schema argument is accepted (and ignored) for parity with callers that
// want to validate row shape against it; nil is fine.
func RowIterToRows(ctx *Context, schema Schema, iter RowIter) ([]Row, error) {
	var rows []Row
	for {
		row, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = iter.Close(ctx)
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := iter.Close(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// sliceRowIter adapts a pre-materialized slice of rows into a RowIter. It is
// used throughout tests as a stand-in "child plan" feeding the aggregator.
type sliceRowIter struct {
	rows []Row
	pos  int
}

// NewSliceRowIter returns a RowIter over a fixed slice of rows.
func NewSliceRowIter(rows ...Row) RowIter {
	return &sliceRowIter{rows: rows}
}

func (s *sliceRowIter) Next(ctx *Context) (Row, error) {
	if err := ctx.CheckInterrupt(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceRowIter) Close(ctx *Context) error { return nil }
