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

// SortOrder is the direction a SortField orders by.
type SortOrder byte

const (
	Ascending SortOrder = iota
	Descending
)

func (s SortOrder) String() string {
	if s == Descending {
		return "DESC"
	}
	return "ASC"
}

// NullOrdering controls where nulls land relative to non-null values.
type NullOrdering byte

const (
	NullsFirst NullOrdering = iota
	NullsLast
)

// SortField is one column of an ORDER BY list, whether at the query level or
// inside an aggregate call (spec §4.5 "DISTINCT / ORDER-BY inside
// aggregate").
type SortField struct {
	Column       Expression
	Order        SortOrder
	NullOrdering NullOrdering
}

func (f SortField) String() string {
	return fmt.Sprintf("%s %s", f.Column, f.Order)
}

// SortFields is an ordered list of SortField.
type SortFields []SortField

// RowSorter is the abstract "tuple-sorter" service named in spec §1: put
// rows in any order, Finalize once, then pull them back out in sorted
// order. Implementations may spill to disk past a configured memory budget;
// the one this repository ships, in sql/rowexec/memsort.go, keeps every row
// in memory.
type RowSorter interface {
	Put(ctx *Context, row Row) error
	Finalize(ctx *Context) error
	Get(ctx *Context) (Row, error)
	Close(ctx *Context) error
}

// TempFileService hands out byte-addressable scratch files that support
// sequential writes followed by a rewind and sequential reads, per spec §1.
// The hybrid hash engine's batch files (spec §4.4) are built on top of one
// of these.
type TempFileService interface {
	NewFile(ctx *Context, name string) (TempFile, error)
}

// TempFile is a single scratch file handed out by a TempFileService.
type TempFile interface {
	WriteRecord(ctx *Context, key uint64, data []byte) error
	Rewind(ctx *Context) error
	ReadRecord(ctx *Context) (key uint64, data []byte, err error)
	Unlink(ctx *Context) error
}
