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

// Column describes one column of a Schema.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
	Source   string
}

// Schema is an ordered list of columns.
type Schema []*Column

// PrimaryKeySchema pairs a Schema with the ordinal positions of its primary
// key columns, the way a child table's row source advertises its key to the
// planner.
type PrimaryKeySchema struct {
	Schema     Schema
	PkOrdinals []int
}

// NewPrimaryKeySchema builds a PrimaryKeySchema from a Schema and the ordinal
// positions making up its primary key (possibly none).
func NewPrimaryKeySchema(s Schema, pkOrdinals ...int) PrimaryKeySchema {
	return PrimaryKeySchema{Schema: s, PkOrdinals: pkOrdinals}
}
