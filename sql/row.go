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

// Row is a tuple of values, one per column of a Schema. Aggregate transition
// buffers are themselves represented as a Row so that by-value and by-ref
// transition states share the same storage and copy semantics as ordinary
// data.
type Row []interface{}

// NewRow creates a Row from a list of values.
func NewRow(values ...interface{}) Row {
	return Row(values)
}

// Copy returns a shallow copy of the row. Pass-by-reference values (slices,
// maps, pointers into an arena) are not deep-copied; callers that need the
// value to outlive the arena it was allocated in must copy it themselves.
func (r Row) Copy() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}
