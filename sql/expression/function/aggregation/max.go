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

package aggregation

import (
	"github.com/dolthub/aggexec/sql"
)

// NewMaxEntry builds the MAX catalog entry for columns of type t.
func NewMaxEntry(t sql.Type) *CatalogEntry {
	return &CatalogEntry{
		ID:                 "max",
		Transition:         minMaxTransition(t, false),
		TransitionStrict:   true,
		Combine:            minMaxCombine(t, false),
		CombineStrict:      true,
		InitialValue:       nil,
		InitialValueIsNull: true,
		StateType:          t,
	}
}

var maxCatalogEntry = NewMaxEntry(sql.Float64)

// NewMax returns the MAX(arg) aggregate, comparing values with arg.Type().
func NewMax(arg sql.Expression) sql.Aggregation {
	return newSimpleAgg("MAX", NewMaxEntry(arg.Type()), arg)
}
