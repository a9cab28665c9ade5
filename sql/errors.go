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

import "gopkg.in/src-d/go-errors.v1"

// Error taxonomy for the aggregation engine. The first nine Kinds below form
// the engine's error taxonomy proper; ErrColumnNotFound and
// ErrStrictCombineOnInternal are two further Kinds. None of them are retried
// internally, and all of them are expected to propagate out of RowIter.Next
// unchanged.
var (
	// ErrPlannerContract fires when the plan node handed to the aggregator
	// is internally inconsistent, e.g. a COMBINE split mode with no combine
	// function, or a strict combine function over an INTERNAL state.
	ErrPlannerContract = errors.NewKind("aggregate plan contract violated: %s")

	// ErrCatalogMissing fires when an aggregate function id cannot be
	// resolved against the catalog.
	ErrCatalogMissing = errors.NewKind("aggregate function %q not found in catalog")

	// ErrPermission fires when the caller lacks execute rights on one of an
	// aggregate's component functions.
	ErrPermission = errors.NewKind("permission denied executing %s")

	// ErrNestedAggregate fires when an aggregate call's arguments contain
	// another aggregate call.
	ErrNestedAggregate = errors.NewKind("aggregate function calls cannot be nested")

	// ErrTypeMismatch fires when a strict transition function has a null
	// initial value and its first input type is not binary-compatible with
	// the declared state type.
	ErrTypeMismatch = errors.NewKind("type mismatch: %s")

	// ErrSpillIO fires on any temporary-file read/write failure during
	// hybrid hash spilling.
	ErrSpillIO = errors.NewKind("spill file i/o error: %s")

	// ErrSpillCorruption fires when a batch file's read count does not
	// match its write count.
	ErrSpillCorruption = errors.NewKind("spill batch %s corrupted: wrote %d records, read %d")

	// ErrParallelPeerError fires in a worker that observes another worker
	// signal Error during parallel redistribution.
	ErrParallelPeerError = errors.NewKind("parallel worker %s reported an error")

	// ErrInterrupted fires when cooperative cancellation is observed.
	ErrInterrupted = errors.NewKind("query execution was interrupted")

	// ErrColumnNotFound fires when a GetField index is out of range for a
	// row, or a referenced column name cannot be resolved.
	ErrColumnNotFound = errors.NewKind("column %q not found")

	// ErrStrictCombineOnInternal describes a combine function over an
	// INTERNAL state that is declared strict. No code in this repository
	// checks catalog entries for this or returns this Kind.
	ErrStrictCombineOnInternal = errors.NewKind("combine function for %q operates on an INTERNAL state and must not be strict")
)
