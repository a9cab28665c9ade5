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

// Node is the minimal plan-node surface this repository needs from "the
// planner" (spec §1's out-of-scope collaborator): just enough for a plan
// node to report its output schema, whether it is fully resolved, and to
// expose its children. Query parsing, rewriting and optimization never
// live here. Building a RowIter for a Node is deliberately NOT a Node
// method: sql/rowexec owns that dispatch (a Build(ctx, node) function)
// the same way the teacher's rowexec package builds iterators for plan
// nodes from the outside rather than the node building itself, which is
// what lets sql/plan stay free of an import cycle on sql/rowexec.
type Node interface {
	Schema() Schema
	Resolved() bool
	Children() []Node
	String() string
}
