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

// BufferCodec is the optional serialize/deserialize pair spec §3/§6 require
// for spilling an aggregate's transition buffer to a batch file: an
// Aggregation whose transition state is an opaque (INTERNAL) Go value that
// a generic encoder can't walk by reflection implements this so
// sql/rowexec's hybrid hash engine can still spill and reload it. An
// Aggregation that doesn't implement BufferCodec is spilled with a generic
// encoder instead (sql/rowexec's default codec), which only works for
// buffers holding plain scalars.
type BufferCodec interface {
	EncodeBuffer(ctx *Context, buf Row) ([]byte, error)
	DecodeBuffer(ctx *Context, data []byte) (Row, error)
}
