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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/aggexec/sql"
	"github.com/dolthub/aggexec/sql/expression"
)

func TestMax(t *testing.T) {
	max := NewMax(expression.NewGetField(0, sql.Float64, "", false))

	testCases := []struct {
		name     string
		rows     []sql.Row
		expected interface{}
	}{
		{"ascending", []sql.Row{{1.0}, {2.0}, {3.0}}, float64(3)},
		{"descending", []sql.Row{{3.0}, {2.0}, {1.0}}, float64(3)},
		{"single row", []sql.Row{{5.0}}, float64(5)},
		{"no rows", []sql.Row{}, nil},
		{"a nil is skipped, not propagated", []sql.Row{{1.0}, {nil}, {3.0}}, float64(3)},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			ctx := sql.NewEmptyContext()

			buf := max.NewBuffer()
			for _, row := range tt.rows {
				require.NoError(max.Update(ctx, buf, row))
			}

			result, err := max.Eval(ctx, buf)
			require.NoError(err)
			require.Equal(tt.expected, result)
		})
	}
}

// TestMaxCombine covers strict Combine: two partial maximums fold to the
// greater of the two.
func TestMaxCombine(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	max := NewMax(expression.NewGetField(0, sql.Float64, "", false))

	a := max.NewBuffer()
	require.NoError(max.Update(ctx, a, sql.Row{1.0}))
	require.NoError(max.Update(ctx, a, sql.Row{3.0}))

	b := max.NewBuffer()
	require.NoError(max.Update(ctx, b, sql.Row{9.0}))

	require.NoError(max.Merge(ctx, a, b))
	result, err := max.Eval(ctx, a)
	require.NoError(err)
	require.Equal(float64(9), result)
}

// TestMaxSpillRoundTrip exercises MAX's BufferCodec round trip, the same
// contract sql/rowexec/hybrid.go relies on when a hash table dumps to disk.
func TestMaxSpillRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	agg := NewMax(expression.NewGetField(0, sql.Float64, "", false))
	codec := agg.(sql.BufferCodec)

	buf := agg.NewBuffer()
	require.NoError(agg.Update(ctx, buf, sql.Row{4.0}))
	require.NoError(agg.Update(ctx, buf, sql.Row{8.0}))

	data, err := codec.EncodeBuffer(ctx, buf)
	require.NoError(err)
	decoded, err := codec.DecodeBuffer(ctx, data)
	require.NoError(err)

	result, err := agg.Eval(ctx, decoded)
	require.NoError(err)
	require.Equal(float64(8), result)
}
