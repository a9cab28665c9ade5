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

func TestSum(t *testing.T) {
	sum := NewSum(sql.NewEmptyContext(), expression.NewGetField(0, sql.Text, "", false))

	testCases := []struct {
		name     string
		rows     []sql.Row
		expected interface{}
	}{
		{"string int values", []sql.Row{{"1"}, {"2"}, {"3"}, {"4"}}, float64(10)},
		{"string float values", []sql.Row{{"1.5"}, {"2"}, {"3"}, {"4"}}, float64(10.5)},
		{"string non-int values", []sql.Row{{"a"}, {"b"}, {"c"}, {"d"}}, float64(0)},
		{"float values", []sql.Row{{1.}, {2.5}, {3.}, {4.}}, float64(10.5)},
		{"no rows", []sql.Row{}, nil},
		{"nil values", []sql.Row{{nil}, {nil}}, nil},
		{"int64 values", []sql.Row{{int64(1)}, {int64(3)}}, float64(4)},
		{"int32 values", []sql.Row{{int32(1)}, {int32(3)}}, float64(4)},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			buf := sum.NewBuffer()
			for _, row := range tt.rows {
				require.NoError(sum.Update(sql.NewEmptyContext(), buf, row))
			}

			result, err := sum.Eval(sql.NewEmptyContext(), buf)
			require.NoError(err)
			require.Equal(tt.expected, result)
		})
	}
}

func TestSumWithDistinct(t *testing.T) {
	require := require.New(t)

	ad := expression.NewDistinctExpression(expression.NewGetField(0, sql.Text, "myfield", false))
	sum := NewSum(sql.NewEmptyContext(), ad)

	require.Equal("SUM(DISTINCT myfield)", sum.String())

	testCases := []struct {
		name     string
		rows     []sql.Row
		expected interface{}
	}{
		{"string int values", []sql.Row{{"1"}, {"1"}, {"2"}, {"2"}, {"3"}, {"3"}, {"4"}, {"4"}}, float64(10)},
		{"no rows", []sql.Row{}, nil},
		{"nil values", []sql.Row{{nil}, {nil}}, nil},
		{"int64 values", []sql.Row{{int64(1)}, {int64(3)}, {int64(3)}, {int64(3)}}, float64(4)},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			ad.Dispose()

			buf := sum.NewBuffer()
			for _, row := range tt.rows {
				require.NoError(sum.Update(sql.NewEmptyContext(), buf, row))
			}

			result, err := sum.Eval(sql.NewEmptyContext(), buf)
			require.NoError(err)
			require.Equal(tt.expected, result)
		})
	}
}

// TestSumMerge covers spec §4.5's Combine step directly: two partials fold
// into one exact sum, the same guarantee the hash path's reload-on-collision
// and the orchestrator's MIXED-mode hash sinks both depend on.
func TestSumMerge(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	sum := NewSum(ctx, expression.NewGetField(0, sql.Float64, "", false))

	a := sum.NewBuffer()
	require.NoError(sum.Update(ctx, a, sql.Row{1.0}))
	require.NoError(sum.Update(ctx, a, sql.Row{2.0}))

	b := sum.NewBuffer()
	require.NoError(sum.Update(ctx, b, sql.Row{3.0}))

	require.NoError(sum.Merge(ctx, a, b))
	result, err := sum.Eval(ctx, a)
	require.NoError(err)
	require.Equal(float64(6), result)
}

// TestSumSpillRoundTrip exercises sql.BufferCodec directly: a SUM buffer
// encoded and decoded must still finalize to the same value, the contract
// sql/rowexec/hybrid.go relies on when a hash table dumps to disk.
func TestSumSpillRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	agg := NewSum(ctx, expression.NewGetField(0, sql.Float64, "", false))
	codec := agg.(sql.BufferCodec)

	buf := agg.NewBuffer()
	require.NoError(agg.Update(ctx, buf, sql.Row{5.0}))

	data, err := codec.EncodeBuffer(ctx, buf)
	require.NoError(err)
	decoded, err := codec.DecodeBuffer(ctx, data)
	require.NoError(err)

	result, err := agg.Eval(ctx, decoded)
	require.NoError(err)
	require.Equal(float64(5), result)
}
