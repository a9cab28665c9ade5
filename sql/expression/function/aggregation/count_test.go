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

func TestCountEvalString(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()

	count := NewCount(ctx, expression.NewGetField(0, sql.Text, "", false))
	buf := count.NewBuffer()

	rows := []sql.Row{{"a"}, {nil}, {"b"}, {nil}, {"c"}}
	for _, row := range rows {
		require.NoError(count.Update(ctx, buf, row))
	}

	result, err := count.Eval(ctx, buf)
	require.NoError(err)
	require.Equal(int64(3), result)
}

func TestCountEvalStar(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()

	count := NewCount(ctx, expression.NewStar())
	buf := count.NewBuffer()

	for i := 0; i < 4; i++ {
		require.NoError(count.Update(ctx, buf, sql.Row{nil}))
	}

	result, err := count.Eval(ctx, buf)
	require.NoError(err)
	require.Equal(int64(4), result)
}

func TestCountDistinct(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()

	count := NewCountDistinct(expression.NewGetField(0, sql.Int64, "", false))
	buf := count.NewBuffer()

	rows := []sql.Row{{int64(1)}, {int64(1)}, {int64(2)}, {int64(2)}, {int64(3)}}
	for _, row := range rows {
		require.NoError(count.Update(ctx, buf, row))
	}

	result, err := count.Eval(ctx, buf)
	require.NoError(err)
	require.Equal(int64(3), result)
}

// TestCountCombine covers COUNT's non-strict combine: a partial from an
// empty group (buffer still at its seeded zero) merges into another
// without double-counting.
func TestCountCombine(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	count := NewCount(ctx, expression.NewGetField(0, sql.Int64, "", false))

	a := count.NewBuffer()
	require.NoError(count.Update(ctx, a, sql.Row{int64(1)}))
	require.NoError(count.Update(ctx, a, sql.Row{int64(2)}))

	b := count.NewBuffer()

	require.NoError(count.Merge(ctx, a, b))
	result, err := count.Eval(ctx, a)
	require.NoError(err)
	require.Equal(int64(2), result)
}
