package item

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestAssembler_ChunkBoundaries(t *testing.T) {
	ctx := context.Background()
	for m := 0; m <= 25; m++ {
		for n := 1; n <= 7; n++ {
			a, err := NewAssembler[int](newSliceReader(ints(m)...), n)
			require.NoError(t, err)

			var got []int
			chunks := 0
			for {
				c, err := a.Next(ctx)
				if port.IsEndOfSource(err) {
					break
				}
				require.NoError(t, err)
				chunks++
				assert.Equal(t, chunks, c.Sequence)
				assert.LessOrEqual(t, c.Len(), n)
				assert.Positive(t, c.Len())
				got = append(got, c.Items...)
			}
			assert.Equal(t, (m+n-1)/n, chunks, "M=%d N=%d", m, n)
			if m == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, ints(m), got, "M=%d N=%d", m, n)
			}

			_, err = a.Next(ctx)
			assert.ErrorIs(t, err, port.ErrNoMoreItems)
		}
	}
}

func TestAssembler_InvalidSize(t *testing.T) {
	_, err := NewAssembler[int](newSliceReader(1), 0)
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))

	_, err = NewAssembler[int](nil, 1)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestAssembler_ReadErrorDropsPartialChunk(t *testing.T) {
	r := newSliceReader(1, 2, 3, 4, 5)
	r.failAt[3] = errBoom
	a, err := NewAssembler[int](r, 2)
	require.NoError(t, err)

	c, err := a.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, c.Items)

	c, err = a.Next(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, c.Items)
}
