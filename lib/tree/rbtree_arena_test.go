package tree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRBArena_Sentinel(t *testing.T) {
	a := newRBArena[int64](-1, 0)
	nilNode := a.node(nilIdx)
	require.Equal(t, Black, nilNode.color)
	require.Equal(t, nilIdx, nilNode.parent)
	require.Equal(t, nilIdx, nilNode.left)
	require.Equal(t, nilIdx, nilNode.right)
	require.False(t, nilNode.live)
	require.Equal(t, int64(0), a.live())
	require.False(t, a.valid(nilIdx, 0))
	require.Panics(t, func() {
		a.release(nilIdx)
	})
}

func TestRBArena_AllocRelease(t *testing.T) {
	a := newRBArena[int64](4, 0)

	i1, ok := a.alloc(10)
	require.True(t, ok)
	i2, ok := a.alloc(20)
	require.True(t, ok)
	require.Equal(t, uint32(1), i1)
	require.Equal(t, uint32(2), i2)
	require.Equal(t, int64(2), a.live())

	n1 := a.node(i1)
	require.Equal(t, int64(10), n1.key)
	require.Equal(t, Red, n1.color)
	require.Equal(t, nilIdx, n1.parent)
	require.True(t, a.valid(i1, 0))

	a.release(i1)
	require.False(t, a.valid(i1, 0))
	require.Equal(t, int64(1), a.live())

	i3, ok := a.alloc(30)
	require.True(t, ok)
	require.Equal(t, i1, i3)
	require.True(t, a.valid(i3, 1))
	require.False(t, a.valid(i3, 0))
	require.Equal(t, int64(30), a.node(i3).key)
	require.False(t, a.valid(99, 0))
}

func TestRBArena_Limit(t *testing.T) {
	a := newRBArena[int64](0, 2)
	_, ok := a.alloc(1)
	require.True(t, ok)
	i2, ok := a.alloc(2)
	require.True(t, ok)
	_, ok = a.alloc(3)
	require.False(t, ok)
	require.Equal(t, int64(2), a.live())
	require.Len(t, a.nodes, 3)

	a.release(i2)
	i3, ok := a.alloc(3)
	require.True(t, ok)
	require.Equal(t, i2, i3)
}

func TestRBArena_GenerationPast32Bits(t *testing.T) {
	a := newRBArena[int64](1, 0)
	idx, ok := a.alloc(1)
	require.True(t, ok)
	a.node(idx).gen = math.MaxUint32

	a.release(idx)
	idx2, ok := a.alloc(2)
	require.True(t, ok)
	require.Equal(t, idx, idx2)
	require.Equal(t, uint64(math.MaxUint32)+1, a.node(idx2).gen)
	// A handle whose generation was truncated to 32 bits must not match.
	require.False(t, a.valid(idx2, 0))
	require.False(t, a.valid(idx2, math.MaxUint32))
	require.True(t, a.valid(idx2, uint64(math.MaxUint32)+1))
}
