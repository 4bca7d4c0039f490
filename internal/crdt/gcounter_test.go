package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGCounter_AddAccumulatesOwnSlot(t *testing.T) {
	g := NewGCounter("n1")
	g.Add(5)
	g.Add(3)
	require.EqualValues(t, 8, g.Value())
}

func TestGCounter_MergeIsElementwiseMax(t *testing.T) {
	a := NewGCounter("n1")
	a.Add(10)
	b := NewGCounter("n2")
	b.Add(4)

	diff, err := a.EncodeDiff(b.StateVector())
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(diff))
	require.EqualValues(t, 14, b.Value())

	diff, err = b.EncodeDiff(a.StateVector())
	require.NoError(t, err)
	require.NoError(t, a.ApplyUpdate(diff))
	require.EqualValues(t, 14, a.Value())
}

func TestGCounter_ApplyIsIdempotent(t *testing.T) {
	a := NewGCounter("n1")
	a.Add(6)
	b := NewGCounter("n2")

	diff, err := a.EncodeDiff(b.StateVector())
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(diff))
	require.NoError(t, b.ApplyUpdate(diff))
	require.EqualValues(t, 6, b.Value())
}

func TestGCounter_ApplyIsCommutative(t *testing.T) {
	a := NewGCounter("n1")
	a.Add(2)
	b := NewGCounter("n2")
	b.Add(3)

	diffA, err := a.EncodeDiff(StateVector{})
	require.NoError(t, err)
	diffB, err := b.EncodeDiff(StateVector{})
	require.NoError(t, err)

	order1 := NewGCounter("n3")
	require.NoError(t, order1.ApplyUpdate(diffA))
	require.NoError(t, order1.ApplyUpdate(diffB))

	order2 := NewGCounter("n4")
	require.NoError(t, order2.ApplyUpdate(diffB))
	require.NoError(t, order2.ApplyUpdate(diffA))

	require.Equal(t, order1.Value(), order2.Value())
	require.EqualValues(t, 5, order1.Value())
}

func TestGCounter_EncodeDiffOnlyIncludesAheadSlots(t *testing.T) {
	a := NewGCounter("n1")
	a.Add(5)
	remote := StateVector{"n1": 5}
	diff, err := a.EncodeDiff(remote)
	require.NoError(t, err)
	require.Equal(t, "{}", string(diff))
}
