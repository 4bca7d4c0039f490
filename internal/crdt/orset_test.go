package crdt

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestORSet_AddAndValues(t *testing.T) {
	s := NewORSet[int]("n1")
	require.NoError(t, s.Add(7))
	require.NoError(t, s.Add(9))
	require.NoError(t, s.Add(7))

	values := s.Values()
	sort.Ints(values)
	require.Equal(t, []int{7, 9}, values)
}

func TestORSet_DiffApplyConverges(t *testing.T) {
	a := NewORSet[int]("n1")
	b := NewORSet[int]("n2")
	require.NoError(t, a.Add(1))
	require.NoError(t, a.Add(2))
	require.NoError(t, b.Add(3))

	diff, err := a.EncodeDiff(b.StateVector())
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(diff))

	diff, err = b.EncodeDiff(a.StateVector())
	require.NoError(t, err)
	require.NoError(t, a.ApplyUpdate(diff))

	av := a.Values()
	bv := b.Values()
	sort.Ints(av)
	sort.Ints(bv)
	require.Equal(t, []int{1, 2, 3}, av)
	require.Equal(t, av, bv)
}

func TestORSet_EncodeDiffOfOwnStateVectorIsEmpty(t *testing.T) {
	a := NewORSet[int]("n1")
	require.NoError(t, a.Add(1))
	diff, err := a.EncodeDiff(a.StateVector())
	require.NoError(t, err)
	require.NoError(t, a.ApplyUpdate(diff))
	require.Equal(t, []int{1}, a.Values())
}

func TestORSet_ApplyIsIdempotent(t *testing.T) {
	a := NewORSet[int]("n1")
	require.NoError(t, a.Add(1))
	b := NewORSet[int]("n2")

	diff, err := a.EncodeDiff(b.StateVector())
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(diff))
	require.NoError(t, b.ApplyUpdate(diff))

	require.Equal(t, []int{1}, b.Values())
}

func TestORSet_ApplyIsCommutative(t *testing.T) {
	origin := NewORSet[int]("n1")
	require.NoError(t, origin.Add(1))
	require.NoError(t, origin.Add(2))

	diff, err := origin.EncodeDiff(StateVector{})
	require.NoError(t, err)

	b1 := NewORSet[int]("n2")
	require.NoError(t, b1.Add(5))
	b2 := NewORSet[int]("n3")
	require.NoError(t, b2.Add(5))

	diffB1, err := b1.EncodeDiff(StateVector{})
	require.NoError(t, err)

	// apply order: diff then diffB1 vs diffB1 then diff
	require.NoError(t, b1.ApplyUpdate(diff))
	require.NoError(t, b2.ApplyUpdate(diff))
	require.NoError(t, b2.ApplyUpdate(diffB1))

	v1 := b1.Values()
	v2 := b2.Values()
	sort.Ints(v1)
	sort.Ints(v2)
	require.Equal(t, []int{1, 2, 5}, v1)
	require.Equal(t, v1, v2)
}
