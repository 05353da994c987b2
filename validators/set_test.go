package validators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/ids"
)

func TestAddRemoveHas(t *testing.T) {
	s := NewSet()
	a := ids.NodeID{0x01}
	s.Add(a)
	require.True(t, s.Has(a))
	require.Equal(t, 1, s.Len())

	s.Remove(a)
	require.False(t, s.Has(a))
	require.Equal(t, 0, s.Len())
}

func TestAddIsIdempotent(t *testing.T) {
	s := NewSet()
	a := ids.NodeID{0x01}
	s.Add(a)
	s.Add(a)
	require.Equal(t, 1, s.Len())
}

func TestSnapshotIsSortedAndIndependent(t *testing.T) {
	s := NewSet()
	b := ids.NodeID{0x02}
	a := ids.NodeID{0x01}
	s.Add(b)
	s.Add(a)

	snap := s.Snapshot()
	require.Equal(t, []ids.NodeID{a, b}, snap)

	s.Add(ids.NodeID{0x03})
	require.Len(t, snap, 2, "snapshot must not observe later mutations")
}
