package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowDue(t *testing.T) {
	start := time.Unix(0, 0)
	require.False(t, WindowDue(start, start.Add(WindowDuration-time.Second)))
	require.True(t, WindowDue(start, start.Add(WindowDuration)))
}

func TestRollResetsUsage(t *testing.T) {
	now := time.Unix(1700000000, 0)
	usage, windowStart := Roll(now)
	require.Equal(t, uint64(0), usage)
	require.True(t, windowStart.Equal(now))
}

func TestAcceptAllVerifier(t *testing.T) {
	v := AcceptAllVerifier{}
	require.True(t, v.Verify([32]byte{0x01}, [32]byte{0x02}))
}
