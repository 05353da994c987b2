package choices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecided(t *testing.T) {
	require.False(t, Undecided.Decided())
	require.True(t, Accepted.Decided())
	require.True(t, Rejected.Decided())
}

func TestValid(t *testing.T) {
	require.True(t, Undecided.Valid())
	require.True(t, Accepted.Valid())
	require.True(t, Rejected.Valid())
	require.False(t, Status(99).Valid())
}

func TestString(t *testing.T) {
	require.Equal(t, "Undecided", Undecided.String())
	require.Equal(t, "Accepted", Accepted.String())
	require.Equal(t, "Rejected", Rejected.String())
	require.Equal(t, "Unknown", Status(99).String())
}
