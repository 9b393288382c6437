package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateText(t *testing.T) {
	t.Parallel()
	for _, st := range []State{Active, PendingRemoval, Removed} {
		text, err := st.MarshalText()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalText(text))
		require.Equal(t, st, got)
	}
	var bad State
	require.Error(t, bad.UnmarshalText([]byte("paused")))
	require.Equal(t, "unknown", State(42).String())
}
