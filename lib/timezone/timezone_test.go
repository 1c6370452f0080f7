package timezone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocation(t *testing.T) {
	require.Equal(t, "Europe/Amsterdam", Location.String())
}

func TestNowIsPinned(t *testing.T) {
	now := Now()
	require.Equal(t, Location, now.Location())

	// wall clock must match Amsterdam regardless of the host zone
	utc := now.UTC()
	require.Equal(t, utc.In(Location).Hour(), now.Hour())
}
