package reading

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseMetricKind verifies case-insensitive parsing and rejection of unknown names.
func TestParseMetricKind(t *testing.T) {
	t.Parallel()

	k, err := ParseMetricKind(" co2 ")
	require.NoError(t, err)
	require.Equal(t, CarbonDioxide, k)

	k, err = ParseMetricKind("temperature")
	require.NoError(t, err)
	require.Equal(t, Temperature, k)

	_, err = ParseMetricKind("radon")
	require.Error(t, err)
}

// TestMetricKindChannel checks the per-metric session channel naming.
func TestMetricKindChannel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "reading.ozone", Ozone.Channel())
	require.Equal(t, "reading.co2", CarbonDioxide.Channel())
}

// TestLevelString ensures levels render with their canonical names.
func TestLevelString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "SAFE", Safe.String())
	require.Equal(t, "RISK", Risk.String())
	require.Equal(t, "DANGER", Danger.String())
	require.Equal(t, "Level(7)", Level(7).String())
}
