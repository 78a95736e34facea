package deviceinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeFrom(t *testing.T) {
	info, err := probeFrom("", "")
	require.NoError(t, err)
	assert.NotEmpty(t, info.Hostname)
	assert.Equal(t, "Windows", info.OSType)
	assert.Regexp(t, `^\d+\.\d+\.\d+$`, info.OSRelease)
	assert.Positive(t, info.CPUClockMHz)
}
