package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-health-agent/internal/model"
)

func TestParseCPUTimes(t *testing.T) {
	raw := []byte("cpu  100 5 50 800 20 3 2 1 7 0\ncpu0 100 5 50 800 20 3 2 1 7 0\nintr 12345\n")
	c, err := ParseCPUTimes(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), c.User)
	assert.Equal(t, uint64(800), c.Idle)
	assert.Equal(t, uint64(1), c.Steal)
	// guest columns are not added to the total
	assert.Equal(t, uint64(981), c.Total)

	_, err = ParseCPUTimes([]byte("intr 1\n"))
	require.Error(t, err)

	_, err = ParseCPUTimes([]byte("cpu  1 2 x 4\n"))
	require.Error(t, err)
}

func TestCPUUsage(t *testing.T) {
	prev := model.CPUTimes{User: 100, Idle: 900, Total: 1000}
	cur := model.CPUTimes{User: 150, Idle: 950, Total: 1100}
	usage, ok := CPUUsage(prev, cur)
	require.True(t, ok)
	assert.InDelta(t, 50.0, usage, 1e-9)

	_, ok = CPUUsage(cur, prev)
	assert.False(t, ok, "a counter reset must not produce a usage value")

	_, ok = CPUUsage(cur, cur)
	assert.False(t, ok)
}

func TestParseMeminfo(t *testing.T) {
	raw := []byte("MemTotal:       16384 kB\nMemAvailable:    4096 kB\nHugePages_Total:       0\nbroken line\nSwapFree: x kB\n")
	vals, err := ParseMeminfo(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(16384*1024), vals["MemTotal"])
	assert.Equal(t, uint64(4096*1024), vals["MemAvailable"])
	assert.Equal(t, uint64(0), vals["HugePages_Total"])
	_, ok := vals["SwapFree"]
	assert.False(t, ok)
}

func TestIsDiskBacked(t *testing.T) {
	assert.True(t, isDiskBacked("/dev/nvme0n1p2"))
	assert.True(t, isDiskBacked("/dev/mapper/vg-data"))
	assert.False(t, isDiskBacked("/dev/loop3"))
	assert.False(t, isDiskBacked("tmpfs"))
	assert.False(t, isDiskBacked("overlay"))
}
