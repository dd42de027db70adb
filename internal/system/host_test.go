package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubHost(t *testing.T, ticks float64, page int) {
	t.Helper()
	origTicks, origPage := clocksPerSec, pageSize
	clocksPerSec = func() float64 { return ticks }
	pageSize = func() int { return page }
	t.Cleanup(func() {
		clocksPerSec, pageSize = origTicks, origPage
	})
}

func TestLoadHostConstants(t *testing.T) {
	t.Run("from host", func(t *testing.T) {
		stubHost(t, 100, 4096)
		hc, err := LoadHostConstants(0, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), hc.ClockTicks)
		assert.Equal(t, uint64(4096), hc.PageSize)
	})

	t.Run("overrides win", func(t *testing.T) {
		stubHost(t, 100, 4096)
		hc, err := LoadHostConstants(250, 16384)
		require.NoError(t, err)
		assert.Equal(t, uint64(250), hc.ClockTicks)
		assert.Equal(t, uint64(16384), hc.PageSize)
	})

	t.Run("clock ticks unavailable", func(t *testing.T) {
		stubHost(t, 0, 4096)
		_, err := LoadHostConstants(0, 0)
		require.Error(t, err)
	})

	t.Run("page size unavailable", func(t *testing.T) {
		stubHost(t, 100, 0)
		_, err := LoadHostConstants(0, 0)
		require.Error(t, err)
	})
}

func TestHostConstantsConversions(t *testing.T) {
	hc := HostConstants{ClockTicks: 100, PageSize: 4096}
	assert.InDelta(t, 2.5, hc.TicksToSeconds(250), 1e-9)
	assert.Equal(t, uint64(40960), hc.PagesToBytes(10))
	assert.Equal(t, "clk_tck=100 page_size=4096", hc.String())
}
