package system

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sys/unix"
)

// HostConstants are read once at startup and used to turn clock ticks into seconds and pages into bytes.
type HostConstants struct {
	ClockTicks uint64
	PageSize   uint64
}

var (
	clocksPerSec = func() float64 { return cpu.ClocksPerSec }
	pageSize     = unix.Getpagesize
)

// LoadHostConstants returns the host's USER_HZ and page size. Non-zero overrides win.
func LoadHostConstants(ticksOverride, pageOverride uint64) (HostConstants, error) {
	hc := HostConstants{ClockTicks: ticksOverride, PageSize: pageOverride}
	if hc.ClockTicks == 0 {
		if v := clocksPerSec(); v >= 1 {
			hc.ClockTicks = uint64(v)
		}
	}
	if hc.PageSize == 0 {
		if v := pageSize(); v > 0 {
			hc.PageSize = uint64(v)
		}
	}
	if hc.ClockTicks == 0 {
		return HostConstants{}, errors.New("clock ticks per second unavailable")
	}
	if hc.PageSize == 0 {
		return HostConstants{}, errors.New("page size unavailable")
	}
	return hc, nil
}

func (h HostConstants) TicksToSeconds(ticks uint64) float64 {
	return float64(ticks) / float64(h.ClockTicks)
}

func (h HostConstants) PagesToBytes(pages uint64) uint64 {
	return pages * h.PageSize
}

func (h HostConstants) String() string {
	return fmt.Sprintf("clk_tck=%d page_size=%d", h.ClockTicks, h.PageSize)
}
