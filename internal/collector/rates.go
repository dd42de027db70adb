package collector

import (
	"db-health-agent/internal/model"
	"db-health-agent/internal/system"
)

// counterDelta compares one cumulative counter across two samples of the same identity.
// ok is false when either side is unknown. A decrease is reported as a regression and yields
// no delta.
func counterDelta(cur, prev *uint64) (delta uint64, ok, regressed bool) {
	if cur == nil || prev == nil {
		return 0, false, false
	}
	if *cur < *prev {
		return 0, false, true
	}
	return *cur - *prev, true, false
}

// deriveRates fills cur.Rates from prev, which must carry the same identity key. It returns
// the number of counters that regressed. Without a usable previous sample every rate stays
// Unknown.
func deriveRates(cur *model.ProcessRecord, prev *model.ProcessRecord, host system.HostConstants) int {
	cur.Rates = model.ProcessRates{}
	if prev == nil || prev.Identity != cur.Identity {
		return 0
	}
	seconds := cur.ObservedAt.Sub(prev.ObservedAt).Seconds()
	if seconds <= 0 {
		return 0
	}
	cur.Rates.ElapsedSeconds = model.Float64(seconds)

	regressions := 0
	if d, ok, regressed := counterDelta(cur.CPUTicksTotal, prev.CPUTicksTotal); ok {
		cur.Rates.CPUPercent = model.Float64(host.TicksToSeconds(d) / seconds * 100)
	} else if regressed {
		regressions++
	}
	if d, ok, regressed := counterDelta(cur.IOReadBytes, prev.IOReadBytes); ok {
		cur.Rates.IOReadBytesPerSec = model.Float64(float64(d) / seconds)
	} else if regressed {
		regressions++
	}
	if d, ok, regressed := counterDelta(cur.IOWriteBytes, prev.IOWriteBytes); ok {
		cur.Rates.IOWriteBytesPerSec = model.Float64(float64(d) / seconds)
	} else if regressed {
		regressions++
	}
	return regressions
}
