package system

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"db-health-agent/internal/model"
)

func ReadCPUTimes(ctx context.Context, fs FS) (model.CPUTimes, error) {
	raw, err := fs.ReadFile(ctx, fs.ProcPath("stat"))
	if err != nil {
		return model.CPUTimes{}, fmt.Errorf("read stat: %w", err)
	}
	return ParseCPUTimes(raw)
}

// ParseCPUTimes extracts the aggregate "cpu " line of /proc/stat.
func ParseCPUTimes(raw []byte) (model.CPUTimes, error) {
	s := bufio.NewScanner(bytes.NewReader(raw))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 5 {
			return model.CPUTimes{}, fmt.Errorf("unexpected cpu line: %q", line)
		}
		vals := make([]uint64, 0, len(parts)-1)
		for _, p := range parts[1:] {
			v, convErr := strconv.ParseUint(p, 10, 64)
			if convErr != nil {
				return model.CPUTimes{}, fmt.Errorf("parse cpu stat %q: %w", p, convErr)
			}
			vals = append(vals, v)
		}
		c := model.CPUTimes{}
		fields := []*uint64{&c.User, &c.Nice, &c.System, &c.Idle, &c.IOWait, &c.IRQ, &c.SoftIRQ, &c.Steal}
		for i, dst := range fields {
			if i < len(vals) {
				*dst = vals[i]
			}
		}
		// guest and guest_nice are already accounted in user and nice.
		for i := 0; i < len(vals) && i < len(fields); i++ {
			c.Total += vals[i]
		}
		return c, nil
	}
	if err := s.Err(); err != nil {
		return model.CPUTimes{}, fmt.Errorf("scan stat: %w", err)
	}
	return model.CPUTimes{}, fmt.Errorf("cpu aggregate line not found")
}

// CPUUsage is the busy share of all CPUs between two samples, in percent. False when the
// counters did not advance, which also covers a counter reset.
func CPUUsage(prev, cur model.CPUTimes) (float64, bool) {
	if cur.Total <= prev.Total {
		return 0, false
	}
	totalDelta := float64(cur.Total - prev.Total)
	idledPrev := prev.Idle + prev.IOWait
	idledCur := cur.Idle + cur.IOWait
	idleDelta := 0.0
	if idledCur > idledPrev {
		idleDelta = float64(idledCur - idledPrev)
	}
	usage := ((totalDelta - idleDelta) / totalDelta) * 100
	if usage < 0 {
		return 0, true
	}
	if usage > 100 {
		return 100, true
	}
	return usage, true
}
