package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"db-health-agent/internal/model"
)

func TestHealthStatusReady(t *testing.T) {
	start := time.Unix(1700000000, 0)
	h := NewHealthStatus(start)
	assert.False(t, h.Ready(start, time.Minute))

	h.MarkCycle(model.Report{Cycle: 4, CompletedAt: start.Add(10 * time.Second), Stats: model.CycleStats{Abandoned: true}})
	assert.True(t, h.Ready(start.Add(30*time.Second), time.Minute))
	assert.False(t, h.Ready(start.Add(2*time.Minute), time.Minute))

	snap := h.Snapshot()
	assert.Equal(t, uint64(4), snap["cycle"])
	assert.Equal(t, true, snap["last_cycle_abandoned"])
	assert.Equal(t, "Unknown", snap["worst_level"])
	assert.NotContains(t, snap, "last_report_at")

	h.SetStreamConnected(true)
	h.MarkReportSent(start.Add(11 * time.Second))
	snap = h.Snapshot()
	assert.Equal(t, true, snap["stream_connected"])
	assert.Equal(t, start.Add(11*time.Second).UTC(), snap["last_report_at"])
}
