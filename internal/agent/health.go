package agent

import (
	"sync/atomic"
	"time"

	"db-health-agent/internal/model"
)

// HealthStatus is the agent's own liveness state, read by the probe endpoint.
type HealthStatus struct {
	startedAt       atomic.Int64
	streamConnected atomic.Bool
	lastCycleAt     atomic.Int64
	lastCycle       atomic.Uint64
	lastWorstLevel  atomic.Int64
	lastAbandoned   atomic.Bool
	lastReportAt    atomic.Int64
}

func NewHealthStatus(now time.Time) *HealthStatus {
	h := &HealthStatus{}
	h.startedAt.Store(now.UnixNano())
	h.streamConnected.Store(false)
	return h
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) MarkCycle(r model.Report) {
	h.lastCycleAt.Store(r.CompletedAt.UnixNano())
	h.lastCycle.Store(r.Cycle)
	h.lastWorstLevel.Store(int64(r.Stats.WorstLevel))
	h.lastAbandoned.Store(r.Stats.Abandoned)
}

func (h *HealthStatus) MarkReportSent(ts time.Time) {
	h.lastReportAt.Store(ts.UnixNano())
}

// Ready reports whether a cycle completed within staleAfter of now.
func (h *HealthStatus) Ready(now time.Time, staleAfter time.Duration) bool {
	v := h.lastCycleAt.Load()
	if v == 0 {
		return false
	}
	return now.Sub(time.Unix(0, v)) <= staleAfter
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"stream_connected": h.streamConnected.Load(),
		"cycle":            h.lastCycle.Load(),
	}
	if v := h.startedAt.Load(); v > 0 {
		out["started_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastCycleAt.Load(); v > 0 {
		out["last_cycle_at"] = time.Unix(0, v).UTC()
		out["worst_level"] = model.Level(h.lastWorstLevel.Load()).String()
		out["last_cycle_abandoned"] = h.lastAbandoned.Load()
	}
	if v := h.lastReportAt.Load(); v > 0 {
		out["last_report_at"] = time.Unix(0, v).UTC()
	}
	return out
}
