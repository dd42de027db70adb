package model

import "time"

// Report is the document emitted once per completed (or abandoned) cycle.
type Report struct {
	ID           string          `json:"id"`
	NodeID       string          `json:"node_id"`
	Hostname     string          `json:"hostname"`
	AgentVersion string          `json:"agent_version"`
	Cycle        uint64          `json:"cycle"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  time.Time       `json:"completed_at"`
	System       SystemSnapshot  `json:"system"`
	Processes    []ProcessRecord `json:"processes"`
	Verdicts     []HealthVerdict `json:"verdicts"`
	Stats        CycleStats      `json:"stats"`
}

type CycleStats struct {
	Candidates          int   `json:"candidates"`
	Collected           int   `json:"collected"`
	DroppedObservations int   `json:"dropped_observations"`
	PartialRecords      int   `json:"partial_records"`
	CounterRegressions  int   `json:"counter_regressions"`
	Abandoned           bool  `json:"abandoned"`
	SlowCycle           bool  `json:"slow_cycle"`
	OverrunMs           int64 `json:"overrun_ms"`
	SkippedTicks        int   `json:"skipped_ticks"`
	DurationMs          int64 `json:"duration_ms"`
	SystemDurationMs    int64 `json:"system_duration_ms"`
	WorstLevel          Level `json:"worst_level"`
}

// WorstVerdict is the most severe level across the report's verdicts.
func (r Report) WorstVerdict() Level {
	worst := LevelUnknown
	for _, v := range r.Verdicts {
		if v.Level > worst {
			worst = v.Level
		}
	}
	return worst
}
