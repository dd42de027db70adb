package health

import (
	"db-health-agent/internal/config"
	"db-health-agent/internal/model"
)

// Rules are the thresholds the classifier evaluates. A zero threshold disables its rule.
type Rules struct {
	CPUSaturationPercent  float64
	CPUSaturationCycles   int
	MemoryDegradedBytes   uint64
	MemoryCriticalBytes   uint64
	FDDegradedPercent     float64
	FDCriticalPercent     float64
	SystemMemAvailablePct float64
	HysteresisCycles      int
}

func NewRules(t config.Thresholds) Rules {
	r := Rules{
		CPUSaturationPercent:  t.CPUSaturationPercent,
		CPUSaturationCycles:   t.CPUSaturationCycles,
		MemoryDegradedBytes:   t.MemoryDegradedBytes,
		MemoryCriticalBytes:   t.MemoryCriticalBytes,
		FDDegradedPercent:     t.FDDegradedPercent,
		FDCriticalPercent:     t.FDCriticalPercent,
		SystemMemAvailablePct: t.SystemMemAvailablePct,
		HysteresisCycles:      t.HysteresisCycles,
	}
	if r.CPUSaturationCycles <= 0 {
		r.CPUSaturationCycles = 1
	}
	if r.HysteresisCycles <= 0 {
		r.HysteresisCycles = 1
	}
	return r
}

// ruleOrder is the fixed evaluation and reporting order, most severe rule first.
var ruleOrder = []model.Reason{
	model.ReasonProcessExited,
	model.ReasonCPUSaturation,
	model.ReasonMemoryThreshold,
	model.ReasonFDLimitProximity,
	model.ReasonSystemMemoryPressure,
}

type match struct {
	reason model.Reason
	level  model.Level
}

// evaluation is the outcome of running every rule against one observation.
type evaluation struct {
	matches   []match
	evaluable bool
	cpuStreak int
}

func (e evaluation) target() model.Level {
	if !e.evaluable {
		return model.LevelUnknown
	}
	level := model.LevelHealthy
	for _, m := range e.matches {
		if m.level > level {
			level = m.level
		}
	}
	return level
}

func (e evaluation) reasons() []model.Reason {
	out := make([]model.Reason, 0, len(e.matches))
	for _, r := range ruleOrder {
		for _, m := range e.matches {
			if m.reason == r {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (r Rules) evaluate(cur model.ProcessRecord, sys model.SystemSnapshot, prevStreak int) evaluation {
	var e evaluation

	if cpu := cur.Rates.CPUPercent; cpu != nil {
		e.evaluable = true
		if r.CPUSaturationPercent > 0 && *cpu >= r.CPUSaturationPercent {
			e.cpuStreak = prevStreak + 1
		}
		if e.cpuStreak >= r.CPUSaturationCycles {
			e.matches = append(e.matches, match{model.ReasonCPUSaturation, model.LevelDegraded})
		}
	}

	if rss := cur.RSSBytes; rss != nil {
		e.evaluable = true
		switch {
		case r.MemoryCriticalBytes > 0 && *rss >= r.MemoryCriticalBytes:
			e.matches = append(e.matches, match{model.ReasonMemoryThreshold, model.LevelCritical})
		case r.MemoryDegradedBytes > 0 && *rss >= r.MemoryDegradedBytes:
			e.matches = append(e.matches, match{model.ReasonMemoryThreshold, model.LevelDegraded})
		}
	}

	if pct, ok := cur.FDUsagePercent(); ok {
		e.evaluable = true
		switch {
		case r.FDCriticalPercent > 0 && pct >= r.FDCriticalPercent:
			e.matches = append(e.matches, match{model.ReasonFDLimitProximity, model.LevelCritical})
		case r.FDDegradedPercent > 0 && pct >= r.FDDegradedPercent:
			e.matches = append(e.matches, match{model.ReasonFDLimitProximity, model.LevelDegraded})
		}
	}

	if avail, ok := sys.MemAvailablePercent(); ok {
		e.evaluable = true
		if r.SystemMemAvailablePct > 0 && avail < r.SystemMemAvailablePct {
			e.matches = append(e.matches, match{model.ReasonSystemMemoryPressure, model.LevelDegraded})
		}
	}
	return e
}
