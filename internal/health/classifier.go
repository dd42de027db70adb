package health

import (
	"sort"
	"time"

	"db-health-agent/internal/model"
)

// Classifier holds only immutable rules; every method is a pure function of its arguments.
type Classifier struct {
	rules Rules
}

func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify produces the verdict for one current observation. previous and previousVerdict
// are ignored unless they belong to the same identity as current.
func (c *Classifier) Classify(current model.ProcessRecord, previous *model.ProcessRecord, system model.SystemSnapshot, previousVerdict *model.HealthVerdict) model.HealthVerdict {
	if previous != nil && previous.Identity != current.Identity {
		previousVerdict = nil
	}
	if previousVerdict != nil && previousVerdict.Subject != current.Identity {
		previousVerdict = nil
	}

	prevLevel := model.LevelUnknown
	prevClearing, prevStreak := 0, 0
	if previousVerdict != nil {
		prevLevel = previousVerdict.Level
		prevClearing = previousVerdict.ConsecutiveClearingCycles
		prevStreak = previousVerdict.CPUSaturatedCycles
	}

	eval := c.rules.evaluate(current, system, prevStreak)
	level, clearing := step(prevLevel, prevClearing, eval.target(), c.rules.HysteresisCycles)

	return model.HealthVerdict{
		Subject:                   current.Identity,
		Command:                   current.Command,
		Level:                     level,
		Reasons:                   eval.reasons(),
		ConsecutiveClearingCycles: clearing,
		CPUSaturatedCycles:        eval.cpuStreak,
		Timestamp:                 current.ObservedAt,
	}
}

// Exited is the single verdict emitted for an identity that was tracked last cycle and is gone now.
func (c *Classifier) Exited(last model.CycleEntry, at time.Time) model.HealthVerdict {
	return model.HealthVerdict{
		Subject:   last.Record.Identity,
		Command:   last.Record.Command,
		Level:     model.LevelCritical,
		Reasons:   []model.Reason{model.ReasonProcessExited},
		Timestamp: at,
	}
}

// step applies the hysteresis state machine. Escalation is immediate; de-escalation needs m
// consecutive cycles whose target is below the current level and moves down one level, never
// below Healthy. An Unknown target carries the previous state forward unchanged.
func step(prev model.Level, clearing int, target model.Level, m int) (model.Level, int) {
	switch {
	case target == model.LevelUnknown:
		return prev, clearing
	case prev == model.LevelUnknown, target >= prev:
		return target, 0
	}
	clearing++
	if clearing < m {
		return prev, clearing
	}
	next := prev - 1
	if next < model.LevelHealthy {
		next = model.LevelHealthy
	}
	return next, 0
}

// ClassifyCycle classifies every current record against the previous table and returns the
// verdicts plus the table for the next cycle. Previous identities whose pid is in skipped (still
// present but not read this cycle) are carried into the next table unchanged and get no verdict.
// With detectExits false (an abandoned or incomplete scan) missing identities are not reported
// as exited.
func (c *Classifier) ClassifyCycle(records []model.ProcessRecord, prev model.CycleTable, system model.SystemSnapshot, at time.Time, skipped []int, detectExits bool) ([]model.HealthVerdict, model.CycleTable) {
	next := model.NewCycleTable()
	sys := system
	next.System = &sys

	verdicts := make([]model.HealthVerdict, 0, len(records)+prev.Len())
	for _, rec := range records {
		var prevRecord *model.ProcessRecord
		var prevVerdict *model.HealthVerdict
		if e, ok := prev.Lookup(rec.Identity); ok {
			prevRecord = &e.Record
			prevVerdict = &e.Verdict
		}
		v := c.Classify(rec, prevRecord, system, prevVerdict)
		verdicts = append(verdicts, v)
		next.Entries[rec.Identity] = model.CycleEntry{Record: rec, Verdict: v}
	}

	if len(skipped) > 0 {
		held := make(map[int]struct{}, len(skipped))
		for _, pid := range skipped {
			held[pid] = struct{}{}
		}
		for key, e := range prev.Entries {
			if _, ok := held[key.PID]; !ok {
				continue
			}
			if _, ok := next.Entries[key]; !ok {
				next.Entries[key] = e
			}
		}
	}

	if !detectExits {
		return verdicts, next
	}

	exited := make([]model.CycleEntry, 0)
	for key, e := range prev.Entries {
		if _, ok := next.Entries[key]; !ok {
			exited = append(exited, e)
		}
	}
	sort.Slice(exited, func(i, j int) bool {
		return exited[i].Record.Identity.PID < exited[j].Record.Identity.PID
	})
	for _, e := range exited {
		verdicts = append(verdicts, c.Exited(e, at))
	}
	return verdicts, next
}
