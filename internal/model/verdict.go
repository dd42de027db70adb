package model

import (
	"fmt"
	"time"
)

// Level is ordered: a larger value is more severe.
type Level int

const (
	LevelUnknown Level = iota
	LevelHealthy
	LevelDegraded
	LevelCritical
)

var levelNames = [...]string{"Unknown", "Healthy", "Degraded", "Critical"}

func (l Level) String() string {
	if l < LevelUnknown || l > LevelCritical {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	for i, name := range levelNames {
		if name == string(text) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown level %q", text)
}

// Reason names a health rule. Reasons are reported in rule order, most severe rule first.
type Reason string

const (
	ReasonProcessExited        Reason = "ProcessExited"
	ReasonCPUSaturation        Reason = "CPUSaturation"
	ReasonMemoryThreshold      Reason = "MemoryThreshold"
	ReasonFDLimitProximity     Reason = "FDLimitProximity"
	ReasonSystemMemoryPressure Reason = "SystemMemoryPressure"
)

type HealthVerdict struct {
	Subject                   IdentityKey `json:"subject_identity"`
	Command                   string      `json:"command"`
	Level                     Level       `json:"level"`
	Reasons                   []Reason    `json:"triggered_reasons"`
	ConsecutiveClearingCycles int         `json:"consecutive_clearing_cycles"`
	CPUSaturatedCycles        int         `json:"cpu_saturated_cycles"`
	Timestamp                 time.Time   `json:"timestamp"`
}

func (v HealthVerdict) HasReason(r Reason) bool {
	for _, got := range v.Reasons {
		if got == r {
			return true
		}
	}
	return false
}
