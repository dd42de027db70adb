package model

import "time"

// ProcessRecord is one observation of a watched process. Nil fields are Unknown.
type ProcessRecord struct {
	PID             int          `json:"pid"`
	Identity        IdentityKey  `json:"identity_key"`
	Command         string       `json:"command"`
	Cmdline         string       `json:"cmdline,omitempty"`
	State           string       `json:"state,omitempty"`
	CPUTicksTotal   *uint64      `json:"cpu_ticks_total"`
	CPUSecondsTotal *float64     `json:"cpu_seconds_total"`
	RSSBytes        *uint64      `json:"rss_bytes"`
	VSizeBytes      *uint64      `json:"vsize_bytes"`
	NumThreads      *uint64      `json:"num_threads"`
	NumOpenFDs      *uint64      `json:"num_open_fds"`
	MaxOpenFDs      *uint64      `json:"max_open_fds"`
	IOReadBytes     *uint64      `json:"io_read_bytes"`
	IOWriteBytes    *uint64      `json:"io_write_bytes"`
	OOMScore        *int64       `json:"oom_score"`
	Rates           ProcessRates `json:"rates"`
	Partial         bool         `json:"partial"`
	UnknownFields   []string     `json:"unknown_fields,omitempty"`
	ObservedAt      time.Time    `json:"observed_at"`
}

// ProcessRates are derived against the previous record of the same identity.
type ProcessRates struct {
	CPUPercent         *float64 `json:"cpu_percent"`
	IOReadBytesPerSec  *float64 `json:"io_read_bytes_per_sec"`
	IOWriteBytesPerSec *float64 `json:"io_write_bytes_per_sec"`
	ElapsedSeconds     *float64 `json:"elapsed_seconds"`
}

// MarkUnknown records a field that could not be read or parsed and flags the record partial.
func (r *ProcessRecord) MarkUnknown(field string) {
	r.Partial = true
	for _, f := range r.UnknownFields {
		if f == field {
			return
		}
	}
	r.UnknownFields = append(r.UnknownFields, field)
}

// FDUsagePercent is open fds relative to the soft RLIMIT_NOFILE. False when either side is unknown
// or the limit is unlimited.
func (r ProcessRecord) FDUsagePercent() (float64, bool) {
	if r.NumOpenFDs == nil || r.MaxOpenFDs == nil || *r.MaxOpenFDs == 0 {
		return 0, false
	}
	return float64(*r.NumOpenFDs) / float64(*r.MaxOpenFDs) * 100, true
}
