package process

import (
	"bytes"
	"strconv"
	"strings"
)

// Field positions in <pid>/stat after the closing ") " of comm, see proc(5).
const (
	statState      = 0
	statUtime      = 11
	statStime      = 12
	statNumThreads = 17
	statStartTime  = 19
	statVSize      = 20
	statRSSPages   = 21
)

// statFields holds the parsed counters; nil means the field was missing or malformed.
type statFields struct {
	Comm       string
	State      string
	Utime      *uint64
	Stime      *uint64
	NumThreads *uint64
	StartTime  *uint64
	VSize      *uint64
	RSSPages   *uint64
}

// parseStat splits around the last ')' since comm may itself contain spaces and parentheses.
func parseStat(raw []byte) (statFields, error) {
	line := string(bytes.TrimSpace(raw))
	open := strings.IndexByte(line, '(')
	closeIdx := strings.LastIndex(line, ")")
	if open < 0 || closeIdx < open {
		return statFields{}, ErrMalformedStat
	}
	out := statFields{Comm: line[open+1 : closeIdx]}
	fields := strings.Fields(line[closeIdx+1:])

	get := func(idx int) *uint64 {
		if idx >= len(fields) {
			return nil
		}
		v, err := strconv.ParseUint(fields[idx], 10, 64)
		if err != nil {
			return nil
		}
		return &v
	}
	if len(fields) > statState {
		out.State = fields[statState]
	}
	out.Utime = get(statUtime)
	out.Stime = get(statStime)
	out.NumThreads = get(statNumThreads)
	out.StartTime = get(statStartTime)
	out.VSize = get(statVSize)
	out.RSSPages = get(statRSSPages)
	return out, nil
}
