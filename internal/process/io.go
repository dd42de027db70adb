package process

import (
	"bufio"
	"bytes"
	"strings"
)

type ioFields struct {
	ReadBytes  *uint64
	WriteBytes *uint64
}

// parseIO reads storage-layer byte counters from <pid>/io.
func parseIO(raw []byte) ioFields {
	out := ioFields{}
	s := bufio.NewScanner(bytes.NewReader(raw))
	for s.Scan() {
		key, value, ok := strings.Cut(s.Text(), ":")
		if !ok {
			continue
		}
		switch key {
		case "read_bytes":
			out.ReadBytes = parseUintPtr(value)
		case "write_bytes":
			out.WriteBytes = parseUintPtr(value)
		}
	}
	return out
}

// parseMaxOpenFiles returns the soft "Max open files" limit from <pid>/limits.
// unlimited is true when the soft limit is not bounded.
func parseMaxOpenFiles(raw []byte) (limit *uint64, unlimited bool) {
	s := bufio.NewScanner(bytes.NewReader(raw))
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "Max open files") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "Max open files"))
		if len(fields) == 0 {
			return nil, false
		}
		if fields[0] == "unlimited" {
			return nil, true
		}
		return parseUintPtr(fields[0]), false
	}
	return nil, false
}
