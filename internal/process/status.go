package process

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

type statusFields struct {
	Name    string
	Threads *uint64
	VmRSS   *uint64
	VmSwap  *uint64
}

func parseStatus(raw []byte) statusFields {
	out := statusFields{}
	s := bufio.NewScanner(bytes.NewReader(raw))
	for s.Scan() {
		key, value, ok := strings.Cut(s.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Name":
			out.Name = value
		case "Threads":
			out.Threads = parseUintPtr(value)
		case "VmRSS":
			out.VmRSS = parseKiB(value)
		case "VmSwap":
			out.VmSwap = parseKiB(value)
		}
	}
	return out
}

// parseKiB converts "1234 kB" to bytes.
func parseKiB(value string) *uint64 {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}
	v, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil
	}
	v *= 1024
	return &v
}

func parseUintPtr(value string) *uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntPtr(value string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
