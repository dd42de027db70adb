package system

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ReadMeminfo returns /proc/meminfo as bytes per key. Lines that do not parse are skipped so a
// single odd line never hides the rest.
func ReadMeminfo(ctx context.Context, fs FS) (map[string]uint64, error) {
	raw, err := fs.ReadFile(ctx, fs.ProcPath("meminfo"))
	if err != nil {
		return nil, fmt.Errorf("read meminfo: %w", err)
	}
	return ParseMeminfo(raw)
}

func ParseMeminfo(raw []byte) (map[string]uint64, error) {
	vals := map[string]uint64{}
	s := bufio.NewScanner(bytes.NewReader(raw))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		key := strings.TrimSuffix(parts[0], ":")
		v, convErr := strconv.ParseUint(parts[1], 10, 64)
		if convErr != nil {
			continue
		}
		if len(parts) >= 3 && strings.EqualFold(parts[2], "kB") {
			v *= 1024
		}
		vals[key] = v
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan meminfo: %w", err)
	}
	return vals, nil
}
