package system

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"db-health-agent/internal/model"
)

// ReadInterfaceCounters reads per-interface totals from <sys>/class/net/*/statistics.
// Counters that cannot be read are reported as zero for that interface.
func ReadInterfaceCounters(ctx context.Context, fs FS) ([]model.NetInterfaceCounters, error) {
	names, err := fs.ReadDirNames(ctx, fs.SysPath("class", "net"))
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	out := make([]model.NetInterfaceCounters, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if shouldSkipNetworkInterface(name) {
			continue
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		stat := func(counter string) uint64 {
			return readUintFile(ctx, fs, fs.SysPath("class", "net", name, "statistics", counter))
		}
		out = append(out, model.NetInterfaceCounters{
			Name:      name,
			LinkUp:    readTextFile(ctx, fs, fs.SysPath("class", "net", name, "carrier")) == "1" || strings.EqualFold(readTextFile(ctx, fs, fs.SysPath("class", "net", name, "operstate")), "up"),
			RxBytes:   stat("rx_bytes"),
			TxBytes:   stat("tx_bytes"),
			RxPackets: stat("rx_packets"),
			TxPackets: stat("tx_packets"),
			RxErrors:  stat("rx_errors"),
			TxErrors:  stat("tx_errors"),
			RxDropped: stat("rx_dropped"),
			TxDropped: stat("tx_dropped"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func shouldSkipNetworkInterface(name string) bool {
	if name == "" || name == "lo" {
		return true
	}
	return strings.HasPrefix(name, "veth") || strings.HasPrefix(name, "docker")
}

func readTextFile(ctx context.Context, fs FS, path string) string {
	raw, err := fs.ReadFile(ctx, path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func readUintFile(ctx context.Context, fs FS, path string) uint64 {
	text := readTextFile(ctx, fs, path)
	if text == "" {
		return 0
	}
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
