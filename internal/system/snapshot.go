package system

import (
	"context"
	"log/slog"
	"time"

	"db-health-agent/internal/model"
)

// SnapshotReader builds the host-wide half of a cycle. Every source is read independently;
// a failing source only leaves its own fields Unknown.
type SnapshotReader struct {
	fs     FS
	logger *slog.Logger
}

func NewSnapshotReader(fs FS, logger *slog.Logger) *SnapshotReader {
	return &SnapshotReader{fs: fs, logger: logger}
}

func (r *SnapshotReader) Read(ctx context.Context, prev *model.SystemSnapshot, now time.Time) model.SystemSnapshot {
	snap := model.SystemSnapshot{
		Timestamp:  now,
		Mounts:     []model.MountUsage{},
		Interfaces: []model.NetInterfaceCounters{},
	}

	if load, err := ReadLoadAverage(ctx, r.fs); err == nil {
		snap.LoadAvg = &load
	} else {
		r.logger.Debug("load average unavailable", "error", err)
		snap.MarkUnknown("load_avg")
	}

	if mem, err := ReadMeminfo(ctx, r.fs); err == nil {
		assignMeminfo(&snap, mem)
	} else {
		r.logger.Debug("meminfo unavailable", "error", err)
		for _, f := range []string{"mem_total_bytes", "mem_available_bytes", "swap_total_bytes", "swap_free_bytes"} {
			snap.MarkUnknown(f)
		}
	}

	if cpu, err := ReadCPUTimes(ctx, r.fs); err == nil {
		snap.CPU = &cpu
		if prev != nil && prev.CPU != nil {
			if usage, ok := CPUUsage(*prev.CPU, cpu); ok {
				snap.CPUUsagePercent = model.Float64(usage)
			}
		}
	} else {
		r.logger.Debug("cpu times unavailable", "error", err)
		snap.MarkUnknown("cpu_times")
	}

	if mounts, err := ReadMountUsages(ctx, r.fs); err == nil {
		snap.Mounts = mounts
	} else {
		r.logger.Debug("mount usage unavailable", "error", err)
		snap.MarkUnknown("per_mount_disk_usage")
	}

	if ifaces, err := ReadInterfaceCounters(ctx, r.fs); err == nil {
		snap.Interfaces = ifaces
	} else {
		r.logger.Debug("interface counters unavailable", "error", err)
		snap.MarkUnknown("per_interface_network_counters")
	}
	return snap
}

func assignMeminfo(snap *model.SystemSnapshot, mem map[string]uint64) {
	set := func(key, field string, dst **uint64) {
		v, ok := mem[key]
		if !ok {
			snap.MarkUnknown(field)
			return
		}
		*dst = model.Uint64(v)
	}
	set("MemTotal", "mem_total_bytes", &snap.MemTotalBytes)
	set("MemAvailable", "mem_available_bytes", &snap.MemAvailableBytes)
	set("SwapTotal", "swap_total_bytes", &snap.SwapTotalBytes)
	set("SwapFree", "swap_free_bytes", &snap.SwapFreeBytes)
}
