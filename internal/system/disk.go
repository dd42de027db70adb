package system

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"db-health-agent/internal/model"
)

var (
	diskPartitions = disk.PartitionsWithContext
	diskUsage      = disk.UsageWithContext
)

// ReadMountUsages lists physical mounts from the proc root's mount table and statfs's each one
// through the host root. A mount whose statfs fails or hangs is left out. A hung mount table
// read fails the whole call after ReadTimeout.
func ReadMountUsages(ctx context.Context, fs FS) ([]model.MountUsage, error) {
	gctx := fs.GopsutilContext(ctx)
	parts, err := bounded(ctx, fs.ReadTimeout, fs.ProcPath("self", "mountinfo"), func() ([]disk.PartitionStat, error) {
		return diskPartitions(gctx, false)
	})
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	seen := make(map[string]struct{}, len(parts))
	out := make([]model.MountUsage, 0, len(parts))
	for _, p := range parts {
		if !isDiskBacked(p.Device) {
			continue
		}
		if _, dup := seen[p.Mountpoint]; dup {
			continue
		}
		seen[p.Mountpoint] = struct{}{}

		path := fs.HostPath(p.Mountpoint)
		usage, usageErr := bounded(ctx, fs.ReadTimeout, path, func() (*disk.UsageStat, error) {
			return diskUsage(gctx, path)
		})
		if usageErr != nil || usage == nil {
			continue
		}
		out = append(out, model.MountUsage{
			Mountpoint:  p.Mountpoint,
			Device:      p.Device,
			FSType:      p.Fstype,
			TotalBytes:  usage.Total,
			UsedBytes:   usage.Used,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
			InodesTotal: usage.InodesTotal,
			InodesUsed:  usage.InodesUsed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mountpoint < out[j].Mountpoint })
	return out, nil
}

func isDiskBacked(device string) bool {
	if !strings.HasPrefix(device, "/dev/") {
		return false
	}
	name := strings.TrimPrefix(device, "/dev/")
	if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") || strings.HasPrefix(name, "sr") {
		return false
	}
	return true
}
