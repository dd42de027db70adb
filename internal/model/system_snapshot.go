package model

import "time"

type SystemSnapshot struct {
	Timestamp         time.Time              `json:"timestamp"`
	LoadAvg           *LoadAverage           `json:"load_avg"`
	MemTotalBytes     *uint64                `json:"mem_total_bytes"`
	MemAvailableBytes *uint64                `json:"mem_available_bytes"`
	SwapTotalBytes    *uint64                `json:"swap_total_bytes"`
	SwapFreeBytes     *uint64                `json:"swap_free_bytes"`
	CPU               *CPUTimes              `json:"cpu_times"`
	CPUUsagePercent   *float64               `json:"cpu_usage_percent"`
	Mounts            []MountUsage           `json:"per_mount_disk_usage"`
	Interfaces        []NetInterfaceCounters `json:"per_interface_network_counters"`
	Partial           bool                   `json:"partial"`
	UnknownFields     []string               `json:"unknown_fields,omitempty"`
}

type LoadAverage struct {
	Load1  float64 `json:"load_1"`
	Load5  float64 `json:"load_5"`
	Load15 float64 `json:"load_15"`
}

// CPUTimes are the aggregate /proc/stat jiffy counters.
type CPUTimes struct {
	User    uint64 `json:"user"`
	Nice    uint64 `json:"nice"`
	System  uint64 `json:"system"`
	Idle    uint64 `json:"idle"`
	IOWait  uint64 `json:"iowait"`
	IRQ     uint64 `json:"irq"`
	SoftIRQ uint64 `json:"softirq"`
	Steal   uint64 `json:"steal"`
	Total   uint64 `json:"total"`
}

type MountUsage struct {
	Mountpoint  string  `json:"mountpoint"`
	Device      string  `json:"device"`
	FSType      string  `json:"fs_type"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
	InodesTotal uint64  `json:"inodes_total"`
	InodesUsed  uint64  `json:"inodes_used"`
}

type NetInterfaceCounters struct {
	Name      string `json:"name"`
	LinkUp    bool   `json:"link_up"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxErrors  uint64 `json:"rx_errors"`
	TxErrors  uint64 `json:"tx_errors"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
}

func (s *SystemSnapshot) MarkUnknown(field string) {
	s.Partial = true
	s.UnknownFields = append(s.UnknownFields, field)
}

// MemAvailablePercent is false when either meminfo field is unknown.
func (s SystemSnapshot) MemAvailablePercent() (float64, bool) {
	if s.MemTotalBytes == nil || s.MemAvailableBytes == nil || *s.MemTotalBytes == 0 {
		return 0, false
	}
	return float64(*s.MemAvailableBytes) / float64(*s.MemTotalBytes) * 100, true
}
