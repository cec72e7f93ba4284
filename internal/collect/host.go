package collect

import (
	"context"
)

// MemorySnapshot holds host memory figures in bytes.
type MemorySnapshot struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

// DiskSnapshot holds one mount's usage in bytes.
type DiskSnapshot struct {
	Mountpoint string `json:"mountpoint"`
	Total      uint64 `json:"total"`
	Used       uint64 `json:"used"`
	Free       uint64 `json:"free"`
}

// NetSnapshot holds one interface's cumulative traffic counters.
type NetSnapshot struct {
	Interface string `json:"interface"`
	RxBytes   uint64 `json:"rxBytes"`
	TxBytes   uint64 `json:"txBytes"`
}

// CPUSnapshot holds cumulative CPU time and instantaneous usage share.
type CPUSnapshot struct {
	Seconds float64 `json:"seconds"`
	Percent float64 `json:"percent"`
}

// HostSnapshot is a point-in-time description of one monitored host,
// as produced by an OS probe.
type HostSnapshot struct {
	UptimeSeconds float64        `json:"uptimeSeconds"`
	Load1         float64        `json:"load1"`
	Load5         float64        `json:"load5"`
	Load15        float64        `json:"load15"`
	Memory        MemorySnapshot `json:"memory"`
	Disks         []DiskSnapshot `json:"disks"`
	Network       []NetSnapshot  `json:"network"`
	CPU           CPUSnapshot    `json:"cpu"`
}

// HostProbe produces host snapshots; internal/hostprobe implements it with
// OS probes, tests with fixtures.
type HostProbe interface {
	Snapshot(ctx context.Context) (HostSnapshot, error)
}
