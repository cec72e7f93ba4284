// Package hostprobe gathers host OS snapshots via gopsutil for the
// host-probe collection shape.
package hostprobe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	gohost "github.com/shirou/gopsutil/v4/host"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"

	"github.com/cartoworks/geomon/internal/collect"
)

// System call wrappers for testing
var (
	hostUptime     = gohost.UptimeWithContext
	cpuTimes       = gocpu.TimesWithContext
	cpuPercent     = gocpu.PercentWithContext
	loadAvg        = goload.AvgWithContext
	virtualMemory  = gomem.VirtualMemoryWithContext
	diskPartitions = godisk.PartitionsWithContext
	diskUsage      = godisk.UsageWithContext
	netIOCounters  = gonet.IOCountersWithContext
)

// pseudo filesystems excluded from storage metrics
var skipFstypes = map[string]struct{}{
	"tmpfs": {}, "devtmpfs": {}, "devfs": {}, "overlay": {}, "squashfs": {},
	"proc": {}, "sysfs": {}, "cgroup": {}, "cgroup2": {}, "ramfs": {}, "autofs": {},
}

// Probe collects host snapshots. It implements collect.HostProbe.
type Probe struct{}

// New returns a host probe.
func New() *Probe {
	return &Probe{}
}

// Snapshot gathers a point-in-time description of the local host.
func (p *Probe) Snapshot(ctx context.Context) (collect.HostSnapshot, error) {
	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var snap collect.HostSnapshot

	if uptime, err := hostUptime(collectCtx); err == nil {
		snap.UptimeSeconds = float64(uptime)
	}

	if avg, err := loadAvg(collectCtx); err == nil && avg != nil {
		snap.Load1 = avg.Load1
		snap.Load5 = avg.Load5
		snap.Load15 = avg.Load15
	}

	memStats, err := virtualMemory(collectCtx)
	if err != nil {
		return collect.HostSnapshot{}, fmt.Errorf("memory stats: %w", err)
	}
	snap.Memory = collect.MemorySnapshot{
		Total:       memStats.Total,
		Used:        memStats.Used,
		Free:        memStats.Free,
		UsedPercent: memStats.UsedPercent,
	}

	snap.Disks = collectDisks(collectCtx)
	snap.Network = collectNetwork(collectCtx)
	snap.CPU = collectCPU(collectCtx)

	return snap, nil
}

func collectCPU(ctx context.Context) collect.CPUSnapshot {
	var snap collect.CPUSnapshot

	if times, err := cpuTimes(ctx, false); err == nil && len(times) > 0 {
		t := times[0]
		// cumulative busy time in seconds
		snap.Seconds = t.User + t.System + t.Nice + t.Irq + t.Softirq + t.Steal
	}

	if percentages, err := cpuPercent(ctx, time.Second, false); err == nil && len(percentages) > 0 {
		usage := percentages[0]
		if usage < 0 {
			usage = 0
		}
		if usage > 100 {
			usage = 100
		}
		snap.Percent = usage
	}

	return snap
}

func collectDisks(ctx context.Context) []collect.DiskSnapshot {
	partitions, err := diskPartitions(ctx, false)
	if err != nil {
		return nil
	}

	disks := make([]collect.DiskSnapshot, 0, len(partitions))
	seen := make(map[string]struct{}, len(partitions))

	for _, part := range partitions {
		if part.Mountpoint == "" {
			continue
		}
		if _, ok := seen[part.Mountpoint]; ok {
			continue
		}
		seen[part.Mountpoint] = struct{}{}

		if _, skip := skipFstypes[strings.ToLower(part.Fstype)]; skip {
			continue
		}

		usage, err := diskUsage(ctx, part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}

		disks = append(disks, collect.DiskSnapshot{
			Mountpoint: part.Mountpoint,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
		})
	}

	sort.Slice(disks, func(i, j int) bool { return disks[i].Mountpoint < disks[j].Mountpoint })
	return disks
}

func collectNetwork(ctx context.Context) []collect.NetSnapshot {
	counters, err := netIOCounters(ctx, true)
	if err != nil {
		return nil
	}

	interfaces := make([]collect.NetSnapshot, 0, len(counters))
	for _, counter := range counters {
		if counter.Name == "" || strings.HasPrefix(counter.Name, "lo") {
			continue
		}
		interfaces = append(interfaces, collect.NetSnapshot{
			Interface: counter.Name,
			RxBytes:   counter.BytesRecv,
			TxBytes:   counter.BytesSent,
		})
	}

	sort.Slice(interfaces, func(i, j int) bool { return interfaces[i].Interface < interfaces[j].Interface })
	return interfaces
}
