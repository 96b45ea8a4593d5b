package util

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const mib = 1024 * 1024

// SystemInfo describes the host the server runs on.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
}

var systemInfo = sync.OnceValue(func() SystemInfo {
	info := SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}
	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / mib
	}
	return info
})

// GetSystemInfo returns the host description. It is gathered once.
func GetSystemInfo() SystemInfo {
	return systemInfo()
}

// DiskUsage holds disk usage of one volume, sizes in GB.
type DiskUsage struct {
	Total       uint64  `json:"total_gb"`
	Used        uint64  `json:"used_gb"`
	Free        uint64  `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// GetDiskUsage returns disk usage of the volume holding path.
func GetDiskUsage(path string) (*DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage of %s: %w", path, err)
	}
	return &DiskUsage{
		Total:       usage.Total / (mib * 1024),
		Used:        usage.Used / (mib * 1024),
		Free:        usage.Free / (mib * 1024),
		UsedPercent: usage.UsedPercent,
	}, nil
}

// MemoryUsage holds host memory usage, sizes in MB.
type MemoryUsage struct {
	Total       uint64  `json:"total_mb"`
	Used        uint64  `json:"used_mb"`
	Available   uint64  `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// ProcessStats describes the resource use of the running server.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSS        uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

// GetProcessStats returns resource usage for this process.
func GetProcessStats() (*ProcessStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect own process: %w", err)
	}

	stats := &ProcessStats{PID: p.Pid, Goroutines: runtime.NumGoroutine()}
	if memInfo, err := p.MemoryInfo(); err == nil {
		stats.RSS = memInfo.RSS / mib
	}
	if pct, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = pct
	}
	if threads, err := p.NumThreads(); err == nil {
		stats.Threads = threads
	}
	return stats, nil
}

// ResourceSample is a point-in-time view of host and process load. Fields
// whose probe failed are left nil.
type ResourceSample struct {
	CPUPercent *float64      `json:"cpu_percent,omitempty"`
	Memory     *MemoryUsage  `json:"memory,omitempty"`
	Process    *ProcessStats `json:"process,omitempty"`
}

// SampleResources probes CPU, memory and process usage.
func SampleResources() ResourceSample {
	var sample ResourceSample
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		sample.CPUPercent = &pct[0]
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		sample.Memory = &MemoryUsage{
			Total:       memInfo.Total / mib,
			Used:        memInfo.Used / mib,
			Available:   memInfo.Available / mib,
			UsedPercent: memInfo.UsedPercent,
		}
	}
	if proc, err := GetProcessStats(); err == nil {
		sample.Process = proc
	}
	return sample
}

// FileExists reports whether a file or directory exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
