// Package device reports memory telemetry for the machine running the
// generation backend. The GPU itself is owned by the backend process; host
// and process memory are the signals this service can observe directly.
package device

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"signsmith/internal/metrics"
)

// MemoryInfo summarizes host and process memory at a point in time.
type MemoryInfo struct {
	TotalGB        float64 `json:"total_gb"`
	UsedGB         float64 `json:"used_gb"`
	FreeGB         float64 `json:"free_gb"`
	ProcessRSSGB   float64 `json:"process_rss_gb"`
	UsedPercent    float64 `json:"used_percent"`
	ProcessPercent float64 `json:"process_percent"`
}

// Manager samples memory usage for health reporting and the memory gauges.
type Manager struct {
	pid int32
}

func NewManager() *Manager {
	return &Manager{pid: int32(os.Getpid())}
}

const gb = 1024 * 1024 * 1024

// Memory samples current host and process memory. Sampling failures degrade
// to zero values rather than erroring; health reporting should never fail
// because a probe did.
func (m *Manager) Memory() MemoryInfo {
	var info MemoryInfo
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		info.TotalGB = float64(vm.Total) / gb
		info.UsedGB = float64(vm.Used) / gb
		info.FreeGB = float64(vm.Available) / gb
		info.UsedPercent = vm.UsedPercent
		metrics.SetMemory("total", vm.Total)
		metrics.SetMemory("used", vm.Used)
		metrics.SetMemory("free", vm.Available)
	}
	if p, err := process.NewProcess(m.pid); err == nil {
		if pm, err := p.MemoryInfo(); err == nil && pm != nil {
			info.ProcessRSSGB = float64(pm.RSS) / gb
			if info.TotalGB > 0 {
				info.ProcessPercent = info.ProcessRSSGB / info.TotalGB * 100
			}
			metrics.SetMemory("process_rss", pm.RSS)
		}
	}
	return info
}
