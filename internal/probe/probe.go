package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/task"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Namespace suffixes the monitors publish under.
const (
	ProcessMonitorSuffix = "app_monitor"
	SystemMonitorSuffix  = "system_monitor"
)

// ProcessStats describes the current process.
type ProcessStats struct {
	PID            int32   `json:"pid"`
	Goroutines     int     `json:"goroutines"`
	Threads        int32   `json:"threads"`
	CPUPercent     float64 `json:"cpu_percent"`
	RSSBytes       uint64  `json:"rss_bytes"`
	VMSBytes       uint64  `json:"vms_bytes"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64  `json:"heap_sys_bytes"`
	NumGC          uint32  `json:"num_gc"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// SystemStats describes the host.
type SystemStats struct {
	Hostname         string  `json:"hostname"`
	OS               string  `json:"os"`
	Platform         string  `json:"platform"`
	CPUCount         int     `json:"cpu_count"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	MemoryUsedBytes  uint64  `json:"memory_used_bytes"`
	MemoryPercent    float64 `json:"memory_percent"`
	Load1            float64 `json:"load1"`
	Load5            float64 `json:"load5"`
	Load15           float64 `json:"load15"`
	DiskPercent      float64 `json:"disk_percent"`
	BootTime         uint64  `json:"boot_time"`
}

// Sampler collects ProcessStats and SystemStats. Metrics the platform cannot
// provide are left at zero and logged at debug level.
type Sampler struct {
	proc    *process.Process
	started time.Time
	logger  *slog.Logger
}

// NewSampler creates a sampler for the current process.
func NewSampler(logger *slog.Logger) (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect current process: %w", err)
	}

	return &Sampler{
		proc:    proc,
		started: time.Now(),
		logger:  logger.With("component", "probe"),
	}, nil
}

// Process samples the current process.
func (s *Sampler) Process(ctx context.Context) ProcessStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := ProcessStats{
		PID:            s.proc.Pid,
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
		HeapSysBytes:   ms.HeapSys,
		NumGC:          ms.NumGC,
		UptimeSeconds:  time.Since(s.started).Seconds(),
	}

	if info, err := s.proc.MemoryInfoWithContext(ctx); err != nil {
		s.unavailable("process memory", err)
	} else {
		stats.RSSBytes = info.RSS
		stats.VMSBytes = info.VMS
	}

	if n, err := s.proc.NumThreadsWithContext(ctx); err != nil {
		s.unavailable("process threads", err)
	} else {
		stats.Threads = n
	}

	if pct, err := s.proc.CPUPercentWithContext(ctx); err != nil {
		s.unavailable("process cpu", err)
	} else {
		stats.CPUPercent = pct
	}

	return stats
}

// System samples the host.
func (s *Sampler) System(ctx context.Context) SystemStats {
	stats := SystemStats{CPUCount: runtime.NumCPU()}

	if info, err := host.InfoWithContext(ctx); err != nil {
		s.unavailable("host info", err)
	} else {
		stats.Hostname = info.Hostname
		stats.OS = info.OS
		stats.Platform = info.Platform
		stats.BootTime = info.BootTime
	}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.unavailable("cpu percent", err)
	} else if len(pcts) > 0 {
		stats.CPUPercent = pcts[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.unavailable("virtual memory", err)
	} else {
		stats.MemoryTotalBytes = vm.Total
		stats.MemoryUsedBytes = vm.Used
		stats.MemoryPercent = vm.UsedPercent
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		s.unavailable("load average", err)
	} else {
		stats.Load1 = avg.Load1
		stats.Load5 = avg.Load5
		stats.Load15 = avg.Load15
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err != nil {
		s.unavailable("disk usage", err)
	} else {
		stats.DiskPercent = usage.UsedPercent
	}

	return stats
}

func (s *Sampler) unavailable(metric string, err error) {
	s.logger.Debug("metric unavailable", "metric", metric, "error", err)
}

// ProcessMonitor returns a task function publishing ProcessStats under
// "<appName>:app_monitor".
func (s *Sampler) ProcessMonitor(m messenger.Messenger, appName string) task.Func {
	ns := messenger.Namespace(appName, ProcessMonitorSuffix)
	return func(ctx context.Context, _ task.Args) (any, error) {
		return nil, emit(ctx, m, ns, s.Process(ctx))
	}
}

// SystemMonitor returns a task function publishing SystemStats under
// "<appName>:system_monitor".
func (s *Sampler) SystemMonitor(m messenger.Messenger, appName string) task.Func {
	ns := messenger.Namespace(appName, SystemMonitorSuffix)
	return func(ctx context.Context, _ task.Args) (any, error) {
		return nil, emit(ctx, m, ns, s.System(ctx))
	}
}

func emit(ctx context.Context, m messenger.Messenger, ns string, payload any) error {
	if err := m.Publish(ctx, ns, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ns, err)
	}
	if err := m.Set(ctx, ns, payload); err != nil {
		return fmt.Errorf("failed to set %s: %w", ns, err)
	}
	return nil
}
