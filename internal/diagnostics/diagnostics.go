// Package diagnostics collects support dumps: a system and service snapshot
// plus a redacted copy of the configuration, zipped for attaching to an
// issue report.
package diagnostics

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/foresight-go/internal/buildinfo"
	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
)

const cpuSampleInterval = 250 * time.Millisecond

// Report is the body of a support dump.
type Report struct {
	CollectedAt time.Time `json:"collected_at" yaml:"collected_at"`
	Version     string    `json:"version" yaml:"version"`
	BuildDate   string    `json:"build_date" yaml:"build_date"`

	System   SystemInfo   `json:"system" yaml:"system"`
	Memory   MemoryInfo   `json:"memory" yaml:"memory"`
	CPU      CPUInfo      `json:"cpu" yaml:"cpu"`
	Process  ProcessInfo  `json:"process" yaml:"process"`
	Disks    []DiskInfo   `json:"disks" yaml:"disks"`
	Database DatabaseInfo `json:"database" yaml:"database"`
}

type SystemInfo struct {
	OS            string    `json:"os" yaml:"os"`
	Architecture  string    `json:"arch" yaml:"arch"`
	GoVersion     string    `json:"go_version" yaml:"go_version"`
	NumCPU        int       `json:"num_cpu" yaml:"num_cpu"`
	Platform      string    `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformVer   string    `json:"platform_version,omitempty" yaml:"platform_version,omitempty"`
	KernelVersion string    `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	UptimeSec     uint64    `json:"uptime_seconds,omitempty" yaml:"uptime_seconds,omitempty"`
	BootTime      time.Time `json:"boot_time,omitzero" yaml:"boot_time,omitempty"`
}

type MemoryInfo struct {
	Total       uint64  `json:"total" yaml:"total"`
	Used        uint64  `json:"used" yaml:"used"`
	Free        uint64  `json:"free" yaml:"free"`
	UsedPercent float64 `json:"used_percent" yaml:"used_percent"`
	SwapTotal   uint64  `json:"swap_total" yaml:"swap_total"`
	SwapUsed    uint64  `json:"swap_used" yaml:"swap_used"`
}

type CPUInfo struct {
	Cores        int     `json:"cores" yaml:"cores"`
	UsagePercent float64 `json:"usage_percent" yaml:"usage_percent"`
}

type ProcessInfo struct {
	PID        int     `json:"pid" yaml:"pid"`
	MemoryMB   float64 `json:"memory_mb" yaml:"memory_mb"`
	CPUPercent float64 `json:"cpu_percent" yaml:"cpu_percent"`
}

type DiskInfo struct {
	Path        string  `json:"path" yaml:"path"`
	Total       uint64  `json:"total" yaml:"total"`
	Free        uint64  `json:"free" yaml:"free"`
	UsedPercent float64 `json:"used_percent" yaml:"used_percent"`
}

type DatabaseInfo struct {
	Backend      string       `json:"backend" yaml:"backend"`
	Reachable    bool         `json:"reachable" yaml:"reachable"`
	ActiveModels int          `json:"active_models" yaml:"active_models"`
	RecentRuns   []RunSummary `json:"recent_runs,omitempty" yaml:"recent_runs,omitempty"`
}

type RunSummary struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Attempted int       `json:"attempted" yaml:"attempted"`
	Succeeded int       `json:"succeeded" yaml:"succeeded"`
	Promoted  int       `json:"promoted" yaml:"promoted"`
	Failed    int       `json:"failed" yaml:"failed"`
	Aborted   bool      `json:"aborted" yaml:"aborted"`
}

// Collect gathers the report. Collection is best-effort: a probe that fails
// leaves its section empty instead of failing the dump. store may be nil
// when the database cannot be opened.
func Collect(settings *conf.Settings, store datastore.Interface) *Report {
	r := &Report{
		CollectedAt: time.Now(),
		Version:     buildinfo.Version,
		BuildDate:   buildinfo.BuildDate,
		System: SystemInfo{
			OS:           runtime.GOOS,
			Architecture: runtime.GOARCH,
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
		},
		CPU: CPUInfo{Cores: runtime.NumCPU()},
	}

	if hostInfo, err := host.Info(); err == nil {
		r.System.Platform = hostInfo.Platform
		r.System.PlatformVer = hostInfo.PlatformVersion
		r.System.KernelVersion = hostInfo.KernelVersion
		r.System.UptimeSec = hostInfo.Uptime
		r.System.BootTime = time.Unix(int64(hostInfo.BootTime), 0)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		r.Memory.Total = vm.Total
		r.Memory.Used = vm.Used
		r.Memory.Free = vm.Free
		r.Memory.UsedPercent = vm.UsedPercent
	}
	if swap, err := mem.SwapMemory(); err == nil {
		r.Memory.SwapTotal = swap.Total
		r.Memory.SwapUsed = swap.Used
	}

	if pct, err := cpu.Percent(cpuSampleInterval, false); err == nil && len(pct) > 0 {
		r.CPU.UsagePercent = pct[0]
	}

	r.Process.PID = os.Getpid()
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pm, err := proc.MemoryInfo(); err == nil && pm != nil {
			r.Process.MemoryMB = float64(pm.RSS) / 1024 / 1024
		}
		if pc, err := proc.CPUPercent(); err == nil {
			r.Process.CPUPercent = pc
		}
	}

	r.Disks = collectDisks(settings)
	r.Database = collectDatabase(settings, store)
	return r
}

// collectDisks probes the volumes the service actually writes to: the
// database directory and the local export directory.
func collectDisks(settings *conf.Settings) []DiskInfo {
	seen := make(map[string]bool)
	var disks []DiskInfo

	probe := func(path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		usage, err := disk.Usage(abs)
		if err != nil {
			return
		}
		disks = append(disks, DiskInfo{
			Path:        abs,
			Total:       usage.Total,
			Free:        usage.Free,
			UsedPercent: usage.UsedPercent,
		})
	}

	if settings.Database.SQLite.Enabled {
		probe(filepath.Dir(settings.Database.SQLite.Path))
	}
	if settings.Export.Enabled && (settings.Export.Type == "local" || settings.Export.Type == "") {
		probe(settings.Export.Path)
	}
	probe(".")
	return disks
}

func collectDatabase(settings *conf.Settings, store datastore.Interface) DatabaseInfo {
	info := DatabaseInfo{}
	switch {
	case settings.Database.SQLite.Enabled:
		info.Backend = "sqlite"
	case settings.Database.MySQL.Enabled:
		info.Backend = "mysql"
	default:
		info.Backend = "none"
	}

	if store == nil || store.Ping() != nil {
		return info
	}
	info.Reachable = true

	if models, err := store.ActiveModels(); err == nil {
		info.ActiveModels = len(models)
	}
	if runs, err := store.RecentRuns(5); err == nil {
		for i := range runs {
			info.RecentRuns = append(info.RecentRuns, RunSummary{
				RunID:     runs[i].RunID,
				StartedAt: runs[i].StartedAt,
				Attempted: runs[i].Attempted,
				Succeeded: runs[i].Succeeded,
				Promoted:  runs[i].Promoted,
				Failed:    runs[i].Failed,
				Aborted:   runs[i].Aborted,
			})
		}
	}
	return info
}
