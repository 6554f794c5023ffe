// Package system assembles the host and capability snapshot served by the
// status endpoint.
package system

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/videovoice/videovoice/internal/observability"
)

const (
	nvidiaSmiBinary = "nvidia-smi"
	probeTimeout    = 5 * time.Second
)

// MemoryInfo reports host memory in bytes.
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskInfo reports usage of the storage volume in bytes.
type DiskInfo struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// GPUInfo describes the first NVIDIA GPU, when one is visible.
type GPUInfo struct {
	Name        string `json:"name"`
	MemoryTotal uint64 `json:"memory_total"`
	MemoryUsed  uint64 `json:"memory_used"`
}

// JobCounts reports the active side of the job registry.
type JobCounts struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
}

// Engines lists which providers are usable with the current credentials.
type Engines struct {
	STT         []string `json:"stt"`
	Translation []string `json:"translation"`
	TTS         []string `json:"tts"`
}

// Snapshot is the full status payload.
type Snapshot struct {
	CPUPercent float64    `json:"cpu_percent"`
	Memory     MemoryInfo `json:"memory"`
	Disk       DiskInfo   `json:"disk"`
	GPU        *GPUInfo   `json:"gpu,omitempty"`
	Jobs       JobCounts  `json:"jobs"`
	Engines    Engines    `json:"engines"`
	Timestamp  time.Time  `json:"timestamp"`
}

// JobCounter yields the registry counts. The job manager implements it.
type JobCounter interface {
	Counts() (queued, processing int)
}

// EngineLister yields available provider names. The STT, translation and
// TTS services each implement it.
type EngineLister interface {
	Available() []string
}

// Collector gathers snapshots.
type Collector struct {
	storageDir string
	jobs       JobCounter
	stt        EngineLister
	translate  EngineLister
	tts        EngineLister
	logger     *slog.Logger
}

// NewCollector builds a collector. storageDir decides which volume the disk
// numbers describe.
func NewCollector(storageDir string, jobs JobCounter, stt, translate, tts EngineLister, logger *slog.Logger) *Collector {
	return &Collector{
		storageDir: storageDir,
		jobs:       jobs,
		stt:        stt,
		translate:  translate,
		tts:        tts,
		logger:     observability.WithComponent(logger, "system"),
	}
}

// Snapshot collects host metrics and capability lists. Metric failures are
// logged and leave their section zeroed; the endpoint always answers.
func (c *Collector) Snapshot(ctx context.Context) *Snapshot {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	snap := &Snapshot{Timestamp: time.Now().UTC()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		c.logger.Warn("reading cpu usage failed", slog.String("error", err.Error()))
	} else if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.logger.Warn("reading memory usage failed", slog.String("error", err.Error()))
	} else {
		snap.Memory = MemoryInfo{Total: vm.Total, Used: vm.Used, UsedPercent: vm.UsedPercent}
	}

	if usage, err := disk.UsageWithContext(ctx, c.storageDir); err != nil {
		c.logger.Warn("reading disk usage failed",
			slog.String("path", c.storageDir),
			slog.String("error", err.Error()))
	} else {
		snap.Disk = DiskInfo{Total: usage.Total, Free: usage.Free, UsedPercent: usage.UsedPercent}
	}

	snap.GPU = c.probeGPU(ctx)

	if c.jobs != nil {
		snap.Jobs.Queued, snap.Jobs.Processing = c.jobs.Counts()
	}
	if c.stt != nil {
		snap.Engines.STT = c.stt.Available()
	}
	if c.translate != nil {
		snap.Engines.Translation = c.translate.Available()
	}
	if c.tts != nil {
		snap.Engines.TTS = c.tts.Available()
	}

	return snap
}

// probeGPU queries nvidia-smi for the first GPU. Hosts without the binary
// or without a GPU simply report none.
func (c *Collector) probeGPU(ctx context.Context) *GPUInfo {
	bin, err := exec.LookPath(nvidiaSmiBinary)
	if err != nil {
		return nil
	}

	out, err := exec.CommandContext(ctx, bin,
		"--query-gpu=name,memory.total,memory.used",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		c.logger.Warn("nvidia-smi query failed", slog.String("error", err.Error()))
		return nil
	}
	return parseNvidiaSmi(string(out))
}

// parseNvidiaSmi reads the first line of nvidia-smi CSV output. Memory
// figures arrive in MiB and are converted to bytes.
func parseNvidiaSmi(out string) *GPUInfo {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return nil
	}

	total, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return nil
	}
	used, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return nil
	}

	return &GPUInfo{
		Name:        strings.TrimSpace(fields[0]),
		MemoryTotal: total << 20,
		MemoryUsed:  used << 20,
	}
}
