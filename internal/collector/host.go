package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/common"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"hostmon/internal/models"
)

const (
	cpuWindow     = time.Second
	routeProbe    = "8.8.8.8:80"
	UnknownHostIP = "Unknown"
)

// HostSampler reads host counters. Every sub-sample degrades to its zero
// sentinel on failure, so Sample never returns an error.
type HostSampler struct {
	procRoot string
	probe    LatencyProbe
	log      *slog.Logger
	window   time.Duration
	route    string
}

func NewHostSampler(procRoot string, probe LatencyProbe, logger *slog.Logger) *HostSampler {
	return &HostSampler{
		procRoot: resolveProcRoot(procRoot),
		probe:    probe,
		log:      logger,
		window:   cpuWindow,
		route:    routeProbe,
	}
}

// resolveProcRoot falls back to /proc when the host mount is absent, which is
// the case outside a container.
func resolveProcRoot(root string) string {
	if root == "" {
		return "/proc"
	}
	if _, err := os.Stat(filepath.Join(root, "stat")); err != nil {
		return "/proc"
	}
	return root
}

func (h *HostSampler) Sample(ctx context.Context) models.HostSample {
	cpuPct := h.SampleCPU(ctx)
	memPct, total, used := h.SampleMemory(ctx)
	return models.HostSample{
		CPUUsage:    cpuPct,
		MemoryUsage: memPct,
		MemoryTotal: total,
		MemoryUsed:  used,
		HostIP:      h.SampleHostIP(),
		PingLatency: h.SamplePingLatency(ctx),
	}
}

// SampleCPU reads the aggregate counters twice, one window apart.
func (h *HostSampler) SampleCPU(ctx context.Context) float64 {
	first, err := h.cpuTimes(ctx)
	if err != nil {
		h.log.Warn("read cpu counters", "err", err)
		return 0
	}
	t := time.NewTimer(h.window)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0
	case <-t.C:
	}
	second, err := h.cpuTimes(ctx)
	if err != nil {
		h.log.Warn("read cpu counters", "err", err)
		return 0
	}
	return round2(cpuUsage(first, second))
}

func (h *HostSampler) SampleMemory(ctx context.Context) (float64, int64, int64) {
	vm, err := mem.VirtualMemoryWithContext(h.procContext(ctx))
	if err != nil {
		h.log.Warn("read meminfo", "err", err)
		return 0, 0, 0
	}
	pct, total, used := memoryUsage(vm.Total, vm.Available)
	return round2(pct), total, used
}

// SampleHostIP asks the routing table for the egress address. UDP connect
// sends nothing.
func (h *HostSampler) SampleHostIP() string {
	conn, err := net.Dial("udp4", h.route)
	if err != nil {
		h.log.Warn("resolve host ip", "err", err)
		return UnknownHostIP
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		h.log.Warn("resolve host ip", "err", fmt.Errorf("unexpected local address %v", conn.LocalAddr()))
		return UnknownHostIP
	}
	return addr.IP.String()
}

func (h *HostSampler) SamplePingLatency(ctx context.Context) float64 {
	if h.probe == nil {
		return 0
	}
	ms, err := h.probe.Probe(ctx)
	if err != nil {
		h.log.Warn("measure ping", "err", err)
		return 0
	}
	if ms < 0 || math.IsNaN(ms) {
		return 0
	}
	return round2(ms)
}

func (h *HostSampler) procContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, common.EnvKey, common.EnvMap{common.HostProcEnvKey: h.procRoot})
}

func (h *HostSampler) cpuTimes(ctx context.Context) (cpu.TimesStat, error) {
	times, err := cpu.TimesWithContext(h.procContext(ctx), false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, errors.New("no aggregate cpu line")
	}
	return times[0], nil
}

func cpuTotal(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq +
		t.Softirq + t.Steal + t.Guest + t.GuestNice
}

// cpuUsage is 100*(1 - Δidle/Δtotal), zero when the total did not advance.
func cpuUsage(prev, cur cpu.TimesStat) float64 {
	deltaTotal := cpuTotal(cur) - cpuTotal(prev)
	if deltaTotal <= 0 {
		return 0
	}
	deltaIdle := cur.Idle - prev.Idle
	return clampPercent(100 * (1 - deltaIdle/deltaTotal))
}

func memoryUsage(total, available uint64) (float64, int64, int64) {
	if total == 0 {
		return 0, 0, 0
	}
	used := uint64(0)
	if available < total {
		used = total - available
	}
	return float64(used) / float64(total) * 100, int64(total), int64(used)
}

func clampPercent(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
