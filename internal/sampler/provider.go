package sampler

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	omerrors "github.com/Dicklesworthstone/omnimon/internal/errors"
	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// Fast is the result of a cheap refresh: CPU and memory only.
type Fast struct {
	PerCore []float64
	Total   float64
	Memory  model.Memory
}

// NetCounters are cumulative bytes across all interfaces.
type NetCounters struct {
	RxBytes uint64
	TxBytes uint64
}

// Slow is the result of an expensive refresh.
type Slow struct {
	Processes []model.Process
	Disks     []model.Disk
	Temps     []model.Temp
	Net       NetCounters
	HasNet    bool // false when the counters could not be read
}

// Provider is the OS telemetry source. Calls are synchronous and may block;
// RefreshSlow in particular can take tens of milliseconds. A non-nil error
// accompanies a partial reading whose failed fields are zero.
type Provider interface {
	RefreshFast() (Fast, error)
	RefreshSlow() (Slow, error)
	LoadAverage() (model.LoadAvg, error)
	Uptime() (uint64, error)
}

// HostProvider reads the local host through gopsutil. It keeps process
// handles between refreshes so per-process CPU is a delta since the last
// slow cycle rather than since process start. Not safe for concurrent use.
type HostProvider struct {
	procs map[int32]*process.Process
}

func NewHostProvider() *HostProvider {
	return &HostProvider{procs: make(map[int32]*process.Process)}
}

func (p *HostProvider) RefreshFast() (Fast, error) {
	var errs []error
	var f Fast

	perCore, err := cpu.Percent(0, true)
	if err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	}
	f.PerCore = perCore
	f.Total = mean(perCore)

	if vm, err := mem.VirtualMemory(); err == nil {
		f.Memory.Used, f.Memory.Total = vm.Used, vm.Total
	} else {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if sw, err := mem.SwapMemory(); err == nil {
		f.Memory.SwapUsed, f.Memory.SwapTotal = sw.Used, sw.Total
	} else {
		errs = append(errs, fmt.Errorf("swap: %w", err))
	}
	return f, partial("fast", errs)
}

func (p *HostProvider) RefreshSlow() (Slow, error) {
	var errs []error
	var s Slow

	procs, err := p.processes()
	if err != nil {
		errs = append(errs, fmt.Errorf("processes: %w", err))
	}
	s.Processes = procs

	disks, err := disks()
	if err != nil {
		errs = append(errs, fmt.Errorf("disks: %w", err))
	}
	s.Disks = disks

	// SensorsTemperatures reports per-sensor warnings alongside valid
	// readings, so keep whatever came back.
	temps, err := host.SensorsTemperatures()
	if err != nil {
		errs = append(errs, fmt.Errorf("sensors: %w", err))
	}
	for _, t := range temps {
		if t.Temperature <= 0 {
			continue
		}
		s.Temps = append(s.Temps, model.Temp{Label: t.SensorKey, Celsius: t.Temperature})
	}

	counters, err := net.IOCounters(false)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("net: %w", err))
	case len(counters) > 0:
		s.Net = NetCounters{RxBytes: counters[0].BytesRecv, TxBytes: counters[0].BytesSent}
		s.HasNet = true
	}
	return s, partial("slow", errs)
}

func (p *HostProvider) LoadAverage() (model.LoadAvg, error) {
	avg, err := load.Avg()
	if err != nil {
		return model.LoadAvg{}, err
	}
	return model.LoadAvg{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}, nil
}

func (p *HostProvider) Uptime() (uint64, error) { return host.Uptime() }

func (p *HostProvider) processes() ([]model.Process, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, err
	}

	seen := make(map[int32]*process.Process, len(pids))
	out := make([]model.Process, 0, len(pids))
	for _, pid := range pids {
		h, ok := p.procs[pid]
		if !ok {
			if h, err = process.NewProcess(pid); err != nil {
				continue
			}
		}
		seen[pid] = h

		// Skip kernel threads without name
		name, _ := h.Name()
		if name == "" {
			continue
		}
		cpuPct, _ := h.Percent(0)
		var rss uint64
		if mi, err := h.MemoryInfo(); err == nil && mi != nil {
			rss = mi.RSS
		}
		out = append(out, model.Process{PID: pid, Name: name, CPU: cpuPct, MemoryBytes: rss})
	}
	// Drop handles for exited processes so PID reuse starts a fresh delta.
	p.procs = seen
	return out, nil
}

func disks() ([]model.Disk, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(parts))
	out := make([]model.Disk, 0, len(parts))
	for _, part := range parts {
		if seen[part.Device] {
			continue
		}
		seen[part.Device] = true

		usage, err := disk.Usage(part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		out = append(out, model.Disk{
			Name:       part.Device,
			Mountpoint: part.Mountpoint,
			Used:       usage.Used,
			Total:      usage.Total,
		})
	}
	return out, nil
}

// partial joins per-field failures into one ErrProvider error, or nil.
func partial(cadence string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return omerrors.WrapWithCode(errors.Join(errs...), omerrors.ErrProvider,
		cadence+" refresh returned partial readings",
		"Some sensors need elevated permissions or are unsupported on this platform")
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
