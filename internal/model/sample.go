package model

import "time"

// CPU holds instantaneous CPU usage.
type CPU struct {
	PerCore []float64 `json:"per_core"` // percent 0-100, one per logical core
	Total   float64   `json:"total"`    // mean of PerCore
}

// Memory captures RAM and swap usage in bytes.
type Memory struct {
	Used      uint64 `json:"used"`
	Total     uint64 `json:"total"`
	SwapUsed  uint64 `json:"swap_used"`
	SwapTotal uint64 `json:"swap_total"`
}

// Network carries cumulative byte counters and the speeds derived from them.
type Network struct {
	RxBytes uint64  `json:"rx_bytes"`
	TxBytes uint64  `json:"tx_bytes"`
	RxSpeed float64 `json:"rx_speed"` // bytes/sec
	TxSpeed float64 `json:"tx_speed"` // bytes/sec
}

// Temp is a thermal sensor reading.
type Temp struct {
	Label   string  `json:"label"`
	Celsius float64 `json:"celsius"`
}

// Process is a lightweight process table entry.
type Process struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPU         float64 `json:"cpu"`
	MemoryBytes uint64  `json:"memory_bytes"`
}

// Disk is the usage of one mounted filesystem.
type Disk struct {
	Name       string `json:"name"`
	Mountpoint string `json:"mountpoint"`
	Used       uint64 `json:"used"`
	Total      uint64 `json:"total"`
}

// LoadAvg holds the 1/5/15 minute load averages.
type LoadAvg struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// Sample is one full readout exchanged between the scheduler and its consumer.
// Slices are allocated fresh by the provider and must not be modified once
// the sample has been sent.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       CPU       `json:"cpu"`
	Memory    Memory    `json:"memory"`
	Network   Network   `json:"network"`
	Temps     []Temp    `json:"temps"`
	Processes []Process `json:"processes"`
	Disks     []Disk    `json:"disks"`
	Load      LoadAvg   `json:"load"`
	Uptime    uint64    `json:"uptime"`

	// SlowSeq increments every time the slow cadence refreshed the process,
	// disk, sensor and network fields. Consumers use it to notice a new
	// process snapshot without comparing slices.
	SlowSeq uint64 `json:"slow_seq"`
}

// Ratio returns used/total as a percentage, or 0 when total is zero.
func Ratio(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) * 100 / float64(total)
}
