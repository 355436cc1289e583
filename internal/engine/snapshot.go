package engine

import (
	"github.com/Dicklesworthstone/omnimon/internal/history"
	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// Snapshot is a read-only copy of engine state for one UI frame or export.
// Nothing in it aliases engine storage except the latest sample's slices,
// which are immutable once produced.
type Snapshot struct {
	Tick         uint64          `json:"tick"`
	CPU          []history.Point `json:"cpu"`
	Memory       []history.Point `json:"memory"`
	NetRx        []history.Point `json:"net_rx"`
	NetTx        []history.Point `json:"net_tx"`
	Heatmap      [][]uint8       `json:"heatmap"`
	Processes    []model.Process `json:"processes"`
	ProcessTotal int             `json:"process_total"`
	SortKey      string          `json:"sort_key"`
	CPUAverage   float64         `json:"cpu_average"`
	SwapPercent  float64         `json:"swap_percent"`
	Latest       model.Sample    `json:"latest"`
	HasLatest    bool            `json:"has_latest"`
}

// Snapshot copies the current state. processLimit caps the ranked process
// list; zero or less returns no processes.
func (e *Engine) Snapshot(processLimit int) Snapshot {
	latest := e.latest
	latest.Processes = nil // ranked separately below

	return Snapshot{
		Tick:         e.tick,
		CPU:          e.cpu.Points(),
		Memory:       e.memory.Points(),
		NetRx:        e.netRx.Points(),
		NetTx:        e.netTx.Points(),
		Heatmap:      e.heatmap.Grid(),
		Processes:    e.ranking.TopN(processLimit),
		ProcessTotal: e.ranking.Len(),
		SortKey:      e.ranking.Key().String(),
		CPUAverage:   e.average.value(),
		SwapPercent:  model.Ratio(e.latest.Memory.SwapUsed, e.latest.Memory.SwapTotal),
		Latest:       latest,
		HasLatest:    e.hasLatest,
	}
}
