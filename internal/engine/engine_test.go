package engine

import (
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/omnimon/internal/history"
	"github.com/Dicklesworthstone/omnimon/internal/logger"
	"github.com/Dicklesworthstone/omnimon/internal/metrics"
	"github.com/Dicklesworthstone/omnimon/internal/model"
	"github.com/Dicklesworthstone/omnimon/internal/ranking"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func cpuSample(total float64, cores ...float64) model.Sample {
	return model.Sample{CPU: model.CPU{Total: total, PerCore: cores}}
}

func newTestEngine(opts Options) *Engine {
	return New(opts, logger.Noop(), nil)
}

func TestWindow(t *testing.T) {
	var w Window
	assert.Equal(t, 0, w.Len())
	w.Push(cpuSample(1))
	w.Push(cpuSample(2))
	require.Equal(t, 2, w.Len())

	out := w.DrainAndReset()
	assert.Len(t, out, 2)
	assert.Equal(t, 0, w.Len())

	// Draining again yields an empty, independent slice.
	w.Push(cpuSample(3))
	assert.Equal(t, 1.0, out[0].CPU.Total)
}

func TestFlushMeanCPU(t *testing.T) {
	e := newTestEngine(Options{})
	for _, v := range []float64{10, 20, 30} {
		e.Ingest(cpuSample(v))
	}
	require.True(t, e.Flush())

	cpu := e.cpu
	last, ok := cpu.Last()
	require.True(t, ok)
	assert.Equal(t, 20.0, last.Value)
	assert.Equal(t, 0.0, last.Tick)
}

func TestFlushMemoryPercent(t *testing.T) {
	tests := []struct {
		name  string
		used  []uint64
		total uint64
		want  float64
	}{
		{"quarter", []uint64{50}, 200, 25.0},
		{"mean of used", []uint64{40, 60}, 200, 25.0},
		{"zero total", []uint64{50}, 0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(Options{})
			for _, u := range tt.used {
				e.Ingest(model.Sample{Memory: model.Memory{Used: u, Total: tt.total}})
			}
			require.True(t, e.Flush())
			mem := e.memory
			last, _ := mem.Last()
			assert.False(t, math.IsNaN(last.Value))
			assert.Equal(t, tt.want, last.Value)
		})
	}
}

func TestFlushNetworkMeans(t *testing.T) {
	e := newTestEngine(Options{})
	e.Ingest(model.Sample{Network: model.Network{RxSpeed: 100, TxSpeed: 10}})
	e.Ingest(model.Sample{Network: model.Network{RxSpeed: 300, TxSpeed: 30}})
	e.Flush()

	rx, tx := e.netRx, e.netTx
	r, _ := rx.Last()
	x, _ := tx.Last()
	assert.Equal(t, 200.0, r.Value)
	assert.Equal(t, 20.0, x.Value)
}

func TestFlushHeatmapQuantizesPerCore(t *testing.T) {
	e := newTestEngine(Options{HeatmapWidth: 10})
	e.Ingest(cpuSample(0, 10.2, 99.9, 0))
	e.Ingest(cpuSample(0, 20.2, 100.4, 1))
	e.Flush()

	assert.Equal(t, [][]uint8{{15}, {100}, {1}}, e.heatmap.Grid())
}

func TestEmptyWindowProducesNoPoint(t *testing.T) {
	rec := metrics.New()
	e := New(Options{}, logger.Noop(), rec)
	assert.False(t, e.Flush())

	cpu := e.cpu
	assert.Equal(t, 0, cpu.Len())
	assert.Equal(t, uint64(0), e.tick)
}

func TestTickMonotonic(t *testing.T) {
	e := newTestEngine(Options{})
	for i := 0; i < 10; i++ {
		e.Ingest(cpuSample(float64(i)))
		require.True(t, e.Flush())
		assert.Equal(t, uint64(i+1), e.tick)
	}
	// An empty window neither advances nor skips.
	e.Flush()
	assert.Equal(t, uint64(10), e.tick)

	cpu := e.cpu
	prev := -1.0
	for p := range cpu.All() {
		assert.Equal(t, prev+1, p.Tick)
		prev = p.Tick
	}
}

func TestAdvanceUsesInterval(t *testing.T) {
	e := newTestEngine(Options{AggregationInterval: time.Second})
	assert.False(t, e.Advance(t0), "first call starts the clock")

	e.Ingest(cpuSample(50))
	assert.False(t, e.Advance(t0.Add(999*time.Millisecond)))
	assert.Equal(t, 1, e.window.Len())

	assert.True(t, e.Advance(t0.Add(time.Second)))
	assert.Equal(t, 0, e.window.Len())
	assert.Equal(t, uint64(1), e.tick)

	// Empty window at the next boundary.
	assert.False(t, e.Advance(t0.Add(2*time.Second)))
	assert.Equal(t, uint64(1), e.tick)
}

func TestHeatmapResetOnCoreCountChange(t *testing.T) {
	e := newTestEngine(Options{HeatmapWidth: 5})
	e.Ingest(cpuSample(0, 10, 20))
	e.Flush()
	e.Ingest(cpuSample(0, 30, 40))
	e.Flush()
	require.Equal(t, 2, e.heatmap.Rows())
	require.Equal(t, 2, e.heatmap.Columns())

	e.Ingest(cpuSample(0, 1, 2, 3, 4))
	assert.NotPanics(t, func() { e.Flush() })
	assert.Equal(t, 4, e.heatmap.Rows())
	assert.Equal(t, [][]uint8{{1}, {2}, {3}, {4}}, e.heatmap.Grid())
}

func TestMixedShapeWithinWindow(t *testing.T) {
	e := newTestEngine(Options{})
	e.Ingest(cpuSample(0, 10, 20))
	e.Ingest(cpuSample(0, 30))
	assert.NotPanics(t, func() { e.Flush() })
	assert.Equal(t, [][]uint8{{20}, {20}}, e.heatmap.Grid())
}

func TestHistoryBounded(t *testing.T) {
	e := newTestEngine(Options{HistoryCapacity: 3})
	for i := 0; i < 7; i++ {
		e.Ingest(cpuSample(float64(i)))
		e.Flush()
	}
	cpu := e.cpu
	assert.Equal(t, 3, cpu.Len())
	assert.Equal(t, []float64{4, 5, 6}, cpu.Values())
}

func TestCPUMovingAverage(t *testing.T) {
	e := newTestEngine(Options{MovingAverageSamples: 2})
	assert.Equal(t, 0.0, e.average.value())

	e.Ingest(cpuSample(10))
	assert.Equal(t, 10.0, e.average.value())
	e.Ingest(cpuSample(30))
	assert.Equal(t, 20.0, e.average.value())
	e.Ingest(cpuSample(50))
	assert.Equal(t, 40.0, e.average.value())
}

func TestRankingFollowsSlowRefresh(t *testing.T) {
	e := newTestEngine(Options{SortKey: ranking.ByCPU})
	procs := []model.Process{
		{PID: 1, CPU: 5, MemoryBytes: 900},
		{PID: 2, CPU: 50, MemoryBytes: 100},
	}
	e.Ingest(model.Sample{Processes: procs, SlowSeq: 1})
	require.Equal(t, 2, e.ranking.Len())
	top, _ := e.ranking.At(0)
	assert.Equal(t, int32(2), top.PID)

	assert.Equal(t, ranking.ByMemory, e.ToggleSort())
	top, _ = e.ranking.At(0)
	assert.Equal(t, int32(1), top.PID)

	// A fast-only sample carrying the same SlowSeq does not replace the snapshot.
	e.Ingest(model.Sample{SlowSeq: 1})
	assert.Equal(t, 2, e.ranking.Len())
}

func TestFilterOption(t *testing.T) {
	e := newTestEngine(Options{Filter: regexp.MustCompile("^keep")})
	e.Ingest(model.Sample{SlowSeq: 1, Processes: []model.Process{{PID: 1, Name: "keepme"}, {PID: 2, Name: "drop"}}})
	assert.Equal(t, 1, e.ranking.Len())
}

func TestDrain(t *testing.T) {
	e := newTestEngine(Options{})
	ch := make(chan model.Sample, 8)
	for i := 0; i < 5; i++ {
		ch <- cpuSample(float64(i))
	}

	n, open := e.Drain(ch)
	assert.Equal(t, 5, n)
	assert.True(t, open)
	assert.Equal(t, 5, e.window.Len())

	close(ch)
	n, open = e.Drain(ch)
	assert.Equal(t, 0, n)
	assert.False(t, open)
}

func TestSnapshotIsACopy(t *testing.T) {
	e := newTestEngine(Options{})
	e.Ingest(model.Sample{
		CPU:       model.CPU{Total: 40, PerCore: []float64{40}},
		Memory:    model.Memory{SwapUsed: 1, SwapTotal: 4},
		Processes: []model.Process{{PID: 7, CPU: 1}},
		SlowSeq:   1,
	})
	e.Flush()

	snap := e.Snapshot(10)
	assert.True(t, snap.HasLatest)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, 25.0, snap.SwapPercent)
	assert.Equal(t, "cpu", snap.SortKey)
	require.Len(t, snap.Processes, 1)
	assert.Nil(t, snap.Latest.Processes)

	snap.CPU[0].Value = -1
	snap.Heatmap[0][0] = 0
	cpu := e.cpu
	last, _ := cpu.Last()
	assert.Equal(t, 40.0, last.Value)
	assert.Equal(t, [][]uint8{{40}}, e.heatmap.Grid())

	assert.Empty(t, e.Snapshot(0).Processes)
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, uint8(0), quantize(-5))
	assert.Equal(t, uint8(0), quantize(math.NaN()))
	assert.Equal(t, uint8(50), quantize(49.5))
	assert.Equal(t, uint8(100), quantize(250))
}

func TestSeriesDefaultCapacity(t *testing.T) {
	e := newTestEngine(Options{})
	cpu := e.cpu
	assert.Equal(t, history.DefaultCapacity, cpu.Capacity())
	assert.Equal(t, DefaultAggregationInterval, e.Interval())
}
