// Package engine owns all dashboard state: the aggregation window, the
// bounded history series, the core heatmap and the process ranking. An
// Engine is confined to the single consumer goroutine and needs no locks;
// the scheduler reaches it only through the sample channel.
package engine

import (
	"regexp"
	"time"

	"github.com/Dicklesworthstone/omnimon/internal/history"
	"github.com/Dicklesworthstone/omnimon/internal/logger"
	"github.com/Dicklesworthstone/omnimon/internal/metrics"
	"github.com/Dicklesworthstone/omnimon/internal/model"
	"github.com/Dicklesworthstone/omnimon/internal/ranking"
)

const (
	DefaultAggregationInterval  = 100 * time.Millisecond
	DefaultMovingAverageSamples = 1000
)

// Options configures an Engine. Zero values take package defaults.
type Options struct {
	HistoryCapacity      int
	HeatmapWidth         int
	AggregationInterval  time.Duration
	MovingAverageSamples int
	SortKey              ranking.SortKey
	Filter               *regexp.Regexp
}

// Engine is the single-owner state behind the dashboard.
type Engine struct {
	interval time.Duration
	log      logger.Logger
	rec      *metrics.Recorder

	window  Window
	cpu     *history.Series
	memory  *history.Series
	netRx   *history.Series
	netTx   *history.Series
	heatmap *history.Heatmap
	ranking *ranking.Ranking
	average *movingAverage

	tick         uint64
	lastBoundary time.Time
	latest       model.Sample
	hasLatest    bool
	slowSeq      uint64
}

// New creates an Engine. log and rec may be nil.
func New(opts Options, log logger.Logger, rec *metrics.Recorder) *Engine {
	if opts.AggregationInterval <= 0 {
		opts.AggregationInterval = DefaultAggregationInterval
	}
	if opts.MovingAverageSamples <= 0 {
		opts.MovingAverageSamples = DefaultMovingAverageSamples
	}
	if log == nil {
		log = logger.Noop()
	}

	r := ranking.New(opts.SortKey)
	if opts.Filter != nil {
		r.SetFilter(opts.Filter)
	}

	return &Engine{
		interval: opts.AggregationInterval,
		log:      log,
		rec:      rec,
		cpu:      history.NewSeries(opts.HistoryCapacity),
		memory:   history.NewSeries(opts.HistoryCapacity),
		netRx:    history.NewSeries(opts.HistoryCapacity),
		netTx:    history.NewSeries(opts.HistoryCapacity),
		heatmap:  history.NewHeatmap(opts.HeatmapWidth),
		ranking:  r,
		average:  newMovingAverage(opts.MovingAverageSamples),
	}
}

// Ingest buffers one sample in the aggregation window and updates the
// per-sample state: latest reading, CPU moving average, process ranking.
func (e *Engine) Ingest(s model.Sample) {
	e.window.Push(s)
	e.latest, e.hasLatest = s, true
	e.average.push(s.CPU.Total)
	if s.SlowSeq != e.slowSeq {
		e.slowSeq = s.SlowSeq
		e.ranking.Update(s.Processes)
	}
	e.rec.SampleIngested()
}

// Drain ingests every sample currently buffered in ch without blocking.
// It returns how many were ingested and false once ch has been closed.
func (e *Engine) Drain(ch <-chan model.Sample) (int, bool) {
	n := 0
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return n, false
			}
			e.Ingest(s)
			n++
		default:
			return n, true
		}
	}
}

// Advance fires an aggregation boundary if at least the aggregation
// interval has passed since the previous one. The first call only starts
// the clock. An empty window at a boundary produces no point and leaves
// the tick index unchanged. It reports whether a point was appended.
func (e *Engine) Advance(now time.Time) bool {
	if e.lastBoundary.IsZero() {
		e.lastBoundary = now
		return false
	}
	if now.Sub(e.lastBoundary) < e.interval {
		return false
	}
	e.lastBoundary = now
	return e.Flush()
}

// Flush collapses the window into one point per series regardless of the
// clock. It is a no-op on an empty window.
func (e *Engine) Flush() bool {
	if e.window.Len() == 0 {
		e.rec.EmptyWindow()
		return false
	}

	agg := collapse(e.window.DrainAndReset())
	x := float64(e.tick)

	e.cpu.Push(history.Point{Tick: x, Value: agg.cpu})
	e.memory.Push(history.Point{Tick: x, Value: agg.memory})
	e.netRx.Push(history.Point{Tick: x, Value: agg.rxSpeed})
	e.netTx.Push(history.Point{Tick: x, Value: agg.txSpeed})

	if e.heatmap.Rows() != 0 && e.heatmap.Rows() != len(agg.cores) {
		e.log.Warn("core count changed from %d to %d, resetting heatmap", e.heatmap.Rows(), len(agg.cores))
		e.rec.HeatmapReset()
	}
	e.heatmap.PushColumn(agg.cores)

	e.tick++
	e.rec.AggregationTick()
	return true
}

// Interval returns the aggregation interval.
func (e *Engine) Interval() time.Duration { return e.interval }

// ToggleSort flips the ranking key and returns the new one.
func (e *Engine) ToggleSort() ranking.SortKey { return e.ranking.Toggle() }

// movingAverage is the mean of the last n values with a running sum.
type movingAverage struct {
	ring *history.Ring[float64]
	sum  float64
}

func newMovingAverage(n int) *movingAverage {
	return &movingAverage{ring: history.NewRing[float64](n)}
}

func (m *movingAverage) push(v float64) {
	v = finite(v)
	if m.ring.Len() == m.ring.Cap() {
		m.sum -= m.ring.At(0)
	}
	m.ring.Push(v)
	m.sum += v
}

func (m *movingAverage) value() float64 {
	if m.ring.Len() == 0 {
		return 0
	}
	return m.sum / float64(m.ring.Len())
}
