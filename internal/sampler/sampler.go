package sampler

import (
	"context"
	"time"

	omerrors "github.com/Dicklesworthstone/omnimon/internal/errors"
	"github.com/Dicklesworthstone/omnimon/internal/logger"
	"github.com/Dicklesworthstone/omnimon/internal/metrics"
	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// Defaults for the two refresh cadences and the wake loop.
const (
	DefaultFastInterval = time.Millisecond
	DefaultSlowInterval = 500 * time.Millisecond
	DefaultPollInterval = 100 * time.Microsecond
	DefaultBuffer       = 4096
)

// Options configures a Scheduler. Zero fields take the defaults above.
type Options struct {
	Fast   time.Duration
	Slow   time.Duration
	Poll   time.Duration
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.Fast <= 0 {
		o.Fast = DefaultFastInterval
	}
	if o.Slow <= 0 {
		o.Slow = DefaultSlowInterval
	}
	if o.Poll <= 0 {
		o.Poll = DefaultPollInterval
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	return o
}

// Scheduler polls a Provider on a fast and a slow cadence and emits a
// complete Sample whenever either cadence fires. Everything below the
// options is owned by the goroutine started in Stream.
type Scheduler struct {
	provider Provider
	opts     Options
	log      logger.Logger
	rec      *metrics.Recorder

	lastFast time.Time
	lastSlow time.Time
	current  model.Sample
	net      netState
}

// New creates a Scheduler. rec may be nil.
func New(p Provider, opts Options, log logger.Logger, rec *metrics.Recorder) *Scheduler {
	if log == nil {
		log = logger.Noop()
	}
	return &Scheduler{
		provider: p,
		opts:     opts.withDefaults(),
		log:      log,
		rec:      rec,
	}
}

// Options returns the effective options.
func (s *Scheduler) Options() Options { return s.opts }

// Stream starts the wake loop and returns the channel it delivers to. The
// channel is bounded; when it is full new samples are dropped rather than
// blocking the loop. The channel is closed once ctx is done.
func (s *Scheduler) Stream(ctx context.Context) <-chan model.Sample {
	ch := make(chan model.Sample, s.opts.Buffer)
	go func() {
		ticker := time.NewTicker(s.opts.Poll)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case t := <-ticker.C:
				if smp, ok := s.wake(t); ok {
					s.offer(ch, smp)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// wake applies whichever cadences are due at now. Each cadence fires at
// most once and missed periods are not replayed. It reports false when
// nothing fired.
func (s *Scheduler) wake(now time.Time) (model.Sample, bool) {
	fastDue := s.lastFast.IsZero() || now.Sub(s.lastFast) >= s.opts.Fast
	slowDue := s.lastSlow.IsZero() || now.Sub(s.lastSlow) >= s.opts.Slow

	if fastDue {
		s.refreshFast()
		s.lastFast = now
	}
	if slowDue {
		s.refreshSlow(now)
		s.lastSlow = now
	}
	if !fastDue && !slowDue {
		return model.Sample{}, false
	}

	smp := s.current
	smp.Timestamp = now
	return smp, true
}

func (s *Scheduler) refreshFast() {
	f, err := s.provider.RefreshFast()
	if err != nil {
		s.rec.ProviderError("fast")
		s.log.Debug("%s", omerrors.Short(err))
	}
	s.current.CPU = model.CPU{PerCore: f.PerCore, Total: f.Total}
	s.current.Memory = f.Memory
	s.rec.FastRefresh()
}

func (s *Scheduler) refreshSlow(now time.Time) {
	start := time.Now()
	sl, err := s.provider.RefreshSlow()
	if err != nil {
		s.rec.ProviderError("slow")
		s.log.Debug("%s", omerrors.Short(err))
	}
	s.current.Processes = sl.Processes
	s.current.Disks = sl.Disks
	s.current.Temps = sl.Temps

	// A failed read publishes zeros but keeps the primed baseline, so the
	// next good read still measures against the last good one.
	if sl.HasNet {
		s.net.update(sl.Net, now, s.opts.Slow)
		s.current.Network = s.net.snapshot()
	} else {
		s.current.Network = model.Network{}
	}

	if avg, err := s.provider.LoadAverage(); err == nil {
		s.current.Load = avg
	} else {
		s.log.Debug("load average: %v", err)
		s.current.Load = model.LoadAvg{}
	}
	if up, err := s.provider.Uptime(); err == nil {
		s.current.Uptime = up
	} else {
		s.log.Debug("uptime: %v", err)
		s.current.Uptime = 0
	}

	s.current.SlowSeq++
	s.rec.SlowRefresh(time.Since(start))
}

// offer hands smp to the consumer without ever blocking.
func (s *Scheduler) offer(ch chan<- model.Sample, smp model.Sample) bool {
	select {
	case ch <- smp:
		s.rec.SampleEmitted()
		return true
	default:
		s.rec.SampleDropped()
		return false
	}
}

// netState derives throughput from cumulative counters. The previous
// reading only advances once at least threshold has elapsed, so a burst
// of closely spaced reads cannot divide by a near-zero interval.
type netState struct {
	primed  bool
	prev    NetCounters
	prevAt  time.Time
	current NetCounters
	rxSpeed float64
	txSpeed float64
}

func (n *netState) update(c NetCounters, now time.Time, threshold time.Duration) {
	n.current = c
	if !n.primed {
		n.prev, n.prevAt, n.primed = c, now, true
		return
	}
	elapsed := now.Sub(n.prevAt)
	if elapsed < threshold {
		return
	}
	secs := elapsed.Seconds()
	n.rxSpeed = rate(n.prev.RxBytes, c.RxBytes, secs)
	n.txSpeed = rate(n.prev.TxBytes, c.TxBytes, secs)
	n.prev, n.prevAt = c, now
}

func (n *netState) snapshot() model.Network {
	return model.Network{
		RxBytes: n.current.RxBytes,
		TxBytes: n.current.TxBytes,
		RxSpeed: n.rxSpeed,
		TxSpeed: n.txSpeed,
	}
}

// rate returns bytes/sec between two counter readings. A counter that went
// backwards (interface reset) or a non-positive interval yields 0.
func rate(prev, curr uint64, elapsedSec float64) float64 {
	if elapsedSec <= 0 || curr < prev {
		return 0
	}
	return float64(curr-prev) / elapsedSec
}
