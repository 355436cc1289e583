package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	omerrors "github.com/Dicklesworthstone/omnimon/internal/errors"
	"github.com/Dicklesworthstone/omnimon/internal/logger"
	"github.com/Dicklesworthstone/omnimon/internal/metrics"
	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// fakeProvider returns scripted readings and counts calls.
type fakeProvider struct {
	fastCalls int
	slowCalls int
	fast      Fast
	fastErr   error
	nets      []NetCounters // consumed one per slow call; last one repeats
	slowErr   error
	netDown   bool
	loadErr   error
	uptimeErr error
}

func (f *fakeProvider) RefreshFast() (Fast, error) {
	f.fastCalls++
	return f.fast, f.fastErr
}

func (f *fakeProvider) RefreshSlow() (Slow, error) {
	f.slowCalls++
	s := Slow{
		Processes: []model.Process{{PID: int32(f.slowCalls), Name: "p", CPU: 1}},
		Disks:     []model.Disk{{Name: "sda", Used: 1, Total: 2}},
		Temps:     []model.Temp{{Label: "cpu", Celsius: 40}},
	}
	if len(f.nets) > 0 && !f.netDown {
		i := min(f.slowCalls-1, len(f.nets)-1)
		s.Net, s.HasNet = f.nets[i], true
	}
	return s, f.slowErr
}

func (f *fakeProvider) LoadAverage() (model.LoadAvg, error) {
	if f.loadErr != nil {
		return model.LoadAvg{}, f.loadErr
	}
	return model.LoadAvg{Load1: 1, Load5: 2, Load15: 3}, nil
}

func (f *fakeProvider) Uptime() (uint64, error) {
	if f.uptimeErr != nil {
		return 0, f.uptimeErr
	}
	return 42, nil
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestScheduler(p Provider) *Scheduler {
	return New(p, Options{Fast: time.Millisecond, Slow: 500 * time.Millisecond, Poll: 100 * time.Microsecond, Buffer: 4}, logger.Noop(), nil)
}

func TestOptionsDefaults(t *testing.T) {
	s := New(&fakeProvider{}, Options{}, nil, nil)
	o := s.Options()
	assert.Equal(t, DefaultFastInterval, o.Fast)
	assert.Equal(t, DefaultSlowInterval, o.Slow)
	assert.Equal(t, DefaultPollInterval, o.Poll)
	assert.Equal(t, DefaultBuffer, o.Buffer)
}

func TestWakeFirstFiresBoth(t *testing.T) {
	p := &fakeProvider{fast: Fast{PerCore: []float64{10, 30}, Total: 20}}
	s := newTestScheduler(p)

	smp, ok := s.wake(t0)
	require.True(t, ok)
	assert.Equal(t, 1, p.fastCalls)
	assert.Equal(t, 1, p.slowCalls)
	assert.Equal(t, 20.0, smp.CPU.Total)
	assert.Equal(t, t0, smp.Timestamp)
	assert.Equal(t, uint64(42), smp.Uptime)
	assert.Equal(t, 3.0, smp.Load.Load15)
	assert.Equal(t, uint64(1), smp.SlowSeq)
}

func TestWakeCadencesIndependent(t *testing.T) {
	p := &fakeProvider{}
	s := newTestScheduler(p)
	s.wake(t0)

	// Too early for either cadence.
	_, ok := s.wake(t0.Add(500 * time.Microsecond))
	assert.False(t, ok)
	assert.Equal(t, 1, p.fastCalls)

	// Fast only; slow fields carry over.
	smp, ok := s.wake(t0.Add(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 2, p.fastCalls)
	assert.Equal(t, 1, p.slowCalls)
	assert.Equal(t, uint64(1), smp.SlowSeq)
	require.Len(t, smp.Disks, 1)
	assert.Equal(t, "sda", smp.Disks[0].Name)

	// Both due again.
	smp, ok = s.wake(t0.Add(500 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 3, p.fastCalls)
	assert.Equal(t, 2, p.slowCalls)
	assert.Equal(t, uint64(2), smp.SlowSeq)
}

func TestWakeNoCatchUp(t *testing.T) {
	p := &fakeProvider{}
	s := newTestScheduler(p)
	s.wake(t0)

	// A long stall covers many fast periods but fires only once.
	_, ok := s.wake(t0.Add(2 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 2, p.fastCalls)
	assert.Equal(t, 2, p.slowCalls)

	// The next period is measured from the stalled wake.
	_, ok = s.wake(t0.Add(2*time.Second + 500*time.Microsecond))
	assert.False(t, ok)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 1000.0, rate(1000, 3000, 2.0))
	assert.Equal(t, 0.0, rate(1000, 3000, 0))
	assert.Equal(t, 0.0, rate(3000, 1000, 1.0))
	assert.Equal(t, 0.0, rate(5, 5, 1.0))
}

func TestNetworkSpeedAdvancesOnSlowBoundary(t *testing.T) {
	p := &fakeProvider{nets: []NetCounters{
		{RxBytes: 1000, TxBytes: 100},
		{RxBytes: 3000, TxBytes: 1100},
	}}
	s := New(p, Options{Fast: time.Millisecond, Slow: 2 * time.Second}, logger.Noop(), nil)

	smp, _ := s.wake(t0)
	assert.Equal(t, 0.0, smp.Network.RxSpeed, "first reading only primes the counters")

	smp, _ = s.wake(t0.Add(2 * time.Second))
	assert.Equal(t, 1000.0, smp.Network.RxSpeed)
	assert.Equal(t, 500.0, smp.Network.TxSpeed)
	assert.Equal(t, uint64(3000), smp.Network.RxBytes)

	// Fast-only wakes keep the last speed.
	smp, _ = s.wake(t0.Add(2*time.Second + time.Millisecond))
	assert.Equal(t, 1000.0, smp.Network.RxSpeed)
}

func TestNetStateHoldsBelowThreshold(t *testing.T) {
	var n netState
	n.update(NetCounters{RxBytes: 100}, t0, time.Second)
	n.update(NetCounters{RxBytes: 200}, t0.Add(time.Second), time.Second)
	assert.Equal(t, 100.0, n.rxSpeed)

	// Below threshold: speed and previous reading stay put.
	n.update(NetCounters{RxBytes: 900}, t0.Add(1100*time.Millisecond), time.Second)
	assert.Equal(t, 100.0, n.rxSpeed)
	assert.Equal(t, uint64(200), n.prev.RxBytes)
	assert.Equal(t, uint64(900), n.snapshot().RxBytes)
}

func TestProviderErrorsDegradeToZero(t *testing.T) {
	p := &fakeProvider{fastErr: errors.New("boom"), slowErr: errors.New("slow boom")}
	log := logger.NewBufferLogger()
	s := New(p, Options{}, log, nil)

	smp, ok := s.wake(t0)
	require.True(t, ok)
	assert.Zero(t, smp.CPU.Total)
	assert.True(t, log.HasLevel("debug"))
}

func TestFailedSlowFieldsDropToZero(t *testing.T) {
	tests := []struct {
		name  string
		fail  func(p *fakeProvider)
		check func(t *testing.T, smp model.Sample)
	}{
		{
			name: "network",
			fail: func(p *fakeProvider) { p.netDown = true },
			check: func(t *testing.T, smp model.Sample) {
				assert.Equal(t, model.Network{}, smp.Network)
			},
		},
		{
			name: "uptime",
			fail: func(p *fakeProvider) { p.uptimeErr = errors.New("no uptime") },
			check: func(t *testing.T, smp model.Sample) {
				assert.Zero(t, smp.Uptime)
			},
		},
		{
			name: "load average",
			fail: func(p *fakeProvider) { p.loadErr = errors.New("no loadavg") },
			check: func(t *testing.T, smp model.Sample) {
				assert.Equal(t, model.LoadAvg{}, smp.Load)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{nets: []NetCounters{{RxBytes: 1000}, {RxBytes: 3000}}}
			s := New(p, Options{Fast: time.Millisecond, Slow: time.Second}, logger.Noop(), nil)

			s.wake(t0)
			smp, _ := s.wake(t0.Add(2 * time.Second))
			require.Equal(t, 1000.0, smp.Network.RxSpeed)
			require.Equal(t, uint64(42), smp.Uptime)
			require.Equal(t, 1.0, smp.Load.Load1)

			tt.fail(p)
			for i := 3; i <= 5; i++ {
				smp, _ = s.wake(t0.Add(time.Duration(i) * time.Second))
				tt.check(t, smp)
			}
			// Fast-only wakes carry the zeroed fields forward.
			smp, _ = s.wake(t0.Add(5*time.Second + time.Millisecond))
			tt.check(t, smp)
		})
	}
}

func TestNetworkRecoversFromBaselineAfterFailure(t *testing.T) {
	p := &fakeProvider{nets: []NetCounters{{RxBytes: 1000}, {RxBytes: 3000}, {RxBytes: 3000}, {RxBytes: 7000}}}
	s := New(p, Options{Fast: time.Millisecond, Slow: time.Second}, logger.Noop(), nil)

	s.wake(t0)
	s.wake(t0.Add(2 * time.Second))

	p.netDown = true
	smp, _ := s.wake(t0.Add(3 * time.Second))
	assert.Zero(t, smp.Network.RxSpeed)

	// The third scripted reading is skipped while down; the next good one is
	// measured against the last good baseline (3000 at t0+2s).
	p.netDown = false
	smp, _ = s.wake(t0.Add(4 * time.Second))
	assert.Equal(t, 2000.0, smp.Network.RxSpeed)
	assert.Equal(t, uint64(7000), smp.Network.RxBytes)
}

func TestPartialReadingError(t *testing.T) {
	assert.NoError(t, partial("fast", nil))

	cause := errors.New("permission denied")
	err := partial("slow", []error{cause})
	require.Error(t, err)
	assert.True(t, omerrors.IsCode(err, omerrors.ErrProvider))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, omerrors.Short(err), "slow refresh returned partial readings")
}

func TestOfferDropsWhenFull(t *testing.T) {
	rec := metrics.New()
	s := New(&fakeProvider{}, Options{Buffer: 1}, logger.Noop(), rec)
	ch := make(chan model.Sample, 1)

	assert.True(t, s.offer(ch, model.Sample{}))
	assert.False(t, s.offer(ch, model.Sample{}), "full channel must not block")
	assert.Len(t, ch, 1)
}

func TestStreamDeliversAndCloses(t *testing.T) {
	p := &fakeProvider{fast: Fast{Total: 5}}
	s := New(p, Options{Fast: time.Millisecond, Slow: 10 * time.Millisecond, Poll: 200 * time.Microsecond, Buffer: 16}, logger.Noop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Stream(ctx)

	select {
	case smp := <-ch:
		assert.Equal(t, 5.0, smp.CPU.Total)
	case <-time.After(2 * time.Second):
		t.Fatal("no sample delivered")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}
