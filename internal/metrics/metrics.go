// Package metrics exposes omnimon's own sampling and aggregation counters
// in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dicklesworthstone/omnimon/internal/logger"
)

// Recorder holds the counters shared by the scheduler and the engine.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	samplesEmitted   prometheus.Counter
	samplesDropped   prometheus.Counter
	samplesIngested  prometheus.Counter
	fastRefreshes    prometheus.Counter
	slowRefreshes    prometheus.Counter
	providerErrors   *prometheus.CounterVec
	aggregationTicks prometheus.Counter
	emptyWindows     prometheus.Counter
	heatmapResets    prometheus.Counter
	slowDuration     prometheus.Histogram
}

// New creates a Recorder registered on its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		samplesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "sampler", Name: "samples_emitted_total",
			Help: "Samples delivered to the consumer channel.",
		}),
		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "sampler", Name: "samples_dropped_total",
			Help: "Samples dropped because the consumer channel was full.",
		}),
		fastRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "sampler", Name: "fast_refreshes_total",
			Help: "Fast cadence refreshes (CPU, memory).",
		}),
		slowRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "sampler", Name: "slow_refreshes_total",
			Help: "Slow cadence refreshes (processes, disks, sensors, network).",
		}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "sampler", Name: "provider_errors_total",
			Help: "Telemetry provider reads that returned an error.",
		}, []string{"cadence"}),
		slowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "omnimon", Subsystem: "sampler", Name: "slow_refresh_seconds",
			Help:    "Wall time spent in one slow cadence refresh.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		samplesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "engine", Name: "samples_ingested_total",
			Help: "Samples drained from the channel into the aggregation window.",
		}),
		aggregationTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "engine", Name: "aggregation_ticks_total",
			Help: "Aggregation boundaries that produced a history point.",
		}),
		emptyWindows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "engine", Name: "empty_windows_total",
			Help: "Aggregation boundaries skipped because the window was empty.",
		}),
		heatmapResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnimon", Subsystem: "engine", Name: "heatmap_resets_total",
			Help: "Heatmap rebuilds caused by a change in core count.",
		}),
	}
	r.registry.MustRegister(
		r.samplesEmitted, r.samplesDropped, r.fastRefreshes, r.slowRefreshes,
		r.providerErrors, r.slowDuration, r.samplesIngested, r.aggregationTicks,
		r.emptyWindows, r.heatmapResets,
	)
	return r
}

// Registry returns the registry the counters live on.

func (r *Recorder) SampleEmitted() {
	if r != nil {
		r.samplesEmitted.Inc()
	}
}

func (r *Recorder) SampleDropped() {
	if r != nil {
		r.samplesDropped.Inc()
	}
}

func (r *Recorder) FastRefresh() {
	if r != nil {
		r.fastRefreshes.Inc()
	}
}

func (r *Recorder) SlowRefresh(d time.Duration) {
	if r != nil {
		r.slowRefreshes.Inc()
		r.slowDuration.Observe(d.Seconds())
	}
}

// ProviderError counts a failed read on the named cadence ("fast" or "slow").
func (r *Recorder) ProviderError(cadence string) {
	if r != nil {
		r.providerErrors.WithLabelValues(cadence).Inc()
	}
}

func (r *Recorder) SampleIngested() {
	if r != nil {
		r.samplesIngested.Inc()
	}
}

func (r *Recorder) AggregationTick() {
	if r != nil {
		r.aggregationTicks.Inc()
	}
}

func (r *Recorder) EmptyWindow() {
	if r != nil {
		r.emptyWindows.Inc()
	}
}

func (r *Recorder) HeatmapReset() {
	if r != nil {
		r.heatmapResets.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
