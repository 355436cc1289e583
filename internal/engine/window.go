package engine

import "github.com/Dicklesworthstone/omnimon/internal/model"

// Window accumulates samples between two aggregation boundaries. It knows
// nothing about time; the Engine decides when to drain it.
type Window struct {
	samples []model.Sample
}

// Push appends a sample.
func (w *Window) Push(s model.Sample) { w.samples = append(w.samples, s) }

// Len returns the number of buffered samples.
func (w *Window) Len() int { return len(w.samples) }

// DrainAndReset returns the buffered samples and empties the window. The
// returned slice is owned by the caller.
func (w *Window) DrainAndReset() []model.Sample {
	out := w.samples
	w.samples = make([]model.Sample, 0, cap(out))
	return out
}
