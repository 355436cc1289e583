// Package history holds the bounded, append-only storage behind the
// dashboard graphs. Memory per buffer is fixed at construction and does
// not grow with process runtime.
package history

import "iter"

// Ring is a fixed-capacity circular buffer. When full, Push overwrites the
// oldest element. It is not safe for concurrent use.
type Ring[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most size elements. Sizes below 1 are
// raised to 1.
func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}
	return &Ring[T]{data: make([]T, size)}
}

// Push evicts the oldest element if the ring is full, then appends v.
func (r *Ring[T]) Push(v T) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }

// At returns the i-th retained element, oldest first.
func (r *Ring[T]) At(i int) T {
	start := (r.head - r.count + len(r.data)) % len(r.data)
	return r.data[(start+i)%len(r.data)]
}

// Last returns the newest element and false if the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.At(r.count - 1), true
}

// All yields the retained elements oldest to newest. The sequence reflects
// the ring at the time each step runs, so it must not be interleaved with Push.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < r.count; i++ {
			if !yield(r.At(i)) {
				return
			}
		}
	}
}

// Slice copies the retained elements, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}
