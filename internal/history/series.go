package history

import "iter"

// DefaultCapacity is the default number of points retained per series.
const DefaultCapacity = 200

// Point is one aggregated value on the shared tick axis.
type Point struct {
	Tick  float64 `json:"tick"`
	Value float64 `json:"value"`
}

// Series is a bounded sequence of aggregated points with FIFO eviction.
type Series struct {
	ring *Ring[Point]
}

// NewSeries creates a series with the given capacity, falling back to
// DefaultCapacity for non-positive values.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{ring: NewRing[Point](capacity)}
}

// Push evicts the oldest point if at capacity, then appends p.
func (s *Series) Push(p Point) { s.ring.Push(p) }

// All yields retained points in insertion order. Each call starts over.
func (s *Series) All() iter.Seq[Point] { return s.ring.All() }

// Capacity returns the maximum number of retained points.
func (s *Series) Capacity() int { return s.ring.Cap() }

// Len returns the number of retained points.
func (s *Series) Len() int { return s.ring.Len() }

// Last returns the newest point.
func (s *Series) Last() (Point, bool) { return s.ring.Last() }

// Points copies the retained points.
func (s *Series) Points() []Point { return s.ring.Slice() }

// Values copies only the values, oldest first, for sparkline rendering.
func (s *Series) Values() []float64 {
	out := make([]float64, 0, s.ring.Len())
	for p := range s.ring.All() {
		out = append(out, p.Value)
	}
	return out
}
