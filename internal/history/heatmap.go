package history

import "iter"

// DefaultHeatmapWidth is the default number of time columns per core row.
const DefaultHeatmapWidth = 100

// Heatmap is a core-index × time-column grid of quantized loads (0-100).
// Each row is bounded to Width columns with FIFO eviction.
type Heatmap struct {
	width int
	rows  []*Ring[uint8]
}

// NewHeatmap creates an empty grid. Rows appear on the first PushColumn.
func NewHeatmap(width int) *Heatmap {
	if width <= 0 {
		width = DefaultHeatmapWidth
	}
	return &Heatmap{width: width}
}

// PushColumn appends one value per row. If the number of values differs
// from the current row count, every row is discarded and the grid is
// rebuilt with the new shape before the column is appended.
func (h *Heatmap) PushColumn(values []uint8) {
	if len(values) != len(h.rows) {
		h.reset(len(values))
	}
	for i, v := range values {
		if v > 100 {
			v = 100
		}
		h.rows[i].Push(v)
	}
}

func (h *Heatmap) reset(n int) {
	h.rows = make([]*Ring[uint8], n)
	for i := range h.rows {
		h.rows[i] = NewRing[uint8](h.width)
	}
}

// Rows returns the number of core rows.
func (h *Heatmap) Rows() int { return len(h.rows) }

// Width returns the column capacity of each row.
func (h *Heatmap) Width() int { return h.width }

// Columns returns how many columns row 0 currently holds.
func (h *Heatmap) Columns() int {
	if len(h.rows) == 0 {
		return 0
	}
	return h.rows[0].Len()
}

// Row yields the values of row i, oldest first. Out of range rows yield nothing.
func (h *Heatmap) Row(i int) iter.Seq[uint8] {
	if i < 0 || i >= len(h.rows) {
		return func(func(uint8) bool) {}
	}
	return h.rows[i].All()
}

// Grid copies the whole grid, one slice per row.
func (h *Heatmap) Grid() [][]uint8 {
	out := make([][]uint8, len(h.rows))
	for i, r := range h.rows {
		out[i] = r.Slice()
	}
	return out
}
