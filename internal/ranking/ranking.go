// Package ranking orders the latest process snapshot by a selectable key.
package ranking

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// SortKey selects the ranking order. It is a two-state toggle.
type SortKey int

const (
	ByCPU SortKey = iota
	ByMemory
)

// String returns a short label for the sort key.
func (k SortKey) String() string {
	switch k {
	case ByMemory:
		return "mem"
	default:
		return "cpu"
	}
}

// Toggle flips between CPU and memory ordering.
func (k SortKey) Toggle() SortKey {
	if k == ByCPU {
		return ByMemory
	}
	return ByCPU
}

// ParseSortKey accepts "cpu" or "mem"/"memory", case-insensitively.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return ByCPU, nil
	case "mem", "memory":
		return ByMemory, nil
	default:
		return ByCPU, fmt.Errorf("unknown sort key %q (want cpu|mem)", s)
	}
}

// Ranking holds the latest snapshot in its original order plus a sorted view.
type Ranking struct {
	key    SortKey
	filter *regexp.Regexp
	source []model.Process
	sorted []model.Process
}

// New creates an empty ranking sorted by key.
func New(key SortKey) *Ranking {
	return &Ranking{key: key}
}

// Update replaces the snapshot wholesale and re-ranks it.
func (r *Ranking) Update(procs []model.Process) {
	r.source = procs
	r.rank()
}

// Key returns the active sort key.
func (r *Ranking) Key() SortKey { return r.key }

// SetKey changes the sort key and re-ranks.
func (r *Ranking) SetKey(k SortKey) {
	if k == r.key {
		return
	}
	r.key = k
	r.rank()
}

// Toggle switches to the other sort key and returns it.
func (r *Ranking) Toggle() SortKey {
	r.SetKey(r.key.Toggle())
	return r.key
}

// SetFilter restricts the view to processes whose name matches re.
// A nil filter shows everything.
func (r *Ranking) SetFilter(re *regexp.Regexp) {
	r.filter = re
	r.rank()
}

// Len returns the number of ranked (post-filter) entries.
func (r *Ranking) Len() int { return len(r.sorted) }

// TopN returns a copy of the n highest-ranked entries.
func (r *Ranking) TopN(n int) []model.Process {
	if n <= 0 {
		return nil
	}
	if n > len(r.sorted) {
		n = len(r.sorted)
	}
	out := make([]model.Process, n)
	copy(out, r.sorted[:n])
	return out
}

// At returns the entry at rank i.
func (r *Ranking) At(i int) (model.Process, bool) {
	if i < 0 || i >= len(r.sorted) {
		return model.Process{}, false
	}
	return r.sorted[i], true
}

// rank always sorts from the original order so ties keep snapshot order,
// independent of any previous key.
func (r *Ranking) rank() {
	sorted := make([]model.Process, 0, len(r.source))
	for _, p := range r.source {
		if r.filter != nil && !r.filter.MatchString(p.Name) {
			continue
		}
		sorted = append(sorted, p)
	}

	switch r.key {
	case ByMemory:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MemoryBytes > sorted[j].MemoryBytes })
	default:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CPU > sorted[j].CPU })
	}
	r.sorted = sorted
}
