package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Tier buckets a 0-100 load for coloring. Only presentation uses it; the
// heatmap stores raw quantized values.
type Tier int

const (
	TierIdle Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierCritical
)

// TierOf maps a quantized load onto its tier.
func TierOf(v uint8) Tier {
	switch {
	case v < 10:
		return TierIdle
	case v < 40:
		return TierLow
	case v < 70:
		return TierMedium
	case v < 90:
		return TierHigh
	default:
		return TierCritical
	}
}

// Each tier has its own glyph so the grid stays readable without color.
var (
	tierGlyphs = [...]string{"·", "░", "▒", "▓", "█"}
	tierStyles = [...]lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

func (t Tier) style() lipgloss.Style { return tierStyles[t] }
func (t Tier) glyph() string         { return tierGlyphs[t] }

// heatmapRow renders the newest width cells of one core row, batching runs
// of equal tier into a single styled span.
func heatmapRow(values []uint8, width int) string {
	if len(values) > width {
		values = values[len(values)-width:]
	}
	var b strings.Builder
	if pad := width - len(values); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	for i := 0; i < len(values); {
		t := TierOf(values[i])
		j := i
		for j < len(values) && TierOf(values[j]) == t {
			j++
		}
		b.WriteString(t.style().Render(strings.Repeat(t.glyph(), j-i)))
		i = j
	}
	return b.String()
}

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// sparkline draws the newest width values scaled to [0, ceiling]. A
// non-positive ceiling scales to the largest value shown.
func sparkline(values []float64, width int, ceiling float64) string {
	if width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	if ceiling <= 0 {
		for _, v := range values {
			ceiling = math.Max(ceiling, v)
		}
	}
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(values)))
	for _, v := range values {
		if ceiling <= 0 || v <= 0 {
			b.WriteRune(sparkBlocks[0])
			continue
		}
		idx := int(v / ceiling * float64(len(sparkBlocks)-1))
		idx = max(0, min(idx, len(sparkBlocks)-1))
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	bar := TierOf(uint8(math.Round(pct))).style().Render(strings.Repeat(gaugeFill, filled))
	return fmt.Sprintf("[%s%s] %5.1f%%", bar, strings.Repeat(gaugeEmpty, width-filled), pct)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatRate(bytesPerSec float64) string {
	if bytesPerSec < 0 || math.IsNaN(bytesPerSec) {
		bytesPerSec = 0
	}
	return formatBytes(uint64(bytesPerSec)) + "/s"
}

func formatUptime(secs uint64) string {
	d := secs / 86400
	h := (secs % 86400) / 3600
	m := (secs % 3600) / 60
	if d > 0 {
		return fmt.Sprintf("%dd %02dh %02dm", d, h, m)
	}
	return fmt.Sprintf("%02dh %02dm", h, m)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
