package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/omnimon/internal/config"
	"github.com/Dicklesworthstone/omnimon/internal/engine"
	"github.com/Dicklesworthstone/omnimon/internal/errors"
	"github.com/Dicklesworthstone/omnimon/internal/history"
	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// Killer terminates a process on behalf of the kill key.
type Killer interface {
	Kill(pid int32) error
}

// UnsupportedKiller refuses every request. It is the default Killer.
type UnsupportedKiller struct{}

func (UnsupportedKiller) Kill(pid int32) error {
	return errors.New(errors.ErrKill,
		fmt.Sprintf("Killing PID %d is not supported", pid),
		"Run omnimon with a process killer configured")
}

// Model renders engine snapshots. It is the engine's only owner: every
// frame it drains the sample stream, advances aggregation and re-snapshots.
type Model struct {
	cfg    config.Config
	engine *engine.Engine
	stream <-chan model.Sample
	cancel context.CancelFunc
	killer Killer
	help   help.Model

	snap         engine.Snapshot
	scroll       int
	status       string
	streamClosed bool
	width        int
	height       int
}

// New creates the UI model. cancel stops the scheduler on quit and may be nil.
func New(cfg config.Config, eng *engine.Engine, stream <-chan model.Sample, cancel context.CancelFunc, killer Killer) *Model {
	if killer == nil {
		killer = UnsupportedKiller{}
	}
	if cancel == nil {
		cancel = func() {}
	}
	return &Model{
		cfg:    cfg,
		engine: eng,
		stream: stream,
		cancel: cancel,
		killer: killer,
		help:   help.New(),
		snap:   eng.Snapshot(cfg.ProcessLimit),
		width:  120,
		height: 40,
	}
}

// Messages
type frameMsg time.Time

func (m *Model) frameCmd() tea.Cmd {
	return tea.Tick(m.cfg.FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m *Model) Init() tea.Cmd { return m.frameCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case frameMsg:
		m.frame(time.Time(msg))
		return m, m.frameCmd()
	}
	return m, nil
}

// frame drains every buffered sample, not just one, so aggregation does not
// depend on the frame rate keeping up with the sampling rate.
func (m *Model) frame(now time.Time) {
	if !m.streamClosed {
		if _, open := m.engine.Drain(m.stream); !open {
			m.streamClosed = true
			m.status = "sampler stopped"
		}
	}
	m.engine.Advance(now)
	m.refresh()
}

func (m *Model) refresh() {
	m.snap = m.engine.Snapshot(m.cfg.ProcessLimit)
	m.scroll = clampScroll(m.scroll, len(m.snap.Processes))
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		m.cancel()
		return tea.Quit
	case key.Matches(msg, keys.Up):
		m.scroll = clampScroll(m.scroll-1, len(m.snap.Processes))
	case key.Matches(msg, keys.Down):
		m.scroll = clampScroll(m.scroll+1, len(m.snap.Processes))
	case key.Matches(msg, keys.Sort):
		k := m.engine.ToggleSort()
		m.scroll = 0
		m.status = "sorted by " + k.String()
		m.refresh()
	case key.Matches(msg, keys.Kill):
		m.killSelected()
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Model) killSelected() {
	if m.scroll >= len(m.snap.Processes) {
		return
	}
	p := m.snap.Processes[m.scroll]
	if err := m.killer.Kill(p.PID); err != nil {
		m.status = errors.Short(err)
		return
	}
	m.status = fmt.Sprintf("sent kill to %s (%d)", p.Name, p.PID)
}

// clampScroll bounds pos to [0, n-1], or 0 for an empty list.
func clampScroll(pos, n int) int {
	if n <= 0 || pos < 0 {
		return 0
	}
	if pos > n-1 {
		return n - 1
	}
	return pos
}

// Styles
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	gaugeFill     = "█"
	gaugeEmpty    = "░"
	cardStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

const (
	sparkWidth   = 40
	processRows  = 15
	maxCoreRows  = 32
	heatmapWidth = 60
)

func (m *Model) View() string {
	s := m.snap
	latest := s.Latest

	header := titleStyle.Render("omnimon") + "  " +
		subtleStyle.Render(fmt.Sprintf("%s  up %s  load %.2f %.2f %.2f  tick %d",
			latest.Timestamp.Format("15:04:05"),
			formatUptime(latest.Uptime),
			latest.Load.Load1, latest.Load.Load5, latest.Load.Load15,
			s.Tick))

	cpuCard := card(fmt.Sprintf("CPU (avg %d samples)", m.cfg.MovingAverageSamples),
		gaugeBar(s.CPUAverage, 28)+"\n"+
			sparkline(values(s.CPU), sparkWidth, 100))

	memPct := model.Ratio(latest.Memory.Used, latest.Memory.Total)
	memCard := card("Memory",
		fmt.Sprintf("%s  %s/%s\nSwap %5.1f%%\n%s",
			gaugeBar(memPct, 28),
			formatBytes(latest.Memory.Used), formatBytes(latest.Memory.Total),
			s.SwapPercent,
			sparkline(values(s.Memory), sparkWidth, 100)))

	netCard := card("Network",
		fmt.Sprintf("RX %-12s %s\nTX %-12s %s",
			formatRate(latest.Network.RxSpeed), sparkline(values(s.NetRx), sparkWidth/2, 0),
			formatRate(latest.Network.TxSpeed), sparkline(values(s.NetTx), sparkWidth/2, 0)))

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, cpuCard, memCard, netCard)
	line2 := lipgloss.JoinHorizontal(lipgloss.Top, m.heatmapCard(), m.processCard(), m.storageCard())

	footer := m.help.View(keys)
	if m.status != "" {
		footer += "  " + statusStyle.Render(m.status)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, line1, line2, footer)
}

func (m *Model) heatmapCard() string {
	grid := m.snap.Heatmap
	if len(grid) == 0 {
		return card("Cores", subtleStyle.Render("waiting for samples…"))
	}
	rows := make([]string, 0, min(len(grid), maxCoreRows))
	for i, row := range grid {
		if i == maxCoreRows {
			rows = append(rows, subtleStyle.Render(fmt.Sprintf("… %d more", len(grid)-maxCoreRows)))
			break
		}
		rows = append(rows, fmt.Sprintf("%3d %s", i, heatmapRow(row, heatmapWidth)))
	}
	return card("Cores", strings.Join(rows, "\n"))
}

func (m *Model) processCard() string {
	procs := m.snap.Processes
	var b strings.Builder
	fmt.Fprintf(&b, "%-7s %-20s %6s %9s", "pid", "cmd", "cpu", "mem")

	start := 0
	if m.scroll >= processRows {
		start = m.scroll - processRows + 1
	}
	end := min(start+processRows, len(procs))
	for i := start; i < end; i++ {
		p := procs[i]
		line := fmt.Sprintf("%-7d %-20s %6.1f %9s", p.PID, truncate(p.Name, 20), p.CPU, formatBytes(p.MemoryBytes))
		if i == m.scroll {
			line = selectedStyle.Render(line)
		}
		b.WriteString("\n" + line)
	}
	title := fmt.Sprintf("Top %s (%d/%d)", strings.ToUpper(m.snap.SortKey), len(procs), m.snap.ProcessTotal)
	return card(title, b.String())
}

func (m *Model) storageCard() string {
	latest := m.snap.Latest
	var lines []string
	for _, d := range latest.Disks {
		lines = append(lines, fmt.Sprintf("%-12s %5.1f%% %s",
			truncate(d.Mountpoint, 12), model.Ratio(d.Used, d.Total), formatBytes(d.Total)))
	}
	if len(latest.Temps) > 0 {
		lines = append(lines, "")
		temps := slices.Clone(latest.Temps)
		slices.SortFunc(temps, func(a, b model.Temp) int { return strings.Compare(a.Label, b.Label) })
		for _, t := range temps {
			lines = append(lines, fmt.Sprintf("%-16s %5.1f°C", truncate(t.Label, 16), t.Celsius))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, subtleStyle.Render("no disks or sensors"))
	}
	return card("Disks / Temps", strings.Join(lines, "\n"))
}

func card(title, body string) string {
	return cardStyle.Render(labelStyle.Render(title) + "\n" + body)
}

func values(points []history.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// RunTUI runs the Bubble Tea program until the user quits.
func RunTUI(m *Model) error {
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
