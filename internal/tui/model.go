package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pixfit/internal/progress"
)

type Model struct {
	updates  <-chan progress.Snapshot
	drainMax int
	cancel   context.CancelFunc
	started  time.Time
	width    int
	latest   progress.Snapshot
	quitting bool
	aborted  bool
}

type doneMsg struct{}

type updateMsg progress.Snapshot

// NewModel renders snapshots from updates. cancel, if non-nil, is called when
// the user interrupts; drainMax <= 0 uses progress.DefaultDrainMax.
func NewModel(updates <-chan progress.Snapshot, drainMax int, cancel context.CancelFunc) Model {
	if drainMax <= 0 {
		drainMax = progress.DefaultDrainMax
	}
	return Model{updates: updates, drainMax: drainMax, cancel: cancel, started: time.Now()}
}

// Latest is the newest snapshot the model has seen.
func (m Model) Latest() progress.Snapshot {
	return m.latest
}

// Aborted reports whether the user interrupted the run.
func (m Model) Aborted() bool {
	return m.aborted
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates, m.drainMax)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.latest = progress.Snapshot(msg)
		return m, listenForUpdates(m.updates, m.drainMax)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			if !m.aborted && m.cancel != nil {
				m.cancel()
			}
			m.aborted = true
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	s := m.latest
	ratio := 0.0
	if s.Total > 0 {
		ratio = float64(s.Done()) / float64(s.Total)
		if ratio > 1 {
			ratio = 1
		}
	}

	bar := renderBar(barWidth, ratio)
	elapsed := time.Since(m.started).Round(time.Millisecond)

	counts := labelStyle.Render(fmt.Sprintf("Units: %d/%d", s.Done(), s.Total))
	if s.Failed > 0 {
		counts += warnStyle.Render(fmt.Sprintf("  failed:%d", s.Failed))
	}
	current := s.Current
	if current == "" {
		current = "starting"
	}
	status := dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed))
	if m.aborted {
		status += warnStyle.Render("  stopping after in-flight units")
	}

	lines := []string{
		titleStyle.Render("pixfit"),
		counts,
		dimStyle.Render("Current: ") + labelStyle.Render(current),
		status,
		barStyle.Render(bar),
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan progress.Snapshot, drainMax int) tea.Cmd {
	return func() tea.Msg {
		latest, _, ok := progress.Drain(updates, drainMax)
		if !ok {
			return doneMsg{}
		}
		return updateMsg(latest)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorSuccess)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
	warnStyle  = lipgloss.NewStyle().Foreground(ColorWarn)
)
