package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/haltline/haltd/metrics"
)

// StatsModel renders a metrics.Snapshot as a row of stat boxes.
type StatsModel struct {
	snap     metrics.Snapshot
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(snap metrics.Snapshot) StatsModel {
	return StatsModel{snap: snap}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Orchestrator stats (%s)", m.snap.InstanceID)))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Compile"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.statBox("Success", m.snap.CompileSuccess, successColor),
		m.statBox("Blocked", m.snap.CompileBlocked, errorColor),
		m.statBox("Warned", m.snap.CompileWarned, warningColor),
	))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Matching"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.statBox("Evaluated", m.snap.EventsEvaluated, lipgloss.Color("#3B82F6")),
		m.statBox("Matched", m.snap.MatchesFound, successColor),
		m.statBox("Suppressed", m.snap.Suppressed, warningColor),
		m.statBox("Idempotent", m.snap.IdempotencySkipped, warningColor),
	))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Execution"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.statBox("Dispatched", m.snap.Dispatched, successColor),
		m.statBox("Driver failures", m.snap.DriverFailures, errorColor),
		m.statBox("Queue overflow", m.snap.QueueOverflow, errorColor),
		m.statBox("Cancelled", m.snap.Cancelled, warningColor),
	))

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func (m StatsModel) statBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI. data must be a metrics.Snapshot.
func RunStatsTUI(data any) error {
	snap, ok := data.(metrics.Snapshot)
	if !ok {
		return fmt.Errorf("tui: expected metrics.Snapshot, got %T", data)
	}
	model := NewStatsModel(snap)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(snap metrics.Snapshot) string {
	model := NewStatsModel(snap)
	return model.View()
}
