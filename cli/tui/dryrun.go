package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/haltline/haltd/dryrun"
)

// DryRunModel renders a dry-run evaluation as a severity-coloured
// per-target table: one row per (capability, verb, target) the
// evaluator exercised.
type DryRunModel struct {
	result   dryrun.Result
	table    table.Model
	quitting bool
}

// NewDryRunModel builds a DryRunModel from a completed dry-run Result.
func NewDryRunModel(result dryrun.Result) DryRunModel {
	columns := []table.Column{
		{Title: "Capability", Width: 16},
		{Title: "Verb", Width: 12},
		{Title: "Target", Width: 12},
		{Title: "Severity", Width: 10},
		{Title: "Reason", Width: 36},
	}

	rows := make([]table.Row, 0, len(result.Results))
	for _, r := range result.Results {
		rows = append(rows, table.Row{r.CapabilityID, r.Verb, r.Target, r.Result.Severity.String(), r.Result.Reason})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+1, 20)),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(primaryColor)
	styles.Selected = styles.Selected.Foreground(highlightColor).Bold(false)
	t.SetStyles(styles)

	return DryRunModel{result: result, table: t}
}

// Init implements tea.Model.
func (m DryRunModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m DryRunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m DryRunModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Dry-run: policy %s", m.result.PolicyID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Overall:"), SeverityStyle(m.result.Severity).Render(m.result.Severity.String())))
	if m.result.Stale {
		b.WriteString(WarningStyle.Render("inventory was stale at evaluation time") + "\n")
	}
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

// RunDryRunTUI runs the dry-run preview TUI. data must be a dryrun.Result.
func RunDryRunTUI(data any) error {
	result, ok := data.(dryrun.Result)
	if !ok {
		return fmt.Errorf("tui: expected dryrun.Result, got %T", data)
	}
	model := NewDryRunModel(result)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderDryRunStatic renders the dry-run table without the interactive
// program, for non-TUI fallback output.
func RenderDryRunStatic(result dryrun.Result) string {
	model := NewDryRunModel(result)
	return model.View()
}
