package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/haltline/haltd/types"
)

// LedgerView is the payload the ledger inspect command hands the TUI:
// one policy's bounded execution history.
type LedgerView struct {
	PolicyID string
	Records  []types.ExecutionRecord
}

// LedgerModel renders a policy's execution history, most recent first.
type LedgerModel struct {
	view     LedgerView
	table    table.Model
	quitting bool
}

// NewLedgerModel builds a LedgerModel from a LedgerView.
func NewLedgerModel(view LedgerView) LedgerModel {
	columns := []table.Column{
		{Title: "Timestamp", Width: 20},
		{Title: "Outcome", Width: 12},
		{Title: "Severity", Width: 10},
		{Title: "Actions", Width: 8},
		{Title: "Summary", Width: 40},
	}

	rows := make([]table.Row, 0, len(view.Records))
	for i := len(view.Records) - 1; i >= 0; i-- {
		r := view.Records[i]
		rows = append(rows, table.Row{
			r.Ts.Format("2006-01-02 15:04:05"),
			string(r.Outcome),
			r.Severity.String(),
			fmt.Sprintf("%d", len(r.Actions)),
			r.Summary,
		})
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

	return LedgerModel{view: view, table: t}
}

// Init implements tea.Model.
func (m LedgerModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m LedgerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m LedgerModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Execution history: policy %s", m.view.PolicyID)))
	b.WriteString("\n\n")
	b.WriteString(BoxStyle.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

// RunLedgerTUI runs the ledger inspect TUI. data must be a LedgerView.
func RunLedgerTUI(data any) error {
	view, ok := data.(LedgerView)
	if !ok {
		return fmt.Errorf("tui: expected LedgerView, got %T", data)
	}
	model := NewLedgerModel(view)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderLedgerStatic renders the ledger table without the interactive
// program, for non-TUI fallback output.
func RenderLedgerStatic(view LedgerView) string {
	model := NewLedgerModel(view)
	return model.View()
}
