// Package tui provides Bubble Tea TUI components for the orchestrator CLI.
//
// TUI is opt-in only (--tui flag), read-only, and renders the same data
// payloads the non-TUI JSON/table output uses — no TUI-exclusive data.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/haltline/haltd/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for success states.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for warning states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for error states.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// StatBoxStyle for stat display boxes.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	// StatLabelStyle for stat labels.
	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	// StatValueStyle for stat values.
	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// SeverityStyle returns a style colour-coded to a result's severity, the
// same lattice the compiler/matcher/dry-run evaluator reduce to.
func SeverityStyle(sev types.Severity) lipgloss.Style {
	switch sev {
	case types.SeverityInfo:
		return SuccessStyle
	case types.SeverityWarn:
		return WarningStyle
	case types.SeverityError, types.SeverityBlocker:
		return ErrorStyle
	default:
		return ValueStyle
	}
}

// OutcomeStyle returns a style colour-coded to an execution outcome.
func OutcomeStyle(outcome types.RunOutcomeKind) lipgloss.Style {
	switch outcome {
	case types.OutcomeDispatched:
		return SuccessStyle
	case types.OutcomeSuppressed, types.OutcomeIdempotent:
		return WarningStyle
	case types.OutcomeCancelled, types.OutcomeOverflow:
		return ErrorStyle
	default:
		return ValueStyle
	}
}
