// Package tui provides Bubble Tea views for the warden CLI.
//
// Two kinds of views exist:
//   - the live monitor shown during warden run (opt out with --headless)
//   - read-only ledger views for warden inspect --tui
//
// Ledger views render the same payloads as the non-TUI output.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/warden/types"
)

// Palette. Decisions and outcomes share the same three signal colors.
var (
	accentColor    = lipgloss.Color("#0EA5E9")
	successColor   = lipgloss.Color("#22C55E")
	warningColor   = lipgloss.Color("#EAB308")
	errorColor     = lipgloss.Color("#F43F5E")
	mutedColor     = lipgloss.Color("#71717A")
	highlightColor = lipgloss.Color("#A78BFA")
	textColor      = lipgloss.Color("#F4F4F5")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	LabelStyle   = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	ValueStyle   = lipgloss.NewStyle().Foreground(textColor)
	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	MutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	HelpStyle    = MutedStyle.MarginTop(1)

	// BoxStyle frames a monitor or ledger panel; ActiveBoxStyle marks the
	// one that scrolls.
	BoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(0, 1)
	ActiveBoxStyle = BoxStyle.BorderForeground(highlightColor)

	// Stat boxes head the inspect runs view.
	StatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2).Width(18).Align(lipgloss.Center)
	StatLabelStyle = MutedStyle.Align(lipgloss.Center)
	StatValueStyle = ValueStyle.Bold(true).Align(lipgloss.Center)

	// HeaderStyle is the monitor's top bar.
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor).Background(accentColor).Padding(0, 1)
)

// OutcomeStyle returns a style for a terminal run outcome.
func OutcomeStyle(status string) lipgloss.Style {
	switch types.OutcomeStatus(status) {
	case types.OutcomeCompleted:
		return SuccessStyle
	case types.OutcomeMaxIterations:
		return WarningStyle
	case types.OutcomeAborted:
		return ErrorStyle
	default:
		return ValueStyle
	}
}

// ActionStyle returns a style for a reviewer action.
func ActionStyle(action types.Action) lipgloss.Style {
	switch action {
	case types.ActionContinue:
		return SuccessStyle
	case types.ActionAbort:
		return ErrorStyle
	default:
		return ValueStyle
	}
}
