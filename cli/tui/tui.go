package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
)

// Read-only view types.
const (
	ViewInspectRun  = "inspect_run"
	ViewInspectRuns = "inspect_runs"
)

// Run starts the TUI for a read-only view type.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunLedgerTUI(viewType, data)
}

// IsTUISupported returns true if the view type supports TUI mode.
// The live monitor is not listed; it belongs to warden run only.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewInspectRun, ViewInspectRuns}
}

// keyMap defines key bindings shared by every view.
type keyMap struct {
	Quit     key.Binding
	Follow   key.Binding
	ScrollUp key.Binding
	ScrollDn key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
	Follow: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "follow output"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("up", "k", "pgup"),
		key.WithHelp("↑", "scroll up"),
	),
	ScrollDn: key.NewBinding(
		key.WithKeys("down", "j", "pgdown"),
		key.WithHelp("↓", "scroll down"),
	),
}
