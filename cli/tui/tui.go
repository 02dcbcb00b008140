package tui

import (
	"fmt"
	"strings"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	if strings.HasPrefix(viewType, "dryrun") {
		return RunDryRunTUI(data)
	}
	if strings.HasPrefix(viewType, "ledger") {
		return RunLedgerTUI(data)
	}
	if strings.HasPrefix(viewType, "stats") {
		return RunStatsTUI(data)
	}

	return fmt.Errorf("unknown view type: %s", viewType)
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only the dry-run preview, ledger inspection, and stats commands support it.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns every view type that supports TUI.
func SupportedTUIViews() []string {
	return []string{"dryrun", "ledger", "stats"}
}
