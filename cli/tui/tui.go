package tui

import "fmt"

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunStatsTUI(viewType, data)
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only the stats dashboard supports it.
func IsTUISupported(viewType string) bool {
	return viewType == "stats"
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{"stats"}
}
