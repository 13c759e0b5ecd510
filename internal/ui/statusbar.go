package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StatusInfo is the data shown in the bottom status bar.
type StatusInfo struct {
	Scanning    bool
	Seen        int
	Total       int
	Nearest     string // empty when nothing is seen
	LastTrigger string // e.g. "near MsgOne"
	Err         error
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, info StatusInfo) string {
	var status string
	switch {
	case info.Err != nil:
		status = StyleStatusError.Render("[FAILED]")
	case info.Scanning:
		status = StyleStatusScanning.Render("[SCANNING]")
	default:
		status = StyleStatusStopped.Render("[STOPPED]")
	}

	nearest := info.Nearest
	if nearest == "" {
		nearest = "-"
	}
	text := fmt.Sprintf(" Seen: %d/%d  Nearest: %s", info.Seen, info.Total, nearest)
	if info.LastTrigger != "" {
		text += "  Last: " + info.LastTrigger
	}
	if info.Err != nil {
		text += "  Error: " + info.Err.Error()
	}

	content := status + StyleStatusBar.Render(text)

	gap := width - StyleStatusBar.GetHorizontalFrameSize() - lipgloss.Width(content)
	if gap < 0 {
		gap = 0
	}
	return StyleStatusBar.Width(width).Render(content + strings.Repeat(" ", gap))
}
