package ui

import "github.com/charmbracelet/lipgloss"

// Matrix color palette
var (
	ColorMatrixGreen = lipgloss.Color("#00FF41")
	ColorGreen       = lipgloss.Color("#00CC33")
	ColorMidGreen    = lipgloss.Color("#008F11")
	ColorDimGreen    = lipgloss.Color("#004A0A")
	ColorNear        = lipgloss.Color("#FFCC00")
	ColorNearest     = lipgloss.Color("#00FFAA")
	ColorBorderNorm  = lipgloss.Color("#00AA22")
	ColorError       = lipgloss.Color("#FF3300")
	ColorWarning     = lipgloss.Color("#FFAA00")
	ColorBarBackdrop = lipgloss.Color("#002200")
	ColorCursorText  = lipgloss.Color("#000000")
)

// Pre-built styles
var (
	StyleMenuBar = lipgloss.NewStyle().
			Background(ColorBarBackdrop).
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleMenuLabel = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleStatusBar = lipgloss.NewStyle().
			Background(ColorBarBackdrop).
			Foreground(ColorGreen).
			Padding(0, 1)

	StyleStatusScanning = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleStatusStopped = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)

	StyleStatusError = lipgloss.NewStyle().
				Foreground(ColorError).
				Bold(true)

	StylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderNorm)

	StylePanelTitle = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleSeparator = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleBeaconName = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleBeaconValue = lipgloss.NewStyle().
				Foreground(ColorGreen)

	StyleBeaconAbsent = lipgloss.NewStyle().
				Foreground(ColorDimGreen)

	StyleTagNear = lipgloss.NewStyle().
			Foreground(ColorNear).
			Bold(true)

	StyleTagSeen = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleNearestMarker = lipgloss.NewStyle().
				Foreground(ColorNearest).
				Bold(true)

	StyleSparkline = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleCursorRow = lipgloss.NewStyle().
			Foreground(ColorCursorText).
			Background(ColorMatrixGreen).
			Bold(true)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorDimGreen)
)
