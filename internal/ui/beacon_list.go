package ui

import (
	"fmt"
	"strings"
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
)

const linesPerBeacon = 4 // 3 content + 1 blank

// ListView is everything the beacon list needs to render one frame.
type ListView struct {
	Snapshot beacon.Snapshot
	History  map[string][]float64
	Unit     string
	Cursor   int
	Now      time.Time
}

// RenderBeaconList renders the scrollable beacon panel. Beacons keep their
// configured order; the cursor row is always visible.
func RenderBeaconList(v ListView, width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}

	title := StylePanelTitle.Render(fmt.Sprintf("BEACONS [%d/%d]", v.Snapshot.SeenCount(), len(v.Snapshot.Beacons)))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator}

	innerH := height - 2
	if innerH < len(headerLines)+1 {
		innerH = len(headerLines) + 1
	}
	space := innerH - len(headerLines)

	maxVisible := space / linesPerBeacon
	if maxVisible < 1 {
		maxVisible = 1
	}
	viewStart := 0
	if v.Cursor >= maxVisible {
		viewStart = v.Cursor - maxVisible + 1
	}

	var body []string
	for i := viewStart; i < len(v.Snapshot.Beacons) && len(body) < space; i++ {
		st := v.Snapshot.Beacons[i]
		entry := renderBeaconEntry(st, v, innerW, i == v.Cursor, st.ID == v.Snapshot.Nearest)
		for _, l := range entry {
			if len(body) >= space {
				break
			}
			body = append(body, l)
		}
	}
	for len(body) < space {
		body = append(body, "")
	}

	all := append(headerLines, body...)
	content := strings.Join(all, "\n")
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(content)

	// lipgloss Height() only sets a minimum; clamp overflow.
	out := strings.Split(rendered, "\n")
	if len(out) > height {
		out = out[:height]
	}
	return strings.Join(out, "\n")
}

func renderBeaconEntry(st beacon.State, v ListView, maxW int, isCursor, isNearest bool) []string {
	cursor := "  "
	if isCursor {
		cursor = ">>"
	}
	marker := " "
	if isNearest {
		marker = "*"
	}

	tag := "[----]"
	switch {
	case st.Triggered:
		tag = "[NEAR]"
	case st.Seen():
		tag = "[SEEN]"
	}

	raw1 := fmt.Sprintf("%s %s %s %s", cursor, marker, st.ID, tag)
	raw2 := "       Not detected"
	raw3 := ""
	if st.Seen() {
		raw2 = fmt.Sprintf("       %s  %ddBm  %s",
			FormatProximity(st.Reading.Proximity, v.Unit),
			st.Reading.RawSignal,
			FormatAge(v.Now.Sub(st.Reading.LastSeen)))
	}
	if hist := v.History[st.ID]; len(hist) > 0 {
		raw3 = "       " + Sparkline(hist, maxW-8)
	}

	raw1 = truncRaw(raw1, maxW)
	raw2 = truncRaw(raw2, maxW)
	raw3 = truncRaw(raw3, maxW)

	if isCursor {
		return []string{StyleCursorRow.Render(raw1), StyleCursorRow.Render(raw2), StyleCursorRow.Render(raw3), ""}
	}
	if !st.Seen() {
		return []string{StyleBeaconAbsent.Render(raw1), StyleBeaconAbsent.Render(raw2), StyleSparkline.Render(raw3), ""}
	}

	tagSty := StyleTagSeen
	if st.Triggered {
		tagSty = StyleTagNear
	}
	markerStr := " "
	if isNearest {
		markerStr = StyleNearestMarker.Render("*")
	}
	line1 := fmt.Sprintf("   %s %s %s", markerStr, StyleBeaconName.Render(st.ID), tagSty.Render(tag))
	return []string{line1, StyleBeaconValue.Render(raw2), StyleSparkline.Render(raw3), ""}
}

// FormatProximity renders a proximity value with its unit.
func FormatProximity(value float64, unit string) string {
	if unit == "m" {
		return fmt.Sprintf("~%.1fm", value)
	}
	return fmt.Sprintf("%.0f", value)
}

// FormatAge renders how long ago a beacon was last seen.
func FormatAge(d time.Duration) string {
	if d < time.Second {
		return "now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm ago", int(d.Minutes()))
}

// Sparkline scales values to a row of ASCII levels, keeping the newest width values.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	chars := []byte{'_', '.', '-', '~', '^'}

	start := 0
	if len(values) > width {
		start = len(values) - width
	}
	values = values[start:]

	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	rng := maxV - minV
	if rng == 0 {
		rng = 1
	}

	var sb strings.Builder
	for _, v := range values {
		idx := int((v - minV) / rng * float64(len(chars)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(chars) {
			idx = len(chars) - 1
		}
		sb.WriteByte(chars[idx])
	}
	return sb.String()
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	if len(s) > w {
		return s[:w]
	}
	if len(s) < w {
		return s + strings.Repeat(" ", w-len(s))
	}
	return s
}
