// Package ctl implements the client-side commands for the greenroom CLI.
// It talks to a running companion daemon over HTTP and WebSocket and renders
// the results to the terminal.
package ctl

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"greenroom/internal/events"
	"greenroom/internal/ws"
)

// ANSI escape codes for terminal formatting.
const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	dim     = "\033[2m"
	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	blue    = "\033[34m"
	magenta = "\033[35m"
	cyan    = "\033[36m"
	white   = "\033[37m"
)

// colorEnabled reports whether stdout is a terminal. When output is piped
// or redirected, ANSI escape codes are suppressed.
func colorEnabled() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() {
		return text
	}
	return color + text + reset
}

// header returns a bold section header, or plain text when color is off.
func header(title string) string {
	if colorEnabled() {
		return bold + title + reset
	}
	return title
}

// stateColor returns the ANSI color appropriate for a connection state.
func stateColor(state ws.State) string {
	if !colorEnabled() {
		return ""
	}
	switch state {
	case ws.StateConnected:
		return green
	case ws.StateConnecting:
		return cyan
	case ws.StateReconnecting:
		return yellow
	case ws.StateExhausted:
		return red
	case ws.StateDisconnected:
		return dim
	default:
		return white
	}
}

// categoryColor returns the ANSI color used for an event category tag.
func categoryColor(c events.Category) string {
	if !colorEnabled() {
		return ""
	}
	switch c {
	case events.CategoryOutputs:
		return blue
	case events.CategoryClips:
		return magenta
	case events.CategoryMoments:
		return yellow
	case events.CategoryTranscripts:
		return cyan
	default:
		return white
	}
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration renders a duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatBytes renders a byte count as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatClock renders a millisecond-epoch timestamp as local wall-clock time.
func formatClock(ms int64) string {
	return time.UnixMilli(ms).Local().Format("15:04:05")
}

// msDuration converts a millisecond offset into a duration.
func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// progressBar builds a simple ASCII bar of the given width.
// The filled portion is colored green when color output is enabled.
func progressBar(pct, width int) string {
	filled := (pct * width) / 100
	if filled > width {
		filled = width
	}
	empty := width - filled
	if colorEnabled() {
		return green + strings.Repeat("=", filled) + reset + strings.Repeat(" ", empty)
	}
	return strings.Repeat("=", filled) + strings.Repeat(" ", empty)
}

// printJSON prints v as indented JSON to stdout.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// rule prints a dim horizontal divider.
func rule(width int) string {
	return colorize(dim, "  "+strings.Repeat("─", width))
}
