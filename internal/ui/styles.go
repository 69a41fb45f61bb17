// Package ui renders gate status for terminals.
package ui

import (
	"fmt"
	"strings"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorPass   = 114 // green
	colorFail   = 203 // red
	colorWarn   = 179 // amber
	colorMuted  = 245 // medium gray
)

var noColor bool

func render(color int, s string) string {
	if noColor || s == "" {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderPass returns s in the passing (green) color.
func RenderPass(s string) string { return render(colorPass, s) }

// RenderFail returns s in the failing (red) color.
func RenderFail(s string) string { return render(colorFail, s) }

// RenderWarn returns s in the advisory (amber) color.
func RenderWarn(s string) string { return render(colorWarn, s) }

// GateMark returns the status glyph for a gate: a check when it passed, a
// cross for a failing blocking gate and an exclamation mark for a failing
// advisory gate.
func GateMark(passed, blocking bool) string {
	switch {
	case passed:
		return RenderPass("✓")
	case blocking:
		return RenderFail("✗")
	default:
		return RenderWarn("!")
	}
}

// ProgressBar draws percent (0-100) as a bar of width cells.
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = max(0, min(100, percent))
	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("█", filled)
	rest := strings.Repeat("░", width-filled)
	if filled == width {
		return RenderPass(bar)
	}
	return RenderAccent(bar) + RenderMuted(rest)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
