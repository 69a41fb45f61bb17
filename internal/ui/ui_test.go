package ui

import (
	"strings"
	"testing"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"NoColor", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false},
		{"Force", map[string]string{"CLICOLOR_FORCE": "1"}, true},
		{"Disabled", map[string]string{"CLICOLOR": "0"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"NO_COLOR", "CLICOLOR_FORCE", "CLICOLOR"} {
				t.Setenv(k, tc.env[k])
			}
			if got := ShouldUseColor(); got != tc.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	noColor = false
	t.Cleanup(func() { noColor = false })

	if got := RenderFail("blocked"); got != "\x1b[38;5;203mblocked\x1b[0m" {
		t.Errorf("RenderFail = %q", got)
	}
	if got := RenderPass(""); got != "" {
		t.Errorf("empty input rendered as %q", got)
	}

	ForceNoColor()
	if got := RenderAccent("design_lock"); got != "design_lock" {
		t.Errorf("no-color RenderAccent = %q", got)
	}
}

func TestGateMark(t *testing.T) {
	ForceNoColor()
	t.Cleanup(func() { noColor = false })

	tests := []struct {
		passed, blocking bool
		want             string
	}{
		{true, true, "✓"},
		{true, false, "✓"},
		{false, true, "✗"},
		{false, false, "!"},
	}
	for _, tc := range tests {
		if got := GateMark(tc.passed, tc.blocking); got != tc.want {
			t.Errorf("GateMark(%v, %v) = %q, want %q", tc.passed, tc.blocking, got, tc.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	ForceNoColor()
	t.Cleanup(func() { noColor = false })

	tests := []struct {
		percent float64
		width   int
		filled  int
	}{
		{0, 10, 0},
		{50, 10, 5},
		{66.7, 10, 6},
		{100, 10, 10},
		{150, 4, 4},
		{-5, 4, 0},
	}
	for _, tc := range tests {
		bar := ProgressBar(tc.percent, tc.width)
		if got := strings.Count(bar, "█"); got != tc.filled {
			t.Errorf("ProgressBar(%v, %d) filled = %d, want %d", tc.percent, tc.width, got, tc.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != tc.width {
			t.Errorf("ProgressBar(%v, %d) width = %d", tc.percent, tc.width, got)
		}
	}
	if ProgressBar(50, 0) != "" {
		t.Error("zero width should render nothing")
	}
}
