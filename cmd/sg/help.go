package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/alfredjeanlab/stagegate/internal/ui"
	"github.com/spf13/cobra"
)

var (
	// Unindented lines ending in ":" such as "Gates:" or "Flags:".
	reHelpHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`)
	// Two-space indented command name followed by its description.
	reHelpCommand = regexp.MustCompile(`(?m)^  ([a-z][\w-]*)(\s{2,})`)
	reHelpDefault = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc renders cobra's usage text and colors headers, command
// names and flag defaults when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	s = reHelpHeader.ReplaceAllStringFunc(s, ui.RenderWarn)
	s = reHelpCommand.ReplaceAllString(s, "  "+ui.RenderAccent("$1")+"$2")
	return reHelpDefault.ReplaceAllStringFunc(s, ui.RenderMuted)
}
