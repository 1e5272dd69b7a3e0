// Package ascii provides utilities for formatted terminal text output
package ascii

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
)

// ghosttyMode is set when running under Ghostty, which draws some emoji presentation
// sequences wider than go-runewidth reports.
var ghosttyMode = strings.Contains(os.Getenv("TERM"), "ghostty") || os.Getenv("TERM_PROGRAM") == "ghostty"

const variationSelector16 = '️'

// Box builds a box containing the provided lines and returns it as a string.
// Lines are left-aligned with single-space padding on each side. Multi-width
// runes (emoji, CJK, etc.) are accounted for so the borders stay aligned.
func Box(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	trimmed := make([]string, len(lines))
	maxWidth := 0
	for i, line := range lines {
		trimmed[i] = strings.TrimRight(line, " ")
		if w := StringWidth(trimmed[i]); w > maxWidth {
			maxWidth = w
		}
	}

	leftPadding, rightPadding := 1, 1
	innerWidth := maxWidth + leftPadding + rightPadding
	border := strings.Repeat("─", innerWidth)

	var sb strings.Builder
	sb.WriteString("┌" + border + "┐\n")
	for _, line := range trimmed {
		lineWidth := StringWidth(line)
		fill := innerWidth - leftPadding - rightPadding - lineWidth
		if fill < 0 {
			fill = 0
		}
		sb.WriteString("│ " + line + strings.Repeat(" ", fill) + " │\n")
	}
	sb.WriteString("└" + border + "┘\n")
	return sb.String()
}

// DrawBox writes a box containing the provided lines to w.
func DrawBox(w io.Writer, lines []string) {
	if len(lines) == 0 {
		return
	}
	_, _ = fmt.Fprint(w, Box(lines))
}

// StringWidth returns the display width of a string, accounting for multi-width
// Unicode characters (emoji, CJK, etc.).
func StringWidth(s string) int {
	width := runewidth.StringWidth(s)
	if !ghosttyMode {
		return width
	}
	// Ghostty draws a narrow symbol followed by VS16 (e.g. ⏱️) two cells wide
	prev := rune(0)
	for _, r := range s {
		if r == variationSelector16 && prev != 0 && runewidth.RuneWidth(prev) == 1 {
			width++
		}
		prev = r
	}
	return width
}
