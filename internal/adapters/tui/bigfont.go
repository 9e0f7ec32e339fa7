package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const glyphRows = 5

// glyphs holds a five-row block rendering of each clock character.
var glyphs = map[rune][glyphRows]string{
	'0': {"████", "█  █", "█  █", "█  █", "████"},
	'1': {" █ ", "██ ", " █ ", " █ ", "███"},
	'2': {"████", "   █", "████", "█   ", "████"},
	'3': {"████", "   █", "████", "   █", "████"},
	'4': {"█  █", "█  █", "████", "   █", "   █"},
	'5': {"████", "█   ", "████", "   █", "████"},
	'6': {"████", "█   ", "████", "█  █", "████"},
	'7': {"████", "   █", "  █ ", " █  ", " █  "},
	'8': {"████", "█  █", "████", "█  █", "████"},
	'9': {"████", "█  █", "████", "   █", "████"},
	':': {" ", "█", " ", "█", " "},
}

// clock formats seconds as MM:SS.
func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// bigClock renders seconds in block digits, or on one line when the
// terminal is narrower than minWide.
func bigClock(seconds int, color lipgloss.Color, width int) string {
	const minWide = 40

	text := clock(seconds)
	style := lipgloss.NewStyle().Bold(true).Foreground(color)
	if width < minWide {
		return style.Render(text)
	}

	var rows [glyphRows]strings.Builder
	for i, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			continue
		}
		for r := 0; r < glyphRows; r++ {
			if i > 0 {
				rows[r].WriteByte(' ')
			}
			rows[r].WriteString(glyph[r])
		}
	}

	lines := make([]string, glyphRows)
	for r := range rows {
		lines[r] = style.Render(rows[r].String())
	}
	return strings.Join(lines, "\n")
}
