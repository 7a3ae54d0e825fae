package claudecode

import "strings"

// tailLines returns at most n trailing lines of s.
func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// isHorizontalSeparator reports whether line is a bare horizontal
// rule: trimmed, at least 10 characters, entirely box-drawing dashes.
func isHorizontalSeparator(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 10 {
		return false
	}
	for _, r := range t {
		if r != '─' {
			return false
		}
	}
	return true
}

// stripBoxDrawing removes box-drawing characters used by preview
// panes rendered alongside a choice list, so they don't pollute an
// extracted choice label.
func stripBoxDrawing(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '│', '┃', '┆', '┊', '╎', '║', '─', '━', '┌', '┐', '└', '┘', '├', '┤', '┬', '┴', '┼':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// hasBrailleSpinner reports whether s contains any Braille pattern
// character (U+2801..U+28FF), the glyphs terminal spinners cycle
// through.
func hasBrailleSpinner(s string) bool {
	for _, r := range s {
		if r >= 0x2801 && r <= 0x28FF {
			return true
		}
	}
	return false
}

// cleanTitle strips spinner frames and mode glyphs from a pane title,
// leaving the human-readable activity text.
func cleanTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if r >= 0x2801 && r <= 0x28FF {
			continue
		}
		switch r {
		case '✳', '✻', '✶', '✽', '✢', '⏸', '⇢', '⏵':
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
