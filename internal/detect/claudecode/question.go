package claudecode

import (
	"regexp"
	"strings"

	"github.com/tmai/tmai/internal/agent"
)

var choiceLineRe = regexp.MustCompile(`^\s*([>❯›]\s*)?(\d+)\.\s+(.+)$`)
var barePromptRe = regexp.MustCompile(`^\s*([❯›])\s*(\D.*)?$`)

// extractedQuestion is the result of detectUserQuestion: a fully
// populated UserQuestion approval type plus the question text shown
// above the choices, for audit/logging.
type extractedQuestion struct {
	Approval     agent.ApprovalType
	QuestionText string
}

// detectUserQuestion locates the bounded input area near the bottom
// of the screen, extracts consecutive numbered choices, determines
// the cursor position and multi-select-ness, and requires both a
// plausible choice list and an unambiguous cursor marker before
// accepting the result (this is what keeps a documentation block
// that happens to contain a numbered list from being misread as a
// live prompt).
func detectUserQuestion(screen string) (extractedQuestion, bool) {
	lines := strings.Split(screen, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return extractedQuestion{}, false
	}

	checkLines, generous := boundedInputArea(lines)

	choices, cursor, firstRaw := extractChoices(checkLines)
	if len(choices) < 2 || cursor <= 0 {
		return extractedQuestion{}, false
	}

	if !generous {
		// In fallback (non-separator-bounded) mode, reject matches far
		// from the bottom of the screen — a tight window avoids
		// mistaking scrollback history for a live prompt.
		if cursorDistanceFromEnd(checkLines, cursor) > 20 {
			return extractedQuestion{}, false
		}
	}

	footer := strings.Join(tail(checkLines, 8), "\n")
	if enterToConfirmRe.MatchString(footer) {
		return extractedQuestion{}, false
	}

	multi := detectMultiSelect(checkLines)
	question := extractQuestionText(lines, firstRaw)

	return extractedQuestion{
		Approval: agent.ApprovalType{
			Kind:           agent.ApprovalUserQuestion,
			Choices:        choices,
			MultiSelect:    multi,
			CursorPosition: cursor,
		},
		QuestionText: question,
	}, true
}

// boundedInputArea finds the input region to scan: primarily the
// lines between the two trailing horizontal separators (covers large
// preview boxes to the right of the choices without a "distance from
// bottom" limit), falling back to a 25-line window ending at the last
// bare prompt line when separators aren't present.
func boundedInputArea(lines []string) (region []string, generous bool) {
	var seps []int
	for i := len(lines) - 1; i >= 0 && len(seps) < 2; i-- {
		if isHorizontalSeparator(lines[i]) {
			seps = append(seps, i)
		}
	}
	if len(seps) == 2 {
		lo, hi := seps[1], seps[0]
		if lo < hi {
			return lines[lo+1 : hi], true
		}
	}

	lastPrompt := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if barePromptRe.MatchString(lines[i]) {
			lastPrompt = i
			break
		}
	}
	if lastPrompt < 0 {
		return lines, false
	}
	start := lastPrompt - 25
	if start < 0 {
		start = 0
	}
	return lines[start:lastPrompt], false
}

// extractChoices walks region collecting consecutive numbered choice
// lines starting at 1; a line beginning a fresh "1." run resets the
// running list, but only discards the previous run if that run never
// found a cursor marker (so a genuine list isn't clobbered by a
// decorative "1." appearing in a preview pane). firstRaw is the raw
// screen line of the winning run's first choice, for locating the
// question text above it.
func extractChoices(region []string) (choices []string, cursor int, firstRaw string) {
	var cur []string
	curCursor := 0
	curFirstRaw := ""
	expect := 1

	flush := func() {
		if cursor == 0 && curCursor != 0 {
			choices = cur
			cursor = curCursor
			firstRaw = curFirstRaw
		} else if len(cur) > len(choices) && cursor == 0 {
			choices = cur
			firstRaw = curFirstRaw
		}
	}

	for _, raw := range region {
		if isHorizontalSeparator(raw) || isBoxDrawingOnly(raw) {
			continue
		}
		m := choiceLineRe.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		num := atoi(m[2])
		if num == 1 && len(cur) > 0 {
			flush()
			cur = nil
			curCursor = 0
			curFirstRaw = ""
			expect = 1
		}
		if num != expect {
			continue
		}
		label := cleanChoiceLabel(m[3])
		if len(cur) == 0 {
			curFirstRaw = raw
		}
		cur = append(cur, label)
		if m[1] != "" {
			marker := strings.TrimSpace(m[1])
			if marker == "❯" || marker == "›" || marker == ">" {
				curCursor = num
			}
		}
		expect++
	}
	flush()
	return choices, cursor, firstRaw
}

func cleanChoiceLabel(s string) string {
	if i := strings.IndexRune(s, '（'); i >= 0 {
		s = s[:i]
	}
	s = stripBoxDrawing(s)
	return strings.TrimSpace(s)
}

func isBoxDrawingOnly(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	for _, r := range t {
		switch r {
		case '│', '┃', '┆', '┊', '╎', '║', '┌', '┐', '└', '┘', '├', '┤', '┬', '┴', '┼':
			continue
		}
		return false
	}
	return true
}

var multiSelectKeywordRe = regexp.MustCompile(`(?i)space to|toggle|select all|multi|複数選択`)
var checkboxRe = regexp.MustCompile(`\[[ xX×✔]\]`)

// detectMultiSelect reports whether region's multi-select signal is
// present: a keyword hint, a checkbox glyph, or the explicit Japanese
// label — explicitly NOT a (*)/( ) radio-button pattern, which is
// single-select despite superficially resembling a checkbox.
func detectMultiSelect(region []string) bool {
	joined := strings.Join(region, "\n")
	if multiSelectKeywordRe.MatchString(joined) {
		return true
	}
	return checkboxRe.MatchString(joined)
}

// extractQuestionText finds the question line (ending in ? or ？)
// within 5 lines above the first choice, searching the full screen
// since the bounded region may start below it. Preview-box borders to
// the right of the question are stripped before the suffix check.
func extractQuestionText(full []string, firstChoiceRaw string) string {
	firstChoiceIdx := indexOf(full, firstChoiceRaw)
	if firstChoiceIdx < 0 {
		firstChoiceIdx = len(full)
	}
	start := firstChoiceIdx - 5
	if start < 0 {
		start = 0
	}
	for i := firstChoiceIdx - 1; i >= start; i-- {
		t := strings.TrimSpace(stripBoxDrawing(full[i]))
		if t == "" {
			continue
		}
		if strings.HasSuffix(t, "?") || strings.HasSuffix(t, "？") {
			return t
		}
	}
	return "Do you want to proceed?"
}

func indexOf(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}

func cursorDistanceFromEnd(lines []string, cursor int) int {
	for i := len(lines) - 1; i >= 0; i-- {
		m := choiceLineRe.FindStringSubmatch(lines[i])
		if m != nil && atoi(m[2]) == cursor {
			return len(lines) - 1 - i
		}
	}
	return len(lines)
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
