package claudecode

import (
	"strconv"
	"strings"

	"github.com/tmai/tmai/internal/agent"
)

// Detector is the Claude Code screen detector. Stateless; all
// patterns are compiled at package init.
type Detector struct{}

// New returns the Claude Code detector.
func New() *Detector { return &Detector{} }

func (*Detector) AgentType() agent.Type { return agent.Type{Kind: agent.TypeClaudeCode} }

// ApprovalKeys is what the command facade sends to approve a pending
// request: Claude Code's prompts accept a bare "y".
func (*Detector) ApprovalKeys() string { return "y" }

func (d *Detector) DetectStatus(title, screen string) agent.Status {
	status, _ := d.DetectStatusWithReason(title, screen, agent.DetectionContext{})
	return status
}

// DetectStatusWithReason runs the precedence cascade: completed-turn
// banners and compaction first, then title spinners, then the three
// approval shapes (question, proceed prompt, yes/no buttons, text
// pattern), then content spinners and task headers, then idle and
// error indicators, falling through to low-confidence Processing.
func (d *Detector) DetectStatusWithReason(title, screen string, ctx agent.DetectionContext) (agent.Status, agent.DetectionReason) {
	lines := tailLines(screen, 40)

	// 1. A past-tense verb with an elapsed duration and no trailing
	// ellipsis means the turn finished ("Cooked for 1m 6s").
	for _, line := range lastNonEmpty(lines, 5) {
		if turnDurationRe.MatchString(line) && !strings.Contains(line, "…") && !strings.Contains(line, "...") {
			return agent.Status{Kind: agent.StatusIdle},
				agent.DetectionReason{Rule: "turn_duration_completed", Confidence: agent.ConfidenceHigh, MatchedText: strings.TrimSpace(line)}
		}
	}

	// 2. Compaction just finished.
	if compactedRe.MatchString(strings.Join(lastNonEmpty(lines, 10), "\n")) {
		return agent.Status{Kind: agent.StatusIdle},
			agent.DetectionReason{Rule: "conversation_compacted", Confidence: agent.ConfidenceHigh}
	}

	// 3. Compaction in progress, announced in the title.
	if strings.Contains(title, "✽") && titleCompactingRe.MatchString(title) {
		return agent.Status{Kind: agent.StatusProcessing, Activity: "Compacting..."},
			agent.DetectionReason{Rule: "title_compacting", Confidence: agent.ConfidenceHigh, MatchedText: title}
	}

	// 4. Braille spinner frame in the title is the fastest processing
	// signal; the activity is the title minus the decoration.
	if hasBrailleSpinner(title) {
		return agent.Status{Kind: agent.StatusProcessing, Activity: cleanTitle(title)},
			agent.DetectionReason{Rule: "title_braille_spinner", Confidence: agent.ConfidenceHigh, MatchedText: title}
	}

	// 5. AskUserQuestion: numbered choices with a cursor marker.
	if q, ok := detectUserQuestion(screen); ok {
		return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: q.Approval},
			agent.DetectionReason{Rule: "ask_user_question", Confidence: agent.ConfidenceHigh, MatchedText: q.QuestionText}
	}

	// 6. "Do you want to proceed?" enumerated Yes/.../No block,
	// accepted with or without a cursor marker so number-key
	// selection works before the cursor renders.
	if q, ok := detectProceedPrompt(lines); ok {
		return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: q},
			agent.DetectionReason{Rule: "proceed_prompt", Confidence: agent.ConfidenceHigh}
	}

	// 7. Plain Yes/No button pair.
	if ok := detectYesNoButtons(lines); ok {
		return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: classifyApproval(lines)},
			agent.DetectionReason{Rule: "yes_no_buttons", Confidence: agent.ConfidenceHigh}
	}

	// 8. Text-format approval ([y/n], "Allow?", ...).
	if m := textApprovalRe.FindString(strings.Join(lastNonEmpty(lines, 10), "\n")); m != "" {
		return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: classifyApproval(lines)},
			agent.DetectionReason{Rule: "text_approval_pattern", Confidence: agent.ConfidenceMedium, MatchedText: m}
	}

	// 9. Content-area spinner verb with mandatory trailing ellipsis.
	// A bare prompt below it means the spinner text is stale and the
	// agent is actually waiting for input.
	if status, reason, ok := d.detectContentSpinner(lines, ctx); ok {
		return status, reason
	}

	// 10. Task list with work still in progress.
	if hasInProgressTasks(lines) {
		return agent.Status{Kind: agent.StatusProcessing, Activity: "Tasks in progress"},
			agent.DetectionReason{Rule: "tasks_in_progress", Confidence: agent.ConfidenceHigh}
	}

	// 11. Idle indicator glyph in the title.
	if idleGlyphRe.MatchString(title) {
		return agent.Status{Kind: agent.StatusIdle},
			agent.DetectionReason{Rule: "title_idle_indicator", Confidence: agent.ConfidenceHigh, MatchedText: title}
	}

	// 12. Error pattern near the bottom of the screen.
	for _, line := range lastNonEmpty(lines, 5) {
		if errorRe.MatchString(line) {
			return agent.Status{Kind: agent.StatusError, Message: strings.TrimSpace(line)},
				agent.DetectionReason{Rule: "error_pattern", Confidence: agent.ConfidenceHigh, MatchedText: strings.TrimSpace(line)}
		}
	}

	// 13. No indicator at all.
	return agent.Status{Kind: agent.StatusProcessing},
		agent.DetectionReason{Rule: "fallback_no_indicator", Confidence: agent.ConfidenceLow}
}

// detectContentSpinner implements rule 9: a spinner glyph + verb +
// ellipsis line. Built-in (or per-project custom) verbs are High
// confidence; an unrecognized verb could be coincidental screen text
// and is only Medium. If a bare "❯" prompt sits below the spinner
// line, the agent is idle at its input box and the spinner is stale.
func (d *Detector) detectContentSpinner(lines []string, ctx agent.DetectionContext) (agent.Status, agent.DetectionReason, bool) {
	spinnerIdx := -1
	var verb, matched string
	for i, line := range lines {
		if m := spinnerVerbRe.FindStringSubmatch(line); m != nil {
			spinnerIdx = i
			verb = m[1]
			matched = strings.TrimSpace(line)
		}
	}
	if spinnerIdx < 0 {
		return agent.Status{}, agent.DetectionReason{}, false
	}

	for _, line := range lines[spinnerIdx+1:] {
		if barePromptLineRe.MatchString(line) {
			return agent.Status{Kind: agent.StatusIdle},
				agent.DetectionReason{Rule: "prompt_below_spinner", Confidence: agent.ConfidenceHigh, MatchedText: matched}, true
		}
	}

	conf := agent.ConfidenceMedium
	if builtinSpinnerVerbs[verb] {
		conf = agent.ConfidenceHigh
	} else if ctx.Settings != nil {
		for _, v := range ctx.Settings.SpinnerVerbs(ctx.CWD) {
			if v == verb {
				conf = agent.ConfidenceHigh
				break
			}
		}
	}
	return agent.Status{Kind: agent.StatusProcessing, Activity: verb + "…"},
		agent.DetectionReason{Rule: "content_spinner_verb", Confidence: conf, MatchedText: matched}, true
}

// detectProceedPrompt implements rule 6: a consecutive numbered list
// whose first choice starts "Yes" and last starts "No". Unlike the
// AskUserQuestion detector, no cursor marker is required; the cursor
// defaults to 1 (Claude's proceed prompts start on Yes).
func detectProceedPrompt(lines []string) (agent.ApprovalType, bool) {
	region := lines
	if len(region) > 15 {
		region = region[len(region)-15:]
	}

	var choices []string
	cursor := 0
	expect := 1
	for _, raw := range region {
		m := choiceLineRe.FindStringSubmatch(raw)
		if m == nil {
			if len(choices) >= 2 {
				break
			}
			continue
		}
		num, _ := strconv.Atoi(m[2])
		if num == 1 {
			choices = choices[:0]
			cursor = 0
			expect = 1
		}
		if num != expect {
			continue
		}
		choices = append(choices, cleanChoiceLabel(m[3]))
		if m[1] != "" {
			cursor = num
		}
		expect++
	}

	if len(choices) < 2 {
		return agent.ApprovalType{}, false
	}
	if !strings.HasPrefix(choices[0], "Yes") || !strings.HasPrefix(choices[len(choices)-1], "No") {
		return agent.ApprovalType{}, false
	}
	if cursor == 0 {
		cursor = 1
	}
	return agent.ApprovalType{
		Kind:           agent.ApprovalUserQuestion,
		Choices:        choices,
		MultiSelect:    false,
		CursorPosition: cursor,
	}, true
}

// detectYesNoButtons implements rule 7: two short lines within four
// lines of each other, one starting "Yes" and one starting "No",
// neither longer than 40 characters.
func detectYesNoButtons(lines []string) bool {
	region := lines
	if len(region) > 8 {
		region = region[len(region)-8:]
	}
	yesIdx, noIdx := -1, -1
	for i, line := range region {
		t := strings.TrimSpace(line)
		if t == "" || len(t) > 40 {
			continue
		}
		if t == "Yes" || strings.HasPrefix(t, "Yes,") || strings.HasPrefix(t, "Yes ") {
			yesIdx = i
		}
		if t == "No" || strings.HasPrefix(t, "No,") || strings.HasPrefix(t, "No ") {
			noIdx = i
		}
	}
	if yesIdx < 0 || noIdx < 0 {
		return false
	}
	d := yesIdx - noIdx
	if d < 0 {
		d = -d
	}
	return d <= 4
}

// classifyApproval picks the most specific approval type named in the
// recent screen text. Create and delete keep their own kinds here
// (the wrapper's coarser wire contract folds them into file_edit).
func classifyApproval(lines []string) agent.ApprovalType {
	text := strings.Join(lines, "\n")
	switch {
	case approvalDeleteRe.MatchString(text):
		return agent.ApprovalType{Kind: agent.ApprovalFileDelete}
	case approvalCreateRe.MatchString(text):
		return agent.ApprovalType{Kind: agent.ApprovalFileCreate}
	case approvalEditRe.MatchString(text):
		return agent.ApprovalType{Kind: agent.ApprovalFileEdit}
	case approvalMcpRe.MatchString(text):
		return agent.ApprovalType{Kind: agent.ApprovalMcpTool}
	case approvalShellRe.MatchString(text):
		return agent.ApprovalType{Kind: agent.ApprovalShellCommand}
	default:
		return agent.ApprovalType{Kind: agent.ApprovalOther}
	}
}

// hasInProgressTasks implements rule 10: the Tasks header with a
// nonzero in-progress count, the inline "N tasks (...)" form, or an
// in-progress bullet.
func hasInProgressTasks(lines []string) bool {
	text := strings.Join(lines, "\n")
	if m := tasksHeaderRe.FindStringSubmatch(text); m != nil {
		inProgress, _ := strconv.Atoi(m[2])
		return inProgress > 0
	}
	if tasksInlineRe.MatchString(text) {
		return true
	}
	return taskBulletRe.MatchString(text)
}

// DetectContextWarning reports the auto-compact percentage from
// Claude's footer, if shown.
func (*Detector) DetectContextWarning(screen string) (int, bool) {
	for _, line := range tailLines(screen, 5) {
		if m := contextWarningRe.FindStringSubmatch(line); m != nil {
			pct, err := strconv.Atoi(m[1])
			if err == nil && pct >= 0 && pct <= 100 {
				return pct, true
			}
		}
	}
	return 0, false
}

// DetectMode reads the permission mode from the title's prefix glyph.
func DetectMode(title string) agent.Mode {
	t := strings.TrimSpace(title)
	switch {
	case strings.HasPrefix(t, "⏵⏵"):
		return agent.ModeAutoApprove
	case strings.HasPrefix(t, "⏸"):
		return agent.ModePlan
	case strings.HasPrefix(t, "⇢"):
		return agent.ModeDelegate
	default:
		return agent.ModeDefault
	}
}

// lastNonEmpty returns up to n trailing lines of lines, skipping
// trailing blanks.
func lastNonEmpty(lines []string, n int) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return lines[start:end]
}
