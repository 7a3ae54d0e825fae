// Package codex implements the Codex CLI screen detector. Codex
// renders its approval prompts as highlighted choice lists confirmed
// with Enter, and reports remaining context in a "% context left"
// footer.
package codex

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tmai/tmai/internal/agent"
)

var (
	approvalRe       = regexp.MustCompile(`(?i)\[y/n\]|\(y\)es|allow\?|do you want to`)
	workingElapsedRe = regexp.MustCompile(`Working.*\(\d+[smh]`)
	contextLeftRe    = regexp.MustCompile(`(\d+)% context left`)
	choiceLineRe     = regexp.MustCompile(`^\s*(\d+)[.．]\s+(.+)$`)
	errorRe          = regexp.MustCompile(`(?i)^error:|\bpanic\b|stream disconnected`)
)

const confirmFooter = "Press Enter to confirm or Esc to cancel"

var slashMenuEntries = []string{
	"/model", "/permissions", "/experimental", "/skills", "/review",
	"/rename", "/new", "/resume", "/help",
}

// Detector is the Codex CLI screen detector.
type Detector struct{}

// New returns the Codex detector.
func New() *Detector { return &Detector{} }

func (*Detector) AgentType() agent.Type { return agent.Type{Kind: agent.TypeCodexCli} }

// ApprovalKeys returns "Enter": Codex approval prompts highlight the
// Yes option, so Enter confirms it.
func (*Detector) ApprovalKeys() string { return "Enter" }

func (d *Detector) DetectStatus(title, screen string) agent.Status {
	status, _ := d.DetectStatusWithReason(title, screen, agent.DetectionContext{})
	return status
}

func (d *Detector) DetectStatusWithReason(title, screen string, _ agent.DetectionContext) (agent.Status, agent.DetectionReason) {
	lines := strings.Split(strings.TrimRight(screen, "\n"), "\n")
	recent := tail(lines, 30)

	// 1-5. Approval shapes, most specific first.
	if at, rule, matched, ok := detectApproval(recent); ok {
		return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: at},
			agent.DetectionReason{Rule: rule, Confidence: agent.ConfidenceHigh, MatchedText: matched}
	}

	if msg, ok := detectError(recent); ok {
		return agent.Status{Kind: agent.StatusError, Message: msg},
			agent.DetectionReason{Rule: "codex_error_pattern", Confidence: agent.ConfidenceHigh, MatchedText: msg}
	}

	short := tail(lines, 15)

	// 6. "Working (3s • esc to interrupt)".
	for _, line := range short {
		t := strings.TrimSpace(line)
		if workingElapsedRe.MatchString(t) {
			return agent.Status{Kind: agent.StatusProcessing, Activity: t},
				agent.DetectionReason{Rule: "working_elapsed_time", Confidence: agent.ConfidenceHigh, MatchedText: t}
		}
	}

	// 7. Braille spinner frame at line start.
	for _, line := range short {
		t := strings.TrimSpace(line)
		if t != "" {
			if r := []rune(t)[0]; r >= 0x2801 && r <= 0x28FF {
				return agent.Status{Kind: agent.StatusProcessing, Activity: t},
					agent.DetectionReason{Rule: "codex_spinner", Confidence: agent.ConfidenceMedium, MatchedText: t}
			}
		}
	}

	// 8. "esc to interrupt" shown while a turn runs.
	for _, line := range short {
		t := strings.TrimSpace(line)
		if strings.Contains(t, "esc to interrupt") {
			return agent.Status{Kind: agent.StatusProcessing},
				agent.DetectionReason{Rule: "codex_esc_to_interrupt", Confidence: agent.ConfidenceMedium, MatchedText: t}
		}
	}
	for _, line := range short {
		t := strings.TrimSpace(line)
		if strings.Contains(t, "Thinking") || strings.Contains(t, "Generating") {
			return agent.Status{Kind: agent.StatusProcessing, Activity: t},
				agent.DetectionReason{Rule: "codex_thinking", Confidence: agent.ConfidenceMedium, MatchedText: t}
		}
	}

	// 9. Title hints.
	tl := strings.ToLower(title)
	if strings.Contains(tl, "idle") || strings.Contains(tl, "ready") {
		return agent.Status{Kind: agent.StatusIdle},
			agent.DetectionReason{Rule: "codex_title_idle", Confidence: agent.ConfidenceMedium, MatchedText: title}
	}
	if strings.Contains(tl, "working") || strings.Contains(tl, "processing") {
		return agent.Status{Kind: agent.StatusProcessing, Activity: title},
			agent.DetectionReason{Rule: "codex_title_processing", Confidence: agent.ConfidenceMedium, MatchedText: title}
	}

	// Idle indicators: the "›" input prompt and the context footer.
	promptIdx, footerIdx := -1, -1
	for i, line := range short {
		t := strings.TrimSpace(line)
		if strings.Contains(t, "% context left") {
			footerIdx = i
		}
		if strings.HasPrefix(t, "›") {
			promptIdx = i
		}
	}

	if promptIdx >= 0 && footerIdx >= 0 && footerIdx > promptIdx {
		between := short[promptIdx+1 : footerIdx]
		clean := true
		for _, l := range between {
			t := strings.TrimSpace(l)
			if t != "" && !strings.HasPrefix(t, "?") {
				clean = false
				break
			}
		}
		if clean {
			return agent.Status{Kind: agent.StatusIdle},
				agent.DetectionReason{Rule: "codex_prompt_footer", Confidence: agent.ConfidenceMedium}
		}
	}

	for _, line := range short {
		t := strings.TrimSpace(line)
		for _, entry := range slashMenuEntries {
			if strings.HasPrefix(t, entry) {
				return agent.Status{Kind: agent.StatusIdle},
					agent.DetectionReason{Rule: "codex_slash_menu", Confidence: agent.ConfidenceMedium}
			}
		}
	}

	if promptIdx >= 0 {
		return agent.Status{Kind: agent.StatusIdle},
			agent.DetectionReason{Rule: "codex_prompt_only", Confidence: agent.ConfidenceMedium}
	}
	if footerIdx >= 0 {
		return agent.Status{Kind: agent.StatusIdle},
			agent.DetectionReason{Rule: "codex_footer_only", Confidence: agent.ConfidenceLow}
	}

	return agent.Status{Kind: agent.StatusProcessing},
		agent.DetectionReason{Rule: "codex_fallback_processing", Confidence: agent.ConfidenceLow}
}

// detectApproval checks the specific sentence patterns, then the
// Codex choice-pair pattern, then numbered user questions, then the
// generic [y/n] pattern, then the confirm footer alone.
func detectApproval(recent []string) (agent.ApprovalType, string, string, bool) {
	hasConfirmFooter := false
	for _, line := range recent {
		if strings.Contains(line, confirmFooter) {
			hasConfirmFooter = true
		}
	}

	for _, line := range recent {
		t := strings.TrimSpace(line)
		switch {
		case strings.Contains(t, "Would you like to run the following command?"):
			return agent.ApprovalType{Kind: agent.ApprovalShellCommand}, "exec_approval", t, true
		case strings.Contains(t, "Would you like to make the following edits?"):
			return agent.ApprovalType{Kind: agent.ApprovalFileEdit}, "patch_approval", t, true
		case strings.Contains(t, "needs your approval"):
			return agent.ApprovalType{Kind: agent.ApprovalMcpTool}, "mcp_approval", t, true
		case strings.Contains(t, "Do you want to approve access to"):
			return agent.ApprovalType{Kind: agent.ApprovalOther, Other: "Network"}, "network_approval", t, true
		}
	}

	if hasCodexChoices(recent) {
		return agent.ApprovalType{Kind: agent.ApprovalOther, Other: "Codex approval"}, "codex_choice_pattern", "", true
	}

	if at, ok := detectNumberedChoices(recent); ok {
		return at, "codex_numbered_choices", "", true
	}

	for _, line := range recent {
		if strings.Contains(line, "Tip:") || strings.Contains(line, "Tips:") ||
			strings.Contains(line, "% context left") || strings.Contains(line, "? for shortcuts") {
			continue
		}
		if approvalRe.MatchString(line) {
			return agent.ApprovalType{Kind: agent.ApprovalOther, Other: "Codex approval"}, "codex_approval_pattern", strings.TrimSpace(line), true
		}
	}

	if hasConfirmFooter {
		return agent.ApprovalType{Kind: agent.ApprovalOther, Other: "Codex approval"}, "confirm_footer", confirmFooter, true
	}

	return agent.ApprovalType{}, "", "", false
}

// hasCodexChoices recognizes Codex's bracketed-shortcut choice rows:
// "Yes, proceed [y]" / "Yes, and don't ask again [a]" / "No, and tell
// Codex [Esc/n]".
func hasCodexChoices(lines []string) bool {
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if (strings.Contains(t, "Yes, proceed") || strings.Contains(t, "Yes, and don't ask again")) &&
			(strings.Contains(t, "[y]") || strings.Contains(t, "[p]") || strings.Contains(t, "[a]")) {
			return true
		}
		if strings.Contains(t, "No, and tell Codex") && strings.Contains(t, "[Esc/n]") {
			return true
		}
	}
	return false
}

// detectNumberedChoices finds a numbered choice list sitting above a
// "›" input prompt. Codex renders no cursor marker, so the cursor
// position is reported as unknown (0).
func detectNumberedChoices(lines []string) (agent.ApprovalType, bool) {
	var choices []string
	foundPrompt := false

	for i := len(lines) - 1; i >= 0; i-- {
		t := strings.TrimSpace(lines[i])
		if strings.Contains(t, "% context left") || strings.HasPrefix(t, "?") || t == "" {
			continue
		}
		if strings.HasPrefix(t, "›") {
			foundPrompt = true
			continue
		}
		if m := choiceLineRe.FindStringSubmatch(t); m != nil {
			choices = append(choices, strings.TrimSpace(m[2]))
			continue
		}
		if len(choices) > 0 {
			break
		}
	}

	if len(choices) < 2 || !foundPrompt {
		return agent.ApprovalType{}, false
	}
	// Collected bottom-up.
	for i, j := 0, len(choices)-1; i < j; i, j = i+1, j-1 {
		choices[i], choices[j] = choices[j], choices[i]
	}
	return agent.ApprovalType{
		Kind:    agent.ApprovalUserQuestion,
		Choices: choices,
	}, true
}

func detectError(lines []string) (string, bool) {
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if errorRe.MatchString(t) {
			return t, true
		}
	}
	return "", false
}

// DetectContextWarning reads the "% context left" footer from the
// last five lines.
func (*Detector) DetectContextWarning(screen string) (int, bool) {
	lines := strings.Split(strings.TrimRight(screen, "\n"), "\n")
	for _, line := range tail(lines, 5) {
		if m := contextLeftRe.FindStringSubmatch(line); m != nil {
			pct, err := strconv.Atoi(m[1])
			if err == nil && pct >= 0 && pct <= 100 {
				return pct, true
			}
		}
	}
	return 0, false
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
