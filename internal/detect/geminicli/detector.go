// Package geminicli implements the Gemini CLI screen detector.
// Gemini's TUI is less decorated than Claude Code's: approvals are
// radio-button choice lists ("1. Yes, allow once"), processing shows
// an "esc to cancel" hint with a spinner, and idle shows a "> " input
// box.
package geminicli

import (
	"regexp"
	"strings"

	"github.com/tmai/tmai/internal/agent"
)

var (
	approvalHeaderRe = regexp.MustCompile(`(?i)apply this change\?|allow execution\?|do you want to proceed`)
	choiceLineRe     = regexp.MustCompile(`^\s*([●○>❯]\s*)?(\d+)\.\s+(.+)$`)
	processingRe     = regexp.MustCompile(`(?i)esc to cancel|\(esc to cancel\)`)
	contextLeftRe    = regexp.MustCompile(`\((\d+)% context left\)`)
	errorRe          = regexp.MustCompile(`(?i)^✕|^error:|api error`)
)

// Detector is the Gemini CLI screen detector.
type Detector struct{}

// New returns the Gemini CLI detector.
func New() *Detector { return &Detector{} }

func (*Detector) AgentType() agent.Type { return agent.Type{Kind: agent.TypeGeminiCli} }

// ApprovalKeys returns "Enter": Gemini's approval dialogs pre-select
// the first (allow) option.
func (*Detector) ApprovalKeys() string { return "Enter" }

func (d *Detector) DetectStatus(title, screen string) agent.Status {
	status, _ := d.DetectStatusWithReason(title, screen, agent.DetectionContext{})
	return status
}

func (d *Detector) DetectStatusWithReason(title, screen string, _ agent.DetectionContext) (agent.Status, agent.DetectionReason) {
	lines := strings.Split(strings.TrimRight(screen, "\n"), "\n")
	recent := tail(lines, 20)

	// Approval dialog: a recognizable header plus a numbered choice
	// list. The selected row carries a "●" or ">" marker.
	if header := findApprovalHeader(recent); header != "" {
		choices, cursor := extractChoices(recent)
		if len(choices) >= 2 {
			return agent.Status{
					Kind: agent.StatusAwaitingApproval,
					ApprovalType: agent.ApprovalType{
						Kind:           agent.ApprovalUserQuestion,
						Choices:        choices,
						CursorPosition: cursor,
					},
				},
				agent.DetectionReason{Rule: "gemini_approval_dialog", Confidence: agent.ConfidenceHigh, MatchedText: header}
		}
		return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: agent.ApprovalType{Kind: agent.ApprovalOther}},
			agent.DetectionReason{Rule: "gemini_approval_header", Confidence: agent.ConfidenceMedium, MatchedText: header}
	}

	for _, line := range recent {
		t := strings.TrimSpace(line)
		if errorRe.MatchString(t) {
			return agent.Status{Kind: agent.StatusError, Message: t},
				agent.DetectionReason{Rule: "gemini_error_pattern", Confidence: agent.ConfidenceHigh, MatchedText: t}
		}
	}

	for _, line := range recent {
		t := strings.TrimSpace(line)
		if processingRe.MatchString(t) {
			return agent.Status{Kind: agent.StatusProcessing, Activity: spinnerActivity(t)},
				agent.DetectionReason{Rule: "gemini_esc_to_cancel", Confidence: agent.ConfidenceHigh, MatchedText: t}
		}
	}

	for _, line := range recent {
		t := strings.TrimSpace(line)
		if t != "" {
			if r := []rune(t)[0]; r >= 0x2801 && r <= 0x28FF {
				return agent.Status{Kind: agent.StatusProcessing, Activity: spinnerActivity(t)},
					agent.DetectionReason{Rule: "gemini_spinner", Confidence: agent.ConfidenceMedium, MatchedText: t}
			}
		}
	}

	// A bare "> " input box near the bottom means idle.
	for i := len(recent) - 1; i >= 0; i-- {
		t := strings.TrimSpace(recent[i])
		if t == ">" || strings.HasPrefix(t, "> ") {
			return agent.Status{Kind: agent.StatusIdle},
				agent.DetectionReason{Rule: "gemini_input_prompt", Confidence: agent.ConfidenceMedium}
		}
		if t != "" {
			break
		}
	}

	return agent.Status{Kind: agent.StatusProcessing},
		agent.DetectionReason{Rule: "fallback_no_indicator", Confidence: agent.ConfidenceLow}
}

func findApprovalHeader(lines []string) string {
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if approvalHeaderRe.MatchString(t) {
			return t
		}
	}
	return ""
}

func extractChoices(lines []string) (choices []string, cursor int) {
	expect := 1
	for _, line := range lines {
		m := choiceLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num := 0
		for _, r := range m[2] {
			num = num*10 + int(r-'0')
		}
		if num == 1 {
			choices = choices[:0]
			cursor = 0
			expect = 1
		}
		if num != expect {
			continue
		}
		choices = append(choices, strings.TrimSpace(m[3]))
		if m[1] != "" {
			cursor = num
		}
		expect++
	}
	if cursor == 0 && len(choices) >= 2 {
		cursor = 1
	}
	return choices, cursor
}

func spinnerActivity(line string) string {
	var b strings.Builder
	for _, r := range line {
		if r >= 0x2801 && r <= 0x28FF {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// DetectContextWarning reads Gemini's "(NN% context left)" footer.
func (*Detector) DetectContextWarning(screen string) (int, bool) {
	lines := strings.Split(strings.TrimRight(screen, "\n"), "\n")
	for _, line := range tail(lines, 5) {
		if m := contextLeftRe.FindStringSubmatch(line); m != nil {
			pct := 0
			for _, r := range m[1] {
				pct = pct*10 + int(r-'0')
			}
			if pct <= 100 {
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
