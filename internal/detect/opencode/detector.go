// Package opencode implements the OpenCode screen detector. OpenCode
// renders permission dialogs as bordered boxes with a highlighted
// Allow/Deny pair and shows a "working..." status line while a turn
// runs.
package opencode

import (
	"regexp"
	"strings"

	"github.com/tmai/tmai/internal/agent"
)

var (
	permissionRe = regexp.MustCompile(`(?i)permission required|allow this tool|\ballow\b.*\bdeny\b`)
	approvalRe   = regexp.MustCompile(`(?i)\[y/n\]|do you want to (allow|proceed|run)`)
	workingRe    = regexp.MustCompile(`(?i)^[⠁-⣿]?\s*(working|thinking|planning|building)`)
	errorRe      = regexp.MustCompile(`(?i)^error:|request failed`)
)

// Detector is the OpenCode screen detector.
type Detector struct{}

// New returns the OpenCode detector.
func New() *Detector { return &Detector{} }

func (*Detector) AgentType() agent.Type { return agent.Type{Kind: agent.TypeOpenCode} }

// ApprovalKeys returns "Enter": OpenCode's permission dialog
// pre-selects Allow.
func (*Detector) ApprovalKeys() string { return "Enter" }

func (d *Detector) DetectStatus(title, screen string) agent.Status {
	status, _ := d.DetectStatusWithReason(title, screen, agent.DetectionContext{})
	return status
}

func (d *Detector) DetectStatusWithReason(title, screen string, _ agent.DetectionContext) (agent.Status, agent.DetectionReason) {
	lines := strings.Split(strings.TrimRight(screen, "\n"), "\n")
	recent := tail(lines, 20)

	for _, line := range recent {
		t := strings.TrimSpace(line)
		if permissionRe.MatchString(t) {
			return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: classify(recent)},
				agent.DetectionReason{Rule: "opencode_permission_dialog", Confidence: agent.ConfidenceHigh, MatchedText: t}
		}
	}
	for _, line := range recent {
		t := strings.TrimSpace(line)
		if approvalRe.MatchString(t) {
			return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: classify(recent)},
				agent.DetectionReason{Rule: "opencode_approval_pattern", Confidence: agent.ConfidenceMedium, MatchedText: t}
		}
	}

	for _, line := range recent {
		t := strings.TrimSpace(line)
		if errorRe.MatchString(t) {
			return agent.Status{Kind: agent.StatusError, Message: t},
				agent.DetectionReason{Rule: "opencode_error_pattern", Confidence: agent.ConfidenceHigh, MatchedText: t}
		}
	}

	for _, line := range recent {
		t := strings.TrimSpace(line)
		if workingRe.MatchString(t) {
			return agent.Status{Kind: agent.StatusProcessing, Activity: t},
				agent.DetectionReason{Rule: "opencode_working", Confidence: agent.ConfidenceHigh, MatchedText: t}
		}
	}
	for _, line := range recent {
		t := strings.TrimSpace(line)
		if t != "" {
			if r := []rune(t)[0]; r >= 0x2801 && r <= 0x28FF {
				return agent.Status{Kind: agent.StatusProcessing, Activity: t},
					agent.DetectionReason{Rule: "opencode_spinner", Confidence: agent.ConfidenceMedium, MatchedText: t}
			}
		}
	}

	// Idle: the "┃ >" input box (or a bare ">") at the bottom.
	for i := len(recent) - 1; i >= 0; i-- {
		t := strings.TrimSpace(recent[i])
		if t == "" {
			continue
		}
		if t == ">" || strings.HasPrefix(t, "> ") || strings.HasPrefix(t, "┃ >") {
			return agent.Status{Kind: agent.StatusIdle},
				agent.DetectionReason{Rule: "opencode_input_prompt", Confidence: agent.ConfidenceMedium}
		}
		break
	}

	return agent.Status{Kind: agent.StatusProcessing},
		agent.DetectionReason{Rule: "fallback_no_indicator", Confidence: agent.ConfidenceLow}
}

func classify(lines []string) agent.ApprovalType {
	text := strings.ToLower(strings.Join(lines, "\n"))
	switch {
	case strings.Contains(text, "bash") || strings.Contains(text, "command"):
		return agent.ApprovalType{Kind: agent.ApprovalShellCommand}
	case strings.Contains(text, "edit") || strings.Contains(text, "write"):
		return agent.ApprovalType{Kind: agent.ApprovalFileEdit}
	default:
		return agent.ApprovalType{Kind: agent.ApprovalOther}
	}
}

// DetectContextWarning: OpenCode renders no remaining-context
// footer.
func (*Detector) DetectContextWarning(string) (int, bool) { return 0, false }

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
