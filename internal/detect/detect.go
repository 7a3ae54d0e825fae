// Package detect turns a pane's title and screen text into an
// agent.Status, and classifies which kind of agent a pane is running
// in the first place. Each agent kind gets its own sub-package
// implementing Detector; registry.go wires them into a lookup table
// keyed by agent.Type.
package detect

import (
	"strings"

	"github.com/tmai/tmai/internal/agent"
)

// Detector is implemented once per agent kind. The DetectionContext
// type lives in internal/agent so each per-agent sub-package can
// implement this interface without importing the registry.
type Detector interface {
	AgentType() agent.Type
	DetectStatus(title, screen string) agent.Status
	DetectStatusWithReason(title, screen string, ctx agent.DetectionContext) (agent.Status, agent.DetectionReason)
	DetectContextWarning(screen string) (pct int, ok bool)
	ApprovalKeys() string
}

// tailLines returns at most n trailing non-empty-trimmed lines of s,
// a pattern every detector uses to bound its regex scans to the
// bottom of the screen instead of rescanning the whole scrollback.
func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

