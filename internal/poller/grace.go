// Package poller runs the orchestrating loop: discover panes, pick a
// detector, merge IPC state, smooth the result through the grace
// period and the debouncer, emit audit events, and publish the
// snapshot to the store.
package poller

import (
	"time"

	"github.com/tmai/tmai/internal/agent"
)

// graceWindow is how long after the last Processing observation a
// low-confidence Idle is still rewritten to Processing. Spinner
// glyphs vanish between tool invocations; without this window every
// gap flickers processing → idle → processing.
const graceWindow = 6 * time.Second

// graceMaxAge bounds how long stale entries survive before cleanup.
const graceMaxAge = 30 * time.Second

// gracePeriod tracks the last Processing instant per target.
type gracePeriod struct {
	lastProcessing map[string]time.Time
}

func newGracePeriod() *gracePeriod {
	return &gracePeriod{lastProcessing: make(map[string]time.Time)}
}

// Apply smooths a freshly detected status. High-priority states
// (AwaitingApproval, Error) always pass through and clear the entry.
// Idle/Unknown pass through unless the detection was low-confidence
// (or the bare fallback rule) and the target was processing within
// the window — then the status is rewritten to Processing. An
// explicit high-confidence idle indicator bypasses the window.
func (g *gracePeriod) Apply(target string, status agent.Status, reason agent.DetectionReason, now time.Time) agent.Status {
	switch status.Kind {
	case agent.StatusProcessing:
		g.lastProcessing[target] = now
		return status

	case agent.StatusAwaitingApproval, agent.StatusError:
		delete(g.lastProcessing, target)
		return status

	case agent.StatusIdle, agent.StatusUnknown:
		weak := reason.Confidence == agent.ConfidenceLow || reason.Rule == "fallback_no_indicator"
		if weak {
			if last, ok := g.lastProcessing[target]; ok && now.Sub(last) < graceWindow {
				return agent.Status{Kind: agent.StatusProcessing}
			}
		}
		delete(g.lastProcessing, target)
		return status

	default:
		delete(g.lastProcessing, target)
		return status
	}
}

// Remove drops a disappeared target's entry.
func (g *gracePeriod) Remove(target string) {
	delete(g.lastProcessing, target)
}

// Cleanup drops entries older than graceMaxAge.
func (g *gracePeriod) Cleanup(now time.Time) {
	for target, last := range g.lastProcessing {
		if now.Sub(last) > graceMaxAge {
			delete(g.lastProcessing, target)
		}
	}
}
