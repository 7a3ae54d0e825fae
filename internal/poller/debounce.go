package poller

import (
	"time"

	"github.com/tmai/tmai/internal/agent"
)

// Per-transition stability thresholds. Approvals commit immediately
// so the operator (and the auto-approve service) reacts in the same
// cycle they are observed; leaving an approval waits a beat for the
// screen to settle; idle↔processing is the noisiest transition and
// gets the longest window.
const (
	ToAwaitingApprovalThreshold   = 0
	FromAwaitingApprovalThreshold = 200 * time.Millisecond
	IdleProcessingThreshold       = 500 * time.Millisecond
	DefaultThreshold              = 300 * time.Millisecond
)

type committedState struct {
	status      agent.Status
	reason      agent.DetectionReason
	committedAt time.Time
}

type pendingTransition struct {
	status    agent.Status
	reason    agent.DetectionReason
	firstSeen time.Time
}

// debouncer suppresses status oscillation: a new status must stay
// stable for its transition threshold before it is committed. While a
// transition is pending, callers publish the committed status so
// downstream views never see the flicker.
type debouncer struct {
	committed map[string]committedState
	pending   map[string]pendingTransition
}

func newDebouncer() *debouncer {
	return &debouncer{
		committed: make(map[string]committedState),
		pending:   make(map[string]pendingTransition),
	}
}

// observation is the debouncer's verdict for one poll observation.
type observation struct {
	// Status is what the poller should publish this cycle: the new
	// status if committed, otherwise the previously committed one.
	Status agent.Status
	Reason agent.DetectionReason
	// Committed is true when this observation transitioned the
	// committed status — the caller emits a StateChanged audit event.
	Committed bool
	Prev      agent.Status
	// PrevDuration is how long the previous status had been held.
	PrevDuration time.Duration
}

func transitionThreshold(from, to agent.Status) time.Duration {
	switch {
	case to.Kind == agent.StatusAwaitingApproval:
		return ToAwaitingApprovalThreshold
	case from.Kind == agent.StatusAwaitingApproval:
		return FromAwaitingApprovalThreshold
	case from.Kind == agent.StatusIdle && to.Kind == agent.StatusProcessing,
		from.Kind == agent.StatusProcessing && to.Kind == agent.StatusIdle:
		return IdleProcessingThreshold
	default:
		return DefaultThreshold
	}
}

// Observe feeds one detected status through the debounce state
// machine.
func (d *debouncer) Observe(target string, status agent.Status, reason agent.DetectionReason, now time.Time) observation {
	cur, known := d.committed[target]

	// First sighting commits silently; AgentAppeared covers the audit
	// trail for new panes.
	if !known {
		d.committed[target] = committedState{status: status, reason: reason, committedAt: now}
		return observation{Status: status, Reason: reason}
	}

	if status.Kind == cur.status.Kind {
		// Same status — cancel any pending transition (oscillation
		// suppressed) and refresh approval details, which may change
		// while the kind stays AwaitingApproval.
		delete(d.pending, target)
		cur.status = status
		cur.reason = reason
		d.committed[target] = cur
		return observation{Status: status, Reason: reason}
	}

	threshold := transitionThreshold(cur.status, status)
	if threshold == 0 {
		return d.commit(target, cur, status, reason, now)
	}

	p, hasPending := d.pending[target]
	if !hasPending || p.status.Kind != status.Kind {
		d.pending[target] = pendingTransition{status: status, reason: reason, firstSeen: now}
		return observation{Status: cur.status, Reason: cur.reason}
	}

	if now.Sub(p.firstSeen) >= threshold {
		return d.commit(target, cur, status, reason, now)
	}

	// Still inside the window: publish the committed status.
	return observation{Status: cur.status, Reason: cur.reason}
}

func (d *debouncer) commit(target string, cur committedState, status agent.Status, reason agent.DetectionReason, now time.Time) observation {
	delete(d.pending, target)
	prevDuration := now.Sub(cur.committedAt)
	d.committed[target] = committedState{status: status, reason: reason, committedAt: now}
	return observation{
		Status:       status,
		Reason:       reason,
		Committed:    true,
		Prev:         cur.status,
		PrevDuration: prevDuration,
	}
}

// Remove drops a disappeared target. Returns the last committed
// status for the AgentDisappeared audit event.
func (d *debouncer) Remove(target string) (agent.Status, bool) {
	cur, ok := d.committed[target]
	delete(d.committed, target)
	delete(d.pending, target)
	return cur.status, ok
}
