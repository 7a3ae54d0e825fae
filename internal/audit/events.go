// Package audit records every detection decision the poller and the
// auto-approve service make: an append-only ndjson log with
// size-triggered rotation, a shared sensitive-data masker, and pure
// aggregation helpers over a loaded event slice.
package audit

import (
	"time"

	"github.com/tmai/tmai/internal/agent"
)

// EventType discriminates the audit event union.
type EventType string

const (
	EventStateChanged              EventType = "state_changed"
	EventSourceDisagreement        EventType = "source_disagreement"
	EventAgentAppeared             EventType = "agent_appeared"
	EventAgentDisappeared          EventType = "agent_disappeared"
	EventAutoApproveJudgment       EventType = "auto_approve_judgment"
	EventUserInputDuringProcessing EventType = "user_input_during_processing"
	EventTaskCompleted             EventType = "task_completed"
)

// Event is one audit record. Every event carries the timestamp, the
// pane id, and the agent type; the remaining fields are populated per
// Type, serialized with omitempty so each ndjson line only carries
// what its variant uses.
type Event struct {
	Type      EventType `json:"type"`
	TsMs      int64     `json:"ts_ms"`
	PaneID    string    `json:"pane_id"`
	AgentType string    `json:"agent_type"`

	// state_changed
	Source         string `json:"source,omitempty"`
	PrevStatus     string `json:"prev,omitempty"`
	NewStatus      string `json:"new,omitempty"`
	Rule           string `json:"rule,omitempty"`
	Confidence     string `json:"confidence,omitempty"`
	ScreenContext  string `json:"screen_context,omitempty"`
	PrevDurationMs int64  `json:"prev_duration_ms,omitempty"`
	ApprovalType   string `json:"approval_type,omitempty"`
	ApprovalDetail string `json:"approval_details,omitempty"`

	// source_disagreement
	IPCStatus     string `json:"ipc_status,omitempty"`
	CaptureStatus string `json:"capture_status,omitempty"`
	CaptureReason string `json:"capture_reason,omitempty"`

	// agent_appeared / agent_disappeared
	InitialStatus string `json:"initial_status,omitempty"`
	LastStatus    string `json:"last_status,omitempty"`

	// auto_approve_judgment
	Decision     string `json:"decision,omitempty"`
	Reasoning    string `json:"reasoning,omitempty"`
	Model        string `json:"model,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	ApprovalSent bool   `json:"approval_sent,omitempty"`
	InputTokens  int64  `json:"input_tokens,omitempty"`
	OutputTokens int64  `json:"output_tokens,omitempty"`

	// user_input_during_processing
	Action          string `json:"action,omitempty"`
	InputSource     string `json:"input_source,omitempty"`
	CurrentStatus   string `json:"current_status,omitempty"`
	DetectionSource string `json:"detection_source,omitempty"`

	// task_completed
	TeamName   string `json:"team_name,omitempty"`
	MemberName string `json:"member_name,omitempty"`
	TaskTitle  string `json:"task_title,omitempty"`
}

// NewEvent stamps a fresh event of the given type.
func NewEvent(t EventType, paneID string, agentType agent.Type) Event {
	return Event{
		Type:      t,
		TsMs:      time.Now().UnixMilli(),
		PaneID:    paneID,
		AgentType: agentType.ShortName(),
	}
}

// StateChanged builds a state_changed event.
func StateChanged(paneID string, agentType agent.Type, source agent.DetectionSource, prev, next agent.Status, reason agent.DetectionReason, prevDuration time.Duration) Event {
	ev := NewEvent(EventStateChanged, paneID, agentType)
	ev.Source = source.Label()
	ev.PrevStatus = prev.Name()
	ev.NewStatus = next.Name()
	ev.Rule = reason.Rule
	ev.Confidence = reason.Confidence.String()
	ev.PrevDurationMs = prevDuration.Milliseconds()
	if next.Kind == agent.StatusAwaitingApproval {
		ev.ApprovalType = next.ApprovalType.WireName()
	}
	return ev
}

// SourceDisagreement builds a source_disagreement event for the case
// where the IPC state file and the screen scrape diverge.
func SourceDisagreement(paneID string, agentType agent.Type, ipcStatus, captureStatus agent.Status, captureReason agent.DetectionReason) Event {
	ev := NewEvent(EventSourceDisagreement, paneID, agentType)
	ev.IPCStatus = ipcStatus.Name()
	ev.CaptureStatus = captureStatus.Name()
	ev.CaptureReason = captureReason.Rule
	return ev
}
