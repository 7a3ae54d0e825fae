package agent

// WrapState is the JSON contract written atomically by the PTY
// wrapper and read by the poller. Field names match the wire format
// in internal/statefile byte-for-byte; missing fields default to
// their zero value per the state file format.
type WrapState struct {
	Status         WrapStatus       `json:"status"`
	ApprovalType   *WrapApprovalType `json:"approval_type,omitempty"`
	Details        string           `json:"details,omitempty"`
	Choices        []string         `json:"choices"`
	MultiSelect    bool             `json:"multi_select"`
	CursorPosition int              `json:"cursor_position"`
	LastOutputMs   int64            `json:"last_output_ms"`
	LastInputMs    int64            `json:"last_input_ms"`
	PID            int              `json:"pid"`
	PaneID         string           `json:"pane_id,omitempty"`
}

// WrapStatus is the coarse three-value status the PTY wrapper can
// observe without the detectors' screen-scraping machinery.
type WrapStatus string

const (
	WrapStatusProcessing       WrapStatus = "processing"
	WrapStatusIdle             WrapStatus = "idle"
	WrapStatusAwaitingApproval WrapStatus = "awaiting_approval"
)

// WrapApprovalType is the approval-type vocabulary usable over the
// wire; it is coarser than agent.ApprovalType (file_edit covers
// edit/create/delete, per the wrapper's "classified together for UI
// simplicity" convention).
type WrapApprovalType string

const (
	WrapApprovalFileEdit     WrapApprovalType = "file_edit"
	WrapApprovalShellCommand WrapApprovalType = "shell_command"
	WrapApprovalMcpTool      WrapApprovalType = "mcp_tool"
	WrapApprovalUserQuestion WrapApprovalType = "user_question"
	WrapApprovalYesNo        WrapApprovalType = "yes_no"
	WrapApprovalOther        WrapApprovalType = "other"
)

// ToStatus converts a WrapState into the richer agent.Status used by
// the store, filling in ApprovalType details from the wrapper's
// coarser wire vocabulary.
func (w WrapState) ToStatus() Status {
	switch w.Status {
	case WrapStatusAwaitingApproval:
		at := ApprovalType{
			Kind:           wrapApprovalKind(w.ApprovalType),
			Choices:        w.Choices,
			MultiSelect:    w.MultiSelect,
			CursorPosition: w.CursorPosition,
		}
		if at.Kind == ApprovalOther {
			at.Other = w.Details
		}
		return Status{Kind: StatusAwaitingApproval, ApprovalType: at}
	case WrapStatusIdle:
		return Status{Kind: StatusIdle}
	default:
		return Status{Kind: StatusProcessing}
	}
}

func wrapApprovalKind(t *WrapApprovalType) ApprovalTypeKind {
	if t == nil {
		return ApprovalOther
	}
	switch *t {
	case WrapApprovalFileEdit:
		return ApprovalFileEdit
	case WrapApprovalShellCommand:
		return ApprovalShellCommand
	case WrapApprovalMcpTool:
		return ApprovalMcpTool
	case WrapApprovalUserQuestion:
		return ApprovalUserQuestion
	case WrapApprovalYesNo:
		return ApprovalUserQuestion
	default:
		return ApprovalOther
	}
}
