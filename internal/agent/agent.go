// Package agent holds the data model shared by every other package:
// the detected kind of an agent, its status state machine, the shape
// of an approval prompt, and the MonitoredAgent record the poller
// publishes to the store.
package agent

import "time"

// Type identifies which AI coding agent a pane is running. Custom
// covers anything not in the known list, keyed by the literal command
// name so the UI can still render something useful.
type Type struct {
	Kind   TypeKind
	Custom string // populated only when Kind == TypeCustom
}

// TypeKind is the tag of a Type.
type TypeKind int

const (
	TypeClaudeCode TypeKind = iota
	TypeOpenCode
	TypeCodexCli
	TypeGeminiCli
	TypeCustom
)

// ShortName returns the agent-type string used in audit events and
// the detector registry key.
func (t Type) ShortName() string {
	switch t.Kind {
	case TypeClaudeCode:
		return "claude-code"
	case TypeOpenCode:
		return "opencode"
	case TypeCodexCli:
		return "codex"
	case TypeGeminiCli:
		return "gemini-cli"
	default:
		if t.Custom != "" {
			return t.Custom
		}
		return "custom"
	}
}

// Command returns the literal executable name used to launch the
// agent, for cmdline matching.
func (t Type) Command() string {
	switch t.Kind {
	case TypeClaudeCode:
		return "claude"
	case TypeOpenCode:
		return "opencode"
	case TypeCodexCli:
		return "codex"
	case TypeGeminiCli:
		return "gemini"
	default:
		return t.Custom
	}
}

func (t Type) String() string { return t.ShortName() }

// StatusKind is the tag of a Status.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusProcessing
	StatusAwaitingApproval
	StatusError
	StatusOffline
	StatusUnknown
)

// Status is the agent's runtime state-machine value. Offline is
// reserved for virtual agents representing an absent team member.
type Status struct {
	Kind         StatusKind
	Activity     string       // Processing only
	ApprovalType ApprovalType // AwaitingApproval only
	Message      string       // Error only
}

// Name returns the lowercase wire name used in audit events and the
// IPC state file contract.
func (s Status) Name() string {
	switch s.Kind {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusAwaitingApproval:
		return "awaiting_approval"
	case StatusError:
		return "error"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// NeedsAttention reports whether the agent requires operator action.
func (s Status) NeedsAttention() bool {
	return s.Kind == StatusAwaitingApproval || s.Kind == StatusError
}

func (s Status) IsIdle() bool       { return s.Kind == StatusIdle }
func (s Status) IsProcessing() bool { return s.Kind == StatusProcessing }

// Priority orders statuses for the Status sort mode: lower sorts first.
func (s Status) Priority() int {
	switch s.Kind {
	case StatusAwaitingApproval:
		return 0
	case StatusError:
		return 1
	case StatusProcessing:
		return 2
	case StatusIdle:
		return 3
	case StatusOffline:
		return 4
	default:
		return 5
	}
}

// ApprovalTypeKind is the tag of an ApprovalType.
type ApprovalTypeKind int

const (
	ApprovalFileEdit ApprovalTypeKind = iota
	ApprovalFileCreate
	ApprovalFileDelete
	ApprovalShellCommand
	ApprovalMcpTool
	ApprovalUserQuestion
	ApprovalOther
)

// ApprovalType describes what kind of confirmation the agent is
// waiting on. UserQuestion carries the extracted choice list so the
// command facade can drive cursor navigation.
type ApprovalType struct {
	Kind           ApprovalTypeKind
	Other          string // ApprovalOther only
	Choices        []string
	MultiSelect    bool
	CursorPosition int // 1-indexed; 0 = unknown
}

// WireName returns the string used in filtering (allowed_types),
// audit logging, and the WrapState contract.
func (a ApprovalType) WireName() string {
	switch a.Kind {
	case ApprovalFileEdit:
		return "file_edit"
	case ApprovalFileCreate:
		return "file_create"
	case ApprovalFileDelete:
		return "file_delete"
	case ApprovalShellCommand:
		return "shell_command"
	case ApprovalMcpTool:
		return "mcp_tool"
	case ApprovalUserQuestion:
		return "user_question"
	default:
		if a.Other != "" {
			return a.Other
		}
		return "other"
	}
}

// DetectionConfidence grades how sure a detector is about a match.
type DetectionConfidence int

const (
	ConfidenceLow DetectionConfidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c DetectionConfidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "High"
	case ConfidenceMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// DetectionReason names the rule that produced a Status, for audit
// trails and for breaking IPC-vs-screen ties.
type DetectionReason struct {
	Rule        string
	Confidence  DetectionConfidence
	MatchedText string
}

// DetectionSource records whether a status came from the PTY
// wrapper's IPC state file or from a raw pane-capture scrape.
type DetectionSource int

const (
	SourceIPCSocket DetectionSource = iota
	SourceCapturePane
)

func (s DetectionSource) Label() string {
	if s == SourceIPCSocket {
		return "ipc_socket"
	}
	return "capture_pane"
}

// Mode is the agent's self-reported permission mode, read from a
// prefix glyph on the pane title.
type Mode int

const (
	ModeDefault Mode = iota
	ModePlan
	ModeDelegate
	ModeAutoApprove
)

func (m Mode) String() string {
	switch m {
	case ModePlan:
		return "⏸ Plan"
	case ModeDelegate:
		return "⇢ Delegate"
	case ModeAutoApprove:
		return "⏵⏵ Auto"
	default:
		return "Default"
	}
}

// AutoApprovePhase tracks where an AwaitingApproval agent sits in the
// auto-approve pipeline. Only meaningful while Status is
// AwaitingApproval; cleared on any other transition.
type AutoApprovePhase struct {
	Kind   AutoApprovePhaseKind
	Reason string // ManualRequired only
}

type AutoApprovePhaseKind int

const (
	PhaseJudging AutoApprovePhaseKind = iota
	PhaseApproved
	PhaseManualRequired
)

// TeamInfo tags an agent (real or virtual) as a member of a team,
// supplied by internal/teamintegration.
type TeamInfo struct {
	TeamName   string
	MemberName string
	TaskTitle  string
}

// MonitoredAgent is the full record the poller assembles each cycle
// and publishes to the store. Identity is Target, which doubles as
// the map key ("session:window.pane"); virtual agents (an
// unreachable team member) use the synthetic id
// "~team:{team}:{member}" and carry IsVirtual=true, Pid=0, and
// Status.Kind == StatusOffline.
type MonitoredAgent struct {
	Target string // identity; == ID

	AgentType Type
	Status    Status
	Title     string

	LastContent    string // ANSI-stripped, for detection and audit context
	LastContentAnsi string // raw capture, for preview rendering

	CWD         string
	PID         int
	Session     string
	WindowName  string
	WindowIndex int
	PaneIndex   int
	PaneID      string // multiplexer's internal pane id, distinct from Target

	Selected        bool
	LastUpdate      time.Time
	ContextWarning  *int // 0..100, nil if unknown
	DetectionSource DetectionSource
	DetectionReason *DetectionReason

	TeamInfo  *TeamInfo
	IsVirtual bool

	Mode Mode

	GitBranch     string
	GitDirty      bool
	IsWorktree    bool
	GitCommonDir  string
	WorktreeName  string

	AutoApprovePhase *AutoApprovePhase
}

// ID returns the agent's identity, which is always equal to Target.
func (a *MonitoredAgent) ID() string { return a.Target }

// New constructs a MonitoredAgent for a freshly discovered pane. All
// detection-derived fields (Status, LastContent, ContextWarning, ...)
// are left zero for the caller to fill in.
func New(target string, agentType Type, title, cwd string, pid int, session, windowName string, windowIndex, paneIndex int) *MonitoredAgent {
	return &MonitoredAgent{
		Target:      target,
		AgentType:   agentType,
		Title:       title,
		CWD:         cwd,
		PID:         pid,
		Session:     session,
		WindowName:  windowName,
		WindowIndex: windowIndex,
		PaneIndex:   paneIndex,
		LastUpdate:  time.Now(),
	}
}
