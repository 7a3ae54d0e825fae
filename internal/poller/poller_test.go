package poller

import (
	"context"
	"strings"
	"testing"

	"github.com/tmai/tmai/internal/agent"
	"github.com/tmai/tmai/internal/config"
	"github.com/tmai/tmai/internal/multiplex"
	"github.com/tmai/tmai/internal/store"
	"github.com/tmai/tmai/internal/teamintegration"
)

// fakeMux serves canned panes and captures.
type fakeMux struct {
	panes    []multiplex.PaneInfo
	captures map[string]string
	titles   map[string]string
}

func (f *fakeMux) ListAllPanes(context.Context) ([]multiplex.PaneInfo, error)      { return f.panes, nil }
func (f *fakeMux) ListAttachedPanes(context.Context) ([]multiplex.PaneInfo, error) { return f.panes, nil }

func (f *fakeMux) CapturePane(_ context.Context, target string) (string, error) {
	return f.captures[target], nil
}

func (f *fakeMux) CapturePanePlain(_ context.Context, target string) (string, error) {
	return f.captures[target], nil
}

func (f *fakeMux) GetPaneTitle(_ context.Context, target string) (string, error) {
	return f.titles[target], nil
}

func claudePane(target, paneID string) multiplex.PaneInfo {
	session, _, _ := strings.Cut(target, ":")
	return multiplex.PaneInfo{
		Target:  target,
		Session: session,
		Command: "claude",
		PID:     0,
		Title:   "claude",
		CWD:     "",
		PaneID:  paneID,
	}
}

func newTestPoller(mux Multiplexer, st *store.Store, read StateReader, teams teamintegration.Provider) *Poller {
	return New(Options{
		Config:    config.Default(),
		Mux:       mux,
		Store:     st,
		ReadState: read,
		Teams:     teams,
	})
}

func TestCycleDiscoversAgent(t *testing.T) {
	mux := &fakeMux{
		panes:    []multiplex.PaneInfo{claudePane("main:0.1", "7")},
		captures: map[string]string{"main:0.1": "❯ \n"},
		titles:   map[string]string{"main:0.1": "✳ claude"},
	}
	st := store.New()
	p := newTestPoller(mux, st, func(string) (*agent.WrapState, error) { return nil, nil }, nil)

	if err := p.cycleOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	a, ok := st.Get("main:0.1")
	if !ok {
		t.Fatal("agent not discovered")
	}
	if a.AgentType.Kind != agent.TypeClaudeCode {
		t.Errorf("expected claude-code, got %s", a.AgentType)
	}
	if a.Status.Kind != agent.StatusIdle {
		t.Errorf("✳ title should read Idle, got %s", a.Status.Name())
	}
	if a.DetectionSource != agent.SourceCapturePane {
		t.Error("no IPC: source should be capture_pane")
	}
	if id, ok := st.PaneIDFor("main:0.1"); !ok || id != "7" {
		t.Errorf("pane-id map not maintained: %q %v", id, ok)
	}
}

func TestNonAgentPanesIgnored(t *testing.T) {
	pane := claudePane("main:0.1", "7")
	pane.Command = "bash"
	pane.Title = "bash"
	mux := &fakeMux{panes: []multiplex.PaneInfo{pane}, captures: map[string]string{}, titles: map[string]string{}}
	st := store.New()
	p := newTestPoller(mux, st, func(string) (*agent.WrapState, error) { return nil, nil }, nil)

	if err := p.cycleOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(st.Snapshot()) != 0 {
		t.Error("a bare shell must not be monitored")
	}
}

func TestIPCStatusUsedWhenPresent(t *testing.T) {
	mux := &fakeMux{
		panes:    []multiplex.PaneInfo{claudePane("main:0.1", "7")},
		captures: map[string]string{},
		titles:   map[string]string{"main:0.1": "claude"},
	}
	st := store.New()
	read := func(id string) (*agent.WrapState, error) {
		if id != "7" {
			t.Errorf("state lookup must use the pane id, got %q", id)
		}
		return &agent.WrapState{Status: agent.WrapStatusProcessing, PID: 99}, nil
	}
	p := newTestPoller(mux, st, read, nil)

	if err := p.cycleOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, _ := st.Get("main:0.1")
	if a.Status.Kind != agent.StatusProcessing {
		t.Errorf("expected IPC Processing, got %s", a.Status.Name())
	}
	if a.DetectionSource != agent.SourceIPCSocket {
		t.Error("expected ipc_socket source")
	}
}

// IPC reports Processing but the screen shows a high-confidence
// approval block: the screen wins and the source flips to
// capture_pane.
func TestScreenOverridesLaggingIPC(t *testing.T) {
	screen := `Do you want to proceed?
 1. Yes
 2. Yes, and don't ask again
 3. No
`
	pane := claudePane("main:0.1", "7")
	mux := &fakeMux{
		panes:    []multiplex.PaneInfo{pane},
		captures: map[string]string{"main:0.1": screen},
		titles:   map[string]string{"main:0.1": "claude"},
	}
	st := store.New()
	// Selected so the pane is captured despite IPC being present.
	read := func(string) (*agent.WrapState, error) {
		return &agent.WrapState{Status: agent.WrapStatusProcessing}, nil
	}
	p := newTestPoller(mux, st, read, nil)
	if err := p.cycleOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	st.Select("main:0.1")

	if err := p.cycleOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	a, _ := st.Get("main:0.1")
	if a.Status.Kind != agent.StatusAwaitingApproval {
		t.Fatalf("screen approval must override lagging IPC, got %s", a.Status.Name())
	}
	q := a.Status.ApprovalType
	if q.Kind != agent.ApprovalUserQuestion || len(q.Choices) != 3 || q.CursorPosition != 1 {
		t.Errorf("unexpected question %+v", q)
	}
	if a.DetectionSource != agent.SourceCapturePane {
		t.Error("override must report capture_pane source")
	}
}

func TestVirtualAgentsForUnmatchedMembers(t *testing.T) {
	mux := &fakeMux{panes: nil, captures: map[string]string{}, titles: map[string]string{}}
	st := store.New()
	teams := staticTeams{{
		Name: "alpha",
		Members: []teamintegration.Member{
			{Name: "builder", CWD: "/nowhere"},
		},
	}}
	p := newTestPoller(mux, st, func(string) (*agent.WrapState, error) { return nil, nil }, teams)

	if err := p.cycleOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	a, ok := st.Get("~team:alpha:builder")
	if !ok {
		t.Fatal("expected a virtual agent for the unmatched member")
	}
	if !a.IsVirtual || a.PID != 0 || a.Status.Kind != agent.StatusOffline {
		t.Errorf("virtual agent fields wrong: %+v", a)
	}
	if a.TeamInfo == nil || a.TeamInfo.TeamName != "alpha" {
		t.Error("virtual agent must carry team info")
	}
}

type staticTeams []teamintegration.Team

func (s staticTeams) Teams() ([]teamintegration.Team, error) { return s, nil }

func TestMemberMatchedByCwd(t *testing.T) {
	pane := claudePane("main:0.1", "7")
	pane.CWD = "/repo/feature"
	mux := &fakeMux{
		panes:    []multiplex.PaneInfo{pane},
		captures: map[string]string{"main:0.1": ""},
		titles:   map[string]string{"main:0.1": "claude"},
	}
	st := store.New()
	teams := staticTeams{{
		Name:    "alpha",
		Members: []teamintegration.Member{{Name: "builder", CWD: "/repo/feature"}},
	}}
	p := newTestPoller(mux, st, func(string) (*agent.WrapState, error) { return nil, nil }, teams)

	if err := p.cycleOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	a, _ := st.Get("main:0.1")
	if a.TeamInfo == nil || a.TeamInfo.MemberName != "builder" {
		t.Error("cwd match should tag the live agent with team info")
	}
	if _, ok := st.Get("~team:alpha:builder"); ok {
		t.Error("matched member must not also appear as virtual")
	}
}

func TestStripAnsi(t *testing.T) {
	in := "\x1b[31mred\x1b[0m plain \x1b]0;title\x07done"
	if got := stripAnsi(in); got != "red plain done" {
		t.Errorf("stripAnsi = %q", got)
	}
}
