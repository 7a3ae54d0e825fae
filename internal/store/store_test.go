package store

import (
	"testing"
	"time"

	"github.com/tmai/tmai/internal/agent"
)

func mk(target string, status agent.StatusKind) *agent.MonitoredAgent {
	return &agent.MonitoredAgent{
		Target:     target,
		AgentType:  agent.Type{Kind: agent.TypeClaudeCode},
		Status:     agent.Status{Kind: status},
		LastUpdate: time.Now(),
	}
}

func TestUpdateAgentsDiff(t *testing.T) {
	s := New()
	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusIdle), mk("a:0.2", agent.StatusProcessing)})

	if got := len(s.Snapshot()); got != 2 {
		t.Fatalf("expected 2 agents, got %d", got)
	}

	// a:0.2 disappears, a:0.3 appears.
	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusIdle), mk("a:0.3", agent.StatusIdle)})
	if _, ok := s.Get("a:0.2"); ok {
		t.Error("dropped agent should be removed")
	}
	if _, ok := s.Get("a:0.3"); !ok {
		t.Error("new agent should be inserted")
	}
}

func TestUpdateAgentsPreservesSelection(t *testing.T) {
	s := New()
	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusIdle)})
	s.Select("a:0.1")

	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusProcessing)})
	a, _ := s.Get("a:0.1")
	if !a.Selected {
		t.Error("Selected must survive an update")
	}
	if s.Selected() != "a:0.1" {
		t.Error("selection id must survive an update")
	}

	s.UpdateAgents(nil)
	if s.Selected() != "" {
		t.Error("selection must clear when the agent disappears")
	}
}

func TestUpdateAgentsPreservesPhaseOnlyWhileAwaiting(t *testing.T) {
	s := New()
	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusAwaitingApproval)})
	s.SetAutoApprovePhase("a:0.1", &agent.AutoApprovePhase{Kind: agent.PhaseJudging})

	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusAwaitingApproval)})
	a, _ := s.Get("a:0.1")
	if a.AutoApprovePhase == nil || a.AutoApprovePhase.Kind != agent.PhaseJudging {
		t.Error("phase must persist while still awaiting")
	}

	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusIdle)})
	a, _ = s.Get("a:0.1")
	if a.AutoApprovePhase != nil {
		t.Error("phase must clear on transition away from AwaitingApproval")
	}
}

func TestSetPhaseRejectedWhenNotAwaiting(t *testing.T) {
	s := New()
	s.UpdateAgents([]*agent.MonitoredAgent{mk("a:0.1", agent.StatusIdle)})
	s.SetAutoApprovePhase("a:0.1", &agent.AutoApprovePhase{Kind: agent.PhaseJudging})
	a, _ := s.Get("a:0.1")
	if a.AutoApprovePhase != nil {
		t.Error("phase must not attach to a non-awaiting agent")
	}
}

func TestStatusSortOrder(t *testing.T) {
	s := New()
	s.SetSortMode(SortStatus)
	s.UpdateAgents([]*agent.MonitoredAgent{
		mk("a:0.1", agent.StatusIdle),
		mk("a:0.2", agent.StatusAwaitingApproval),
		mk("a:0.3", agent.StatusError),
		mk("a:0.4", agent.StatusProcessing),
	})
	snap := s.Snapshot()
	want := []agent.StatusKind{agent.StatusAwaitingApproval, agent.StatusError, agent.StatusProcessing, agent.StatusIdle}
	for i, k := range want {
		if snap[i].Status.Kind != k {
			t.Errorf("position %d: expected %v, got %v", i, k, snap[i].Status.Kind)
		}
	}
}

func TestSessionOrderSort(t *testing.T) {
	s := New()
	a1 := mk("b:1.0", agent.StatusIdle)
	a1.Session, a1.WindowIndex, a1.PaneIndex = "b", 1, 0
	a2 := mk("a:2.1", agent.StatusIdle)
	a2.Session, a2.WindowIndex, a2.PaneIndex = "a", 2, 1
	a3 := mk("a:2.0", agent.StatusIdle)
	a3.Session, a3.WindowIndex, a3.PaneIndex = "a", 2, 0

	s.UpdateAgents([]*agent.MonitoredAgent{a1, a2, a3})
	snap := s.Snapshot()
	want := []string{"a:2.0", "a:2.1", "b:1.0"}
	for i, target := range want {
		if snap[i].Target != target {
			t.Errorf("position %d: expected %s, got %s", i, target, snap[i].Target)
		}
	}
}

func TestTeamSortNestsMembers(t *testing.T) {
	s := New()
	s.SetSortMode(SortTeam)
	lead := mk("a:0.1", agent.StatusIdle)
	lead.TeamInfo = &agent.TeamInfo{TeamName: "alpha", MemberName: "architect"}
	member := mk("a:0.2", agent.StatusIdle)
	member.TeamInfo = &agent.TeamInfo{TeamName: "alpha", MemberName: "builder"}
	loner := mk("a:0.3", agent.StatusIdle)

	s.UpdateAgents([]*agent.MonitoredAgent{loner, member, lead})
	snap := s.Snapshot()
	if snap[0].Target != "a:0.1" || snap[1].Target != "a:0.2" {
		t.Errorf("team members should group together: %s, %s", snap[0].Target, snap[1].Target)
	}
	if snap[2].Target != "a:0.3" {
		t.Errorf("teamless agents sort after teams, got %s", snap[2].Target)
	}
}

func TestSortIsStableById(t *testing.T) {
	s := New()
	s.SetSortMode(SortStatus)
	s.UpdateAgents([]*agent.MonitoredAgent{
		mk("a:0.3", agent.StatusIdle),
		mk("a:0.1", agent.StatusIdle),
		mk("a:0.2", agent.StatusIdle),
	})
	snap := s.Snapshot()
	want := []string{"a:0.1", "a:0.2", "a:0.3"}
	for i, target := range want {
		if snap[i].Target != target {
			t.Errorf("position %d: expected %s, got %s", i, target, snap[i].Target)
		}
	}
}

func TestPaneIDMap(t *testing.T) {
	s := New()
	s.SetPaneID("a:0.1", "7")
	if id, ok := s.PaneIDFor("a:0.1"); !ok || id != "7" {
		t.Errorf("expected pane id 7, got %q ok=%v", id, ok)
	}
	s.PrunePaneIDs(map[string]bool{})
	if _, ok := s.PaneIDFor("a:0.1"); ok {
		t.Error("pruned mapping should be gone")
	}
}

func TestStopFlag(t *testing.T) {
	s := New()
	if !s.Running() {
		t.Fatal("fresh store should be running")
	}
	s.Stop()
	if s.Running() {
		t.Error("Stop should flip the running flag")
	}
}
