// Package store holds the single shared snapshot of every monitored
// agent. One writer (the poller) mutates it under a write lock; the
// TUI, the web surface, and the auto-approve service read it under
// read locks. No lock is ever held across an external call.
package store

import (
	"sort"
	"sync"

	"github.com/tmai/tmai/internal/agent"
)

// SortMode orders the agent list for the UI.
type SortMode int

const (
	SortDirectory SortMode = iota
	SortSessionOrder
	SortAgentType
	SortStatus
	SortLastUpdate
	SortTeam
	SortRepository
)

func (m SortMode) String() string {
	switch m {
	case SortDirectory:
		return "directory"
	case SortSessionOrder:
		return "session"
	case SortAgentType:
		return "agent-type"
	case SortStatus:
		return "status"
	case SortLastUpdate:
		return "last-update"
	case SortTeam:
		return "team"
	case SortRepository:
		return "repository"
	default:
		return "unknown"
	}
}

// ParseSortMode maps a persisted preference string back to its mode,
// defaulting to SortStatus for anything unrecognized.
func ParseSortMode(s string) SortMode {
	switch s {
	case "directory":
		return SortDirectory
	case "session":
		return SortSessionOrder
	case "agent-type":
		return SortAgentType
	case "last-update":
		return SortLastUpdate
	case "team":
		return SortTeam
	case "repository":
		return SortRepository
	default:
		return SortStatus
	}
}

// InputMode is the operator-facing input state the TUI reports back
// into the core; Passthrough switches the poller onto its faster
// interval.
type InputMode int

const (
	InputNormal InputMode = iota
	InputInput
	InputPassthrough
)

// Store is the single source of truth shared by every component.
type Store struct {
	mu sync.RWMutex

	agents    map[string]*agent.MonitoredAgent
	order     []string
	sortMode  SortMode
	selected  string
	inputMode InputMode

	teams        map[string][]string // team name -> member names
	targetToPane map[string]string

	running bool
}

// New returns an empty running store.
func New() *Store {
	return &Store{
		agents:       make(map[string]*agent.MonitoredAgent),
		teams:        make(map[string][]string),
		targetToPane: make(map[string]string),
		sortMode:     SortSessionOrder,
		running:      true,
	}
}

// Running reports whether the monitor should keep polling.
func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stop flags every long-lived task to halt at its next tick.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// UpdateAgents replaces the agent set with the poller's freshly
// assembled list: dropped ids are removed, new ids inserted, and
// existing ids updated field-wise while preserving the UI-owned
// Selected flag and the in-flight AutoApprovePhase (the latter only
// while the agent is still awaiting approval). The order is re-sorted
// under the current mode and the selection is kept by id when the
// agent survives.
func (s *Store) UpdateAgents(fresh []*agent.MonitoredAgent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*agent.MonitoredAgent, len(fresh))
	for _, a := range fresh {
		if prev, ok := s.agents[a.Target]; ok {
			a.Selected = prev.Selected
			if a.Status.Kind == agent.StatusAwaitingApproval && prev.AutoApprovePhase != nil {
				a.AutoApprovePhase = prev.AutoApprovePhase
			}
		}
		if a.Status.Kind != agent.StatusAwaitingApproval {
			a.AutoApprovePhase = nil
		}
		next[a.Target] = a
	}
	s.agents = next

	if _, ok := s.agents[s.selected]; !ok {
		s.selected = ""
	}
	s.resort()
}

// resort rebuilds the ordered id vector. Caller holds the write lock.
func (s *Store) resort() {
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}

	less := s.lessFunc()
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.agents[ids[i]], s.agents[ids[j]]
		if c := less(a, b); c != 0 {
			return c < 0
		}
		return a.Target < b.Target
	})
	s.order = ids
}

// lessFunc returns a three-way comparator for the current sort mode;
// 0 falls through to the id tie-break so every ordering is stable.
func (s *Store) lessFunc() func(a, b *agent.MonitoredAgent) int {
	switch s.sortMode {
	case SortDirectory:
		return func(a, b *agent.MonitoredAgent) int { return cmpStr(a.CWD, b.CWD) }
	case SortAgentType:
		return func(a, b *agent.MonitoredAgent) int {
			return cmpStr(a.AgentType.ShortName(), b.AgentType.ShortName())
		}
	case SortStatus:
		return func(a, b *agent.MonitoredAgent) int {
			return a.Status.Priority() - b.Status.Priority()
		}
	case SortLastUpdate:
		return func(a, b *agent.MonitoredAgent) int {
			switch {
			case a.LastUpdate.After(b.LastUpdate):
				return -1
			case b.LastUpdate.After(a.LastUpdate):
				return 1
			default:
				return 0
			}
		}
	case SortTeam:
		return func(a, b *agent.MonitoredAgent) int {
			ta, tb := teamKey(a), teamKey(b)
			if c := cmpStr(ta, tb); c != 0 {
				return c
			}
			// Nest members under their leader: the leader (first
			// listed member) sorts first, then members by name.
			return cmpStr(memberKey(a), memberKey(b))
		}
	case SortRepository:
		return func(a, b *agent.MonitoredAgent) int { return cmpStr(a.GitCommonDir, b.GitCommonDir) }
	default: // SortSessionOrder
		return func(a, b *agent.MonitoredAgent) int {
			if c := cmpStr(a.Session, b.Session); c != 0 {
				return c
			}
			if c := a.WindowIndex - b.WindowIndex; c != 0 {
				return c
			}
			return a.PaneIndex - b.PaneIndex
		}
	}
}

// teamKey groups teamless agents after all teams.
func teamKey(a *agent.MonitoredAgent) string {
	if a.TeamInfo == nil {
		return "~"
	}
	return a.TeamInfo.TeamName
}

func memberKey(a *agent.MonitoredAgent) string {
	if a.TeamInfo == nil {
		return a.Target
	}
	return a.TeamInfo.MemberName
}

func cmpStr(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Snapshot returns value copies of every agent in display order.
func (s *Store) Snapshot() []agent.MonitoredAgent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.MonitoredAgent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.agents[id])
	}
	return out
}

// Get returns a value copy of one agent.
func (s *Store) Get(target string) (agent.MonitoredAgent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[target]
	if !ok {
		return agent.MonitoredAgent{}, false
	}
	return *a, true
}

// Select marks target as the selected agent, clearing any previous
// selection. Unknown targets clear the selection entirely.
func (s *Store) Select(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.agents[s.selected]; ok {
		prev.Selected = false
	}
	s.selected = ""
	if a, ok := s.agents[target]; ok {
		a.Selected = true
		s.selected = target
	}
}

// Selected returns the selected agent's id, or "".
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SetSortMode switches the display ordering and re-sorts.
func (s *Store) SetSortMode(m SortMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortMode = m
	s.resort()
}

// SortModeValue returns the current sort mode.
func (s *Store) SortModeValue() SortMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortMode
}

// SetInputMode records the TUI's input state.
func (s *Store) SetInputMode(m InputMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputMode = m
}

// CurrentInputMode returns the TUI's input state.
func (s *Store) CurrentInputMode() InputMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputMode
}

// SetPaneID records the target → pane-id mapping discovered this
// poll cycle.
func (s *Store) SetPaneID(target, paneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetToPane[target] = paneID
}

// PaneIDFor resolves a target to the multiplexer's internal pane id.
func (s *Store) PaneIDFor(target string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.targetToPane[target]
	return id, ok
}

// PrunePaneIDs drops mappings for targets not in keep.
func (s *Store) PrunePaneIDs(keep map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.targetToPane {
		if !keep[t] {
			delete(s.targetToPane, t)
		}
	}
}

// SetTeams replaces the team roster map.
func (s *Store) SetTeams(teams map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams = teams
}

// Teams returns a copy of the team roster map.
func (s *Store) Teams() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.teams))
	for k, v := range s.teams {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// SetAutoApprovePhase updates an awaiting agent's pipeline phase; the
// auto-approve service calls this as candidates move through judging,
// approved, and manual-required. Setting a phase on an agent that is
// no longer awaiting approval is a no-op.
func (s *Store) SetAutoApprovePhase(target string, phase *agent.AutoApprovePhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[target]
	if !ok {
		return
	}
	if phase != nil && a.Status.Kind != agent.StatusAwaitingApproval {
		return
	}
	a.AutoApprovePhase = phase
}
