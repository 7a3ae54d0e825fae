package poller

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tmai/tmai/internal/agent"
	"github.com/tmai/tmai/internal/audit"
	"github.com/tmai/tmai/internal/config"
	"github.com/tmai/tmai/internal/detect"
	"github.com/tmai/tmai/internal/detect/claudecode"
	"github.com/tmai/tmai/internal/gitinfo"
	"github.com/tmai/tmai/internal/multiplex"
	"github.com/tmai/tmai/internal/procinfo"
	"github.com/tmai/tmai/internal/statefile"
	"github.com/tmai/tmai/internal/store"
	"github.com/tmai/tmai/internal/teamintegration"
)

// Enrichment cadences, in poll cycles.
const (
	teamScanEvery   = 5
	gitRefreshEvery = 20
	cleanupEvery    = 10
)

// errBackoffCap bounds the exponential backoff on repeated
// multiplexer failures; identical errors are also reported at most
// once per this interval.
const errBackoffCap = 2 * time.Second

const screenContextLines = 10

// Multiplexer is the slice of the tmux client the poller uses,
// narrowed for test fakes.
type Multiplexer interface {
	ListAllPanes(ctx context.Context) ([]multiplex.PaneInfo, error)
	ListAttachedPanes(ctx context.Context) ([]multiplex.PaneInfo, error)
	CapturePane(ctx context.Context, target string) (string, error)
	CapturePanePlain(ctx context.Context, target string) (string, error)
	GetPaneTitle(ctx context.Context, target string) (string, error)
}

// StateReader resolves a pane id to its PTY-wrapper state file, if
// one exists. Defaults to statefile.Read.
type StateReader func(id string) (*agent.WrapState, error)

// Poller is the orchestrating loop.
type Poller struct {
	cfg       *config.Config
	mux       Multiplexer
	store     *store.Store
	procs     *procinfo.Cache
	readState StateReader
	logger    *audit.Logger
	masker    *audit.Masker
	teams     teamintegration.Provider
	git       *gitinfo.Collector
	settings  agent.SettingsLookup

	grace    *gracePeriod
	debounce *debouncer

	external chan audit.Event

	cycle         int
	prevTargets   map[string]bool
	prevTaskState map[string]teamintegration.TaskStatus
	teamCache     []teamintegration.Team
	gitCache      map[string]gitinfo.Info

	lastErrMsg string
	lastErrAt  time.Time
}

// Options wires the poller's collaborators; zero-value optional
// fields get working defaults.
type Options struct {
	Config    *config.Config
	Mux       Multiplexer
	Store     *store.Store
	Logger    *audit.Logger
	Teams     teamintegration.Provider
	ReadState StateReader
	Settings  agent.SettingsLookup
}

// New builds a Poller.
func New(opts Options) *Poller {
	p := &Poller{
		cfg:           opts.Config,
		mux:           opts.Mux,
		store:         opts.Store,
		procs:         procinfo.New(),
		readState:     opts.ReadState,
		logger:        opts.Logger,
		masker:        audit.NewMasker(opts.Config.Audit.SensitivePatterns),
		teams:         opts.Teams,
		git:           gitinfo.NewCollector(),
		settings:      opts.Settings,
		grace:         newGracePeriod(),
		debounce:      newDebouncer(),
		external:      make(chan audit.Event, 256),
		prevTargets:   make(map[string]bool),
		prevTaskState: make(map[string]teamintegration.TaskStatus),
		gitCache:      make(map[string]gitinfo.Info),
	}
	if p.readState == nil {
		p.readState = statefile.Read
	}
	if p.teams == nil {
		p.teams = teamintegration.NopProvider{}
	}
	return p
}

// Submit queues an externally produced audit event (e.g. the command
// facade's UserInputDuringProcessing) for the next cycle's drain. A
// full queue drops the event rather than blocking the caller.
func (p *Poller) Submit(ev audit.Event) {
	select {
	case p.external <- ev:
	default:
	}
}

// Run drives poll cycles until the context is cancelled or the store
// is stopped.
func (p *Poller) Run(ctx context.Context) {
	errBackoff := time.Duration(0)
	for p.store.Running() {
		interval := p.cfg.Poll.Interval
		if p.store.CurrentInputMode() == store.InputPassthrough {
			interval = p.cfg.Poll.PassthroughInterval
		}
		if errBackoff > interval {
			interval = errBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := p.cycleOnce(ctx); err != nil {
			errBackoff = nextBackoff(errBackoff, p.cfg.Poll.Interval)
			p.reportError(err)
			continue
		}
		errBackoff = 0
	}
}

func nextBackoff(cur, base time.Duration) time.Duration {
	if cur == 0 {
		cur = base
	}
	cur *= 2
	if cur > errBackoffCap {
		cur = errBackoffCap
	}
	return cur
}

// reportError rate-limits identical consecutive error reports.
func (p *Poller) reportError(err error) {
	msg := err.Error()
	if msg == p.lastErrMsg && time.Since(p.lastErrAt) < errBackoffCap {
		return
	}
	p.lastErrMsg = msg
	p.lastErrAt = time.Now()
	slog.Warn("poll cycle failed", "err", err)
}

// cycleOnce runs one full poll cycle: discovery, detection,
// smoothing, enrichment, audit, publish.
func (p *Poller) cycleOnce(ctx context.Context) error {
	p.cycle++

	var panes []multiplex.PaneInfo
	var err error
	if p.cfg.Poll.AttachedOnly {
		panes, err = p.mux.ListAttachedPanes(ctx)
	} else {
		panes, err = p.mux.ListAllPanes(ctx)
	}
	if err != nil {
		return err
	}

	if p.cycle%gitRefreshEvery == 1 {
		p.refreshGit(ctx, panes)
	}
	if p.cycle%teamScanEvery == 1 {
		p.refreshTeams()
	}

	selected := p.store.Selected()
	var agents []*agent.MonitoredAgent
	seen := make(map[string]bool)

	for _, pane := range panes {
		a, ok := p.buildAgent(ctx, pane, selected == pane.Target)
		if !ok {
			continue
		}
		seen[a.Target] = true
		agents = append(agents, a)
	}

	agents = p.applyTeams(agents, seen)

	// Appeared / disappeared bookkeeping.
	for _, a := range agents {
		if a.IsVirtual {
			continue
		}
		if !p.prevTargets[a.Target] {
			ev := audit.NewEvent(audit.EventAgentAppeared, a.PaneID, a.AgentType)
			ev.Source = a.DetectionSource.Label()
			ev.InitialStatus = a.Status.Name()
			p.log(ev)
		}
	}
	for target := range p.prevTargets {
		if !seen[target] {
			p.grace.Remove(target)
			if last, ok := p.debounce.Remove(target); ok {
				paneID, _ := p.store.PaneIDFor(target)
				ev := audit.NewEvent(audit.EventAgentDisappeared, paneID, agent.Type{Kind: agent.TypeCustom})
				ev.LastStatus = last.Name()
				p.log(ev)
			}
		}
	}
	p.prevTargets = seen
	p.store.PrunePaneIDs(seen)

	if p.cycle%cleanupEvery == 0 {
		p.grace.Cleanup(time.Now())
		p.procs.Cleanup()
		p.git.Cleanup()
	}

	p.drainExternal()
	p.store.UpdateAgents(agents)
	return nil
}

// buildAgent assembles one MonitoredAgent from a pane, or reports
// ok=false when the pane is not running an agent.
func (p *Poller) buildAgent(ctx context.Context, pane multiplex.PaneInfo, isSelected bool) (*agent.MonitoredAgent, bool) {
	cmdline := p.procs.Cmdline(pane.PID)
	childCmdline := p.procs.ChildCmdline(pane.PID)

	// Classify from the richer source: the child's cmdline wins when
	// the pane's own process is just a shell wrapping the agent.
	agentType, ok := detect.ClassifyAgentType(pane.Command, childCmdline, pane.Title)
	if !ok {
		agentType, ok = detect.ClassifyAgentType(pane.Command, cmdline, pane.Title)
	}
	if !ok {
		return nil, false
	}

	p.store.SetPaneID(pane.Target, pane.PaneID)

	ws, err := p.readState(pane.PaneID)
	if err != nil {
		ws = nil
	}

	// Capture policy: the selected agent always gets a full ANSI
	// capture for its preview; an unselected agent with IPC needs no
	// capture at all; otherwise a plain capture feeds detection.
	var content, contentAnsi string
	switch {
	case isSelected:
		if raw, err := p.mux.CapturePane(ctx, pane.Target); err == nil {
			contentAnsi = raw
			content = stripAnsi(raw)
		}
	case ws != nil:
		// No capture.
	default:
		if plain, err := p.mux.CapturePanePlain(ctx, pane.Target); err == nil {
			content = plain
		}
	}

	title, err := p.mux.GetPaneTitle(ctx, pane.Target)
	if err != nil {
		title = pane.Title
	}

	detector := detect.Get(agentType)
	dctx := agent.DetectionContext{CWD: pane.CWD, Settings: p.settings}

	status, reason, source := p.resolveStatus(detector, ws, title, content, dctx, pane)

	now := time.Now()
	status = p.grace.Apply(pane.Target, status, reason, now)

	obs := p.debounce.Observe(pane.Target, status, reason, now)
	if obs.Committed {
		ev := audit.StateChanged(pane.PaneID, agentType, source, obs.Prev, obs.Status, obs.Reason, obs.PrevDuration)
		if content != "" {
			ev.ScreenContext = p.masker.Mask(lastLines(content, screenContextLines))
		}
		p.log(ev)
	}
	status = obs.Status
	reason = obs.Reason

	a := agent.New(pane.Target, agentType, title, pane.CWD, pane.PID, pane.Session, pane.WindowName, pane.WindowIndex, pane.PaneIndex)
	a.PaneID = pane.PaneID
	a.Status = status
	a.DetectionReason = &reason
	a.DetectionSource = source
	a.LastContent = content
	a.LastContentAnsi = contentAnsi
	a.Selected = isSelected

	if pct, ok := detector.DetectContextWarning(content); ok {
		a.ContextWarning = &pct
	}
	if agentType.Kind == agent.TypeClaudeCode {
		a.Mode = claudecode.DetectMode(title)
	}
	if gi, ok := p.gitCache[pane.CWD]; ok {
		a.GitBranch = gi.Branch
		a.GitDirty = gi.Dirty
		a.IsWorktree = gi.IsWorktree
		a.GitCommonDir = gi.CommonDir
		a.WorktreeName = gi.WorktreeName
	}
	return a, true
}

// resolveStatus merges the IPC state file with the screen detector.
// IPC is authoritative except for approvals, where the screen's
// richer extraction wins when it is high-confidence (the wrapper's
// coarse scraper lags on approval prompts). An IPC Processing with no
// activity is enriched from the screen or the title.
func (p *Poller) resolveStatus(detector detect.Detector, ws *agent.WrapState, title, content string, dctx agent.DetectionContext, pane multiplex.PaneInfo) (agent.Status, agent.DetectionReason, agent.DetectionSource) {
	if ws == nil {
		status, reason := detector.DetectStatusWithReason(title, content, dctx)
		return status, reason, agent.SourceCapturePane
	}

	ipcStatus := ws.ToStatus()
	ipcReason := agent.DetectionReason{Rule: "ipc_state_file", Confidence: agent.ConfidenceHigh}

	if ipcStatus.Kind != agent.StatusAwaitingApproval && content != "" {
		screenStatus, screenReason := detector.DetectStatusWithReason(title, content, dctx)
		if screenStatus.Kind == agent.StatusAwaitingApproval && screenReason.Confidence == agent.ConfidenceHigh {
			p.log(audit.SourceDisagreement(pane.PaneID, detector.AgentType(), ipcStatus, screenStatus, screenReason))
			return screenStatus, screenReason, agent.SourceCapturePane
		}
		if ipcStatus.Kind == agent.StatusProcessing && ipcStatus.Activity == "" {
			if screenStatus.Kind == agent.StatusProcessing && screenStatus.Activity != "" {
				ipcStatus.Activity = screenStatus.Activity
			}
		}
	}
	if ipcStatus.Kind == agent.StatusProcessing && ipcStatus.Activity == "" {
		ipcStatus.Activity = cleanTitleActivity(title)
	}
	return ipcStatus, ipcReason, agent.SourceIPCSocket
}

// refreshTeams re-reads the team rosters.
func (p *Poller) refreshTeams() {
	teams, err := p.teams.Teams()
	if err != nil {
		slog.Debug("team scan failed", "err", err)
		return
	}
	p.teamCache = teams

	roster := make(map[string][]string, len(teams))
	for _, t := range teams {
		names := make([]string, 0, len(t.Members))
		for _, m := range t.Members {
			names = append(names, m.Name)
		}
		roster[t.Name] = names
	}
	p.store.SetTeams(roster)
}

// applyTeams maps team members to live panes (by the --agent-id
// cmdline marker, then by cwd), creates virtual agents for members
// with no pane, and emits TaskCompleted events for tasks that turned
// done since the previous scan.
func (p *Poller) applyTeams(agents []*agent.MonitoredAgent, seen map[string]bool) []*agent.MonitoredAgent {
	taskState := make(map[string]teamintegration.TaskStatus)

	for _, team := range p.teamCache {
		for _, member := range team.Members {
			key := team.Name + ":" + member.Name
			if member.Task != nil {
				taskState[key] = member.Task.Status
				if prev, ok := p.prevTaskState[key]; ok && prev != teamintegration.TaskDone && member.Task.Status == teamintegration.TaskDone {
					ev := audit.NewEvent(audit.EventTaskCompleted, "", agent.Type{Kind: agent.TypeCustom})
					ev.TeamName = team.Name
					ev.MemberName = member.Name
					ev.TaskTitle = member.Task.Title
					p.log(ev)
				}
			}

			matched := p.matchMember(agents, member)
			if matched != nil {
				info := &agent.TeamInfo{TeamName: team.Name, MemberName: member.Name}
				if member.Task != nil {
					info.TaskTitle = member.Task.Title
				}
				matched.TeamInfo = info
				continue
			}

			virtual := &agent.MonitoredAgent{
				Target:     "~team:" + team.Name + ":" + member.Name,
				AgentType:  agent.Type{Kind: agent.TypeCustom, Custom: member.Name},
				Status:     agent.Status{Kind: agent.StatusOffline},
				IsVirtual:  true,
				LastUpdate: time.Now(),
				TeamInfo:   &agent.TeamInfo{TeamName: team.Name, MemberName: member.Name},
			}
			if member.Task != nil {
				virtual.TeamInfo.TaskTitle = member.Task.Title
			}
			agents = append(agents, virtual)
			seen[virtual.Target] = true
		}
	}

	p.prevTaskState = taskState
	return agents
}

func (p *Poller) matchMember(agents []*agent.MonitoredAgent, member teamintegration.Member) *agent.MonitoredAgent {
	if member.AgentID != "" {
		marker := "--agent-id " + member.AgentID
		for _, a := range agents {
			if a.IsVirtual {
				continue
			}
			if strings.Contains(p.procs.Cmdline(a.PID), marker) || strings.Contains(p.procs.ChildCmdline(a.PID), marker) {
				return a
			}
		}
	}
	if member.CWD != "" {
		for _, a := range agents {
			if !a.IsVirtual && a.CWD == member.CWD {
				return a
			}
		}
	}
	return nil
}

// refreshGit re-collects git metadata for every distinct pane cwd.
func (p *Poller) refreshGit(ctx context.Context, panes []multiplex.PaneInfo) {
	fresh := make(map[string]gitinfo.Info)
	for _, pane := range panes {
		if pane.CWD == "" {
			continue
		}
		if _, done := fresh[pane.CWD]; done {
			continue
		}
		if info, ok := p.git.Lookup(ctx, pane.CWD); ok {
			fresh[pane.CWD] = info
		}
	}
	p.gitCache = fresh
}

func (p *Poller) drainExternal() {
	for {
		select {
		case ev := <-p.external:
			if ev.ScreenContext != "" {
				ev.ScreenContext = p.masker.Mask(ev.ScreenContext)
			}
			p.log(ev)
		default:
			return
		}
	}
}

func (p *Poller) log(ev audit.Event) {
	if p.logger != nil {
		p.logger.Log(ev)
	}
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)

// stripAnsi removes ANSI escape sequences so an ANSI capture can feed
// the detectors without a second tmux subprocess.
func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// cleanTitleActivity derives a Processing activity from the pane
// title by stripping spinner frames and mode glyphs.
func cleanTitleActivity(title string) string {
	var b strings.Builder
	for _, r := range title {
		if r >= 0x2801 && r <= 0x28FF {
			continue
		}
		switch r {
		case '✳', '✻', '✶', '✽', '✢', '⏸', '⇢', '⏵':
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
