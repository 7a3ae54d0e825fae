package approve

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tmai/tmai/internal/agent"
	"github.com/tmai/tmai/internal/audit"
	"github.com/tmai/tmai/internal/command"
	"github.com/tmai/tmai/internal/config"
	"github.com/tmai/tmai/internal/store"
)

// tick is the service's own cadence, independent of the poller's.
const tick = time.Second

const screenContextLines = 15

// flightState tracks a target through the pipeline: a judgment is
// either running or finished with a cooldown stamp. Transitions are a
// single map update under the mutex.
type flightState struct {
	inFlight   bool
	cooldownAt time.Time
}

// Service walks awaiting agents through the judge chain.
type Service struct {
	cfg    config.ApproveConfig
	store  *store.Store
	facade *command.Facade
	chain  Judge
	masker *audit.Masker
	sink   func(audit.Event)

	mu     sync.Mutex
	flight map[string]flightState

	sem chan struct{}
}

// NewService wires the auto-approve loop. sink receives the
// AutoApproveJudgment audit events (normally the poller's Submit).
func NewService(cfg config.ApproveConfig, st *store.Store, facade *command.Facade, chain Judge, masker *audit.Masker, sink func(audit.Event)) *Service {
	maxConcurrent := cfg.Judge.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		facade: facade,
		chain:  chain,
		masker: masker,
		sink:   sink,
		flight: make(map[string]flightState),
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// Run ticks until the context is cancelled or the store stops.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for s.store.Running() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.sweep(ctx)
	}
}

// sweep scans the snapshot for judgeable candidates.
func (s *Service) sweep(ctx context.Context) {
	for _, a := range s.store.Snapshot() {
		if a.Status.Kind != agent.StatusAwaitingApproval {
			continue
		}
		if !s.eligible(&a) {
			continue
		}
		if !s.reserve(a.Target) {
			continue
		}
		s.store.SetAutoApprovePhase(a.Target, &agent.AutoApprovePhase{Kind: agent.PhaseJudging})

		candidate := a
		go s.judgeOne(ctx, candidate)
	}
}

// eligible applies the skip rules: the agent's own AutoApprove mode
// already approves everything; a genuine user question needs a human
// answer; virtual agents have no pane to type into; approval types
// outside the configured allow-list stay manual.
func (s *Service) eligible(a *agent.MonitoredAgent) bool {
	if a.IsVirtual || a.Mode == agent.ModeAutoApprove {
		return false
	}
	if IsGenuineUserQuestion(a.Status.ApprovalType) {
		s.markManual(a.Target, "user question requires a human answer")
		return false
	}
	if !s.typeAllowed(a.Status.ApprovalType) {
		s.markManual(a.Target, "approval type not in allowed list")
		return false
	}
	return true
}

func (s *Service) typeAllowed(at agent.ApprovalType) bool {
	name := at.WireName()
	for _, allowed := range s.cfg.AllowedTypes {
		if allowed == name {
			return true
		}
	}
	return false
}

// markManual sets ManualRequired without clobbering an existing
// phase.
func (s *Service) markManual(target, reason string) {
	if a, ok := s.store.Get(target); ok && a.AutoApprovePhase == nil {
		s.store.SetAutoApprovePhase(target, &agent.AutoApprovePhase{Kind: agent.PhaseManualRequired, Reason: reason})
	}
}

// reserve claims the in-flight slot for target unless a judgment is
// already running or the cooldown hasn't expired. Expired cooldowns
// are replaced lazily here.
func (s *Service) reserve(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.flight[target]
	if ok {
		if st.inFlight {
			return false
		}
		if time.Since(st.cooldownAt) < s.cfg.Judge.Cooldown {
			return false
		}
	}
	s.flight[target] = flightState{inFlight: true}
	return true
}

// release transitions in-flight → cooldown.
func (s *Service) release(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flight[target] = flightState{cooldownAt: time.Now()}
}

// judgeOne runs the chain for one candidate off the sweep goroutine,
// bounded by the concurrency semaphore.
func (s *Service) judgeOne(ctx context.Context, a agent.MonitoredAgent) {
	defer s.release(a.Target)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}

	req := Request{
		Target:        a.Target,
		ApprovalType:  a.Status.ApprovalType.WireName(),
		ScreenContext: s.masker.Mask(tailLines(a.LastContent, screenContextLines)),
		CWD:           a.CWD,
		AgentType:     a.AgentType.ShortName(),
	}

	res, err := s.chain.Judge(req, s.cfg.Judge.Timeout)
	if err != nil {
		slog.Warn("auto-approve judgment failed", "target", a.Target, "err", err)
		res = Result{Decision: DecisionUncertain, Reasoning: "Error: " + err.Error(), Model: "error"}
	}

	approvalSent := false
	switch res.Decision {
	case DecisionApprove:
		// Re-read: the operator (or the agent itself) may have moved
		// on while the judgment ran.
		if cur, ok := s.store.Get(a.Target); ok && cur.Status.Kind == agent.StatusAwaitingApproval {
			if err := s.facade.Approve(ctx, a.Target); err != nil {
				slog.Warn("auto-approve dispatch failed", "target", a.Target, "err", err)
				s.store.SetAutoApprovePhase(a.Target, &agent.AutoApprovePhase{Kind: agent.PhaseManualRequired, Reason: "approval dispatch failed"})
			} else {
				approvalSent = true
				s.store.SetAutoApprovePhase(a.Target, &agent.AutoApprovePhase{Kind: agent.PhaseApproved})
			}
		}
	default:
		s.store.SetAutoApprovePhase(a.Target, &agent.AutoApprovePhase{Kind: agent.PhaseManualRequired, Reason: res.Reasoning})
	}

	if s.sink != nil {
		ev := audit.NewEvent(audit.EventAutoApproveJudgment, a.PaneID, a.AgentType)
		ev.Decision = string(res.Decision)
		ev.Reasoning = res.Reasoning
		ev.Model = res.Model
		ev.ElapsedMs = res.ElapsedMs
		ev.ApprovalSent = approvalSent
		ev.ScreenContext = req.ScreenContext
		if res.Usage != nil {
			ev.InputTokens = res.Usage.InputTokens
			ev.OutputTokens = res.Usage.OutputTokens
		}
		s.sink(ev)
	}
}

// IsGenuineUserQuestion reports whether a UserQuestion needs a real
// human choice. A question whose choices are all Yes/No variants is
// just a permission prompt dressed as a question and may be
// auto-approved; anything else (including any multi-select) is
// genuine.
func IsGenuineUserQuestion(at agent.ApprovalType) bool {
	if at.Kind != agent.ApprovalUserQuestion {
		return false
	}
	if at.MultiSelect {
		return true
	}
	if len(at.Choices) == 0 {
		return false
	}
	for _, c := range at.Choices {
		lower := strings.ToLower(strings.TrimSpace(c))
		if !strings.HasPrefix(lower, "yes") && !strings.HasPrefix(lower, "no") {
			return true
		}
	}
	return false
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
