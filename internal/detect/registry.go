package detect

import (
	"regexp"
	"strings"

	"github.com/tmai/tmai/internal/agent"
	"github.com/tmai/tmai/internal/detect/claudecode"
	"github.com/tmai/tmai/internal/detect/codex"
	"github.com/tmai/tmai/internal/detect/geminicli"
	"github.com/tmai/tmai/internal/detect/opencode"
)

var registry = map[agent.TypeKind]Detector{
	agent.TypeClaudeCode: claudecode.New(),
	agent.TypeCodexCli:   codex.New(),
	agent.TypeGeminiCli:  geminicli.New(),
	agent.TypeOpenCode:   opencode.New(),
}

// Get returns the Detector for t's kind. Custom agent types have no
// dedicated detector; callers fall back to a generic spinner/prompt
// heuristic (see genericDetector below).
func Get(t agent.Type) Detector {
	if d, ok := registry[t.Kind]; ok {
		return d
	}
	return genericDetector{}
}

// knownNonAgentCommands short-circuits classification for the shells,
// editors, file managers, and multiplexer tools an operator is likely
// to have running alongside their agents.
var knownNonAgentCommands = map[string]bool{
	"bash": true, "zsh": true, "fish": true, "sh": true, "dash": true, "ksh": true, "tcsh": true, "csh": true,
	"vim": true, "nvim": true, "vi": true, "nano": true, "emacs": true, "helix": true, "hx": true,
	"tmux": true, "screen": true, "zellij": true,
	"htop": true, "top": true, "btop": true, "ranger": true, "lf": true, "nnn": true, "mc": true,
	"less": true, "more": true, "man": true, "watch": true,
	"ssh": true, "git": true, "docker": true, "kubectl": true, "psql": true, "mysql": true, "sqlite3": true,
	"node": true, "python": true, "python3": true, "ruby": true, "cargo": true, "go": true, "make": true,
	"ls": true, "cd": true, "cat": true, "grep": true, "find": true,
}

var wordRe = regexp.MustCompile(`[A-Za-z0-9_.-]+`)

// cmdlineContainsAgent reports whether cmdline contains name as a
// whole word, not as a substring of some unrelated token — "claude"
// must not match "claude-wrapper.sh" run by an editor plugin, but
// must match "/usr/local/bin/claude --resume" or "claude ".
func cmdlineContainsAgent(cmdline, name string) bool {
	if cmdline == "" || name == "" {
		return false
	}
	for _, word := range wordRe.FindAllString(cmdline, -1) {
		base := word
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			base = base[i+1:]
		}
		if base == name {
			return true
		}
	}
	return false
}

var knownAgentCommands = []agent.TypeKind{
	agent.TypeClaudeCode, agent.TypeOpenCode, agent.TypeCodexCli, agent.TypeGeminiCli,
}

func commandFor(k agent.TypeKind) string {
	return agent.Type{Kind: k}.Command()
}

// agentTitlePattern matches titles that look like an agent CLI
// announcing itself: the bare name, "name CLI", "name>", or
// "name:" — but rejects source-file-looking titles ("agent.py",
// "server.ts") and path-looking titles so an editor showing a file
// named "codex.rs" doesn't get misclassified.
func isLikelyAgentTitle(title, name string) bool {
	t := strings.TrimSpace(title)
	lower := strings.ToLower(t)
	lname := strings.ToLower(name)

	if lower == lname {
		return true
	}
	if strings.HasSuffix(lower, ".rs") || strings.HasSuffix(lower, ".py") ||
		strings.HasSuffix(lower, ".js") || strings.HasSuffix(lower, ".ts") ||
		strings.Contains(t, "/") {
		return false
	}
	if strings.HasPrefix(lower, lname+" cli") {
		return true
	}
	if strings.HasPrefix(lower, lname+">") || strings.HasPrefix(lower, lname+":") {
		return true
	}
	return false
}

// isClaudeTitleHeuristic recognizes Claude Code's distinctive title
// decorations: a version-like suffix ("claude 1.2.3"), the idle
// indicator glyph, or a Braille spinner frame — any of which confirm
// the pane is Claude Code even when the command name alone is
// ambiguous (e.g. launched via a wrapper script).
func isClaudeTitleHeuristic(title string) bool {
	if strings.Contains(title, "✳") {
		return true
	}
	for _, r := range title {
		if r >= 0x2801 && r <= 0x28FF {
			return true
		}
	}
	return versionLikeRe.MatchString(title)
}

var versionLikeRe = regexp.MustCompile(`(?i)claude.*\d+\.\d+`)

// ClassifyAgentType decides what kind of agent (if any) is running in
// a pane, given its foreground command, its full cmdline (and
// optionally a child process's cmdline, for shell → agent chains),
// and its title. Returns ok=false when the pane is not running a
// known or plausible agent.
//
// Precedence: exact command match → cmdline word-boundary match →
// title heuristics → denylist short-circuit anywhere along the way.
func ClassifyAgentType(command, cmdline, title string) (agent.Type, bool) {
	for _, k := range knownAgentCommands {
		if command == commandFor(k) {
			return agent.Type{Kind: k}, true
		}
	}

	// The cmdline check runs before the denylist: "node" is not an
	// agent, but "node /usr/local/lib/codex/cli.js" is.
	for _, k := range knownAgentCommands {
		if cmdlineContainsAgent(cmdline, commandFor(k)) {
			return agent.Type{Kind: k}, true
		}
	}

	if knownNonAgentCommands[command] {
		return agent.Type{}, false
	}

	if isClaudeTitleHeuristic(title) {
		return agent.Type{Kind: agent.TypeClaudeCode}, true
	}
	for _, k := range []agent.TypeKind{agent.TypeOpenCode, agent.TypeCodexCli, agent.TypeGeminiCli} {
		if isLikelyAgentTitle(title, commandFor(k)) {
			return agent.Type{Kind: k}, true
		}
	}

	return agent.Type{}, false
}

// genericDetector is used for agent.TypeCustom panes: it has no
// agent-specific prompt grammar, so it only recognizes the Yes/No
// button pattern shared with the Claude Code detector and falls back
// to Processing otherwise, never claiming high confidence.
type genericDetector struct{}

func (genericDetector) AgentType() agent.Type { return agent.Type{Kind: agent.TypeCustom} }

func (g genericDetector) DetectStatus(title, screen string) agent.Status {
	status, _ := g.DetectStatusWithReason(title, screen, agent.DetectionContext{})
	return status
}

func (genericDetector) DetectStatusWithReason(title, screen string, _ agent.DetectionContext) (agent.Status, agent.DetectionReason) {
	if yn, ok := detectYesNoButtons(screen); ok {
		return agent.Status{Kind: agent.StatusAwaitingApproval, ApprovalType: agent.ApprovalType{Kind: agent.ApprovalUserQuestion, Choices: yn}},
			agent.DetectionReason{Rule: "generic_yes_no_buttons", Confidence: agent.ConfidenceMedium}
	}
	return agent.Status{Kind: agent.StatusProcessing}, agent.DetectionReason{Rule: "fallback_no_indicator", Confidence: agent.ConfidenceLow}
}

func (genericDetector) DetectContextWarning(string) (int, bool) { return 0, false }
func (genericDetector) ApprovalKeys() string                    { return "y" }

// detectYesNoButtons recognizes a short Yes/No button pair, for
// detectors that don't otherwise have a richer question-extraction
// routine.
func detectYesNoButtons(screen string) ([]string, bool) {
	lines := tailLines(screen, 8)
	for i, l1 := range lines {
		t1 := strings.TrimSpace(l1)
		if !strings.HasPrefix(t1, "Yes") || len(t1) > 40 {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+4; j++ {
			t2 := strings.TrimSpace(lines[j])
			if strings.HasPrefix(t2, "No") && len(t2) <= 40 {
				return []string{t1, t2}, true
			}
		}
	}
	return nil, false
}
