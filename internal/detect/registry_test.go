package detect

import (
	"testing"

	"github.com/tmai/tmai/internal/agent"
)

func TestClassifyAgentType(t *testing.T) {
	cases := []struct {
		name    string
		command string
		cmdline string
		title   string
		want    agent.TypeKind
		ok      bool
	}{
		{"exact claude", "claude", "", "", agent.TypeClaudeCode, true},
		{"exact codex", "codex", "", "", agent.TypeCodexCli, true},
		{"exact opencode", "opencode", "", "", agent.TypeOpenCode, true},
		{"exact gemini", "gemini", "", "", agent.TypeGeminiCli, true},
		{"node running codex", "node", "node /usr/local/lib/codex/cli.js", "", agent.TypeCodexCli, true},
		{"path-qualified claude", "claude-wrapper", "/usr/local/bin/claude --resume", "", agent.TypeClaudeCode, true},
		{"shell denylisted", "bash", "bash", "", 0, false},
		{"editor denylisted", "nvim", "nvim codex.rs", "", 0, false},
		{"plain node not an agent", "node", "node server.js", "", 0, false},
		{"title idle glyph is claude", "foo", "", "✳ working away", agent.TypeClaudeCode, true},
		{"title braille spinner is claude", "foo", "", "⠙ thinking", agent.TypeClaudeCode, true},
		{"title codex cli", "foo", "", "codex CLI", agent.TypeCodexCli, true},
		{"title with rs extension rejected", "foo", "", "codex.rs", 0, false},
		{"title with path rejected", "foo", "", "src/codex", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ClassifyAgentType(tc.command, tc.cmdline, tc.title)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got.Kind != tc.want {
				t.Errorf("kind = %v, want %v", got.Kind, tc.want)
			}
		})
	}
}

func TestRegistryCoversAllKnownKinds(t *testing.T) {
	for _, k := range knownAgentCommands {
		d := Get(agent.Type{Kind: k})
		if d.AgentType().Kind != k {
			t.Errorf("detector for %v reports %v", k, d.AgentType().Kind)
		}
	}
}

func TestCustomAgentGetsGenericDetector(t *testing.T) {
	d := Get(agent.Type{Kind: agent.TypeCustom, Custom: "aider"})
	status, reason := d.DetectStatusWithReason("", "no signals\n", agent.DetectionContext{})
	if status.Kind != agent.StatusProcessing || reason.Confidence != agent.ConfidenceLow {
		t.Errorf("generic fallback should be Low-confidence Processing, got %s/%s", status.Name(), reason.Confidence)
	}
}

func TestGenericDetectorYesNoButtons(t *testing.T) {
	d := Get(agent.Type{Kind: agent.TypeCustom})
	status, _ := d.DetectStatusWithReason("", "Allow this?\n  Yes\n  No\n", agent.DetectionContext{})
	if status.Kind != agent.StatusAwaitingApproval {
		t.Errorf("expected AwaitingApproval from yes/no buttons, got %s", status.Name())
	}
}
