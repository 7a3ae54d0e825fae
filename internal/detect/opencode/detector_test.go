package opencode

import (
	"testing"

	"github.com/tmai/tmai/internal/agent"
)

func TestPermissionDialog(t *testing.T) {
	d := New()
	status := d.DetectStatus("", "Permission required: run bash command\n  Allow   Deny\n")
	if status.Kind != agent.StatusAwaitingApproval {
		t.Fatalf("expected AwaitingApproval, got %s", status.Name())
	}
	if status.ApprovalType.Kind != agent.ApprovalShellCommand {
		t.Errorf("expected shell_command, got %s", status.ApprovalType.WireName())
	}
	if d.ApprovalKeys() != "Enter" {
		t.Errorf("OpenCode approves with Enter, got %q", d.ApprovalKeys())
	}
}

func TestWorkingLineIsProcessing(t *testing.T) {
	d := New()
	status := d.DetectStatus("", "⠙ Working on the refactor\n")
	if status.Kind != agent.StatusProcessing {
		t.Errorf("expected Processing, got %s", status.Name())
	}
}

func TestInputBoxIsIdle(t *testing.T) {
	d := New()
	status := d.DetectStatus("", "Done with that change.\n\n┃ > \n")
	if status.Kind != agent.StatusIdle {
		t.Errorf("expected Idle, got %s", status.Name())
	}
}

func TestFallbackProcessing(t *testing.T) {
	d := New()
	status, reason := d.DetectStatusWithReason("", "plain streaming text\n", agent.DetectionContext{})
	if status.Kind != agent.StatusProcessing || reason.Confidence != agent.ConfidenceLow {
		t.Errorf("expected Low-confidence Processing, got %s/%s", status.Name(), reason.Confidence)
	}
}
