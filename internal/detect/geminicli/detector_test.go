package geminicli

import (
	"testing"

	"github.com/tmai/tmai/internal/agent"
)

func TestApprovalDialogWithChoices(t *testing.T) {
	d := New()
	screen := `Apply this change?
● 1. Yes, allow once
  2. Yes, allow always
  3. No, suggest changes
`
	status := d.DetectStatus("", screen)
	if status.Kind != agent.StatusAwaitingApproval {
		t.Fatalf("expected AwaitingApproval, got %s", status.Name())
	}
	q := status.ApprovalType
	if q.Kind != agent.ApprovalUserQuestion || len(q.Choices) != 3 {
		t.Fatalf("expected 3-choice question, got %s %v", q.WireName(), q.Choices)
	}
	if q.CursorPosition != 1 {
		t.Errorf("expected cursor on the marked row, got %d", q.CursorPosition)
	}
}

func TestEscToCancelIsProcessing(t *testing.T) {
	d := New()
	status := d.DetectStatus("", "⠧ Reading files... (esc to cancel)\n")
	if status.Kind != agent.StatusProcessing {
		t.Errorf("expected Processing, got %s", status.Name())
	}
}

func TestInputPromptIsIdle(t *testing.T) {
	d := New()
	status := d.DetectStatus("", "Previous answer.\n\n> \n")
	if status.Kind != agent.StatusIdle {
		t.Errorf("expected Idle, got %s", status.Name())
	}
}

func TestContextWarningFooter(t *testing.T) {
	d := New()
	pct, ok := d.DetectContextWarning("gemini-2.5-pro (42% context left)\n")
	if !ok || pct != 42 {
		t.Errorf("expected 42, got %d ok=%v", pct, ok)
	}
}

func TestFallbackProcessing(t *testing.T) {
	d := New()
	status, reason := d.DetectStatusWithReason("", "mid-stream text\n", agent.DetectionContext{})
	if status.Kind != agent.StatusProcessing || reason.Confidence != agent.ConfidenceLow {
		t.Errorf("expected Low-confidence Processing, got %s/%s", status.Name(), reason.Confidence)
	}
}
