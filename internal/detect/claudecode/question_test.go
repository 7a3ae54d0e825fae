package claudecode

import (
	"testing"

	"github.com/tmai/tmai/internal/agent"
)

func TestUserQuestionWithCursor(t *testing.T) {
	screen := `Which approach should I take?
❯ 1. Refactor in place
  2. Extract a new package
  3. Leave it as is
`
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question")
	}
	if len(q.Approval.Choices) != 3 {
		t.Errorf("expected 3 choices, got %v", q.Approval.Choices)
	}
	if q.Approval.CursorPosition != 1 {
		t.Errorf("expected cursor 1, got %d", q.Approval.CursorPosition)
	}
	if q.Approval.MultiSelect {
		t.Error("single-select question flagged multi")
	}
	if q.QuestionText != "Which approach should I take?" {
		t.Errorf("unexpected question text %q", q.QuestionText)
	}
}

func TestBareNumberedListRejected(t *testing.T) {
	screen := `Here are the steps:
 1. Install dependencies
 2. Run the migration
 3. Restart the server
`
	if _, ok := detectUserQuestion(screen); ok {
		t.Error("numbered list without a cursor marker must not be a question")
	}
}

func TestCursorOnSecondChoice(t *testing.T) {
	screen := `Pick a framework?
  1. React
❯ 2. Vue
  3. Svelte
`
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question")
	}
	if q.Approval.CursorPosition != 2 {
		t.Errorf("expected cursor 2, got %d", q.Approval.CursorPosition)
	}
}

// A separator-bounded input area with a wide preview box to the right
// of the choices. The box-drawing borders must not leak into the
// choice labels, and the box's height must not push the choices out
// of range.
func TestPreviewFormatVeryLargeBoxRealCapture(t *testing.T) {
	screen := `Some conversation above

──────────────────────────────
Which file should I edit?     ┌──────────────────────────┐
  1. src/main.go              │ package main             │
❯ 2. src/server.go            │                          │
  3. src/client.go            │ func main() {            │
                              │     run()                │
                              │ }                        │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              │                          │
                              └──────────────────────────┘
──────────────────────────────
`
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question despite the preview box")
	}
	if len(q.Approval.Choices) != 3 {
		t.Fatalf("expected 3 choices, got %v", q.Approval.Choices)
	}
	if q.Approval.CursorPosition != 2 {
		t.Errorf("expected cursor 2, got %d", q.Approval.CursorPosition)
	}
	if got := q.Approval.Choices[0]; got != "src/main.go" {
		t.Errorf("box border leaked into choice: %q", got)
	}
}

func TestRadioPatternIsNotMultiSelect(t *testing.T) {
	screen := `Choose one?
❯ 1. (*) TypeScript
  2. ( ) JavaScript
`
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question")
	}
	if q.Approval.MultiSelect {
		t.Error("(*) / ( ) radio pattern must not be multi-select")
	}
}

func TestCheckboxIsMultiSelect(t *testing.T) {
	screen := `Which features? (space to toggle)
❯ 1. [ ] Auth
  2. [x] Billing
  3. [ ] Search
`
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question")
	}
	if !q.Approval.MultiSelect {
		t.Error("checkbox list should be multi-select")
	}
}

func TestJapaneseDescriptionStripped(t *testing.T) {
	screen := `どちらにしますか？
❯ 1. はい（推奨されます）
  2. いいえ
`
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question")
	}
	if q.Approval.Choices[0] != "はい" {
		t.Errorf("full-width paren description should be stripped, got %q", q.Approval.Choices[0])
	}
	if q.QuestionText != "どちらにしますか？" {
		t.Errorf("unexpected question text %q", q.QuestionText)
	}
}

func TestEnterToConfirmSettingsMenuRejected(t *testing.T) {
	screen := `Settings
❯ 1. Theme
  2. Keybindings
  3. Editor

Enter to confirm · Esc to cancel
`
	if _, ok := detectUserQuestion(screen); ok {
		t.Error("the settings menu footer must reject question extraction")
	}
}

func TestRestartedChoiceRunReplacesCursorlessRun(t *testing.T) {
	// A decorative numbered list followed by the real question: the
	// second run carries the cursor and must win.
	screen := `Recap:
 1. built the parser
 2. added tests

Continue with deployment?
❯ 1. Yes, deploy
  2. No, stop here
`
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question")
	}
	if len(q.Approval.Choices) != 2 || q.Approval.CursorPosition != 1 {
		t.Errorf("expected the cursored run to win, got %v cursor=%d", q.Approval.Choices, q.Approval.CursorPosition)
	}
	if q.Approval.Choices[0] != "Yes, deploy" {
		t.Errorf("wrong run selected: %v", q.Approval.Choices)
	}
}

func TestQuestionStatusShape(t *testing.T) {
	screen := "Proceed?\n❯ 1. Yes\n  2. No\n"
	q, ok := detectUserQuestion(screen)
	if !ok {
		t.Fatal("expected a question")
	}
	if q.Approval.Kind != agent.ApprovalUserQuestion {
		t.Errorf("expected user_question, got %s", q.Approval.WireName())
	}
}
