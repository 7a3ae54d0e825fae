package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tmai/tmai/internal/agent"
	"github.com/tmai/tmai/internal/audit"
	"github.com/tmai/tmai/internal/store"
)

// fakeSender records dispatched keys instead of talking to tmux.
type fakeSender struct {
	keys    []string
	literal []string
	focused []string
	killed  []string
}

func (f *fakeSender) SendKeys(_ context.Context, target, keys string) error {
	f.keys = append(f.keys, target+"/"+keys)
	return nil
}

func (f *fakeSender) SendKeysLiteral(_ context.Context, target, text string) error {
	f.literal = append(f.literal, target+"/"+text)
	return nil
}

func (f *fakeSender) FocusPane(_ context.Context, target string) error {
	f.focused = append(f.focused, target)
	return nil
}

func (f *fakeSender) KillPane(_ context.Context, target string) error {
	f.killed = append(f.killed, target)
	return nil
}

func setup(agents ...*agent.MonitoredAgent) (*Facade, *fakeSender, *store.Store) {
	st := store.New()
	st.UpdateAgents(agents)
	sender := &fakeSender{}
	return New(st, sender, nil), sender, st
}

func testAgent(target string, status agent.Status) *agent.MonitoredAgent {
	return &agent.MonitoredAgent{
		Target:     target,
		AgentType:  agent.Type{Kind: agent.TypeClaudeCode},
		Status:     status,
		LastUpdate: time.Now(),
	}
}

func virtualAgent(target string) *agent.MonitoredAgent {
	a := testAgent(target, agent.Status{Kind: agent.StatusOffline})
	a.IsVirtual = true
	return a
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	cmdErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *command.Error, got %T: %v", err, err)
	}
	return cmdErr.Kind
}

func TestApproveNotFound(t *testing.T) {
	f, _, _ := setup()
	if kindOf(t, f.Approve(context.Background(), "nope")) != KindNotFound {
		t.Error("expected NotFound")
	}
}

func TestApproveVirtualAgent(t *testing.T) {
	f, _, _ := setup(virtualAgent("~team:alpha:builder"))
	if kindOf(t, f.Approve(context.Background(), "~team:alpha:builder")) != KindVirtualAgent {
		t.Error("expected VirtualAgent")
	}
}

func TestApproveNotAwaitingIsIdempotentOk(t *testing.T) {
	f, sender, _ := setup(testAgent("a:0.1", agent.Status{Kind: agent.StatusIdle}))
	if err := f.Approve(context.Background(), "a:0.1"); err != nil {
		t.Fatalf("expected idempotent Ok, got %v", err)
	}
	if len(sender.keys) != 0 {
		t.Error("no keys should be dispatched")
	}
}

func TestApproveDispatchesDetectorKeys(t *testing.T) {
	claude := testAgent("a:0.1", agent.Status{Kind: agent.StatusAwaitingApproval})
	codex := testAgent("a:0.2", agent.Status{Kind: agent.StatusAwaitingApproval})
	codex.AgentType = agent.Type{Kind: agent.TypeCodexCli}
	f, sender, _ := setup(claude, codex)

	if err := f.Approve(context.Background(), "a:0.1"); err != nil {
		t.Fatal(err)
	}
	if err := f.Approve(context.Background(), "a:0.2"); err != nil {
		t.Fatal(err)
	}
	if sender.keys[0] != "a:0.1/y" {
		t.Errorf("Claude approves with y, got %s", sender.keys[0])
	}
	if sender.keys[1] != "a:0.2/Enter" {
		t.Errorf("Codex approves with Enter, got %s", sender.keys[1])
	}
}

func TestApproveNoSender(t *testing.T) {
	st := store.New()
	st.UpdateAgents([]*agent.MonitoredAgent{testAgent("a:0.1", agent.Status{Kind: agent.StatusAwaitingApproval})})
	f := New(st, nil, nil)
	if kindOf(t, f.Approve(context.Background(), "a:0.1")) != KindNoCommandSender {
		t.Error("expected NoCommandSender")
	}
}

func question(choices []string, cursor int, multi bool) agent.Status {
	return agent.Status{
		Kind: agent.StatusAwaitingApproval,
		ApprovalType: agent.ApprovalType{
			Kind:           agent.ApprovalUserQuestion,
			Choices:        choices,
			CursorPosition: cursor,
			MultiSelect:    multi,
		},
	}
}

func TestSelectChoiceNavigatesUp(t *testing.T) {
	// Cursor on 2, choose 1: one Up then Enter.
	f, sender, _ := setup(testAgent("a:0.1", question([]string{"A", "B", "C"}, 2, false)))
	if err := f.SelectChoice(context.Background(), "a:0.1", 1); err != nil {
		t.Fatal(err)
	}
	want := []string{"a:0.1/Up", "a:0.1/Enter"}
	if strings.Join(sender.keys, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", sender.keys, want)
	}
}

func TestSelectChoiceNavigatesDown(t *testing.T) {
	f, sender, _ := setup(testAgent("a:0.1", question([]string{"A", "B", "C"}, 1, false)))
	if err := f.SelectChoice(context.Background(), "a:0.1", 3); err != nil {
		t.Fatal(err)
	}
	want := []string{"a:0.1/Down", "a:0.1/Down", "a:0.1/Enter"}
	if strings.Join(sender.keys, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", sender.keys, want)
	}
}

func TestSelectChoiceOtherSlot(t *testing.T) {
	// choices.len()+1 addresses the "Other/Type something" slot.
	f, _, _ := setup(testAgent("a:0.1", question([]string{"A", "B"}, 1, false)))
	if err := f.SelectChoice(context.Background(), "a:0.1", 3); err != nil {
		t.Fatal(err)
	}
	if err := f.SelectChoice(context.Background(), "a:0.1", 4); err == nil {
		t.Error("past the Other slot should be InvalidInput")
	}
}

func TestSelectChoiceLegacyMultiSelectDefersConfirm(t *testing.T) {
	f, sender, _ := setup(testAgent("a:0.1", question([]string{"A", "B"}, 1, true)))
	if err := f.SelectChoice(context.Background(), "a:0.1", 2); err != nil {
		t.Fatal(err)
	}
	for _, k := range sender.keys {
		if strings.HasSuffix(k, "/Enter") {
			t.Error("legacy multi-select must not confirm with Enter")
		}
	}
}

func TestSelectChoiceNotInQuestion(t *testing.T) {
	f, _, _ := setup(testAgent("a:0.1", agent.Status{Kind: agent.StatusIdle}))
	if kindOf(t, f.SelectChoice(context.Background(), "a:0.1", 1)) != KindNotFound {
		t.Error("expected NotFound for a non-question agent")
	}
}

func TestSubmitSelectionCheckbox(t *testing.T) {
	choices := []string{"[ ] Auth", "[ ] Billing", "[ ] Search"}
	f, sender, _ := setup(testAgent("a:0.1", question(choices, 1, true)))
	if err := f.SubmitSelection(context.Background(), "a:0.1", []int{1, 3}); err != nil {
		t.Fatal(err)
	}
	// Toggle 1 (Enter), Down Down to 3, toggle (Enter), Right+Enter.
	want := []string{"a:0.1/Enter", "a:0.1/Down", "a:0.1/Down", "a:0.1/Enter", "a:0.1/Right", "a:0.1/Enter"}
	if strings.Join(sender.keys, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", sender.keys, want)
	}
}

func TestSubmitSelectionLegacy(t *testing.T) {
	f, sender, _ := setup(testAgent("a:0.1", question([]string{"A", "B", "C"}, 1, true)))
	if err := f.SubmitSelection(context.Background(), "a:0.1", nil); err != nil {
		t.Fatal(err)
	}
	// Navigate past all three choices, then Enter.
	want := []string{"a:0.1/Down", "a:0.1/Down", "a:0.1/Down", "a:0.1/Enter"}
	if strings.Join(sender.keys, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", sender.keys, want)
	}
}

func TestSendTextTooLong(t *testing.T) {
	f, _, _ := setup(testAgent("a:0.1", agent.Status{Kind: agent.StatusIdle}))
	long := strings.Repeat("x", 1025)
	if kindOf(t, f.SendText(context.Background(), "a:0.1", long)) != KindInvalidInput {
		t.Error("expected InvalidInput for oversized text")
	}
}

func TestSendTextLiteralThenEnter(t *testing.T) {
	f, sender, _ := setup(testAgent("a:0.1", agent.Status{Kind: agent.StatusIdle}))
	if err := f.SendText(context.Background(), "a:0.1", "hello"); err != nil {
		t.Fatal(err)
	}
	if len(sender.literal) != 1 || sender.literal[0] != "a:0.1/hello" {
		t.Errorf("literal dispatch wrong: %v", sender.literal)
	}
	if len(sender.keys) != 1 || sender.keys[0] != "a:0.1/Enter" {
		t.Errorf("expected trailing Enter, got %v", sender.keys)
	}
}

func TestSendTextDuringProcessingEmitsAudit(t *testing.T) {
	st := store.New()
	a := testAgent("a:0.1", agent.Status{Kind: agent.StatusProcessing})
	st.UpdateAgents([]*agent.MonitoredAgent{a})

	var events []audit.Event
	f := New(st, &fakeSender{}, func(ev audit.Event) { events = append(events, ev) })
	if err := f.SendText(context.Background(), "a:0.1", "stop"); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != audit.EventUserInputDuringProcessing {
		t.Errorf("expected one UserInputDuringProcessing event, got %v", events)
	}
}

func TestSendKeyWhitelist(t *testing.T) {
	f, sender, _ := setup(testAgent("a:0.1", agent.Status{Kind: agent.StatusIdle}))
	if err := f.SendKey(context.Background(), "a:0.1", "Enter"); err != nil {
		t.Fatal(err)
	}
	if kindOf(t, f.SendKey(context.Background(), "a:0.1", "C-c")) != KindInvalidInput {
		t.Error("C-c is not in the whitelist")
	}
	if kindOf(t, f.SendKey(context.Background(), "a:0.1", "y")) != KindInvalidInput {
		t.Error("character keys go through SendText, not SendKey")
	}
	if len(sender.keys) != 1 {
		t.Errorf("only the whitelisted key should dispatch, got %v", sender.keys)
	}
}

func TestHasCheckboxFormat(t *testing.T) {
	if !HasCheckboxFormat([]string{"[ ] Auth", "[x] Billing"}) {
		t.Error("checkbox prefixes should be detected")
	}
	if HasCheckboxFormat([]string{"Yes", "No"}) {
		t.Error("plain choices are not checkboxes")
	}
}

func TestFocusAndKill(t *testing.T) {
	f, sender, _ := setup(testAgent("a:0.1", agent.Status{Kind: agent.StatusIdle}))
	if err := f.FocusPane(context.Background(), "a:0.1"); err != nil {
		t.Fatal(err)
	}
	if err := f.KillPane(context.Background(), "a:0.1"); err != nil {
		t.Fatal(err)
	}
	if len(sender.focused) != 1 || len(sender.killed) != 1 {
		t.Errorf("focus/kill not dispatched: %v %v", sender.focused, sender.killed)
	}
}
