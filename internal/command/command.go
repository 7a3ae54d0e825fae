// Package command is the typed front-door the TUI and the web
// surface call to act on agents: approve, answer a question, send
// text or keys, focus or kill a pane. Every operation re-reads the
// store before acting so a stale caller cannot race a state change,
// and no store lock is held while keys are dispatched.
package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tmai/tmai/internal/agent"
	"github.com/tmai/tmai/internal/audit"
	"github.com/tmai/tmai/internal/detect"
	"github.com/tmai/tmai/internal/store"
)

// ErrorKind is the failure taxonomy surfaced to callers; the web
// layer maps kinds to HTTP statuses and the TUI to notifications.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindInvalidInput
	KindVirtualAgent
	KindNoCommandSender
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindVirtualAgent:
		return "virtual_agent"
	case KindNoCommandSender:
		return "no_command_sender"
	default:
		return "transient"
	}
}

// Error carries the taxonomy kind alongside the message.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errNotFound(target string) *Error {
	return &Error{Kind: KindNotFound, Msg: "agent not found: " + target}
}

func errVirtual(target string) *Error {
	return &Error{Kind: KindVirtualAgent, Msg: "agent is virtual: " + target}
}

func errInvalid(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

func errTransient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// maxTextLen caps send_text payloads.
const maxTextLen = 1024

// enterDelay separates literal text from the confirming Enter so a
// fast paste isn't swallowed by the agent's input buffer.
const enterDelay = 50 * time.Millisecond

// allowedKeys is the full send_key vocabulary. Character keys go
// through SendText (literal dispatch) instead, avoiding key-name
// collisions.
var allowedKeys = map[string]bool{
	"Enter": true, "Escape": true, "Space": true, "Up": true, "Down": true,
	"Left": true, "Right": true, "Tab": true, "BSpace": true,
}

// KeySender is the slice of the multiplexer adapter the facade
// dispatches through.
type KeySender interface {
	SendKeys(ctx context.Context, target, keys string) error
	SendKeysLiteral(ctx context.Context, target, text string) error
	FocusPane(ctx context.Context, target string) error
	KillPane(ctx context.Context, target string) error
}

// AuditSink receives the facade's audit events (the poller's Submit).
type AuditSink func(audit.Event)

// Facade exposes the typed operations.
type Facade struct {
	store  *store.Store
	sender KeySender
	sink   AuditSink
}

// New builds a Facade. sender may be nil until the multiplexer is
// wired; operations then fail with NoCommandSender.
func New(st *store.Store, sender KeySender, sink AuditSink) *Facade {
	return &Facade{store: st, sender: sender, sink: sink}
}

func (f *Facade) requireSender() (KeySender, *Error) {
	if f.sender == nil {
		return nil, &Error{Kind: KindNoCommandSender, Msg: "command sender not wired"}
	}
	return f.sender, nil
}

// Approve sends the agent-type-specific approval keys. An agent that
// is no longer awaiting approval is an intentional no-op success: the
// operator and the auto-approve service race the agent itself, and
// "already handled" is not an error.
func (f *Facade) Approve(ctx context.Context, target string) error {
	a, ok := f.store.Get(target)
	if !ok {
		return errNotFound(target)
	}
	if a.IsVirtual {
		return errVirtual(target)
	}
	if a.Status.Kind != agent.StatusAwaitingApproval {
		return nil
	}

	sender, errS := f.requireSender()
	if errS != nil {
		return errS
	}
	keys := detect.Get(a.AgentType).ApprovalKeys()
	if err := sender.SendKeys(ctx, target, keys); err != nil {
		return errTransient("send approval keys", err)
	}
	return nil
}

// SelectChoice answers a UserQuestion by navigating the cursor to the
// 1-indexed choice (choices.len()+1 addresses the trailing
// "Other/Type something" slot). Single-select and checkbox
// multi-select confirm with Enter; legacy space-toggled multi-select
// defers confirmation to SubmitSelection.
func (f *Facade) SelectChoice(ctx context.Context, target string, choice int) error {
	a, ok := f.store.Get(target)
	if !ok {
		return errNotFound(target)
	}
	q, ok := userQuestion(a)
	if !ok {
		return errNotFound(target)
	}
	if choice < 1 || choice > len(q.Choices)+1 {
		return errInvalid("invalid choice number")
	}

	sender, errS := f.requireSender()
	if errS != nil {
		return errS
	}

	cursor := q.CursorPosition
	if cursor == 0 {
		cursor = 1
	}
	if err := navigate(ctx, sender, target, cursor, choice); err != nil {
		return err
	}
	if !q.MultiSelect || HasCheckboxFormat(q.Choices) {
		if err := sender.SendKeys(ctx, target, "Enter"); err != nil {
			return errTransient("confirm choice", err)
		}
	}
	return nil
}

// SubmitSelection answers a multi-select UserQuestion. Checkbox form:
// toggle each selected row with Enter, then Right+Enter to submit.
// Legacy form: move past the whole list and press Enter.
func (f *Facade) SubmitSelection(ctx context.Context, target string, selected []int) error {
	a, ok := f.store.Get(target)
	if !ok {
		return errNotFound(target)
	}
	q, ok := userQuestion(a)
	if !ok || !q.MultiSelect {
		return errNotFound(target)
	}

	sender, errS := f.requireSender()
	if errS != nil {
		return errS
	}

	cursor := q.CursorPosition
	if cursor == 0 {
		cursor = 1
	}

	if HasCheckboxFormat(q.Choices) && len(selected) > 0 {
		var valid []int
		for _, c := range selected {
			if c >= 1 && c <= len(q.Choices) {
				valid = append(valid, c)
			}
		}
		if len(valid) == 0 {
			return errInvalid("no valid choices")
		}
		sort.Ints(valid)

		pos := cursor
		for _, c := range valid {
			if err := navigate(ctx, sender, target, pos, c); err != nil {
				return err
			}
			if err := sender.SendKeys(ctx, target, "Enter"); err != nil {
				return errTransient("toggle checkbox", err)
			}
			pos = c
		}
		if err := sender.SendKeys(ctx, target, "Right"); err != nil {
			return errTransient("submit selection", err)
		}
		if err := sender.SendKeys(ctx, target, "Enter"); err != nil {
			return errTransient("submit selection", err)
		}
		return nil
	}

	downs := len(q.Choices) - (cursor - 1)
	for i := 0; i < downs; i++ {
		if err := sender.SendKeys(ctx, target, "Down"); err != nil {
			return errTransient("navigate selection", err)
		}
	}
	if err := sender.SendKeys(ctx, target, "Enter"); err != nil {
		return errTransient("submit selection", err)
	}
	return nil
}

// SendText types text into the agent's pane and confirms with Enter
// after a short settle delay.
func (f *Facade) SendText(ctx context.Context, target, text string) error {
	if len(text) > maxTextLen {
		return errInvalid(fmt.Sprintf("text exceeds %d bytes", maxTextLen))
	}
	a, ok := f.store.Get(target)
	if !ok {
		return errNotFound(target)
	}
	if a.IsVirtual {
		return errVirtual(target)
	}

	sender, errS := f.requireSender()
	if errS != nil {
		return errS
	}

	if a.Status.IsProcessing() {
		f.emitInputDuringProcessing(a, "send_text")
	}

	if err := sender.SendKeysLiteral(ctx, target, text); err != nil {
		return errTransient("send text", err)
	}
	time.Sleep(enterDelay)
	if err := sender.SendKeys(ctx, target, "Enter"); err != nil {
		return errTransient("send enter", err)
	}
	return nil
}

// SendKey dispatches one named key from the whitelist.
func (f *Facade) SendKey(ctx context.Context, target, key string) error {
	if !allowedKeys[key] {
		return errInvalid("key not allowed: " + key)
	}
	a, ok := f.store.Get(target)
	if !ok {
		return errNotFound(target)
	}
	if a.IsVirtual {
		return errVirtual(target)
	}

	sender, errS := f.requireSender()
	if errS != nil {
		return errS
	}

	if a.Status.IsProcessing() {
		f.emitInputDuringProcessing(a, "send_key:"+key)
	}

	if err := sender.SendKeys(ctx, target, key); err != nil {
		return errTransient("send key", err)
	}
	return nil
}

// FocusPane brings target's window and pane to the foreground.
func (f *Facade) FocusPane(ctx context.Context, target string) error {
	a, ok := f.store.Get(target)
	if !ok {
		return errNotFound(target)
	}
	if a.IsVirtual {
		return errVirtual(target)
	}
	sender, errS := f.requireSender()
	if errS != nil {
		return errS
	}
	if err := sender.FocusPane(ctx, target); err != nil {
		return errTransient("focus pane", err)
	}
	return nil
}

// KillPane destroys target's pane.
func (f *Facade) KillPane(ctx context.Context, target string) error {
	a, ok := f.store.Get(target)
	if !ok {
		return errNotFound(target)
	}
	if a.IsVirtual {
		return errVirtual(target)
	}
	sender, errS := f.requireSender()
	if errS != nil {
		return errS
	}
	if err := sender.KillPane(ctx, target); err != nil {
		return errTransient("kill pane", err)
	}
	return nil
}

// Select marks an agent selected in the store.
func (f *Facade) Select(target string) error {
	if _, ok := f.store.Get(target); !ok {
		return errNotFound(target)
	}
	f.store.Select(target)
	return nil
}

func (f *Facade) emitInputDuringProcessing(a agent.MonitoredAgent, action string) {
	if f.sink == nil {
		return
	}
	ev := audit.NewEvent(audit.EventUserInputDuringProcessing, a.PaneID, a.AgentType)
	ev.Action = action
	ev.InputSource = "facade"
	ev.CurrentStatus = a.Status.Name()
	ev.DetectionSource = a.DetectionSource.Label()
	if a.DetectionReason != nil {
		ev.Rule = a.DetectionReason.Rule
	}
	f.sink(ev)
}

// HasCheckboxFormat reports whether choices render with checkbox
// prefixes ([ ], [x], [X], [×], [✔]).
func HasCheckboxFormat(choices []string) bool {
	for _, c := range choices {
		t := trimLeft(c)
		for _, prefix := range []string{"[ ]", "[x]", "[X]", "[×]", "[✔]"} {
			if len(t) >= len(prefix) && t[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}

func trimLeft(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	return s
}

func userQuestion(a agent.MonitoredAgent) (agent.ApprovalType, bool) {
	if a.Status.Kind != agent.StatusAwaitingApproval || a.Status.ApprovalType.Kind != agent.ApprovalUserQuestion {
		return agent.ApprovalType{}, false
	}
	return a.Status.ApprovalType, true
}

// navigate moves the cursor from to to with Up/Down presses.
func navigate(ctx context.Context, sender KeySender, target string, from, to int) *Error {
	steps := to - from
	key := "Down"
	if steps < 0 {
		key = "Up"
		steps = -steps
	}
	for i := 0; i < steps; i++ {
		if err := sender.SendKeys(ctx, target, key); err != nil {
			return errTransient("navigate cursor", err)
		}
	}
	return nil
}
