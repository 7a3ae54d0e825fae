// Package ptywrap runs an agent under a pseudo-terminal, proxies its
// stdio unchanged, and scrapes the output stream to publish a coarse
// status to the per-pane state file the poller reads.
package ptywrap

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tmai/tmai/internal/agent"
)

const (
	// processingTimeout: output seen within this window means the
	// agent is still producing.
	processingTimeout = 200 * time.Millisecond
	// ApprovalSettleWindow: an approval pattern must survive this
	// long after output stops before it is published, absorbing
	// partially printed prompts. The poller's matching transition
	// threshold is zero — approvals are delayed here, once, and
	// dispatched immediately downstream.
	ApprovalSettleWindow = 500 * time.Millisecond

	maxBufferSize = 16 * 1024
)

var (
	choiceRe          = regexp.MustCompile(`^\s*(?:[>❯]\s*)?(\d+)\.\s+(.+)$`)
	generalApprovalRe = regexp.MustCompile(`(?i)\[y/n\]|\[yes/no\]|\(y\)es\s*/\s*\(n\)o|yes\s*/\s*no|allow\?|do you want to`)

	fileEditRe = regexp.MustCompile(`(?i)(edit|write|modify|create|delete)\s+.*\?|do you want to (edit|write|modify|create|delete)|allow.*(edit|create|delete)`)
	shellRe    = regexp.MustCompile(`(?i)(run|execute)\s+(command|bash|shell)|do you want to run|allow.*(command|bash)|run this command`)
	mcpRe      = regexp.MustCompile(`(?i)mcp\s+tool|do you want to use.*mcp|allow.*mcp`)
)

// Analyzer accumulates recent output and derives the WrapState the
// publisher thread writes. It is shared between the proxy goroutines
// under a mutex; contention is single-digit chunks per second.
type Analyzer struct {
	mu sync.Mutex

	lastOutput time.Time
	lastInput  time.Time
	buf        strings.Builder

	pendingType    agent.WrapApprovalType
	pendingDetails string
	pendingAt      time.Time
	hasPending     bool

	pid    int
	paneID string
}

// NewAnalyzer returns an Analyzer for the wrapped child.
func NewAnalyzer(pid int, paneID string) *Analyzer {
	now := time.Now()
	return &Analyzer{lastOutput: now, lastInput: now, pid: pid, paneID: paneID}
}

// ProcessOutput feeds a decoded output chunk: stamp the output clock,
// append to the ring, and rescan for approval patterns.
func (a *Analyzer) ProcessOutput(data string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastOutput = time.Now()
	a.buf.WriteString(data)
	if a.buf.Len() > maxBufferSize {
		a.truncateBuffer()
	}
	a.detectApproval()
}

// truncateBuffer drops the front half of the ring on a UTF-8
// boundary.
func (a *Analyzer) truncateBuffer() {
	s := a.buf.String()
	drainTo := len(s) - maxBufferSize/2
	for drainTo < len(s) && !utf8Start(s[drainTo]) {
		drainTo++
	}
	a.buf.Reset()
	a.buf.WriteString(s[drainTo:])
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// ProcessInput marks user input: the user has responded, so any
// pending approval and the buffered output that produced it are
// stale and must not re-trigger.
func (a *Analyzer) ProcessInput(_ []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastInput = time.Now()
	a.hasPending = false
	a.buf.Reset()
}

// State derives the current WrapState: recent output means
// Processing; a settled approval means AwaitingApproval; otherwise
// Idle.
func (a *Analyzer) State() agent.WrapState {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	st := agent.WrapState{
		Status:       agent.WrapStatusProcessing,
		Choices:      []string{},
		LastOutputMs: a.lastOutput.UnixMilli(),
		LastInputMs:  a.lastInput.UnixMilli(),
		PID:          a.pid,
		PaneID:       a.paneID,
	}

	if now.Sub(a.lastOutput) < processingTimeout {
		return st
	}

	if a.hasPending {
		if now.Sub(a.pendingAt) < ApprovalSettleWindow {
			// Still settling; report Processing.
			return st
		}
		st.Status = agent.WrapStatusAwaitingApproval
		t := a.pendingType
		st.ApprovalType = &t
		st.Details = a.pendingDetails
		if t == agent.WrapApprovalUserQuestion {
			choices, multi, cursor := a.extractChoices()
			st.Choices = choices
			st.MultiSelect = multi
			st.CursorPosition = cursor
		}
		return st
	}

	st.Status = agent.WrapStatusIdle
	return st
}

// detectApproval scans the ring for the three approval shapes, most
// specific first. Caller holds the mutex.
func (a *Analyzer) detectApproval() {
	content := a.buf.String()

	if detectUserQuestion(content) {
		if !a.hasPending || a.pendingType != agent.WrapApprovalUserQuestion {
			a.setPending(agent.WrapApprovalUserQuestion, "")
		}
		return
	}

	if detectYesNoButtons(content) {
		if !a.hasPending {
			a.setPending(determineApprovalType(content), "")
		}
		return
	}

	if matchesRecentApproval(content) {
		if !a.hasPending {
			a.setPending(determineApprovalType(content), "")
		}
		return
	}

	a.hasPending = false
}

func (a *Analyzer) setPending(t agent.WrapApprovalType, details string) {
	a.pendingType = t
	a.pendingDetails = details
	a.pendingAt = time.Now()
	a.hasPending = true
}

// detectUserQuestion: at least two consecutive numbered choices with
// a cursor marker, in the last 25 lines.
func detectUserQuestion(content string) bool {
	lines := strings.Split(content, "\n")
	if len(lines) < 3 {
		return false
	}
	if len(lines) > 25 {
		lines = lines[len(lines)-25:]
	}

	consecutive := 0
	hasCursor := false
	expected := 1

	for _, line := range lines {
		m := choiceRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num := atoi(m[1])
		switch {
		case num == expected:
			consecutive++
			expected++
			if cursorPrefixed(line) {
				hasCursor = true
			}
		case num == 1:
			consecutive = 1
			expected = 2
			hasCursor = cursorPrefixed(line)
		}
	}
	return consecutive >= 2 && hasCursor
}

func cursorPrefixed(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "❯") || strings.HasPrefix(t, ">")
}

// detectYesNoButtons: a short Yes line and a short No line within
// four lines of each other near the tail.
func detectYesNoButtons(content string) bool {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return false
	}
	if len(lines) > 8 {
		lines = lines[len(lines)-8:]
	}

	yesIdx, noIdx := -1, -1
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" || len(t) > 40 {
			continue
		}
		if t == "Yes" || strings.HasPrefix(t, "Yes,") || strings.HasPrefix(t, "Yes ") {
			yesIdx = i
		}
		if t == "No" || strings.HasPrefix(t, "No,") || strings.HasPrefix(t, "No ") {
			noIdx = i
		}
	}
	if yesIdx < 0 || noIdx < 0 {
		return false
	}
	d := yesIdx - noIdx
	if d < 0 {
		d = -d
	}
	return d <= 4
}

// matchesRecentApproval requires the generic pattern in the last 10
// lines, not just anywhere in the ring.
func matchesRecentApproval(content string) bool {
	if !generalApprovalRe.MatchString(content) {
		return false
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	return generalApprovalRe.MatchString(strings.Join(lines, "\n"))
}

// determineApprovalType classifies the pending approval from the
// ring's tail. Create and delete fold into file_edit on the wire;
// the distinction doesn't change the approval flow.
func determineApprovalType(content string) agent.WrapApprovalType {
	recent := content
	if len(recent) > 2000 {
		start := len(recent) - 2000
		for start < len(recent) && !utf8Start(recent[start]) {
			start++
		}
		recent = recent[start:]
	}
	switch {
	case fileEditRe.MatchString(recent):
		return agent.WrapApprovalFileEdit
	case shellRe.MatchString(recent):
		return agent.WrapApprovalShellCommand
	case mcpRe.MatchString(recent):
		return agent.WrapApprovalMcpTool
	case detectYesNoButtons(recent):
		return agent.WrapApprovalYesNo
	default:
		return agent.WrapApprovalOther
	}
}

// extractChoices pulls the numbered choice list out of the ring for
// the user_question state. Caller holds the mutex.
func (a *Analyzer) extractChoices() (choices []string, multi bool, cursor int) {
	lines := strings.Split(a.buf.String(), "\n")
	if len(lines) > 25 {
		lines = lines[len(lines)-25:]
	}

	expected := 1
	for _, line := range lines {
		m := choiceRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num := atoi(m[1])
		if num == 1 && len(choices) > 0 {
			choices = choices[:0]
			cursor = 0
			expected = 1
		}
		if num != expected {
			continue
		}
		choices = append(choices, strings.TrimSpace(m[2]))
		if cursorPrefixed(line) {
			cursor = num
		}
		expected++
	}

	joined := strings.ToLower(strings.Join(lines, "\n"))
	multi = strings.Contains(joined, "space to") || strings.Contains(joined, "toggle") ||
		strings.Contains(joined, "select all") || strings.Contains(joined, "multi")

	if choices == nil {
		choices = []string{}
	}
	return choices, multi, cursor
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}
