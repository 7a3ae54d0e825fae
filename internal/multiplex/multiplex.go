// Package multiplex is a thin, uncached wrapper around the tmux CLI.
// It performs no retries: every non-zero exit becomes a transient
// error carrying the process's stderr, for the caller (the poller)
// to handle with its own backoff.
package multiplex

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultCaptureLines = 100

// execTimeout bounds every tmux invocation so a wedged tmux server
// cannot hang the poller indefinitely.
const execTimeout = 3 * time.Second

// Client talks to a tmux server via subprocess calls.
type Client struct {
	captureLines int
}

// New returns a Client using the default capture depth.
func New() *Client { return &Client{captureLines: defaultCaptureLines} }

// WithCaptureLines returns a Client that captures captureLines lines
// of pane history instead of the default 100.
func WithCaptureLines(captureLines int) *Client {
	if captureLines <= 0 {
		captureLines = defaultCaptureLines
	}
	return &Client{captureLines: captureLines}
}

// IsAvailable reports whether a tmux server is reachable.
func (c *Client) IsAvailable() bool {
	_, err := c.run(context.Background(), "list-sessions")
	return err == nil
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// paneListFormat captures everything the poller needs in a single
// list-panes call: whether the session is attached, the addressable
// target, pane metadata, and the multiplexer's internal pane id
// (used as the state-file key, distinct from Target).
const paneListFormat = "#{session_attached}\t#{session_name}:#{window_index}.#{pane_index}\t#{window_name}\t#{pane_current_command}\t#{pane_pid}\t#{pane_title}\t#{pane_current_path}\t#{pane_id}"

// ListAttachedPanes lists panes belonging only to attached sessions.
func (c *Client) ListAttachedPanes(ctx context.Context) ([]PaneInfo, error) {
	out, err := c.run(ctx, "list-panes", "-a", "-F", paneListFormat)
	if err != nil {
		return nil, err
	}
	var panes []PaneInfo
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		attached, rest, ok := strings.Cut(line, "\t")
		if !ok || attached == "0" {
			continue
		}
		if p, ok := parsePane(rest); ok {
			panes = append(panes, p)
		}
	}
	return panes, nil
}

// ListAllPanes lists every pane, including those in detached
// sessions — needed for team scanning, which may reference sessions
// the operator isn't currently attached to.
func (c *Client) ListAllPanes(ctx context.Context) ([]PaneInfo, error) {
	out, err := c.run(ctx, "list-panes", "-a", "-F", paneListFormat)
	if err != nil {
		return nil, err
	}
	var panes []PaneInfo
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		_, rest, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		if p, ok := parsePane(rest); ok {
			panes = append(panes, p)
		}
	}
	return panes, nil
}

func parsePane(line string) (PaneInfo, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return PaneInfo{}, false
	}
	target := fields[0]
	session, winPane, ok := strings.Cut(target, ":")
	if !ok {
		return PaneInfo{}, false
	}
	winStr, paneStr, ok := strings.Cut(winPane, ".")
	if !ok {
		return PaneInfo{}, false
	}
	windowIndex, err := strconv.Atoi(winStr)
	if err != nil {
		return PaneInfo{}, false
	}
	paneIndex, err := strconv.Atoi(paneStr)
	if err != nil {
		return PaneInfo{}, false
	}
	pid, _ := strconv.Atoi(fields[3])

	return PaneInfo{
		Target:      target,
		Session:     session,
		WindowIndex: windowIndex,
		PaneIndex:   paneIndex,
		WindowName:  fields[1],
		Command:     fields[2],
		PID:         pid,
		Title:       fields[4],
		CWD:         fields[5],
		PaneID:      strings.TrimPrefix(fields[6], "%"),
	}, true
}

// CapturePane returns the last N lines of a pane's screen, ANSI
// escape sequences included, for preview rendering.
func (c *Client) CapturePane(ctx context.Context, target string) (string, error) {
	return c.run(ctx, "capture-pane", "-p", "-t", target, "-S", fmt.Sprintf("-%d", c.captureLines), "-e")
}

// CapturePanePlain returns the same content with ANSI stripped, for
// detection.
func (c *Client) CapturePanePlain(ctx context.Context, target string) (string, error) {
	return c.run(ctx, "capture-pane", "-p", "-t", target, "-S", fmt.Sprintf("-%d", c.captureLines))
}

// GetPaneTitle returns the pane's current title.
func (c *Client) GetPaneTitle(ctx context.Context, target string) (string, error) {
	out, err := c.run(ctx, "display-message", "-p", "-t", target, "#{pane_title}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GetCurrentLocation returns the session name and window index of the
// tmux client this process is itself attached to, if any.
func (c *Client) GetCurrentLocation(ctx context.Context) (session string, window int, err error) {
	out, err := c.run(ctx, "display-message", "-p", "#{session_name}\t#{window_index}")
	if err != nil {
		return "", 0, err
	}
	s, w, ok := strings.Cut(strings.TrimSpace(out), "\t")
	if !ok {
		return "", 0, fmt.Errorf("multiplex: unexpected display-message output %q", out)
	}
	idx, _ := strconv.Atoi(w)
	return s, idx, nil
}

// SendKeys sends a named key (tmux key vocabulary: Enter, Space, Up,
// BSpace, C-<ch>, ...) to target.
func (c *Client) SendKeys(ctx context.Context, target, keys string) error {
	_, err := c.run(ctx, "send-keys", "-t", target, keys)
	return err
}

// SendKeysLiteral sends raw text with no key-name interpretation.
func (c *Client) SendKeysLiteral(ctx context.Context, target, text string) error {
	_, err := c.run(ctx, "send-keys", "-t", target, "-l", text)
	return err
}

// FocusPane selects target's window, then the pane itself.
func (c *Client) FocusPane(ctx context.Context, target string) error {
	windowTarget := target
	if i := strings.LastIndex(target, "."); i >= 0 {
		windowTarget = target[:i]
	}
	if _, err := c.run(ctx, "select-window", "-t", windowTarget); err != nil {
		return err
	}
	_, err := c.run(ctx, "select-pane", "-t", target)
	return err
}

// KillPane destroys target.
func (c *Client) KillPane(ctx context.Context, target string) error {
	_, err := c.run(ctx, "kill-pane", "-t", target)
	return err
}

// NewSession creates a detached session named name, rooted at cwd.
func (c *Client) NewSession(ctx context.Context, name, cwd string) error {
	_, err := c.run(ctx, "new-session", "-d", "-s", name, "-c", cwd)
	return err
}

// NewWindow creates a window in session, rooted at cwd, returning its
// target.
func (c *Client) NewWindow(ctx context.Context, session, cwd string) (string, error) {
	out, err := c.run(ctx, "new-window", "-t", session, "-c", cwd, "-P", "-F", "#{session_name}:#{window_index}.#{pane_index}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SplitWindow splits the current window in session, rooted at cwd,
// returning the new pane's target.
func (c *Client) SplitWindow(ctx context.Context, session, cwd string) (string, error) {
	out, err := c.run(ctx, "split-window", "-t", session, "-c", cwd, "-P", "-F", "#{session_name}:#{window_index}.#{pane_index}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RunCommand runs an arbitrary shell command inside target's pane.
func (c *Client) RunCommand(ctx context.Context, target, command string) error {
	return c.SendKeysLiteral(ctx, target, command+"\n")
}
