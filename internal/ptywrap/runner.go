package ptywrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/x/xpty"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/tmai/tmai/internal/agent"
	"github.com/tmai/tmai/internal/statefile"
)

const (
	publishInterval = 100 * time.Millisecond
	resizeInterval  = 100 * time.Millisecond
	joinTimeout     = time.Second
)

// Config describes the wrapped command.
type Config struct {
	Command string
	Args    []string
	// ID keys the state file; empty derives it from the TMUX_PANE
	// environment (stripping the leading %), falling back to a UUID.
	ID   string
	Rows int
	Cols int
}

// DeriveID resolves the state-file id per the derivation order.
func DeriveID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if pane := os.Getenv("TMUX_PANE"); pane != "" {
		return strings.TrimPrefix(pane, "%")
	}
	return uuid.NewString()
}

// Run spawns the command under a pty and proxies until it exits,
// returning the child's exit code unchanged.
func Run(cfg Config) (int, error) {
	rows, cols := cfg.Rows, cfg.Cols
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}
	if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
		cols, rows = w, h
	}

	pty, err := xpty.NewPty(cols, rows)
	if err != nil {
		return 1, fmt.Errorf("ptywrap: open pty: %w", err)
	}
	defer pty.Close()

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	if err := pty.Start(cmd); err != nil {
		return 1, fmt.Errorf("ptywrap: spawn %s: %w", cfg.Command, err)
	}

	id := DeriveID(cfg.ID)
	sf, err := statefile.New(id)
	if err != nil {
		return 1, err
	}
	defer sf.Close()

	analyzer := NewAnalyzer(cmd.Process.Pid, id)

	var running atomic.Bool
	running.Store(true)

	var wg sync.WaitGroup

	// Output proxy: pty master → our stdout, feeding the analyzer
	// with whatever decodes as UTF-8.
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 4096)
		for running.Load() {
			n, err := pty.Read(buf)
			if n > 0 {
				if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
					return
				}
				analyzer.ProcessOutput(string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	// Input proxy: our stdin → pty master.
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 1024)
		for running.Load() {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				analyzer.ProcessInput(buf[:n])
				if _, werr := pty.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					return
				}
				return
			}
		}
	}()

	// State publisher: write the state file only when the derived
	// state changed (timestamps excluded).
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last *agent.WrapState
		ticker := time.NewTicker(publishInterval)
		defer ticker.Stop()
		for running.Load() {
			<-ticker.C
			st := analyzer.State()
			if last == nil || !sameState(*last, st) {
				if err := sf.Write(st); err == nil {
					cp := st
					last = &cp
				}
			}
		}
	}()

	// Resize watcher: follow the outer terminal.
	wg.Add(1)
	go func() {
		defer wg.Done()
		prevCols, prevRows := cols, rows
		ticker := time.NewTicker(resizeInterval)
		defer ticker.Stop()
		for running.Load() {
			<-ticker.C
			if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
				if w != prevCols || h != prevRows {
					_ = pty.Resize(w, h)
					prevCols, prevRows = w, h
				}
			}
		}
	}()

	waitErr := xpty.WaitProcess(context.Background(), cmd)
	state := cmd.ProcessState

	// Final snapshot, then stop the workers. The input proxy may be
	// parked in a blocking stdin read; join with a deadline and leak
	// it rather than hang termination.
	_ = sf.Write(analyzer.State())
	running.Store(false)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
	}

	if state != nil {
		return state.ExitCode(), nil
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 1, waitErr
	}
	return 0, nil
}

// sameState compares two WrapStates ignoring the timestamp fields.
func sameState(a, b agent.WrapState) bool {
	a.LastOutputMs, b.LastOutputMs = 0, 0
	a.LastInputMs, b.LastInputMs = 0, 0
	return reflect.DeepEqual(a, b)
}
