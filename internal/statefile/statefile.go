// Package statefile implements the PTY wrapper's side of the IPC
// contract: an atomically-written per-pane JSON file under a shared
// temp directory, read by the poller and removed when the wrapper
// exits.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tmai/tmai/internal/agent"
)

const dirName = "tmai"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Root returns the shared state-file directory, creating it with
// mode 0700 if it does not yet exist.
func Root() (string, error) {
	root := filepath.Join(os.TempDir(), dirName)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return "", fmt.Errorf("statefile: create root: %w", err)
	}
	return root, nil
}

// File manages one pane's state file. Close removes it; callers
// should defer Close immediately after New succeeds.
type File struct {
	id   string
	path string
}

// New validates id against the path-traversal guard and prepares the
// file's path. It does not write anything until the first Write call.
func New(id string) (*File, error) {
	if id == "" || !idPattern.MatchString(id) {
		return nil, fmt.Errorf("statefile: invalid id %q", id)
	}
	root, err := Root()
	if err != nil {
		return nil, err
	}
	return &File{id: id, path: filepath.Join(root, id+".state")}, nil
}

// Write atomically replaces the state file's contents: write a
// temp file with exclusive create, fsync, then rename over the
// target so readers always observe a complete JSON document.
func (f *File) Write(state agent.WrapState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statefile: marshal: %w", err)
	}

	tmp := f.path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		// A stale .tmp from a crashed prior run; clear it and retry once.
		if os.IsExist(err) {
			_ = os.Remove(tmp)
			fh, err = os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		}
		if err != nil {
			return fmt.Errorf("statefile: create temp: %w", err)
		}
	}

	if _, err := fh.Write(data); err != nil {
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("statefile: write: %w", err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("statefile: fsync: %w", err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statefile: close: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statefile: rename: %w", err)
	}
	return nil
}

// Close removes the state file. Go has no destructor equivalent to
// Rust's Drop, so the PTY runner must defer this explicitly.
func (f *File) Close() error {
	err := os.Remove(f.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Read parses the state file for id, if present. A missing file is
// not an error: callers treat it as "no IPC state available".
func Read(id string) (*agent.WrapState, error) {
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("statefile: invalid id %q", id)
	}
	root, err := Root()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(root, id+".state"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ws agent.WrapState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("statefile: parse %s: %w", id, err)
	}
	return &ws, nil
}

// Exists reports whether a state file is present for id.
func Exists(id string) bool {
	if !idPattern.MatchString(id) {
		return false
	}
	root, err := Root()
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(root, id+".state"))
	return err == nil
}

// List returns the ids of every state file currently present.
func List() ([]string, error) {
	root, err := Root()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".state" {
			ids = append(ids, name[:len(name)-len(".state")])
		}
	}
	return ids, nil
}

// NowMillis returns the current time as Unix milliseconds, matching
// the WrapState timestamp fields' unit.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
