// Package gitinfo collects per-directory git metadata (branch, dirty
// flag, worktree identity) by shelling out to git, with a TTL cache
// so the poller's periodic refresh does not fork git for every pane
// on every cycle.
package gitinfo

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Info is the git metadata attached to a monitored agent.
type Info struct {
	Branch       string
	Dirty        bool
	IsWorktree   bool
	CommonDir    string
	WorktreeName string
}

const cacheTTL = 30 * time.Second

type entry struct {
	info      Info
	ok        bool
	fetchedAt time.Time
}

// Collector caches Collect results by directory.
type Collector struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{entries: make(map[string]entry)}
}

// Lookup returns cached git metadata for dir, refreshing it when the
// cache entry is stale. Non-repositories return ok=false.
func (c *Collector) Lookup(ctx context.Context, dir string) (Info, bool) {
	c.mu.Lock()
	if e, ok := c.entries[dir]; ok && time.Since(e.fetchedAt) < cacheTTL {
		c.mu.Unlock()
		return e.info, e.ok
	}
	c.mu.Unlock()

	info, ok := collect(ctx, dir)

	c.mu.Lock()
	c.entries[dir] = entry{info: info, ok: ok, fetchedAt: time.Now()}
	c.mu.Unlock()
	return info, ok
}

// Cleanup drops stale cache entries.
func (c *Collector) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for dir, e := range c.entries {
		if time.Since(e.fetchedAt) > 2*cacheTTL {
			delete(c.entries, dir)
		}
	}
}

func collect(ctx context.Context, dir string) (Info, bool) {
	branch, err := git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Info{}, false
	}

	var info Info
	info.Branch = branch

	if out, err := git(ctx, dir, "status", "--porcelain"); err == nil {
		info.Dirty = out != ""
	}

	gitDir, err1 := git(ctx, dir, "rev-parse", "--git-dir")
	commonDir, err2 := git(ctx, dir, "rev-parse", "--git-common-dir")
	if err1 == nil && err2 == nil {
		info.CommonDir = commonDir
		info.IsWorktree = filepath.Clean(gitDir) != filepath.Clean(commonDir)
	}

	if top, err := git(ctx, dir, "rev-parse", "--show-toplevel"); err == nil {
		info.WorktreeName = filepath.Base(top)
	}

	return info, true
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}
