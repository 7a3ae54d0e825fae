// Package procinfo caches process command lines so the detector
// registry can classify an agent type from argv instead of only the
// pane's reported foreground command, and so it can look one level
// past a shell into the agent it launched.
package procinfo

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ttl bounds how long a cached cmdline is trusted before a fresh
// lookup is made; short enough that a pid reused by the OS is not
// mistaken for its predecessor for long.
const ttl = 2 * time.Second

type entry struct {
	cmdline     string
	childCmdline string
	fetchedAt   time.Time
}

// Cache memoizes pid → cmdline lookups across poll cycles.
type Cache struct {
	mu      sync.Mutex
	entries map[int32]entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[int32]entry)}
}

// Cmdline returns the full command line of pid, or "" if the process
// is gone or inaccessible.
func (c *Cache) Cmdline(pid int) string {
	e := c.lookup(int32(pid))
	return e.cmdline
}

// ChildCmdline returns the command line of pid's first child process
// (e.g. the agent binary running under a shell), or "" if there is
// none.
func (c *Cache) ChildCmdline(pid int) string {
	e := c.lookup(int32(pid))
	return e.childCmdline
}

func (c *Cache) lookup(pid int32) entry {
	c.mu.Lock()
	if e, ok := c.entries[pid]; ok && time.Since(e.fetchedAt) < ttl {
		c.mu.Unlock()
		return e
	}
	c.mu.Unlock()

	e := entry{fetchedAt: time.Now()}

	proc, err := process.NewProcess(pid)
	if err == nil {
		if line, err := proc.Cmdline(); err == nil {
			e.cmdline = line
		}
		if children, err := proc.Children(); err == nil && len(children) > 0 {
			if line, err := children[0].Cmdline(); err == nil {
				e.childCmdline = line
			}
		}
	}

	c.mu.Lock()
	c.entries[pid] = e
	c.mu.Unlock()
	return e
}

// Cleanup drops cached entries whose process no longer exists, so the
// map does not grow without bound across a long-running session.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pid := range c.entries {
		if exists, err := process.PidExists(pid); err != nil || !exists {
			delete(c.entries, pid)
		}
	}
}
