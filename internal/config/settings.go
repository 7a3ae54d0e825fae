package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// projectSettingsFile is the per-project detector override file,
// discovered relative to an agent pane's working directory.
const projectSettingsFile = ".claude/settings.json"

const settingsTTL = 30 * time.Second

// projectSettings is the slice of the agent's own settings file the
// detectors care about.
type projectSettings struct {
	SpinnerVerbs []string `json:"spinnerVerbs"`
}

type settingsEntry struct {
	verbs     []string
	fetchedAt time.Time
}

// SettingsCache resolves per-project detector overrides (custom
// Claude Code spinner verbs) from a pane's cwd, caching by directory
// with time-based invalidation. It implements agent.SettingsLookup.
type SettingsCache struct {
	mu      sync.Mutex
	entries map[string]settingsEntry
}

// NewSettingsCache returns an empty cache.
func NewSettingsCache() *SettingsCache {
	return &SettingsCache{entries: make(map[string]settingsEntry)}
}

// SpinnerVerbs returns the custom spinner verbs configured for the
// project at cwd, or nil.
func (c *SettingsCache) SpinnerVerbs(cwd string) []string {
	if cwd == "" {
		return nil
	}

	c.mu.Lock()
	if e, ok := c.entries[cwd]; ok && time.Since(e.fetchedAt) < settingsTTL {
		c.mu.Unlock()
		return e.verbs
	}
	c.mu.Unlock()

	verbs := loadSpinnerVerbs(cwd)

	c.mu.Lock()
	c.entries[cwd] = settingsEntry{verbs: verbs, fetchedAt: time.Now()}
	c.mu.Unlock()
	return verbs
}

func loadSpinnerVerbs(cwd string) []string {
	data, err := os.ReadFile(filepath.Join(cwd, projectSettingsFile))
	if err != nil {
		return nil
	}
	var ps projectSettings
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil
	}
	return ps.SpinnerVerbs
}
