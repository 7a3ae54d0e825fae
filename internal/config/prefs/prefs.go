// Package prefs persists a thin slice of operator preferences across
// restarts: the last sort mode, the last-selected agent id, and the
// team-overview toggle. Everything else about a run is rediscovered
// fresh from tmux and state files on each startup.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Prefs holds persistent operator preferences.
type Prefs struct {
	SortMode          string `json:"sortMode,omitempty"`
	Selected          string `json:"selected,omitempty"`
	TeamOverviewShown bool   `json:"teamOverviewShown,omitempty"`
}

var (
	current *Prefs
	mu      sync.RWMutex
	path    string
)

// Init loads preferences from the default location.
func Init() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return InitWithDir(filepath.Join(home, ".config", "tmai"))
}

// InitWithDir loads preferences from a specified directory.
// This is primarily for testing to avoid reading real user state.
func InitWithDir(dir string) error {
	path = filepath.Join(dir, "state.json")
	return Load()
}

// Load reads preferences from disk.
func Load() error {
	mu.Lock()
	defer mu.Unlock()

	current = &Prefs{
		SortMode: "status",
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // no prefs file yet, use defaults
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, current)
}

// Save writes preferences to disk.
func Save() error {
	mu.RLock()
	defer mu.RUnlock()

	if current == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetSortMode returns the saved agent sort mode.
func GetSortMode() string {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil || current.SortMode == "" {
		return "status"
	}
	return current.SortMode
}

// SetSortMode saves the agent sort mode preference.
func SetSortMode(mode string) error {
	mu.Lock()
	if current == nil {
		current = &Prefs{}
	}
	current.SortMode = mode
	mu.Unlock()
	return Save()
}

// GetSelected returns the last-selected agent id, if any.
func GetSelected() string {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return ""
	}
	return current.Selected
}

// SetSelected saves the last-selected agent id.
func SetSelected(id string) error {
	mu.Lock()
	if current == nil {
		current = &Prefs{}
	}
	current.Selected = id
	mu.Unlock()
	return Save()
}

// GetTeamOverviewShown returns whether the team overview panel is expanded.
func GetTeamOverviewShown() bool {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return false
	}
	return current.TeamOverviewShown
}

// SetTeamOverviewShown saves the team overview panel toggle.
func SetTeamOverviewShown(shown bool) error {
	mu.Lock()
	if current == nil {
		current = &Prefs{}
	}
	current.TeamOverviewShown = shown
	mu.Unlock()
	return Save()
}
