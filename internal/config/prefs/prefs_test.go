package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	if err := InitWithDir(filepath.Join(tmpDir, ".config", "tmai")); err != nil {
		t.Fatalf("InitWithDir() failed: %v", err)
	}

	if current == nil {
		t.Fatal("current should be initialized")
	}
	if current.SortMode != "status" {
		t.Errorf("default SortMode = %q, want status", current.SortMode)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	path = filepath.Join(tmpDir, "nonexistent", "state.json")

	if err := Load(); err != nil {
		t.Fatalf("Load() for missing file should not error, got %v", err)
	}
	if current == nil || current.SortMode != "status" {
		t.Error("Load() should fall back to defaults")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	path = filepath.Join(tmpDir, "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Load(); err == nil {
		t.Error("Load() should error on invalid JSON")
	}
}

func TestSave_NilCurrent(t *testing.T) {
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	current = nil
	path = "/tmp/nonexistent/state.json"

	if err := Save(); err != nil {
		t.Fatalf("Save() with nil current should not error, got %v", err)
	}
}

func TestSetSortMode(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	path = filepath.Join(tmpDir, "state.json")
	current = &Prefs{SortMode: "status"}

	if err := SetSortMode("name"); err != nil {
		t.Fatalf("SetSortMode() failed: %v", err)
	}
	if GetSortMode() != "name" {
		t.Errorf("GetSortMode() = %q, want name", GetSortMode())
	}

	data, _ := os.ReadFile(path)
	var loaded Prefs
	_ = json.Unmarshal(data, &loaded)
	if loaded.SortMode != "name" {
		t.Errorf("persisted SortMode = %q, want name", loaded.SortMode)
	}
}

func TestSetSelected_InitializesNilState(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	path = filepath.Join(tmpDir, "state.json")
	current = nil

	if err := SetSelected("agent-1"); err != nil {
		t.Fatalf("SetSelected() failed: %v", err)
	}
	if current == nil || current.Selected != "agent-1" {
		t.Error("SetSelected() should initialize current and set the id")
	}
}

func TestSetTeamOverviewShown(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	path = filepath.Join(tmpDir, "state.json")
	current = &Prefs{}

	if err := SetTeamOverviewShown(true); err != nil {
		t.Fatalf("SetTeamOverviewShown() failed: %v", err)
	}
	if !GetTeamOverviewShown() {
		t.Error("GetTeamOverviewShown() should be true")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	path = filepath.Join(tmpDir, "state.json")
	current = &Prefs{SortMode: "status"}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			mode := "status"
			if n%2 == 0 {
				mode = "name"
			}
			if err := SetSortMode(mode); err != nil {
				errs <- err
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = GetSortMode()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent access error: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	originalPath := path
	originalCurrent := current
	defer func() { path = originalPath; current = originalCurrent }()

	path = filepath.Join(tmpDir, "state.json")
	current = &Prefs{SortMode: "name", Selected: "agent-2", TeamOverviewShown: true}
	if err := Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	current = nil
	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if current.SortMode != "name" || current.Selected != "agent-2" || !current.TeamOverviewShown {
		t.Errorf("round-trip mismatch: %+v", current)
	}
}
