package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Poll.Interval != 500*time.Millisecond {
		t.Errorf("got poll interval %v, want 500ms", cfg.Poll.Interval)
	}
	if cfg.Poll.CaptureLines != 100 {
		t.Errorf("got captureLines %d, want 100", cfg.Poll.CaptureLines)
	}
	if !cfg.Approve.AllowRead {
		t.Error("allowRead should be enabled by default")
	}
	if cfg.Approve.AllowFetch {
		t.Error("allowFetch should be disabled by default")
	}
	if cfg.Approve.Judge.Enabled {
		t.Error("judge should be disabled by default")
	}
	if !cfg.Audit.Enabled {
		t.Error("audit should be enabled by default")
	}
	if len(cfg.Audit.SensitivePatterns) == 0 {
		t.Error("default sensitive pattern table should not be empty")
	}
}

func TestLoadFrom_NonExistent(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.json")
	if err != nil {
		t.Errorf("should not error on missing file: %v", err)
	}
	if cfg == nil {
		t.Error("should return default config")
	}
}

func TestLoadFrom_ValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := []byte(`{
		"poll": {
			"interval": "1s",
			"captureLines": 200,
			"attachedOnly": true
		},
		"approve": {
			"allowFetch": true,
			"allowPatterns": ["allow_pattern[0]: custom"]
		}
	}`)

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Poll.Interval != time.Second {
		t.Errorf("got interval %v, want 1s", cfg.Poll.Interval)
	}
	if cfg.Poll.CaptureLines != 200 {
		t.Errorf("got captureLines %d, want 200", cfg.Poll.CaptureLines)
	}
	if !cfg.Poll.AttachedOnly {
		t.Error("attachedOnly should be true")
	}
	if !cfg.Approve.AllowFetch {
		t.Error("allowFetch should be true")
	}
	// Defaults should still be present for fields not specified
	if !cfg.Approve.AllowGitReadonly {
		t.Error("allowGitReadonly should still be enabled (default)")
	}
}

func TestLoadFrom_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte(`{invalid`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(path)
	if err == nil {
		t.Error("should error on invalid JSON")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input  string
		expect string
	}{
		{"~/bin/judge", filepath.Join(home, "bin/judge")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tc := range tests {
		got := ExpandPath(tc.input)
		if got != tc.expect {
			t.Errorf("ExpandPath(%q) = %q, want %q", tc.input, got, tc.expect)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.Poll.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero poll interval should fail validation")
	}

	cfg = Default()
	cfg.Approve.Judge.Enabled = true
	cfg.Approve.Judge.Command = ""
	if err := cfg.Validate(); err == nil {
		t.Error("enabled judge with no command should fail validation")
	}
}

func TestLoadFrom_DetectOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := []byte(`{
		"detect": {
			"patternOverrides": {
				"claude-code": {
					"awaitingApproval": ["Do you want to proceed\\?"]
				}
			}
		}
	}`)

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	override, ok := cfg.Detect.PatternOverrides["claude-code"]
	if !ok {
		t.Fatal("expected claude-code override to be present")
	}
	if len(override.AwaitingApproval) != 1 {
		t.Errorf("got %d awaitingApproval patterns, want 1", len(override.AwaitingApproval))
	}
}
