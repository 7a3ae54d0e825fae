package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	configDir  = ".config/tmai"
	configFile = "config.json"
)

// rawConfig is the JSON-unmarshaling intermediary: every duration field
// is a string and every bool is a pointer, so the merge step can tell
// "absent" from "explicitly false".
type rawConfig struct {
	Poll    rawPollConfig    `json:"poll"`
	Detect  DetectConfig     `json:"detect"`
	Approve rawApproveConfig `json:"approve"`
	Audit   rawAuditConfig   `json:"audit"`
}

type rawPollConfig struct {
	Interval            string `json:"interval"`
	PassthroughInterval string `json:"passthroughInterval"`
	CaptureLines        int    `json:"captureLines"`
	AttachedOnly        *bool  `json:"attachedOnly"`
}

type rawApproveConfig struct {
	Enabled          *bool         `json:"enabled"`
	AllowedTypes     []string      `json:"allowedTypes"`
	AllowRead        *bool         `json:"allowRead"`
	AllowTests       *bool         `json:"allowTests"`
	AllowFetch       *bool         `json:"allowFetch"`
	AllowGitReadonly *bool         `json:"allowGitReadonly"`
	AllowFormatLint  *bool         `json:"allowFormatLint"`
	AllowPatterns    []string      `json:"allowPatterns"`
	Judge            rawJudgeConfig `json:"judge"`
}

type rawJudgeConfig struct {
	Enabled       *bool    `json:"enabled"`
	Command       string   `json:"command"`
	Args          []string `json:"args"`
	Timeout       string   `json:"timeout"`
	MaxConcurrent int      `json:"maxConcurrent"`
	Cooldown      string   `json:"cooldown"`
}

type rawAuditConfig struct {
	Enabled           *bool              `json:"enabled"`
	MaxSizeBytes      int64              `json:"maxSizeBytes"`
	SensitivePatterns []SensitivePattern `json:"sensitivePatterns"`
}

// Load loads configuration from the default location.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from a specific path.
// If path is empty, uses ~/.config/tmai/config.json
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil // return defaults on error
		}
		path = filepath.Join(home, configDir, configFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // return defaults if no config file
		}
		return nil, err
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	mergeConfig(cfg, &raw)

	if cfg.Approve.Judge.Command != "" {
		cfg.Approve.Judge.Command = ExpandPath(cfg.Approve.Judge.Command)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeConfig merges raw config values into the config.
func mergeConfig(cfg *Config, raw *rawConfig) {
	// Poll
	if raw.Poll.Interval != "" {
		if d, err := time.ParseDuration(raw.Poll.Interval); err == nil {
			cfg.Poll.Interval = d
		}
	}
	if raw.Poll.PassthroughInterval != "" {
		if d, err := time.ParseDuration(raw.Poll.PassthroughInterval); err == nil {
			cfg.Poll.PassthroughInterval = d
		}
	}
	if raw.Poll.CaptureLines > 0 {
		cfg.Poll.CaptureLines = raw.Poll.CaptureLines
	}
	if raw.Poll.AttachedOnly != nil {
		cfg.Poll.AttachedOnly = *raw.Poll.AttachedOnly
	}

	// Detect: override maps are replaced wholesale per agent kind, not merged field-by-field
	if raw.Detect.PatternOverrides != nil {
		if cfg.Detect.PatternOverrides == nil {
			cfg.Detect.PatternOverrides = make(map[string]AgentPatternOverride)
		}
		for kind, override := range raw.Detect.PatternOverrides {
			cfg.Detect.PatternOverrides[kind] = override
		}
	}

	// Approve
	if raw.Approve.Enabled != nil {
		cfg.Approve.Enabled = *raw.Approve.Enabled
	}
	if len(raw.Approve.AllowedTypes) > 0 {
		cfg.Approve.AllowedTypes = raw.Approve.AllowedTypes
	}
	if raw.Approve.AllowRead != nil {
		cfg.Approve.AllowRead = *raw.Approve.AllowRead
	}
	if raw.Approve.AllowTests != nil {
		cfg.Approve.AllowTests = *raw.Approve.AllowTests
	}
	if raw.Approve.AllowFetch != nil {
		cfg.Approve.AllowFetch = *raw.Approve.AllowFetch
	}
	if raw.Approve.AllowGitReadonly != nil {
		cfg.Approve.AllowGitReadonly = *raw.Approve.AllowGitReadonly
	}
	if raw.Approve.AllowFormatLint != nil {
		cfg.Approve.AllowFormatLint = *raw.Approve.AllowFormatLint
	}
	if len(raw.Approve.AllowPatterns) > 0 {
		cfg.Approve.AllowPatterns = raw.Approve.AllowPatterns
	}

	// Judge
	if raw.Approve.Judge.Enabled != nil {
		cfg.Approve.Judge.Enabled = *raw.Approve.Judge.Enabled
	}
	if raw.Approve.Judge.Command != "" {
		cfg.Approve.Judge.Command = raw.Approve.Judge.Command
	}
	if len(raw.Approve.Judge.Args) > 0 {
		cfg.Approve.Judge.Args = raw.Approve.Judge.Args
	}
	if raw.Approve.Judge.Timeout != "" {
		if d, err := time.ParseDuration(raw.Approve.Judge.Timeout); err == nil {
			cfg.Approve.Judge.Timeout = d
		}
	}
	if raw.Approve.Judge.MaxConcurrent > 0 {
		cfg.Approve.Judge.MaxConcurrent = raw.Approve.Judge.MaxConcurrent
	}
	if raw.Approve.Judge.Cooldown != "" {
		if d, err := time.ParseDuration(raw.Approve.Judge.Cooldown); err == nil {
			cfg.Approve.Judge.Cooldown = d
		}
	}

	// Audit
	if raw.Audit.Enabled != nil {
		cfg.Audit.Enabled = *raw.Audit.Enabled
	}
	if raw.Audit.MaxSizeBytes > 0 {
		cfg.Audit.MaxSizeBytes = raw.Audit.MaxSizeBytes
	}
	if len(raw.Audit.SensitivePatterns) > 0 {
		cfg.Audit.SensitivePatterns = raw.Audit.SensitivePatterns
	}
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

var testConfigPath string

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if testConfigPath != "" {
		return testConfigPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDir, configFile)
}

// SetTestConfigPath redirects ConfigPath/Save to a fixed path, for tests.
func SetTestConfigPath(path string) { testConfigPath = path }

// ResetTestConfigPath clears an override set by SetTestConfigPath.
func ResetTestConfigPath() { testConfigPath = "" }

// Watcher reloads configuration when the config file changes on disk,
// so detector pattern overrides take effect without a restart.
type Watcher struct {
	fw *fsnotify.Watcher
	ch chan *Config
}

// WatchConfig starts watching the config file at its default path. The
// returned channel receives a freshly loaded Config after each write;
// parse errors are dropped silently and the previous config is kept.
func WatchConfig() (*Watcher, error) {
	path := ConfigPath()
	if path == "" {
		return nil, fmt.Errorf("config: cannot determine home directory")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw, ch: make(chan *Config, 1)}

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadFrom(path)
				if err != nil {
					continue
				}
				select {
				case w.ch <- cfg:
				default:
					<-w.ch
					w.ch <- cfg
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}

// Changes returns the channel of reloaded configs.
func (w *Watcher) Changes() <-chan *Config { return w.ch }

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fw.Close() }
