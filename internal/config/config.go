// Package config loads and saves tmai's settings: poll cadence, capture
// sizing, per-agent detector overrides, the auto-approve rule engine's
// allow-flags, the optional LLM judge, and the audit log.
package config

import "time"

// Config is the fully-resolved settings tree, always complete (every
// field populated from Default() then overlaid with whatever the user's
// file specifies).
type Config struct {
	Poll    PollConfig    `json:"poll"`
	Detect  DetectConfig  `json:"detect"`
	Approve ApproveConfig `json:"approve"`
	Audit   AuditConfig   `json:"audit"`
}

// PollConfig controls the monitor's capture cadence. The passthrough
// interval applies while the TUI forwards keystrokes directly to the
// focused pane and the operator expects near-live feedback.
type PollConfig struct {
	Interval            time.Duration `json:"interval"`
	PassthroughInterval time.Duration `json:"passthroughInterval"`
	CaptureLines        int           `json:"captureLines"`
	AttachedOnly        bool          `json:"attachedOnly"`
}

// DetectConfig holds per-agent-kind detector regex overrides, keyed by
// agent kind ("claude-code", "codex", "gemini-cli", "opencode"). An
// override replaces the built-in pattern set for that kind wholesale;
// partial overrides are not merged field-by-field.
type DetectConfig struct {
	PatternOverrides map[string]AgentPatternOverride `json:"patternOverrides,omitempty"`
}

// AgentPatternOverride replaces the built-in screen-scrape patterns for
// one agent kind.
type AgentPatternOverride struct {
	AwaitingApproval []string `json:"awaitingApproval,omitempty"`
	Processing       []string `json:"processing,omitempty"`
	Idle             []string `json:"idle,omitempty"`
}

// ApproveConfig controls the auto-approve rule engine and optional LLM
// judge escalation.
type ApproveConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedTypes     []string `json:"allowedTypes,omitempty"`
	AllowRead        bool     `json:"allowRead"`
	AllowTests       bool     `json:"allowTests"`
	AllowFetch       bool     `json:"allowFetch"`
	AllowGitReadonly bool     `json:"allowGitReadonly"`
	AllowFormatLint  bool     `json:"allowFormatLint"`
	AllowPatterns    []string `json:"allowPatterns,omitempty"`

	Judge JudgeConfig `json:"judge"`
}

// JudgeConfig configures the optional LLM judge escalation path used
// when no rule matches.
type JudgeConfig struct {
	Enabled       bool          `json:"enabled"`
	Command       string        `json:"command,omitempty"`
	Args          []string      `json:"args,omitempty"`
	Timeout       time.Duration `json:"timeout"`
	MaxConcurrent int           `json:"maxConcurrent"`
	Cooldown      time.Duration `json:"cooldown"`
}

// AuditConfig controls the ndjson audit log.
type AuditConfig struct {
	Enabled           bool               `json:"enabled"`
	MaxSizeBytes      int64              `json:"maxSizeBytes"`
	SensitivePatterns []SensitivePattern `json:"sensitivePatterns,omitempty"`
}

// SensitivePattern is a named regex masked out of audit log text before
// it is written to disk.
type SensitivePattern struct {
	Name  string `json:"name"`
	Regex string `json:"regex"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Poll: PollConfig{
			Interval:            500 * time.Millisecond,
			PassthroughInterval: 100 * time.Millisecond,
			CaptureLines:        100,
			AttachedOnly:        false,
		},
		Detect: DetectConfig{},
		Approve: ApproveConfig{
			Enabled: false,
			AllowedTypes: []string{
				"file_edit", "file_create", "file_delete",
				"shell_command", "mcp_tool", "user_question", "other",
			},
			AllowRead:        true,
			AllowTests:       true,
			AllowFetch:       false,
			AllowGitReadonly: true,
			AllowFormatLint:  true,
			Judge: JudgeConfig{
				Enabled:       false,
				Timeout:       10 * time.Second,
				MaxConcurrent: 3,
				Cooldown:      10 * time.Second,
			},
		},
		Audit: AuditConfig{
			Enabled:      true,
			MaxSizeBytes: 10 * 1024 * 1024,
			SensitivePatterns: []SensitivePattern{
				{Name: "openai_api_key", Regex: `sk-[A-Za-z0-9]{20,}`},
				{Name: "bearer_token", Regex: `(?i)bearer\s+[A-Za-z0-9._-]{10,}`},
				{Name: "aws_access_key", Regex: `AKIA[0-9A-Z]{16}`},
			},
		},
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return errInvalid("poll.interval must be positive")
	}
	if c.Poll.PassthroughInterval <= 0 {
		return errInvalid("poll.passthroughInterval must be positive")
	}
	if c.Poll.CaptureLines <= 0 {
		return errInvalid("poll.captureLines must be positive")
	}
	if c.Approve.Judge.Enabled && c.Approve.Judge.Command == "" {
		return errInvalid("approve.judge.command is required when approve.judge.enabled is true")
	}
	if c.Approve.Judge.MaxConcurrent <= 0 {
		return errInvalid("approve.judge.maxConcurrent must be positive")
	}
	for _, p := range c.Audit.SensitivePatterns {
		if p.Name == "" || p.Regex == "" {
			return errInvalid("audit.sensitivePatterns entries require both name and regex")
		}
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalid(msg string) error { return configError(msg) }
