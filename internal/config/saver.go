package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// saveConfig is the JSON-marshaling intermediary that uses string durations.
type saveConfig struct {
	Poll    savePollConfig    `json:"poll"`
	Detect  DetectConfig      `json:"detect,omitempty"`
	Approve saveApproveConfig `json:"approve"`
	Audit   saveAuditConfig   `json:"audit"`
}

type savePollConfig struct {
	Interval            string `json:"interval"`
	PassthroughInterval string `json:"passthroughInterval"`
	CaptureLines        int    `json:"captureLines"`
	AttachedOnly        *bool  `json:"attachedOnly"`
}

type saveApproveConfig struct {
	Enabled          *bool          `json:"enabled"`
	AllowedTypes     []string       `json:"allowedTypes,omitempty"`
	AllowRead        *bool          `json:"allowRead"`
	AllowTests       *bool          `json:"allowTests"`
	AllowFetch       *bool          `json:"allowFetch"`
	AllowGitReadonly *bool          `json:"allowGitReadonly"`
	AllowFormatLint  *bool          `json:"allowFormatLint"`
	AllowPatterns    []string       `json:"allowPatterns,omitempty"`
	Judge            saveJudgeConfig `json:"judge"`
}

type saveJudgeConfig struct {
	Enabled       *bool    `json:"enabled"`
	Command       string   `json:"command,omitempty"`
	Args          []string `json:"args,omitempty"`
	Timeout       string   `json:"timeout"`
	MaxConcurrent int      `json:"maxConcurrent"`
	Cooldown      string   `json:"cooldown"`
}

type saveAuditConfig struct {
	Enabled           *bool              `json:"enabled"`
	MaxSizeBytes      int64              `json:"maxSizeBytes"`
	SensitivePatterns []SensitivePattern `json:"sensitivePatterns,omitempty"`
}

// toSaveConfig converts Config to the JSON-serializable format.
func toSaveConfig(cfg *Config) saveConfig {
	return saveConfig{
		Poll: savePollConfig{
			Interval:            cfg.Poll.Interval.String(),
			PassthroughInterval: cfg.Poll.PassthroughInterval.String(),
			CaptureLines:        cfg.Poll.CaptureLines,
			AttachedOnly:        &cfg.Poll.AttachedOnly,
		},
		Detect: cfg.Detect,
		Approve: saveApproveConfig{
			Enabled:          &cfg.Approve.Enabled,
			AllowedTypes:     cfg.Approve.AllowedTypes,
			AllowRead:        &cfg.Approve.AllowRead,
			AllowTests:       &cfg.Approve.AllowTests,
			AllowFetch:       &cfg.Approve.AllowFetch,
			AllowGitReadonly: &cfg.Approve.AllowGitReadonly,
			AllowFormatLint:  &cfg.Approve.AllowFormatLint,
			AllowPatterns:    cfg.Approve.AllowPatterns,
			Judge: saveJudgeConfig{
				Enabled:       &cfg.Approve.Judge.Enabled,
				Command:       cfg.Approve.Judge.Command,
				Args:          cfg.Approve.Judge.Args,
				Timeout:       cfg.Approve.Judge.Timeout.String(),
				MaxConcurrent: cfg.Approve.Judge.MaxConcurrent,
				Cooldown:      cfg.Approve.Judge.Cooldown.String(),
			},
		},
		Audit: saveAuditConfig{
			Enabled:           &cfg.Audit.Enabled,
			MaxSizeBytes:      cfg.Audit.MaxSizeBytes,
			SensitivePatterns: cfg.Audit.SensitivePatterns,
		},
	}
}

// Save writes the config to ~/.config/tmai/config.json
func Save(cfg *Config) error {
	path := ConfigPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	sc := toSaveConfig(cfg)
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
