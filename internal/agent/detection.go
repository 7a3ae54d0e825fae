package agent

// DetectionContext carries ambient information a detector may need
// beyond the raw title/screen text: the pane's working directory (to
// find a per-project settings file) and a settings cache resolving
// custom spinner verbs. It lives here rather than in internal/detect
// so the per-agent detector packages can reference it without
// importing their own registry.
type DetectionContext struct {
	CWD      string
	Settings SettingsLookup
}

// SettingsLookup resolves per-project detector overrides (e.g. custom
// Claude Code spinner verbs) from a cwd. Implementations cache by cwd
// with time-based invalidation.
type SettingsLookup interface {
	SpinnerVerbs(cwd string) []string
}
