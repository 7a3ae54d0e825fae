package approve

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmai/tmai/internal/config"
)

// Approval-prompt shapes: "Allow Read access to /path" and
// "Allow Bash: git status".
var (
	accessRe = regexp.MustCompile(`(?i)Allow\s+(\w+)\s+access\s+to\s+(.+)`)
	colonRe  = regexp.MustCompile(`(?i)Allow\s+([\w\s]+?):\s+(.+)`)
)

// ParsedContext is the operation/target pair extracted from the
// screen's approval prompt.
type ParsedContext struct {
	Operation string
	Target    string
}

// ParseContext scans the last 15 lines for an approval prompt.
func ParseContext(screenContext string) ParsedContext {
	lines := strings.Split(screenContext, "\n")
	if len(lines) > 15 {
		lines = lines[len(lines)-15:]
	}
	text := strings.Join(lines, "\n")

	if m := accessRe.FindStringSubmatch(text); m != nil {
		return ParsedContext{Operation: m[1], Target: strings.TrimSpace(m[2])}
	}
	if m := colonRe.FindStringSubmatch(text); m != nil {
		return ParsedContext{Operation: strings.TrimSpace(m[1]), Target: strings.TrimSpace(m[2])}
	}
	return ParsedContext{}
}

var readCommands = []string{"cat ", "head ", "tail ", "less ", "ls ", "find ", "grep ", "wc "}

var testCommands = []string{
	"cargo test", "npm test", "npm run test", "npx jest", "npx vitest",
	"pytest", "python -m pytest", "go test", "dotnet test", "mvn test", "gradle test",
}

var gitReadonlyCommands = []string{
	"git status", "git log", "git diff", "git branch", "git show", "git blame",
	"git stash list", "git remote -v", "git tag", "git rev-parse", "git ls-files", "git ls-tree",
}

var formatLintCommands = []string{
	"cargo fmt", "cargo clippy", "prettier", "eslint", "rustfmt",
	"black ", "isort ", "gofmt", "go fmt", "biome ", "deno fmt", "deno lint",
}

// RuleEngine makes instant allow decisions. It never denies.
type RuleEngine struct {
	settings config.ApproveConfig
	patterns []*regexp.Regexp
	rawPats  []string
}

// NewRuleEngine compiles the user's allow patterns; invalid regexes
// are skipped.
func NewRuleEngine(settings config.ApproveConfig) *RuleEngine {
	e := &RuleEngine{settings: settings}
	for _, p := range settings.AllowPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		e.patterns = append(e.patterns, re)
		e.rawPats = append(e.rawPats, p)
	}
	return e
}

// Judge evaluates the allow rules; sub-millisecond, no I/O.
func (e *RuleEngine) Judge(req Request, _ time.Duration) (Result, error) {
	start := time.Now()
	parsed := ParseContext(req.ScreenContext)

	if rule, ok := e.checkAllow(req.ScreenContext, parsed); ok {
		return Result{
			Decision:  DecisionApprove,
			Reasoning: "Allowed by rule: " + rule,
			Model:     "rules:" + ruleFamily(rule),
			ElapsedMs: time.Since(start).Milliseconds(),
		}, nil
	}

	return Result{
		Decision:  DecisionUncertain,
		Reasoning: "No matching allow rule",
		Model:     "rules:abstain",
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

func ruleFamily(rule string) string {
	if i := strings.IndexByte(rule, ':'); i >= 0 {
		return rule[:i]
	}
	return "allow"
}

func (e *RuleEngine) checkAllow(screenContext string, parsed ParsedContext) (string, bool) {
	// User patterns take priority over the built-in families.
	for i, re := range e.patterns {
		if re.MatchString(screenContext) {
			return fmt.Sprintf("allow_pattern[%d]: %s", i, e.rawPats[i]), true
		}
	}

	op := strings.ToLower(parsed.Operation)
	tgt := strings.ToLower(parsed.Target)

	if e.settings.AllowRead {
		if op == "read" {
			return "allow_read: Read access", true
		}
		if op == "bash" {
			for _, cmd := range readCommands {
				if strings.HasPrefix(tgt, cmd) || strings.Contains(tgt, " | "+cmd) {
					return "allow_read: " + strings.TrimSpace(cmd), true
				}
			}
		}
	}

	if e.settings.AllowTests && op == "bash" {
		for _, cmd := range testCommands {
			if strings.HasPrefix(tgt, cmd) || strings.Contains(tgt, "&& "+cmd) {
				return "allow_tests: " + cmd, true
			}
		}
	}

	if e.settings.AllowFetch {
		if op == "webfetch" || op == "websearch" {
			return "allow_fetch: " + op, true
		}
		if op == "bash" && strings.HasPrefix(tgt, "curl ") &&
			!strings.Contains(tgt, "-x post") && !strings.Contains(tgt, "--data") && !strings.Contains(tgt, " -d ") {
			return "allow_fetch: curl GET", true
		}
	}

	if e.settings.AllowGitReadonly && op == "bash" {
		for _, cmd := range gitReadonlyCommands {
			if strings.HasPrefix(tgt, cmd) {
				return "allow_git_readonly: " + cmd, true
			}
		}
	}

	if e.settings.AllowFormatLint && op == "bash" {
		for _, cmd := range formatLintCommands {
			if strings.HasPrefix(tgt, cmd) || strings.Contains(tgt, "npx "+cmd) {
				return "allow_format_lint: " + strings.TrimSpace(cmd), true
			}
		}
	}

	return "", false
}
