package audit

import (
	"regexp"

	"github.com/tmai/tmai/internal/config"
)

// Masker redacts API keys and tokens from text before it leaves the
// process: both audit screen_context fields and the LLM judge's
// prompt pass through the same instance, so the pattern table is the
// single contract for what counts as sensitive.
type Masker struct {
	patterns []maskPattern
}

type maskPattern struct {
	name string
	re   *regexp.Regexp
}

// builtinPatterns covers the common credential shapes regardless of
// what the user configures.
var builtinPatterns = []config.SensitivePattern{
	{Name: "anthropic_api_key", Regex: `sk-ant-[A-Za-z0-9_-]{20,}`},
	{Name: "openai_api_key", Regex: `sk-[A-Za-z0-9]{20,}`},
	{Name: "github_token", Regex: `gh[pousr]_[A-Za-z0-9]{36,}`},
	{Name: "aws_access_key", Regex: `AKIA[0-9A-Z]{16}`},
	{Name: "bearer_token", Regex: `(?i)bearer\s+[A-Za-z0-9._-]{10,}`},
	{Name: "generic_secret", Regex: `(?i)(api[_-]?key|secret|token|password)\s*[=:]\s*\S{8,}`},
}

// NewMasker compiles the built-in patterns merged with the user's
// configured extras. Invalid user regexes are skipped.
func NewMasker(extra []config.SensitivePattern) *Masker {
	m := &Masker{}
	for _, p := range append(append([]config.SensitivePattern{}, builtinPatterns...), extra...) {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			continue
		}
		m.patterns = append(m.patterns, maskPattern{name: p.Name, re: re})
	}
	return m
}

// Mask replaces every sensitive match with a [masked:<name>] marker.
func (m *Masker) Mask(text string) string {
	for _, p := range m.patterns {
		text = p.re.ReplaceAllString(text, "[masked:"+p.name+"]")
	}
	return text
}
