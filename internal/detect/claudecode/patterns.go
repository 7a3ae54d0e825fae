// Package claudecode implements the Claude Code screen detector: the
// most elaborate of the four, carrying a thirteen-rule precedence
// cascade and a dedicated AskUserQuestion extraction routine.
package claudecode

import "regexp"

// turnDurationRe matches a completed turn banner like "Cooked for 1m
// 6s" or "Brewed for 42s" — a past-tense verb followed by an elapsed
// duration, with no trailing ellipsis (which would mean it's still
// running).
var turnDurationRe = regexp.MustCompile(`(?i)\b[A-Za-zÀ-ÿ]+ed for (\d+m\s*)?\d+s\b`)

var compactedRe = regexp.MustCompile(`✻\s*Conversation compacted`)

var titleCompactingRe = regexp.MustCompile(`(?i)compacting`)

// brailleSpinnerRe matches any Braille pattern character, the glyphs
// a terminal spinner animation cycles through.
var brailleSpinnerRe = regexp.MustCompile(`[\x{2801}-\x{28FF}]`)

// spinnerVerbRe matches a content-area spinner line: a glyph, a
// capitalized present-participle verb, a trailing ellipsis, and an
// optional parenthesized elapsed/token annotation. The ellipsis is
// mandatory — its absence is what distinguishes a completed
// turn-duration banner from an active spinner.
var spinnerVerbRe = regexp.MustCompile(`^\s*[✻✶✽✢✳*]\s+([A-Za-zÀ-ÿ]+)(…|\.{3})\s*(\([^)]*\))?`)

var barePromptLineRe = regexp.MustCompile(`^\s*❯\s*$`)

// Approval-type classifiers for non-question approvals (Yes/No
// buttons, text prompts): pick the most specific operation named in
// the surrounding text.
var (
	approvalEditRe    = regexp.MustCompile(`(?i)(edit|write|modify)\s+.*\?|do you want to (edit|write|modify)|allow.*edit`)
	approvalCreateRe  = regexp.MustCompile(`(?i)create\s+.*\?|do you want to create|allow.*create`)
	approvalDeleteRe  = regexp.MustCompile(`(?i)delete\s+.*\?|do you want to delete|allow.*delete`)
	approvalShellRe   = regexp.MustCompile(`(?i)(run|execute)\s+(command|bash|shell)|do you want to run|allow.*(command|bash)|run this command`)
	approvalMcpRe     = regexp.MustCompile(`(?i)mcp\s+tool|do you want to use.*mcp|allow.*mcp`)
)

var textApprovalRe = regexp.MustCompile(`(?i)\[y/n\]|\(y\)es/\(n\)o|allow\?|do you want to (allow|proceed|continue|run|execute)`)

var tasksHeaderRe = regexp.MustCompile(`Tasks \((\d+) done, (\d+) in progress, (\d+) open\)`)
var tasksInlineRe = regexp.MustCompile(`\b(\d+) tasks? \(`)
var taskBulletRe = regexp.MustCompile(`(?m)^\s*◼`)

var idleGlyphRe = regexp.MustCompile(`✳`)

var errorRe = regexp.MustCompile(`(?i)\berror\b|\bfailed\b|panic:|exception`)

var contextWarningRe = regexp.MustCompile(`Context left until auto-compact:\s*(\d+)%`)

var enterToConfirmRe = regexp.MustCompile(`(?i)enter to confirm`)

// builtinSpinnerVerbs is Claude Code's stock set of present-participle
// verbs its spinner cycles through; a match here is High confidence,
// anything else matching spinnerVerbRe is only Medium (it could be a
// custom verb from a plugin, or coincidental screen text).
var builtinSpinnerVerbs = map[string]bool{
	"Cooking": true, "Brewing": true, "Baking": true, "Simmering": true, "Marinating": true,
	"Percolating": true, "Thinking": true, "Pondering": true, "Noodling": true, "Churning": true,
	"Working": true, "Crafting": true, "Forging": true, "Conjuring": true, "Sautéing": true,
}
