package approve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// CommandJudge shells out to a configured executable: the Request is
// written to its stdin as JSON and the Result is decoded from its
// stdout. Which model answers is the command's business; the core
// only enforces the timeout and the wire shape.
type CommandJudge struct {
	command string
	args    []string
}

// NewCommandJudge builds a CommandJudge for the configured command.
func NewCommandJudge(command string, args []string) *CommandJudge {
	return &CommandJudge{command: command, args: args}
}

// Judge runs the external command once.
func (j *CommandJudge) Judge(req Request, timeout time.Duration) (Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("approve: marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, j.command, j.args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("approve: judge command: %w: %s", err, stderr.String())
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return Result{}, fmt.Errorf("approve: decode judgment: %w", err)
	}
	if res.ElapsedMs == 0 {
		res.ElapsedMs = time.Since(start).Milliseconds()
	}
	switch res.Decision {
	case DecisionApprove, DecisionReject, DecisionUncertain:
	default:
		return Result{}, fmt.Errorf("approve: unknown decision %q", res.Decision)
	}
	return res, nil
}

// Chain tries the rule engine first and escalates to the LLM judge
// only when the rules abstain (hybrid mode). A nil escalation judge
// makes the chain rules-only.
type Chain struct {
	rules    *RuleEngine
	escalate Judge
}

// NewChain builds a Chain.
func NewChain(rules *RuleEngine, escalate Judge) *Chain {
	return &Chain{rules: rules, escalate: escalate}
}

// Judge runs the chain.
func (c *Chain) Judge(req Request, timeout time.Duration) (Result, error) {
	res, err := c.rules.Judge(req, timeout)
	if err != nil {
		return res, err
	}
	if res.Decision != DecisionUncertain || c.escalate == nil {
		return res, nil
	}
	return c.escalate.Judge(req, timeout)
}
