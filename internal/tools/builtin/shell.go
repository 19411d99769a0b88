// Package builtin registers the hand-written tool catalogue every agent
// role can call: shell execution, file manipulation, patch/diff, recursive
// glob/grep, directory listing, web fetch/search, and the two interaction
// tools that escalate to a human or the Manager.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
	"github.com/kory-ai/workbench-core/internal/tools"
)

// denyPatterns enumerates the destructive shell invocations the shell tool
// refuses to run, matched against the command after collapsing whitespace.
// Every entry is a regular expression.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*)\s+/(\s|$)`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|nvme|hd)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
	regexp.MustCompile(`\bchmod\s+(-R\s+)?777\s+/`),
	regexp.MustCompile(`\bchown\s+-R\b.*\s/(\s|$)`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\d*`),
	regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(bash|sh|zsh)\b`),
	regexp.MustCompile(`\beval\s+\$\(`),
	regexp.MustCompile(`/etc/shadow`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\b(shutdown|reboot|init\s+[0-6])\b`),
	regexp.MustCompile(`\bsystemctl\s+(stop|disable|mask)\b`),
	regexp.MustCompile(`\b(gcloud\s+auth|claude\s+login|codex\s+auth|openai\s+login)\b`),
	regexp.MustCompile(`\bxdg-open\b`),
	regexp.MustCompile(`\bopen\s+https?://`),
}

// deniedReason returns a non-empty explanation if cmd matches a denied
// pattern, or "" if the command may run.
func deniedReason(cmd string) string {
	normalized := strings.Join(strings.Fields(cmd), " ")
	for _, pat := range denyPatterns {
		if pat.MatchString(normalized) {
			return "command matches denied pattern: " + pat.String()
		}
	}
	return ""
}

type shellInput struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

type shellOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Shell returns the shell execution tool spec. Commands run through
// /bin/sh -c after being checked against the destructive-pattern deny-list.
func Shell() tools.Spec {
	return tools.Spec{
		Name:        "shell",
		Description: "Run a shell command in the session's working directory.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"command": map[string]any{"type": "string"}, "cwd": map[string]any{"type": "string"}},
			"required":   []string{"command"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in shellInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid shell input", err).WithCode("bad_input")
			}
			if strings.TrimSpace(in.Command) == "" {
				return tools.Result{}, toolerrors.New("command is required").WithCode("bad_input")
			}
			if reason := deniedReason(in.Command); reason != "" {
				return tools.Result{}, toolerrors.New(reason).WithCode("denied_pattern")
			}

			dir := tc.WorkDir
			if in.Cwd != "" {
				resolved, err := tc.Resolve(in.Cwd)
				if err != nil {
					return tools.Result{}, err
				}
				dir = resolved
			}

			cmd := exec.CommandContext(ctx, "/bin/sh", "-c", in.Command)
			cmd.Dir = dir
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			start := time.Now()
			runErr := cmd.Run()
			out := shellOutput{Stdout: stdout.String(), Stderr: stderr.String()}
			if exitErr, ok := runErr.(*exec.ExitError); ok {
				out.ExitCode = exitErr.ExitCode()
			} else if runErr != nil {
				return tools.Result{DurationMs: time.Since(start).Milliseconds()},
					toolerrors.NewWithCause("failed to run command", runErr).WithCode("exec_failed")
			}
			return tools.Result{Output: out, IsError: out.ExitCode != 0, DurationMs: time.Since(start).Milliseconds()}, nil
		},
	}
}
