package builtin

import (
	"context"
	"encoding/json"
	"os"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
	"github.com/kory-ai/workbench-core/internal/tools"
)

type diffInput struct {
	Path       string `json:"path"`
	NewContent string `json:"newContent"`
}

// Diff returns the textual patch/diff preview tool: given a path and a
// proposed new content, it renders the unified diff without writing
// anything. Used by clients to show a confirmation preview before an
// edit/write tool call actually lands.
func Diff() tools.Spec {
	return tools.Spec{
		Name:        "diff",
		Description: "Preview the unified diff between a file's current content and a proposed replacement, without writing it.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}, "newContent": map[string]any{"type": "string"}},
			"required":   []string{"path", "newContent"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in diffInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid diff input", err).WithCode("bad_input")
			}
			abs, err := tc.Resolve(in.Path)
			if err != nil {
				return tools.Result{}, err
			}
			before := ""
			if data, readErr := os.ReadFile(abs); readErr == nil {
				before = string(data)
			} else if !os.IsNotExist(readErr) {
				return tools.Result{}, toolerrors.NewWithCause("failed to read file", readErr).WithCode("io_error")
			}
			return tools.Result{Output: unifiedDiff(in.Path, before, in.NewContent)}, nil
		},
	}
}
