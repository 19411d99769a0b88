package builtin

import (
	"context"
	"encoding/json"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
	"github.com/kory-ai/workbench-core/internal/tools"
)

type askUserInput struct {
	Question   string   `json:"question"`
	Options    []string `json:"options,omitempty"`
	AllowOther bool     `json:"allowOther,omitempty"`
}

// AskUser returns the interaction tool that escalates a question to the
// connected human, publishing kory.ask_user and blocking on the correlated
// reply through the pending-prompt table (wired via tc.AskUser).
func AskUser() tools.Spec {
	return tools.Spec{
		Name:        "ask_user",
		Description: "Ask the user a clarifying question and wait for their answer.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question":   map[string]any{"type": "string"},
				"options":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"allowOther": map[string]any{"type": "boolean"},
			},
			"required": []string{"question"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in askUserInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid ask_user input", err).WithCode("bad_input")
			}
			if tc.AskUser == nil {
				return tools.Result{}, toolerrors.New("ask_user is not available in this context").WithCode("unavailable")
			}
			answer, err := tc.AskUser(ctx, in.Question, in.Options, in.AllowOther)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("ask_user failed", err).WithCode("interaction_failed")
			}
			return tools.Result{Output: answer}, nil
		},
	}
}

type askManagerInput struct {
	Question string `json:"question"`
}

// AskManager returns the interaction tool a worker agent uses to escalate
// a question to the session's Manager instead of the human user.
func AskManager() tools.Spec {
	return tools.Spec{
		Name:        "ask_manager",
		Description: "Ask the session's Manager agent a question and wait for its answer.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"question": map[string]any{"type": "string"}},
			"required":   []string{"question"},
		},
		AllowedRoles: []tools.Role{tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in askManagerInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid ask_manager input", err).WithCode("bad_input")
			}
			if tc.AskManager == nil {
				return tools.Result{}, toolerrors.New("ask_manager is not available in this context").WithCode("unavailable")
			}
			answer, err := tc.AskManager(ctx, in.Question)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("ask_manager failed", err).WithCode("interaction_failed")
			}
			return tools.Result{Output: answer}, nil
		},
	}
}
