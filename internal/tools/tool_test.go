package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/tools"
)

func TestResolveRejectsEscapeFromSandbox(t *testing.T) {
	tc := &tools.Context{WorkDir: "/work", IsSandboxed: true, AllowedPaths: []string{"."}}

	_, err := tc.Resolve("../../etc/passwd")
	assert.ErrorIs(t, err, tools.ErrPathEscapesSandbox)

	resolved, err := tc.Resolve("sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "/work/sub/file.txt", resolved)
}

func TestResolveAllowsAbsoluteWhenUnsandboxed(t *testing.T) {
	tc := &tools.Context{WorkDir: "/work", IsSandboxed: false}
	resolved, err := tc.Resolve("/etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "/etc/passwd", resolved)
}

func TestGetToolDefsForRoleFiltersAndSorts(t *testing.T) {
	r := tools.NewRegistry()
	r.Register(tools.Spec{Name: "zeta", AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker}})
	r.Register(tools.Spec{Name: "alpha", AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker}})
	r.Register(tools.Spec{Name: "manager_only", AllowedRoles: []tools.Role{tools.RoleManager}})

	defs := r.GetToolDefsForRole(tools.RoleWorker)
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[1].Name)
}

func TestExecuteReturnsErrorResultForUnknownTool(t *testing.T) {
	r := tools.NewRegistry()
	tc := &tools.Context{WorkDir: "/work"}
	result := r.Execute(context.Background(), tc, tools.RoleManager, model.ToolCall{Name: "ghost"})
	assert.True(t, result.IsError)
}

func TestExecuteDeniesToolNotPermittedForRole(t *testing.T) {
	r := tools.NewRegistry()
	r.Register(tools.Spec{
		Name:         "privileged",
		AllowedRoles: []tools.Role{tools.RoleManager},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			return tools.Result{Output: "ok"}, nil
		},
	})
	tc := &tools.Context{WorkDir: "/work"}
	result := r.Execute(context.Background(), tc, tools.RoleWorker, model.ToolCall{Name: "privileged"})
	assert.True(t, result.IsError)
}

func TestExecuteRejectsPayloadFailingSchema(t *testing.T) {
	r := tools.NewRegistry()
	r.Register(tools.Spec{
		Name:         "typed",
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			return tools.Result{Output: "ok"}, nil
		},
	})
	tc := &tools.Context{WorkDir: "/work"}

	result := r.Execute(context.Background(), tc, tools.RoleWorker, model.ToolCall{Name: "typed", Payload: json.RawMessage(`{}`)})
	assert.True(t, result.IsError)

	result = r.Execute(context.Background(), tc, tools.RoleWorker, model.ToolCall{Name: "typed", Payload: json.RawMessage(`{"path":"a.txt"}`)})
	assert.False(t, result.IsError)
}

func TestExecuteSucceeds(t *testing.T) {
	r := tools.NewRegistry()
	r.Register(tools.Spec{
		Name:         "echo",
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			return tools.Result{Output: string(input)}, nil
		},
	})
	tc := &tools.Context{WorkDir: "/work"}
	result := r.Execute(context.Background(), tc, tools.RoleWorker, model.ToolCall{Name: "echo", Payload: json.RawMessage(`{"a":1}`)})
	assert.False(t, result.IsError)
	assert.Equal(t, `{"a":1}`, result.Output)
}
