package builtin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/tools"
	"github.com/kory-ai/workbench-core/internal/tools/builtin"
)

func newRegistry(t *testing.T) (*tools.Registry, *tools.Context) {
	t.Helper()
	reg := tools.NewRegistry()
	builtin.RegisterAll(reg)
	dir := t.TempDir()
	var changes []tools.ChangeSummary
	tc := &tools.Context{
		WorkDir:      dir,
		IsSandboxed:  true,
		AllowedPaths: []string{"."},
		RecordChange: func(c tools.ChangeSummary) { changes = append(changes, c) },
	}
	return reg, tc
}

func call(t *testing.T, reg *tools.Registry, tc *tools.Context, role tools.Role, name string, input any) tools.Result {
	t.Helper()
	payload, err := json.Marshal(input)
	require.NoError(t, err)
	return reg.Execute(context.Background(), tc, role, model.ToolCall{Name: name, Payload: payload})
}

func TestWriteThenReadFileRoundTrips(t *testing.T) {
	reg, tc := newRegistry(t)

	res := call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "hello\n"})
	require.False(t, res.IsError, res.Output)

	res = call(t, reg, tc, tools.RoleWorker, "read_file", map[string]any{"path": "a.txt"})
	require.False(t, res.IsError, res.Output)
	assert.Equal(t, "hello\n", res.Output)
}

func TestEditFileRejectsAmbiguousMatch(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "x\nx\n"})

	res := call(t, reg, tc, tools.RoleWorker, "edit_file", map[string]any{"path": "a.txt", "oldString": "x", "newString": "y"})
	assert.True(t, res.IsError)
}

func TestEditFileReplacesUniqueMatch(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "Helo world\n"})

	res := call(t, reg, tc, tools.RoleWorker, "edit_file", map[string]any{"path": "a.txt", "oldString": "Helo", "newString": "Hello"})
	require.False(t, res.IsError, res.Output)

	res = call(t, reg, tc, tools.RoleWorker, "read_file", map[string]any{"path": "a.txt"})
	assert.Equal(t, "Hello world\n", res.Output)
}

func TestDeleteFileRemovesFromDisk(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "bye"})

	res := call(t, reg, tc, tools.RoleWorker, "delete_file", map[string]any{"path": "a.txt"})
	require.False(t, res.IsError, res.Output)

	_, err := os.Stat(filepath.Join(tc.WorkDir, "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestMoveFileRelocatesContent(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "payload"})

	res := call(t, reg, tc, tools.RoleWorker, "move_file", map[string]any{"from": "a.txt", "to": "sub/b.txt"})
	require.False(t, res.IsError, res.Output)

	res = call(t, reg, tc, tools.RoleWorker, "read_file", map[string]any{"path": "sub/b.txt"})
	require.False(t, res.IsError, res.Output)
	assert.Equal(t, "payload", res.Output)
}

func TestFileToolsRejectSandboxEscape(t *testing.T) {
	reg, tc := newRegistry(t)
	res := call(t, reg, tc, tools.RoleWorker, "read_file", map[string]any{"path": "../../etc/passwd"})
	assert.True(t, res.IsError)
}

func TestShellDeniesDestructivePatterns(t *testing.T) {
	reg, tc := newRegistry(t)
	res := call(t, reg, tc, tools.RoleWorker, "shell", map[string]any{"command": "sudo rm -rf /"})
	assert.True(t, res.IsError)
}

func TestShellRunsAllowedCommand(t *testing.T) {
	reg, tc := newRegistry(t)
	res := call(t, reg, tc, tools.RoleWorker, "shell", map[string]any{"command": "echo hi"})
	require.False(t, res.IsError, res.Output)
}

func TestGlobFindsWrittenFile(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "sub/a.go", "content": "package sub"})

	res := call(t, reg, tc, tools.RoleWorker, "glob", map[string]any{"pattern": "**/*.go"})
	require.False(t, res.IsError, res.Output)
	matches, ok := res.Output.([]string)
	require.True(t, ok)
	assert.Contains(t, matches, filepath.Join("sub", "a.go"))
}

func TestGrepFindsMatchingLine(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "alpha\nbeta\ngamma\n"})

	res := call(t, reg, tc, tools.RoleWorker, "grep", map[string]any{"pattern": "^beta$"})
	require.False(t, res.IsError, res.Output)
}

func TestDiffPreviewDoesNotWrite(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "before\n"})

	res := call(t, reg, tc, tools.RoleWorker, "diff", map[string]any{"path": "a.txt", "newContent": "after\n"})
	require.False(t, res.IsError, res.Output)

	read := call(t, reg, tc, tools.RoleWorker, "read_file", map[string]any{"path": "a.txt"})
	assert.Equal(t, "before\n", read.Output)
}

func TestListDirectoryReturnsEntries(t *testing.T) {
	reg, tc := newRegistry(t)
	call(t, reg, tc, tools.RoleWorker, "write_file", map[string]any{"path": "a.txt", "content": "x"})

	res := call(t, reg, tc, tools.RoleWorker, "list_directory", map[string]any{})
	require.False(t, res.IsError, res.Output)
}

func TestWebFetchUnavailableWithoutClient(t *testing.T) {
	reg, tc := newRegistry(t)
	res := call(t, reg, tc, tools.RoleWorker, "web_fetch", map[string]any{"url": "http://example.com"})
	assert.True(t, res.IsError)
}

func TestWebFetchUsesInjectedClient(t *testing.T) {
	reg, tc := newRegistry(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()
	tc.HTTPClient = srv.Client()

	res := call(t, reg, tc, tools.RoleWorker, "web_fetch", map[string]any{"url": srv.URL})
	require.False(t, res.IsError, res.Output)
}

func TestAskUserUnavailableWithoutCallback(t *testing.T) {
	reg, tc := newRegistry(t)
	res := call(t, reg, tc, tools.RoleWorker, "ask_user", map[string]any{"question": "continue?"})
	assert.True(t, res.IsError)
}

func TestAskManagerDeniedForManagerRole(t *testing.T) {
	reg, tc := newRegistry(t)
	res := call(t, reg, tc, tools.RoleManager, "ask_manager", map[string]any{"question": "status?"})
	assert.True(t, res.IsError)
}

func TestAskUserInvokesCallback(t *testing.T) {
	reg, tc := newRegistry(t)
	tc.AskUser = func(ctx context.Context, question string, options []string, allowOther bool) (string, error) {
		return "yes", nil
	}
	res := call(t, reg, tc, tools.RoleWorker, "ask_user", map[string]any{"question": "continue?"})
	require.False(t, res.IsError, res.Output)
	assert.Equal(t, "yes", res.Output)
}
