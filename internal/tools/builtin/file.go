package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
	"github.com/kory-ai/workbench-core/internal/tools"
)

// recordWrite diffs before/after, calls RecordChange with the resulting
// ChangeSummary, and emits the file-delta/complete stream events every
// write-class tool must produce (spec invariant on write-class tools).
func recordWrite(tc *tools.Context, relPath, operation, before, after string) {
	added, deleted := lineDelta(relPath, before, after)
	if tc.RecordChange != nil {
		tc.RecordChange(tools.ChangeSummary{Path: relPath, LinesAdded: added, LinesDeleted: deleted, Operation: operation})
	}
	if tc.EmitFileDelta != nil {
		tc.EmitFileDelta(relPath, after, len(strings.Split(after, "\n")), operation)
	}
	if tc.EmitFileComplete != nil {
		tc.EmitFileComplete(relPath, len(strings.Split(after, "\n")), operation)
	}
}

type readFileInput struct {
	Path string `json:"path"`
}

// ReadFile returns the file read tool.
func ReadFile() tools.Spec {
	return tools.Spec{
		Name:        "read_file",
		Description: "Read the full contents of a file.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in readFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid read_file input", err).WithCode("bad_input")
			}
			abs, err := tc.Resolve(in.Path)
			if err != nil {
				return tools.Result{}, err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to read file", err).WithCode("io_error")
			}
			return tools.Result{Output: string(data)}, nil
		},
	}
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteFile returns the full-file-overwrite write tool. Creates parent
// directories as needed and records a ChangeSummary against the path.
func WriteFile() tools.Spec {
	return tools.Spec{
		Name:        "write_file",
		Description: "Create or overwrite a file with the given content.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}, "content": map[string]any{"type": "string"}},
			"required":   []string{"path", "content"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in writeFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid write_file input", err).WithCode("bad_input")
			}
			abs, err := tc.Resolve(in.Path)
			if err != nil {
				return tools.Result{}, err
			}
			before := ""
			if data, readErr := os.ReadFile(abs); readErr == nil {
				before = string(data)
			} else if !os.IsNotExist(readErr) {
				return tools.Result{}, toolerrors.NewWithCause("failed to read existing file", readErr).WithCode("io_error")
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to create parent directory", err).WithCode("io_error")
			}
			if err := os.WriteFile(abs, []byte(in.Content), 0o644); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to write file", err).WithCode("io_error")
			}
			op := "create"
			if before != "" {
				op = "edit"
			}
			recordWrite(tc, in.Path, op, before, in.Content)
			return tools.Result{Output: "ok"}, nil
		},
	}
}

type editFileInput struct {
	Path       string `json:"path"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll"`
}

// EditFile returns the targeted string-replacement edit tool. OldString
// must be unique in the file unless ReplaceAll is set.
func EditFile() tools.Spec {
	return tools.Spec{
		Name:        "edit_file",
		Description: "Replace an exact substring within a file.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":       map[string]any{"type": "string"},
				"oldString":  map[string]any{"type": "string"},
				"newString":  map[string]any{"type": "string"},
				"replaceAll": map[string]any{"type": "boolean"},
			},
			"required": []string{"path", "oldString", "newString"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in editFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid edit_file input", err).WithCode("bad_input")
			}
			abs, err := tc.Resolve(in.Path)
			if err != nil {
				return tools.Result{}, err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to read file", err).WithCode("io_error")
			}
			before := string(data)
			count := strings.Count(before, in.OldString)
			if count == 0 {
				return tools.Result{}, toolerrors.New("oldString not found in file").WithCode("no_match")
			}
			if count > 1 && !in.ReplaceAll {
				return tools.Result{}, toolerrors.New("oldString is not unique; set replaceAll or widen the match").WithCode("ambiguous_match")
			}
			var after string
			if in.ReplaceAll {
				after = strings.ReplaceAll(before, in.OldString, in.NewString)
			} else {
				after = strings.Replace(before, in.OldString, in.NewString, 1)
			}
			if err := os.WriteFile(abs, []byte(after), 0o644); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to write file", err).WithCode("io_error")
			}
			recordWrite(tc, in.Path, "edit", before, after)
			return tools.Result{Output: "ok"}, nil
		},
	}
}

type deleteFileInput struct {
	Path string `json:"path"`
}

// DeleteFile returns the file-delete tool.
func DeleteFile() tools.Spec {
	return tools.Spec{
		Name:        "delete_file",
		Description: "Delete a file.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in deleteFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid delete_file input", err).WithCode("bad_input")
			}
			abs, err := tc.Resolve(in.Path)
			if err != nil {
				return tools.Result{}, err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to read file before delete", err).WithCode("io_error")
			}
			before := string(data)
			if err := os.Remove(abs); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to delete file", err).WithCode("io_error")
			}
			recordWrite(tc, in.Path, "delete", before, "")
			return tools.Result{Output: "ok"}, nil
		},
	}
}

type moveFileInput struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MoveFile returns the file rename/move tool.
func MoveFile() tools.Spec {
	return tools.Spec{
		Name:        "move_file",
		Description: "Move or rename a file.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"from": map[string]any{"type": "string"}, "to": map[string]any{"type": "string"}},
			"required":   []string{"from", "to"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in moveFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid move_file input", err).WithCode("bad_input")
			}
			fromAbs, err := tc.Resolve(in.From)
			if err != nil {
				return tools.Result{}, err
			}
			toAbs, err := tc.Resolve(in.To)
			if err != nil {
				return tools.Result{}, err
			}
			data, err := os.ReadFile(fromAbs)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to read source file", err).WithCode("io_error")
			}
			if err := os.MkdirAll(filepath.Dir(toAbs), 0o755); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to create destination directory", err).WithCode("io_error")
			}
			if err := os.Rename(fromAbs, toAbs); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to move file", err).WithCode("io_error")
			}
			content := string(data)
			recordWrite(tc, in.From, "delete", content, "")
			recordWrite(tc, in.To, "create", "", content)
			return tools.Result{Output: "ok"}, nil
		},
	}
}
