package builtin

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
	"github.com/kory-ai/workbench-core/internal/tools"
)

type listDirInput struct {
	Path string `json:"path,omitempty"`
}

type dirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// ListDirectory returns the non-recursive directory listing tool.
func ListDirectory() tools.Spec {
	return tools.Spec{
		Name:        "list_directory",
		Description: "List the immediate entries of a directory.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in listDirInput
			if len(input) > 0 {
				if err := json.Unmarshal(input, &in); err != nil {
					return tools.Result{}, toolerrors.NewWithCause("invalid list_directory input", err).WithCode("bad_input")
				}
			}
			path := in.Path
			if path == "" {
				path = "."
			}
			abs, err := tc.Resolve(path)
			if err != nil {
				return tools.Result{}, err
			}
			entries, err := os.ReadDir(abs)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to list directory", err).WithCode("io_error")
			}
			out := make([]dirEntry, 0, len(entries))
			for _, e := range entries {
				info, err := e.Info()
				size := int64(0)
				if err == nil {
					size = info.Size()
				}
				out = append(out, dirEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
			return tools.Result{Output: out}, nil
		},
	}
}
