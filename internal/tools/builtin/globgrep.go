package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
	"github.com/kory-ai/workbench-core/internal/tools"
)

type globInput struct {
	Pattern string `json:"pattern"`
}

// Glob returns the recursive file-matching tool, backed by doublestar's
// `**` support so a single pattern can express arbitrary subtree matches.
func Glob() tools.Spec {
	return tools.Spec{
		Name:        "glob",
		Description: "List files under the working directory matching a doublestar glob pattern (supports **).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"pattern": map[string]any{"type": "string"}},
			"required":   []string{"pattern"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in globInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid glob input", err).WithCode("bad_input")
			}
			if !doublestar.ValidatePattern(in.Pattern) {
				return tools.Result{}, toolerrors.New("invalid glob pattern").WithCode("bad_input")
			}
			root, err := tc.Resolve(".")
			if err != nil {
				return tools.Result{}, err
			}
			matches, err := doublestar.FilepathGlob(filepath.Join(root, in.Pattern))
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("glob failed", err).WithCode("io_error")
			}
			rel := make([]string, 0, len(matches))
			for _, m := range matches {
				r, err := filepath.Rel(root, m)
				if err != nil {
					continue
				}
				rel = append(rel, r)
			}
			sort.Strings(rel)
			return tools.Result{Output: rel}, nil
		},
	}
}

type grepInput struct {
	Pattern string `json:"pattern"`
	Glob    string `json:"glob,omitempty"`
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Grep returns the recursive content-search tool: a regex pattern searched
// line-by-line across every file selected by an optional doublestar glob
// (default "**/*").
func Grep() tools.Spec {
	return tools.Spec{
		Name:        "grep",
		Description: "Search file contents for a regular expression, optionally restricted to a doublestar glob.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"pattern": map[string]any{"type": "string"}, "glob": map[string]any{"type": "string"}},
			"required":   []string{"pattern"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in grepInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid grep input", err).WithCode("bad_input")
			}
			re, err := regexp.Compile(in.Pattern)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid grep pattern", err).WithCode("bad_input")
			}
			pattern := in.Glob
			if pattern == "" {
				pattern = "**/*"
			}
			root, err := tc.Resolve(".")
			if err != nil {
				return tools.Result{}, err
			}
			candidates, err := doublestar.FilepathGlob(filepath.Join(root, pattern))
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("glob failed", err).WithCode("io_error")
			}

			var matches []grepMatch
			for _, path := range candidates {
				info, err := os.Stat(path)
				if err != nil || info.IsDir() {
					continue
				}
				rel, err := filepath.Rel(root, path)
				if err != nil {
					continue
				}
				f, err := os.Open(path)
				if err != nil {
					continue
				}
				scanner := bufio.NewScanner(f)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				lineNo := 0
				for scanner.Scan() {
					lineNo++
					if re.MatchString(scanner.Text()) {
						matches = append(matches, grepMatch{Path: rel, Line: lineNo, Text: scanner.Text()})
					}
				}
				f.Close()
			}
			sort.Slice(matches, func(i, j int) bool {
				if matches[i].Path != matches[j].Path {
					return matches[i].Path < matches[j].Path
				}
				return matches[i].Line < matches[j].Line
			})
			return tools.Result{Output: matches}, nil
		},
	}
}
