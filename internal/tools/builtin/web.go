package builtin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
	"github.com/kory-ai/workbench-core/internal/tools"
)

const webFetchMaxBody = 1 << 20 // 1 MiB

type webFetchInput struct {
	URL string `json:"url"`
}

// WebFetch returns the web-fetch tool. It performs the request with
// tc.HTTPClient, which callers must inject; no client is created here so no
// network dependency is invented by this package.
func WebFetch() tools.Spec {
	return tools.Spec{
		Name:        "web_fetch",
		Description: "Fetch a URL over HTTP(S) and return its body, truncated to 1 MiB.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"url": map[string]any{"type": "string"}},
			"required":   []string{"url"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in webFetchInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid web_fetch input", err).WithCode("bad_input")
			}
			if tc.HTTPClient == nil {
				return tools.Result{}, toolerrors.New("web_fetch is not configured for this session").WithCode("unavailable")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid URL", err).WithCode("bad_input")
			}
			resp, err := tc.HTTPClient.Do(req)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("request failed", err).WithCode("network_error")
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBody))
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("failed to read response body", err).WithCode("network_error")
			}
			return tools.Result{Output: map[string]any{"status": resp.StatusCode, "body": string(body)}, IsError: resp.StatusCode >= 400}, nil
		},
	}
}

type webSearchInput struct {
	Query string `json:"query"`
}

// WebSearch returns the web-search tool, delegating to tc.WebSearch since
// there is no single standard search API to bind against directly.
func WebSearch() tools.Spec {
	return tools.Spec{
		Name:        "web_search",
		Description: "Search the web for a query and return a list of results.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
		AllowedRoles: []tools.Role{tools.RoleManager, tools.RoleWorker},
		Run: func(ctx context.Context, tc *tools.Context, input json.RawMessage) (tools.Result, error) {
			var in webSearchInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tools.Result{}, toolerrors.NewWithCause("invalid web_search input", err).WithCode("bad_input")
			}
			if tc.WebSearch == nil {
				return tools.Result{}, toolerrors.New("web_search is not configured for this session").WithCode("unavailable")
			}
			results, err := tc.WebSearch(ctx, in.Query)
			if err != nil {
				return tools.Result{}, toolerrors.NewWithCause("search failed", err).WithCode("network_error")
			}
			return tools.Result{Output: results}, nil
		},
	}
}
