// Package tools defines the tool registry and the sandboxed execution
// context every built-in (internal/tools/builtin) and MCP-backed tool runs
// under.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/streamevent"
	"github.com/kory-ai/workbench-core/internal/toolerrors"
)

// Role is the agent role a tool call is made under. Some tools are
// manager-only (privileged); most are available to both.
type Role string

const (
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// ChangeSummary mirrors streamevent.ChangeSummary; declared separately so
// callers needn't import streamevent just to record a change.
type ChangeSummary = streamevent.ChangeSummary

// Context is passed to every tool invocation. Sandboxed tools must resolve
// every path argument through Resolve before touching the filesystem.
type Context struct {
	SessionID    string
	WorkDir      string
	IsSandboxed  bool
	AllowedPaths []string
	AgentID      string
	Timeout      time.Duration

	EmitFileDelta    func(path, delta string, totalLen int, op string)
	EmitFileComplete func(path string, totalLines int, op string)
	RecordChange     func(ChangeSummary)

	// AskUser publishes a kory.ask_user event and blocks until the
	// correlated reply arrives or the pending-prompt timeout elapses. Wired
	// by the Manager to the C8 pending-prompt table; nil in contexts that
	// cannot interact with a user (e.g. unattended worker runs).
	AskUser func(ctx context.Context, question string, options []string, allowOther bool) (answer string, err error)

	// AskManager lets a worker agent escalate a question to the session's
	// Manager loop rather than the end user. Wired the same way as AskUser.
	AskManager func(ctx context.Context, question string) (answer string, err error)

	// HTTPClient backs web_fetch. No client is constructed by this
	// package; a nil HTTPClient makes web_fetch return an error result
	// rather than silently reaching the network.
	HTTPClient *http.Client

	// WebSearch performs a provider-specific search query. There is no
	// single standard search API, so this is left as an injected function
	// rather than a concrete adapter; nil makes web_search unavailable.
	WebSearch func(ctx context.Context, query string) ([]WebSearchResult, error)
}

// WebSearchResult is one hit returned by Context.WebSearch.
type WebSearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// ErrPathEscapesSandbox is returned by Resolve when a path, after
// normalization, would fall outside every allowed path.
var ErrPathEscapesSandbox = fmt.Errorf("tools: path escapes sandbox")

// Resolve normalizes rel against WorkDir and enforces the sandbox (spec
// property P8): a sandboxed context rejects any path that, once cleaned,
// is not contained in one of AllowedPaths relative to WorkDir.
func (c *Context) Resolve(rel string) (string, error) {
	abs := rel
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.WorkDir, rel)
	}
	abs = filepath.Clean(abs)

	if !c.IsSandboxed {
		return abs, nil
	}
	for _, allowed := range c.AllowedPaths {
		if allowed == "/" {
			return abs, nil
		}
		allowedAbs := filepath.Clean(filepath.Join(c.WorkDir, allowed))
		rp, err := filepath.Rel(allowedAbs, abs)
		if err == nil && rp != ".." && !strings.HasPrefix(rp, ".."+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", ErrPathEscapesSandbox
}

// Result is what a tool invocation produces.
type Result struct {
	Output     any
	IsError    bool
	DurationMs int64
}

// RunFunc implements a tool's behavior.
type RunFunc func(ctx context.Context, tc *Context, input json.RawMessage) (Result, error)

// Spec is the registered metadata and implementation for one tool.
type Spec struct {
	Name         string
	Description  string
	InputSchema  any
	AllowedRoles []Role
	Run          RunFunc
}

func (s Spec) allowsRole(role Role) bool {
	for _, r := range s.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Registry holds every registered tool.
type Registry struct {
	mu      sync.RWMutex
	specs   map[string]Spec
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec), schemas: make(map[string]*jsonschema.Schema)}
}

// Register adds or replaces a tool spec. A non-nil InputSchema is compiled
// eagerly and cached for Execute. A schema that fails to compile is not
// reported and not cached, so calls to that tool run without input
// validation.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	delete(r.schemas, spec.Name)
	if spec.InputSchema == nil {
		return
	}
	if compiled, err := compileSchema(spec.Name, spec.InputSchema); err == nil {
		r.schemas[spec.Name] = compiled
	}
}

// compileSchema builds a jsonschema.Schema from an InputSchema value
// (typically a map[string]any built from Go literals, not a decoded JSON
// document), mirroring the teacher's validatePayloadJSONAgainstSchema
// (registry/service.go): add it as an in-memory resource, then compile by
// that name. The schema is round-tripped through encoding/json first so
// Go-native slice/map literals (e.g. []string) normalize to the
// map[string]any/[]any shape AddResource expects, the same normalization
// the teacher gets for free by reading its schemas off the wire as JSON.
func compileSchema(name string, schemaDoc any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("tools: marshal schema %q: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tools: unmarshal schema %q: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("tools: add schema resource %q: %w", name, err)
	}
	return c.Compile(name)
}

// GetToolDefsForRole returns the provider-facing tool announcements for
// role, sorted by name for deterministic ordering across calls.
func (r *Registry) GetToolDefsForRole(role Role) []*model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []*model.ToolDefinition
	for _, spec := range r.specs {
		if !spec.allowsRole(role) {
			continue
		}
		defs = append(defs, &model.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs call.Name with call.Payload, enforcing the per-call
// timeout, validating the payload against the tool's registered
// InputSchema (spec property P6), and synthesizing an error Result for
// unknown tools instead of panicking.
func (r *Registry) Execute(ctx context.Context, tc *Context, role Role, call model.ToolCall) Result {
	r.mu.RLock()
	spec, ok := r.specs[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()
	if !ok {
		return Result{Output: fmt.Sprintf("unknown tool %q", call.Name), IsError: true}
	}
	if !spec.allowsRole(role) {
		return Result{Output: fmt.Sprintf("tool %q is not permitted for role %q", call.Name, role), IsError: true}
	}
	if schema != nil {
		var payload any
		if err := json.Unmarshal(call.Payload, &payload); err != nil {
			return Result{Output: fmt.Sprintf("tool %q: payload is not valid JSON: %v", call.Name, err), IsError: true}
		}
		if err := schema.Validate(payload); err != nil {
			return Result{Output: fmt.Sprintf("tool %q: payload failed schema validation: %v", call.Name, err), IsError: true}
		}
	}

	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := spec.Run(runCtx, tc, call.Payload)
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			// The per-call timeout fired rather than the tool itself
			// failing: mark it retryable so a caller resubmitting the same
			// call (e.g. after raising safety.toolExecutionTimeoutMs) is
			// not treated the same as a hard tool error.
			err = toolerrors.NewWithCause(fmt.Sprintf("tool %q timed out after %s", call.Name, timeout), err).
				WithCode("timeout").WithRetryable(true)
		}
		return Result{Output: err.Error(), IsError: true, DurationMs: result.DurationMs}
	}
	return result
}
