package manager

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/bus"
	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/ledger"
	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/prompt"
	"github.com/kory-ai/workbench-core/internal/provider"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/session/inmem"
	"github.com/kory-ai/workbench-core/internal/telemetry"
	"github.com/kory-ai/workbench-core/internal/tools"
	"github.com/kory-ai/workbench-core/internal/tools/builtin"
)

// chanStreamer replays a fixed slice of chunks, then returns io.EOF.
type chanStreamer struct {
	chunks []model.Chunk
	i      int
}

func (s *chanStreamer) Recv() (model.Chunk, error) {
	if s.i >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *chanStreamer) Close() error { return nil }

// scriptedClient is a fake model.Client whose Stream calls replay a fixed
// sequence of per-turn chunk scripts (one slice per call to Stream), and
// whose Complete calls return a fixed, round-robin list of texts.
type scriptedClient struct {
	streamTurns   [][]model.Chunk
	streamIdx     int
	completeTexts []string
	completeIdx   int
}

func (c *scriptedClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	text := ""
	if c.completeIdx < len(c.completeTexts) {
		text = c.completeTexts[c.completeIdx]
	}
	c.completeIdx++
	return &model.Response{
		Content: []model.Message{{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}},
	}, nil
}

func (c *scriptedClient) Stream(_ context.Context, _ *model.Request) (model.Streamer, error) {
	idx := c.streamIdx
	if idx >= len(c.streamTurns) {
		idx = len(c.streamTurns) - 1
	}
	c.streamIdx++
	return &chanStreamer{chunks: c.streamTurns[idx]}, nil
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

func textChunk(s string) model.Chunk {
	return model.Chunk{Type: model.ChunkText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: s}}}}
}

func toolCallChunk(id, name string, payload string) model.Chunk {
	return model.Chunk{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{ID: id, Name: name, Payload: json.RawMessage(payload)}}
}

func stopChunk() model.Chunk {
	return model.Chunk{Type: model.ChunkStop}
}

// newTestManager wires a Manager over in-memory collaborators plus a
// scripted model.Client registered as "test:test-model", matching the
// real wiring a cmd/ entrypoint performs but without any network-backed
// provider.
func newTestManager(t *testing.T, client *scriptedClient, cfg *config.Config) (*Manager, string, bus.Subscription) {
	t.Helper()

	workdir := t.TempDir()
	sessions := inmem.New()
	eventBus := bus.New()
	toolReg := tools.NewRegistry()
	builtin.RegisterAll(toolReg)

	reg := provider.NewRegistry(cfg)
	reg.Register("test", client, []provider.ModelInfo{{ID: "test-model", Provider: "test"}})

	mgr := New(Deps{
		Sessions: sessions,
		Bus:      eventBus,
		Providers: reg,
		Tools:     toolReg,
		Ledger:    ledger.New(),
		Prompts:   prompt.New(),
		Logger:    noopLogger{},
		Config:    cfg,
		WorkDir:   func(string) string { return workdir },
	})

	sess, err := sessions.CreateSession(context.Background(), "test session", "")
	require.NoError(t, err)

	sub := eventBus.Subscribe()
	return mgr, sess.ID, sub
}

func testConfig() *config.Config {
	return &config.Config{
		Agents: config.AgentsConfig{Manager: config.AgentConfig{Model: "test:test-model"}},
		Assignments: map[string]string{
			string(config.DomainGeneral): "test:test-model",
		},
		Interaction: config.InteractionConfig{ClarifyFirstEnabled: false},
	}
}

func waitIdle(t *testing.T, sessions session.Store, sessionID string) session.Session {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		sess, err := sessions.GetSession(context.Background(), sessionID)
		require.NoError(t, err)
		if sess.WorkflowState == session.StateIdle || sess.WorkflowState == session.StateError {
			return sess
		}
		select {
		case <-deadline:
			t.Fatalf("session never settled, last state %q", sess.WorkflowState)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestProcessFastPathWritesFileAndSettlesIdle(t *testing.T) {
	client := &scriptedClient{
		completeTexts: []string{"SIMPLE"}, // unused: classify() takes the trivial-fix shortcut for this message
		streamTurns: [][]model.Chunk{
			{
				toolCallChunk("call-1", "write_file", `{"path":"hello.txt","content":"hi"}`),
				stopChunk(),
			},
			{
				textChunk("done"),
				stopChunk(),
			},
		},
	}
	cfg := testConfig()
	mgr, sessionID, sub := newTestManager(t, client, cfg)
	defer sub.Close()

	mgr.Process(sessionID, "fix the typo in the greeting", "", "")

	sess := waitIdle(t, mgr.deps.Sessions, sessionID)
	assert.Equal(t, session.StateIdle, sess.WorkflowState)

	changes := mgr.GetSessionChanges(sessionID)
	require.Len(t, changes, 1)
	assert.Equal(t, "hello.txt", changes[0].Path)

	data, err := os.ReadFile(mgr.deps.WorkDir(sessionID) + "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestProcessIgnoresConcurrentCallForSameSession(t *testing.T) {
	client := &scriptedClient{
		completeTexts: []string{"SIMPLE"},
		streamTurns: [][]model.Chunk{
			{textChunk("done"), stopChunk()},
		},
	}
	cfg := testConfig()
	mgr, sessionID, sub := newTestManager(t, client, cfg)
	defer sub.Close()

	mgr.Process(sessionID, "hello", "", "")
	require.True(t, mgr.IsSessionRunning(sessionID))
	mgr.Process(sessionID, "hello again", "", "")

	waitIdle(t, mgr.deps.Sessions, sessionID)
	assert.False(t, mgr.IsSessionRunning(sessionID))
}

func TestApplySessionChangesAcceptAllClearsLedger(t *testing.T) {
	client := &scriptedClient{}
	cfg := testConfig()
	mgr, sessionID, sub := newTestManager(t, client, cfg)
	defer sub.Close()

	mgr.deps.Ledger.Append(sessionID, ledger.ChangeSummary{Path: "a.txt", Operation: "create"})
	require.Len(t, mgr.GetSessionChanges(sessionID), 1)

	result, err := mgr.ApplySessionChanges(context.Background(), sessionID, ChangeDecision{AcceptAll: true})
	require.NoError(t, err)
	assert.Empty(t, result.Remaining)
	assert.Empty(t, mgr.GetSessionChanges(sessionID))
}

func TestApplySessionChangesRejectAllRemovesCreatedFile(t *testing.T) {
	client := &scriptedClient{}
	cfg := testConfig()
	mgr, sessionID, sub := newTestManager(t, client, cfg)
	defer sub.Close()

	workdir := mgr.deps.WorkDir(sessionID)
	require.NoError(t, os.WriteFile(workdir+"/created.txt", []byte("x"), 0o644))
	mgr.deps.Ledger.Append(sessionID, ledger.ChangeSummary{Path: "created.txt", Operation: "create"})

	_, err := mgr.ApplySessionChanges(context.Background(), sessionID, ChangeDecision{RejectAll: true, RejectPaths: []string{"created.txt"}})
	require.NoError(t, err)

	_, statErr := os.Stat(workdir + "/created.txt")
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, mgr.GetSessionChanges(sessionID))
}

func TestCancelSessionWorkersUnblocksPendingPrompt(t *testing.T) {
	client := &scriptedClient{
		completeTexts: []string{"SIMPLE"},
	}
	cfg := testConfig()
	mgr, sessionID, sub := newTestManager(t, client, cfg)
	defer sub.Close()

	reqID := mgr.deps.Prompts.NewRequest(sessionID)
	mgr.beginRun(sessionID, func() {})

	done := make(chan error, 1)
	go func() {
		_, err := mgr.deps.Prompts.Wait(context.Background(), reqID, time.Second)
		done <- err
	}()

	mgr.CancelSessionWorkers(sessionID)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, prompt.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("CancelSessionWorkers did not unblock the pending prompt")
	}
}

func TestResolveManagerRoute(t *testing.T) {
	mgr := &Manager{}

	t.Run("explicit override wins", func(t *testing.T) {
		mgr.deps.Config = &config.Config{Agents: config.AgentsConfig{Manager: config.AgentConfig{Model: "anthropic:claude-sonnet-4-5"}}}
		route := mgr.resolveManagerRoute("openai:gpt-5")
		assert.Equal(t, routeTarget{Provider: "openai", Model: "gpt-5"}, route)
	})

	t.Run("falls back to configured manager model", func(t *testing.T) {
		mgr.deps.Config = &config.Config{Agents: config.AgentsConfig{Manager: config.AgentConfig{Model: "bedrock:claude-3"}}}
		route := mgr.resolveManagerRoute("")
		assert.Equal(t, routeTarget{Provider: "bedrock", Model: "claude-3"}, route)
	})

	t.Run("falls back to fixed default with no config", func(t *testing.T) {
		mgr.deps.Config = nil
		route := mgr.resolveManagerRoute("")
		assert.Equal(t, routeTarget{Provider: "anthropic", Model: "claude-sonnet-4-5"}, route)
	})
}

func TestResolveWorkerRoute(t *testing.T) {
	cfg := &config.Config{Assignments: map[string]string{string(config.DomainBackend): "anthropic:claude-opus-4"}}

	route, ok := resolveWorkerRoute("", config.DomainBackend, cfg)
	require.True(t, ok)
	assert.Equal(t, routeTarget{Provider: "anthropic", Model: "claude-opus-4"}, route)

	route, ok = resolveWorkerRoute("openai:gpt-5", config.DomainBackend, cfg)
	require.True(t, ok)
	assert.Equal(t, routeTarget{Provider: "openai", Model: "gpt-5"}, route)

	route, ok = resolveWorkerRoute("", config.DomainFrontend, cfg)
	require.True(t, ok)
	p, mo, _ := splitProviderModel(config.DefaultModels[config.DomainFrontend])
	assert.Equal(t, routeTarget{Provider: p, Model: mo}, route)
}

func TestSplitProviderModel(t *testing.T) {
	p, m, ok := splitProviderModel("anthropic:claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, "anthropic", p)
	assert.Equal(t, "claude-sonnet-4-5", m)

	_, _, ok = splitProviderModel("")
	assert.False(t, ok)

	_, _, ok = splitProviderModel("noColon")
	assert.False(t, ok)

	_, _, ok = splitProviderModel("trailing:")
	assert.False(t, ok)
}

func TestLooksLikeTrivialFix(t *testing.T) {
	assert.True(t, looksLikeTrivialFix("fix typo"))
	assert.True(t, looksLikeTrivialFix("  Fix the TYPO  "))
	assert.False(t, looksLikeTrivialFix("fix the race condition in the connection pool reconnect logic, it drops events"))
	assert.False(t, looksLikeTrivialFix("add a new feature"))
}

func TestShouldClarify(t *testing.T) {
	assert.False(t, shouldClarify("fix typo"))
	assert.True(t, shouldClarify("help me improve things"))

	long := "Please add a retry policy to internal/provider/fallback.go that reads `config.Fallbacks` and honors the bounded depth:\n- respect DefaultFallbackDepth\n- skip legacy models"
	assert.False(t, shouldClarify(long))
}

func TestIsDisallowedYesNo(t *testing.T) {
	assert.True(t, isDisallowedYesNo("Should I proceed?"))
	assert.False(t, isDisallowedYesNo("Should I target the frontend or backend?"))
	assert.False(t, isDisallowedYesNo("What file should I edit?"))
	assert.True(t, isDisallowedYesNo("Is this urgent?"))
}

func TestParseClarifyResponse(t *testing.T) {
	action, err := parseClarifyResponse(`{"action":"proceed"}`, 4)
	require.NoError(t, err)
	assert.Equal(t, "proceed", action.Action)

	raw := "```json\n" + `{"action":"clarify","questions":["Should I target the frontend or backend?","Is this urgent?"]}` + "\n```"
	action, err = parseClarifyResponse(raw, 4)
	require.NoError(t, err)
	assert.Equal(t, "clarify", action.Action)
	require.Len(t, action.Questions, 1)
	assert.Contains(t, action.Questions[0], "frontend or backend")

	_, err = parseClarifyResponse(`{"action":"clarify","questions":["Is this urgent?"]}`, 4)
	assert.Error(t, err)

	_, err = parseClarifyResponse(`not json at all`, 4)
	assert.Error(t, err)

	_, err = parseClarifyResponse(`{"action":"bogus"}`, 4)
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSONObject(`here you go: {"a":1} thanks`))
	assert.Equal(t, "no braces here", extractJSONObject("no braces here"))
}
