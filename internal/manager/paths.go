package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/ledger"
	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/streamevent"
	"github.com/kory-ai/workbench-core/internal/tools"
	"github.com/kory-ai/workbench-core/internal/trace"
	"github.com/kory-ai/workbench-core/internal/vcs"
)

const historyWindow = 10

// buildToolContext wires a tools.Context's callbacks back into the
// Manager's own collaborators: file deltas and completions go straight to
// the bus, recorded changes go to the ledger, and ask_user/ask_manager park
// on the pending-prompt table (or auto-confirm under yolo mode).
func (m *Manager) buildToolContext(sessionID, agentID, workdir string, sandboxed bool, allowedPaths []string) *tools.Context {
	var safety config.SafetyConfig
	if m.deps.Config != nil {
		safety = m.deps.Config.Safety
	}

	return &tools.Context{
		SessionID:    sessionID,
		WorkDir:      workdir,
		IsSandboxed:  sandboxed,
		AllowedPaths: allowedPaths,
		AgentID:      agentID,
		Timeout:      safety.ToolExecutionTimeout(),
		EmitFileDelta: func(path, delta string, totalLen int, op string) {
			m.deps.Bus.Publish(streamevent.NewFileDelta(sessionID, agentID, path, delta, totalLen, op))
		},
		EmitFileComplete: func(path string, totalLines int, op string) {
			m.deps.Bus.Publish(streamevent.NewFileComplete(sessionID, agentID, path, totalLines, op))
		},
		RecordChange: func(c tools.ChangeSummary) {
			m.deps.Ledger.Append(sessionID, c)
		},
		AskUser:    m.askUserFunc(sessionID),
		AskManager: m.askManagerFunc(sessionID),
	}
}

// runFastPath is spec §4.9's fast path: the manager agent answers directly,
// with tool access, seeded with recent session history.
func (m *Manager) runFastPath(ctx context.Context, sessionID string, route routeTarget, message string, thinking *model.ThinkingOptions) error {
	m.setState(ctx, sessionID, session.StateExecuting)
	agentID := "manager"

	m.deps.Bus.Publish(streamevent.NewAgentSpawned(sessionID, streamevent.AgentIdentity{
		ID: agentID, DisplayName: "Manager", Role: "manager", ModelID: route.Model, Provider: route.Provider,
	}, message))

	workdir := m.deps.WorkDir(sessionID)
	tc := m.buildToolContext(sessionID, agentID, workdir, false, []string{"/"})

	history, err := m.deps.Sessions.GetRecentMessages(ctx, sessionID, historyWindow)
	if err != nil {
		m.deps.Logger.Warn(ctx, "fetch recent messages failed", "sessionId", sessionID, "err", err)
	}
	seed := historyToMessages(history)
	seed = append(seed, &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: message}}})

	result, err := m.runExecutionLoop(ctx, sessionID, agentID, tools.RoleManager, route, managerSystemPrompt, seed, tc, fastPathMaxTurns, thinking)
	if err != nil {
		return err
	}
	m.appendTrace(sessionID, agentID, trace.KindDirectExecution, map[string]any{"turns": result.Turns})
	return nil
}

// runComplexPath is spec §4.9's complex path: plan, snapshot the working
// tree, spawn a worker to execute the plan, then commit its changes if a
// VCS repo is present.
func (m *Manager) runComplexPath(ctx context.Context, sessionID string, managerRoute routeTarget, preferredModel, message string, thinking *model.ThinkingOptions) error {
	m.setState(ctx, sessionID, session.StatePlanning)
	plan, err := m.streamPlan(ctx, sessionID, managerRoute, message)
	if err != nil {
		return fmt.Errorf("manager: planning failed: %w", err)
	}

	workdir := m.deps.WorkDir(sessionID)
	adapter := vcs.Open(workdir)
	if adapter.IsRepo() {
		if ok, hash, _ := adapter.CurrentHash(); ok {
			m.recordLastGoodHash(sessionID, hash)
		}
	} else if m.deps.Snapshots != nil {
		if _, err := m.deps.Snapshots.CreateSnapshot(sessionID, "latest", []string{"."}, workdir); err != nil {
			m.deps.Logger.Warn(ctx, "pre-run snapshot failed", "sessionId", sessionID, "err", err)
		}
	}

	domain := config.ClassifyDomain(message)
	route, ok := m.resolveWorkerRoute(preferredModel, domain)
	if !ok {
		return errNoProviderForDomain
	}

	m.setState(ctx, sessionID, session.StateExecuting)
	agentID := "worker-" + randomSuffix(6)
	m.deps.Bus.Publish(streamevent.NewAgentSpawned(sessionID, streamevent.AgentIdentity{
		ID: agentID, DisplayName: "Worker", Role: "worker", ModelID: route.Model, Provider: route.Provider,
		Domain: string(domain), GlowColor: config.DefaultColors[domain],
	}, message))

	workerCtx, workerCancel := context.WithCancel(ctx)
	m.registerWorker(sessionID, agentID, workerCancel)
	defer m.unregisterWorker(sessionID, agentID)

	task, taskErr := m.deps.Sessions.CreateTask(ctx, session.Task{
		SessionID: sessionID, Description: message, Domain: string(domain), Model: route.Model,
		Status: session.TaskPending, Plan: plan,
	})
	if taskErr != nil {
		m.deps.Logger.Warn(ctx, "create task failed", "sessionId", sessionID, "err", taskErr)
	}
	m.transitionTask(ctx, task.ID, session.TaskActive)

	tc := m.buildToolContext(sessionID, agentID, workdir, true, []string{"."})

	seedText := fmt.Sprintf("Working directory: %s\n\nTask: %s\n\nPlan:\n%s\n\nExecute this plan.", workdir, message, plan)
	seed := []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: seedText}}}}

	result, loopErr := m.runExecutionLoop(workerCtx, sessionID, agentID, tools.RoleWorker, route, workerSystemPrompt, seed, tc, complexPathMaxTurns, thinking)
	switch {
	case result.Cancelled:
		m.transitionTask(ctx, task.ID, session.TaskInterrupted)
		return nil
	case loopErr != nil:
		m.transitionTask(ctx, task.ID, session.TaskFailed)
		return loopErr
	}

	resultPatch := result.FinalText
	_, _ = m.deps.Sessions.UpdateTask(ctx, task.ID, session.TaskPatch{Result: &resultPatch})
	m.transitionTask(ctx, task.ID, session.TaskDone)
	m.appendTrace(sessionID, agentID, trace.KindExecutionLoopComplete, map[string]any{"turns": result.Turns})

	if adapter.IsRepo() {
		if pending := m.deps.Ledger.Get(sessionID); len(pending) > 0 {
			if err := m.commitChanges(ctx, sessionID, managerRoute, adapter, pending); err != nil {
				m.deps.Logger.Warn(ctx, "commit changes failed", "sessionId", sessionID, "err", err)
			}
		}
	}
	return nil
}

// streamPlan runs the manager's planning turn, streaming its text onto the
// bus as it is produced so the UI can show planning progress live.
func (m *Manager) streamPlan(ctx context.Context, sessionID string, route routeTarget, message string) (string, error) {
	m.deps.Bus.Publish(streamevent.NewThought(sessionID, "Planning approach", streamevent.PhasePlanning))

	prov, _, ok := m.deps.Providers.ResolveProvider(route.Model, route.Provider)
	if !ok {
		return "", fmt.Errorf("manager: no provider resolves model %q", route.Model)
	}
	req := &model.Request{
		Model:     route.Model,
		MaxTokens: 500,
		Messages: []*model.Message{
			{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: planningSystemPrompt}}},
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: message}}},
		},
	}

	st, err := prov.Client.Stream(ctx, req)
	if errors.Is(err, model.ErrStreamingUnsupported) {
		resp, cerr := prov.Client.Complete(ctx, req)
		if cerr != nil {
			return "", cerr
		}
		text := responseText(resp)
		m.deps.Bus.Publish(streamevent.NewDelta(sessionID, "manager", text, route.Model))
		m.appendTrace(sessionID, "manager", trace.KindPlanning, map[string]any{"plan": text})
		return text, nil
	}
	if err != nil {
		return "", err
	}
	defer st.Close()

	var plan strings.Builder
	for {
		chunk, rerr := st.Recv()
		if rerr != nil {
			break
		}
		if chunk.Type == model.ChunkText && chunk.Message != nil {
			text := textOfParts(chunk.Message.Parts)
			plan.WriteString(text)
			m.deps.Bus.Publish(streamevent.NewDelta(sessionID, "manager", text, route.Model))
		}
		if chunk.Type == model.ChunkStop {
			break
		}
	}
	m.appendTrace(sessionID, "manager", trace.KindPlanning, map[string]any{"plan": plan.String()})
	return plan.String(), nil
}

func (m *Manager) commitChanges(ctx context.Context, sessionID string, route routeTarget, adapter *vcs.Adapter, changes []ledger.ChangeSummary) error {
	msg := m.generateCommitMessage(ctx, route, changes)
	for _, c := range changes {
		if ok, out := adapter.Stage(c.Path); !ok {
			m.deps.Logger.Warn(ctx, "stage failed", "sessionId", sessionID, "path", c.Path, "output", out)
		}
	}
	ok, _, out := adapter.Commit(msg)
	if !ok {
		return fmt.Errorf("manager: commit failed: %s", out)
	}
	m.deps.Bus.Publish(streamevent.NewSessionGitCommit(sessionID, msg))
	m.appendTrace(sessionID, "manager", trace.KindCommitMessageGen, map[string]any{"message": msg})
	return nil
}

func (m *Manager) generateCommitMessage(ctx context.Context, route routeTarget, changes []ledger.ChangeSummary) string {
	const fallback = "feat: update project"

	prov, _, ok := m.deps.Providers.ResolveProvider(route.Model, route.Provider)
	if !ok {
		return fallback
	}

	var summary strings.Builder
	for _, c := range changes {
		fmt.Fprintf(&summary, "%s %s (+%d/-%d)\n", c.Operation, c.Path, c.LinesAdded, c.LinesDeleted)
	}

	req := &model.Request{
		Model:     route.Model,
		MaxTokens: 60,
		Messages: []*model.Message{
			{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: commitMessageSystemPrompt}}},
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: summary.String()}}},
		},
	}
	resp, err := prov.Client.Complete(ctx, req)
	if err != nil {
		return fallback
	}
	msg := strings.Trim(strings.TrimSpace(responseText(resp)), "\"")
	if msg == "" {
		return fallback
	}
	return msg
}
