package manager

import (
	"context"
	"errors"
	"strings"

	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/streamevent"
	"github.com/kory-ai/workbench-core/internal/trace"
	"github.com/kory-ai/workbench-core/internal/vcs"
)

// complexity is the outcome of the classify step: SIMPLE stays on the fast
// path (manager answers directly, with tools), COMPLEX hands off to a
// worker after a planning turn.
type complexity string

const (
	complexitySimple  complexity = "SIMPLE"
	complexityComplex complexity = "COMPLEX"

	fastPathMaxTurns    = 5
	complexPathMaxTurns = 15
)

// Process runs the full six-step pipeline (spec §4.9) for one user message,
// asynchronously: it returns immediately and the pipeline's progress is
// observable only through the event bus and the session's workflow state.
// Only one pipeline may run per session at a time; a Process call for a
// session that already has one in flight is a no-op (the caller is expected
// to queue at the HTTP boundary, per C2).
func (m *Manager) Process(sessionID, userMessage, preferredModel, reasoningLevel string) {
	ctx, cancel := context.WithCancel(context.Background())
	if !m.beginRun(sessionID, cancel) {
		cancel()
		return
	}
	go m.run(ctx, sessionID, userMessage, preferredModel, reasoningLevel)
}

func (m *Manager) run(ctx context.Context, sessionID, userMessage, preferredModel, reasoningLevel string) {
	defer m.endRun(sessionID)

	m.setState(ctx, sessionID, session.StateAnalyzing)
	m.deps.Ledger.Clear(sessionID)

	managerRoute := m.resolveManagerRoute(preferredModel)
	thinking := thinkingOptionsFor(reasoningLevel)

	enriched := m.clarify(ctx, sessionID, managerRoute, userMessage)
	if ctx.Err() != nil {
		m.finishCancelled(ctx, sessionID)
		return
	}

	comp := m.classify(ctx, sessionID, managerRoute, enriched)
	m.appendTrace(sessionID, "", trace.KindComplexityClassification, map[string]any{"complexity": string(comp)})

	var runErr error
	switch comp {
	case complexitySimple:
		runErr = m.runFastPath(ctx, sessionID, managerRoute, enriched, thinking)
	default:
		runErr = m.runComplexPath(ctx, sessionID, managerRoute, preferredModel, enriched, thinking)
	}

	if ctx.Err() != nil {
		m.finishCancelled(ctx, sessionID)
		return
	}
	if runErr != nil {
		m.deps.Logger.Error(ctx, "pipeline failed", "sessionId", sessionID, "err", runErr)
		m.deps.Bus.Publish(streamevent.NewSystemError(sessionID, runErr.Error()))
		m.setState(ctx, sessionID, session.StateError)
		return
	}

	m.exit(ctx, sessionID)
}

func (m *Manager) exit(ctx context.Context, sessionID string) {
	if pending := m.deps.Ledger.Get(sessionID); len(pending) > 0 {
		m.deps.Bus.Publish(streamevent.NewSessionChanges(sessionID, pending))
	}
	m.setState(ctx, sessionID, session.StateIdle)
}

func (m *Manager) finishCancelled(ctx context.Context, sessionID string) {
	// Cancellation never discards ledger state: a user who interrupts mid-run
	// still gets to accept or reject whatever partial changes landed.
	m.setState(ctx, sessionID, session.StateIdle)
}

func (m *Manager) setState(ctx context.Context, sessionID string, state session.WorkflowState) {
	if err := m.deps.Sessions.SetWorkflowState(ctx, sessionID, state); err != nil {
		m.deps.Logger.Warn(ctx, "set workflow state failed", "sessionId", sessionID, "state", string(state), "err", err)
	}
}

func (m *Manager) transitionTask(ctx context.Context, taskID string, status session.TaskStatus) {
	if taskID == "" {
		return
	}
	if _, err := m.deps.Sessions.UpdateTask(ctx, taskID, session.TaskPatch{Status: &status}); err != nil {
		m.deps.Logger.Warn(ctx, "update task failed", "taskId", taskID, "status", string(status), "err", err)
	}
}

// classify decides whether message needs only a direct manager answer or a
// full plan-then-delegate run. Any short message containing an obvious
// "fix"/"typo" marker shortcuts to SIMPLE without spending a model call;
// otherwise the manager model itself is asked to classify, with SIMPLE as
// the fail-open default if that call errors (spec §9 names this as a known,
// accepted under-routing risk when the classifier is rate-limited).
func (m *Manager) classify(ctx context.Context, sessionID string, route routeTarget, message string) complexity {
	if looksLikeTrivialFix(message) {
		return complexitySimple
	}

	resp, err := m.completeManager(ctx, route, classifierSystemPrompt, message)
	if err != nil {
		m.deps.Logger.Warn(ctx, "classifier call failed, defaulting to SIMPLE", "sessionId", sessionID, "err", err)
		return complexitySimple
	}
	if strings.Contains(strings.ToUpper(responseText(resp)), "COMPLEX") {
		return complexityComplex
	}
	return complexitySimple
}

func looksLikeTrivialFix(message string) bool {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) >= 60 {
		return false
	}
	lower := strings.ToLower(trimmed)
	return strings.Contains(lower, "fix") || strings.Contains(lower, "typo")
}

var errNoProviderForDomain = errors.New("manager: no provider resolves a worker model for this domain")

func (m *Manager) vcsFor(sessionID string) *vcs.Adapter {
	return vcs.Open(m.deps.WorkDir(sessionID))
}
