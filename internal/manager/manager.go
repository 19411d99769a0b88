// Package manager implements the orchestrator (C9): the single component
// that turns one user message into a sequence of LLM turns, tool
// executions, and pending-change bookkeeping, publishing every step onto
// the event bus as it goes. It is the direct analogue of the teacher's
// Temporal-backed Runtime (runtime/agent/runtime/runtime.go), but this
// project carries no durable workflow engine (see DESIGN.md): a run is a
// plain goroutine with a context.CancelFunc registered for Cancel/
// CancelWorker/CancelSessionWorkers, mirroring the native-channel substitute
// internal/prompt already established for the teacher's interrupt.Controller.
package manager

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kory-ai/workbench-core/internal/bus"
	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/ledger"
	"github.com/kory-ai/workbench-core/internal/prompt"
	"github.com/kory-ai/workbench-core/internal/provider"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/snapshot"
	"github.com/kory-ai/workbench-core/internal/telemetry"
	"github.com/kory-ai/workbench-core/internal/tools"
	"github.com/kory-ai/workbench-core/internal/trace"
)

// Deps bundles every collaborator the Manager coordinates. All fields are
// required except Snapshots, Trace and Config, which degrade gracefully
// when nil (no snapshot fallback / no tracing / built-in defaults,
// respectively).
type Deps struct {
	Sessions  session.Store
	Bus       bus.Bus
	Providers *provider.Registry
	Tools     *tools.Registry
	Ledger    *ledger.Ledger
	Prompts   *prompt.Table
	Snapshots *snapshot.Store
	Trace     trace.Sink
	Logger    telemetry.Logger
	Config    *config.Config

	// WorkDir returns the working directory a session's tool calls and VCS
	// operations run against. Callers typically derive this from
	// Config.DataDirectory plus the session id.
	WorkDir func(sessionID string) string
}

type runHandle struct {
	cancel  context.CancelFunc
	workers map[string]context.CancelFunc
}

// Manager is the orchestrator described by this package's doc comment. The
// zero value is not usable; construct with New.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	runs   map[string]*runHandle
	hashes map[string]string // sessionID -> last-known-good VCS commit hash

	yolo atomic.Bool
}

// New constructs a Manager over deps. deps.WorkDir must be non-nil.
func New(deps Deps) *Manager {
	return &Manager{
		deps:   deps,
		runs:   make(map[string]*runHandle),
		hashes: make(map[string]string),
	}
}

// Status summarizes the Manager's live state for diagnostics / a status
// endpoint.
type Status struct {
	Providers      map[string]provider.Status
	ActiveSessions []string
	YoloMode       bool
}

// GetStatus reports provider health and which sessions currently have a
// pipeline in flight.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	sessions := make([]string, 0, len(m.runs))
	for id := range m.runs {
		sessions = append(sessions, id)
	}
	m.mu.Unlock()

	return Status{
		Providers:      m.deps.Providers.GetStatus(),
		ActiveSessions: sessions,
		YoloMode:       m.yolo.Load(),
	}
}

// IsSessionRunning reports whether sessionID has a pipeline currently
// executing.
func (m *Manager) IsSessionRunning(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[sessionID]
	return ok
}

// SetYoloMode toggles auto-confirmation of kory.ask_user prompts raised by
// tool execution (see DESIGN.md's Open Questions: the source's
// setYoloMode had no defined gating semantics, so this project defines it
// as "answer every tool-initiated question with its first option, or
// 'yes' for a free-form question, instead of blocking on a reply").
func (m *Manager) SetYoloMode(enabled bool) {
	m.yolo.Store(enabled)
}

// HandleUserInput resolves a pending kory.ask_user prompt (C8). requestID
// may be empty to resolve the most recently asked pending prompt for the
// session (legacy-client fallback, spec §4.7).
func (m *Manager) HandleUserInput(sessionID, requestID, selection, text string) bool {
	return m.deps.Prompts.Resolve(sessionID, requestID, prompt.Reply{Selection: selection, Text: text})
}

// Cancel stops every currently running pipeline, across all sessions.
func (m *Manager) Cancel() {
	m.mu.Lock()
	handles := make([]*runHandle, 0, len(m.runs))
	for _, h := range m.runs {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
}

// CancelWorker cancels a single worker agent by id, wherever it is running.
func (m *Manager) CancelWorker(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.runs {
		if cancel, ok := h.workers[workerID]; ok {
			cancel()
		}
	}
}

// CancelSessionWorkers cancels the entire pipeline for sessionID, including
// every spawned worker, and unblocks any pending ask_user prompts for that
// session with prompt.ErrCancelled.
func (m *Manager) CancelSessionWorkers(sessionID string) {
	m.mu.Lock()
	h, ok := m.runs[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	m.deps.Prompts.CancelSession(sessionID)
	for _, cancel := range h.workers {
		cancel()
	}
	h.cancel()
}

func (m *Manager) beginRun(sessionID string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[sessionID]; exists {
		return false
	}
	m.runs[sessionID] = &runHandle{cancel: cancel, workers: make(map[string]context.CancelFunc)}
	return true
}

func (m *Manager) endRun(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, sessionID)
}

func (m *Manager) registerWorker(sessionID, workerID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.runs[sessionID]; ok {
		h.workers[workerID] = cancel
	}
}

func (m *Manager) unregisterWorker(sessionID, workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.runs[sessionID]; ok {
		delete(h.workers, workerID)
	}
}

func (m *Manager) recordLastGoodHash(sessionID, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[sessionID] = hash
}

func (m *Manager) lastGoodHash(sessionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[sessionID]
	return h, ok
}
