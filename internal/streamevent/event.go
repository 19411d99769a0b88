// Package streamevent defines the tagged event variants published on the
// event bus (internal/bus) and forwarded to external subscribers (web
// sockets, bots). A single discriminated Event interface
// keeps the provider/manager/UI boundary stable: consumers can switch on
// Type() for coarse routing or type-assert to a concrete struct for typed
// field access.
package streamevent

import (
	"time"

	"github.com/kory-ai/workbench-core/internal/model"
)

// Type identifies the kind of a streamed event. Values match the bus topic
// names in spec §6.
type Type string

const (
	TypeAgentSpawned      Type = "agent.spawned"
	TypeAgentStatus       Type = "agent.status"
	TypeDelta             Type = "stream.delta"
	TypeThinking          Type = "stream.thinking"
	TypeToolCall          Type = "stream.tool_call"
	TypeToolResult        Type = "stream.tool_result"
	TypeFileDelta         Type = "stream.file_delta"
	TypeFileComplete      Type = "stream.file_complete"
	TypeUsage             Type = "stream.usage"
	TypeThought           Type = "kory.thought"
	TypeAskUser           Type = "kory.ask_user"
	TypeSessionChanges    Type = "session.changes"
	TypeSessionAccept     Type = "session.accept_changes"
	TypeSessionGitCommit  Type = "session.git_commit"
	TypeSystemError       Type = "system.error"
)

// Base carries the envelope fields common to every event.
type Base struct {
	t         Type
	sessionID string
	at        time.Time
}

// Type returns the event's discriminator.
func (b Base) Type() Type { return b.t }

// SessionID returns the owning session id (see internal/bus.Event).
func (b Base) SessionID() string { return b.sessionID }

// At returns when the event was constructed.
func (b Base) At() time.Time { return b.at }

func newBase(t Type, sessionID string) Base {
	return Base{t: t, sessionID: sessionID, at: time.Now()}
}

type (
	// AgentSpawned announces a new agent identity (manager or worker) that
	// has begun participating in the current run.
	AgentSpawned struct {
		Base
		Agent AgentIdentity
		Task  string
	}

	// AgentIdentity mirrors spec §3's AgentIdentity entity.
	AgentIdentity struct {
		ID          string
		DisplayName string
		Role        string
		ModelID     string
		Provider    string
		Domain      string
		GlowColor   string
	}

	// AgentStatus reports a coarse status change for an agent.
	AgentStatus struct {
		Base
		AgentID string
		Status  string
		Detail  string
	}

	// Delta streams incremental assistant text.
	Delta struct {
		Base
		AgentID string
		Content string
		Model   string
	}

	// Thinking streams incremental reasoning text.
	Thinking struct {
		Base
		AgentID  string
		Thinking string
	}

	// ToolCallInfo is the structured payload shared by ToolCall/ToolResult
	// events.
	ToolCallInfo struct {
		ID    string
		Name  string
		Input any
	}

	// ToolCall announces a scheduled tool invocation.
	ToolCall struct {
		Base
		AgentID  string
		ToolCall ToolCallInfo
	}

	// ToolResultInfo carries a completed tool invocation's outcome.
	ToolResultInfo struct {
		CallID     string
		Name       string
		Output     any
		IsError    bool
		DurationMs int64
	}

	// ToolResult announces a completed tool invocation.
	ToolResult struct {
		Base
		AgentID    string
		ToolResult ToolResultInfo
	}

	// FileDelta streams an incremental file-content change for live preview.
	FileDelta struct {
		Base
		AgentID     string
		Path        string
		Delta       string
		TotalLength int
		Operation   string
	}

	// FileComplete marks a file-content change as finished streaming.
	FileComplete struct {
		Base
		AgentID    string
		Path       string
		TotalLines int
		Operation  string
	}

	// Usage reports token usage for a model call.
	Usage struct {
		Base
		AgentID       string
		Model         string
		Provider      string
		TokensIn      int
		TokensOut     int
		TokensUsed    int
		UsageKnown    bool
		ContextKnown  bool
		ContextWindow int
	}

	// Thought streams a manager-level reasoning annotation, e.g. "planning".
	Thought struct {
		Base
		Thought string
		Phase   ThoughtPhase
	}

	// ThoughtPhase enumerates the coarse phases a Thought may be tagged
	// with.
	ThoughtPhase string

	// AskUser requests an out-of-band answer from the connected user,
	// correlated via RequestID to internal/prompt.
	AskUser struct {
		Base
		Question   string
		Options    []string
		AllowOther bool
		RequestID  string
	}

	// SessionChanges reports the current pending ChangeSummary list for a
	// session.
	SessionChanges struct {
		Base
		Changes []ChangeSummary
	}

	// ChangeSummary mirrors spec §3's ChangeSummary entity.
	ChangeSummary struct {
		Path         string
		LinesAdded   int
		LinesDeleted int
		Operation    string
	}

	// SessionAcceptChanges announces that pending changes were accepted.
	SessionAcceptChanges struct {
		Base
	}

	// SessionGitCommit announces a commit made on the session's behalf.
	SessionGitCommit struct {
		Base
		Message string
	}

	// SystemError announces a fatal pipeline failure; the session's
	// workflow-state transitions to "error" alongside this event.
	SystemError struct {
		Base
		Error string
	}
)

const (
	PhaseAnalyzing    ThoughtPhase = "analyzing"
	PhasePlanning     ThoughtPhase = "planning"
	PhaseDelegating   ThoughtPhase = "delegating"
	PhaseExecuting    ThoughtPhase = "executing"
	PhaseFinalizing   ThoughtPhase = "finalizing"
	PhaseSynthesizing ThoughtPhase = "synthesizing"
)

// NewAgentSpawned constructs an AgentSpawned event.
func NewAgentSpawned(sessionID string, agent AgentIdentity, task string) AgentSpawned {
	return AgentSpawned{Base: newBase(TypeAgentSpawned, sessionID), Agent: agent, Task: task}
}

// NewAgentStatus constructs an AgentStatus event.
func NewAgentStatus(sessionID, agentID, status, detail string) AgentStatus {
	return AgentStatus{Base: newBase(TypeAgentStatus, sessionID), AgentID: agentID, Status: status, Detail: detail}
}

// NewDelta constructs a Delta event.
func NewDelta(sessionID, agentID, content, modelID string) Delta {
	return Delta{Base: newBase(TypeDelta, sessionID), AgentID: agentID, Content: content, Model: modelID}
}

// NewThinking constructs a Thinking event.
func NewThinking(sessionID, agentID, thinking string) Thinking {
	return Thinking{Base: newBase(TypeThinking, sessionID), AgentID: agentID, Thinking: thinking}
}

// NewToolCall constructs a ToolCall event.
func NewToolCall(sessionID, agentID string, info ToolCallInfo) ToolCall {
	return ToolCall{Base: newBase(TypeToolCall, sessionID), AgentID: agentID, ToolCall: info}
}

// NewToolResult constructs a ToolResult event.
func NewToolResult(sessionID, agentID string, info ToolResultInfo) ToolResult {
	return ToolResult{Base: newBase(TypeToolResult, sessionID), AgentID: agentID, ToolResult: info}
}

// NewFileDelta constructs a FileDelta event.
func NewFileDelta(sessionID, agentID, path, delta string, totalLen int, op string) FileDelta {
	return FileDelta{Base: newBase(TypeFileDelta, sessionID), AgentID: agentID, Path: path, Delta: delta, TotalLength: totalLen, Operation: op}
}

// NewFileComplete constructs a FileComplete event.
func NewFileComplete(sessionID, agentID, path string, totalLines int, op string) FileComplete {
	return FileComplete{Base: newBase(TypeFileComplete, sessionID), AgentID: agentID, Path: path, TotalLines: totalLines, Operation: op}
}

// NewUsage constructs a Usage event from a model.TokenUsage snapshot.
func NewUsage(sessionID, agentID, provider string, u model.TokenUsage, usageKnown, contextKnown bool, contextWindow int) Usage {
	return Usage{
		Base:          newBase(TypeUsage, sessionID),
		AgentID:       agentID,
		Model:         u.Model,
		Provider:      provider,
		TokensIn:      u.InputTokens,
		TokensOut:     u.OutputTokens,
		TokensUsed:    u.TotalTokens,
		UsageKnown:    usageKnown,
		ContextKnown:  contextKnown,
		ContextWindow: contextWindow,
	}
}

// NewThought constructs a Thought event.
func NewThought(sessionID, thought string, phase ThoughtPhase) Thought {
	return Thought{Base: newBase(TypeThought, sessionID), Thought: thought, Phase: phase}
}

// NewAskUser constructs an AskUser event.
func NewAskUser(sessionID, question, requestID string, options []string, allowOther bool) AskUser {
	return AskUser{Base: newBase(TypeAskUser, sessionID), Question: question, Options: options, AllowOther: allowOther, RequestID: requestID}
}

// NewSessionChanges constructs a SessionChanges event.
func NewSessionChanges(sessionID string, changes []ChangeSummary) SessionChanges {
	return SessionChanges{Base: newBase(TypeSessionChanges, sessionID), Changes: changes}
}

// NewSessionAcceptChanges constructs a SessionAcceptChanges event.
func NewSessionAcceptChanges(sessionID string) SessionAcceptChanges {
	return SessionAcceptChanges{Base: newBase(TypeSessionAccept, sessionID)}
}

// NewSessionGitCommit constructs a SessionGitCommit event.
func NewSessionGitCommit(sessionID, message string) SessionGitCommit {
	return SessionGitCommit{Base: newBase(TypeSessionGitCommit, sessionID), Message: message}
}

// NewSystemError constructs a SystemError event.
func NewSystemError(sessionID, errMsg string) SystemError {
	return SystemError{Base: newBase(TypeSystemError, sessionID), Error: errMsg}
}
