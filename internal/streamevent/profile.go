package streamevent

import "github.com/kory-ai/workbench-core/internal/bus"

// StreamProfile selects which event kinds a given subscriber wants to
// receive, mirroring the teacher's runtime/agent/stream/subscriber.go
// StreamProfile: a trace sink wants everything, a metrics pipeline wants
// only usage and errors, and a chat UI wants the conversational subset
// without the file-delta noise of a background worker diffing a large file.
type StreamProfile struct {
	AgentLifecycle bool // agent.spawned, agent.status
	Delta          bool // stream.delta
	Thinking       bool // stream.thinking
	ToolCall       bool // stream.tool_call
	ToolResult     bool // stream.tool_result
	FileDelta      bool // stream.file_delta, stream.file_complete
	Usage          bool // stream.usage
	Thought        bool // kory.thought
	AskUser        bool // kory.ask_user
	SessionChanges bool // session.changes, session.accept_changes, session.git_commit
	SystemError    bool // system.error
}

// DefaultProfile emits every event kind, matching the teacher's
// DefaultProfile/UserChatProfile equivalence (this project has no
// child-run flattening distinction to separate the two).
func DefaultProfile() StreamProfile {
	return StreamProfile{
		AgentLifecycle: true,
		Delta:          true,
		Thinking:       true,
		ToolCall:       true,
		ToolResult:     true,
		FileDelta:      true,
		Usage:          true,
		Thought:        true,
		AskUser:        true,
		SessionChanges: true,
		SystemError:    true,
	}
}

// MetricsProfile emits only usage and error events, for a telemetry
// pipeline that has no use for conversational content.
func MetricsProfile() StreamProfile {
	return StreamProfile{Usage: true, SystemError: true}
}

// ChatProfile emits the conversational subset a chat UI renders, omitting
// the raw file-delta stream a file-diff viewer would want instead.
func ChatProfile() StreamProfile {
	return StreamProfile{
		AgentLifecycle: true,
		Delta:          true,
		Thinking:       true,
		ToolCall:       true,
		ToolResult:     true,
		Usage:          true,
		Thought:        true,
		AskUser:        true,
		SessionChanges: true,
		SystemError:    true,
	}
}

// Allows reports whether profile wants to see an event of the given type.
// An unrecognized Type is dropped rather than passed through, so adding a
// new event kind requires an explicit opt-in in this table.
func (p StreamProfile) Allows(t Type) bool {
	switch t {
	case TypeAgentSpawned, TypeAgentStatus:
		return p.AgentLifecycle
	case TypeDelta:
		return p.Delta
	case TypeThinking:
		return p.Thinking
	case TypeToolCall:
		return p.ToolCall
	case TypeToolResult:
		return p.ToolResult
	case TypeFileDelta, TypeFileComplete:
		return p.FileDelta
	case TypeUsage:
		return p.Usage
	case TypeThought:
		return p.Thought
	case TypeAskUser:
		return p.AskUser
	case TypeSessionChanges, TypeSessionAccept, TypeSessionGitCommit:
		return p.SessionChanges
	case TypeSystemError:
		return p.SystemError
	default:
		return false
	}
}

// typed is satisfied by every concrete event struct in this package via
// the embedded Base.
type typed interface {
	Type() Type
}

// FilterEvent reports whether profile allows ev. Callers that consume raw
// bus.Event values (which only expose SessionID) can still filter by kind
// as long as the event also satisfies typed, which every event in this
// package does through its embedded Base.
func FilterEvent(profile StreamProfile, ev typed) bool {
	return profile.Allows(ev.Type())
}

// FilteredSubscription wraps a bus.Subscription and re-exposes only the
// events a StreamProfile allows, translating a bus-level backpressure
// boundary into a domain-aware one: a curated UI subscriber and a
// full-fidelity trace sink can share the same underlying bus.Subscription
// queue depth without the UI subscriber burning its queue on event kinds
// it will immediately discard.
type FilteredSubscription struct {
	sub     bus.Subscription
	profile StreamProfile
	out     chan bus.Event
	done    chan struct{}
}

// NewFilteredSubscription starts relaying events from sub that profile
// allows onto a freshly buffered channel, and drops the rest. Closing the
// returned FilteredSubscription also closes sub.
func NewFilteredSubscription(sub bus.Subscription, profile StreamProfile) *FilteredSubscription {
	fs := &FilteredSubscription{
		sub:     sub,
		profile: profile,
		out:     make(chan bus.Event, 256),
		done:    make(chan struct{}),
	}
	go fs.run()
	return fs
}

func (fs *FilteredSubscription) run() {
	defer close(fs.out)
	for {
		select {
		case ev, ok := <-fs.sub.Events():
			if !ok {
				return
			}
			t, isTyped := ev.(typed)
			if isTyped && !fs.profile.Allows(t.Type()) {
				continue
			}
			select {
			case fs.out <- ev:
			case <-fs.done:
				return
			}
		case <-fs.done:
			return
		}
	}
}

// Events returns the filtered event channel, closed once the underlying
// subscription is closed or Close is called.
func (fs *FilteredSubscription) Events() <-chan bus.Event { return fs.out }

// Close stops relaying and closes the underlying subscription. Idempotent.
func (fs *FilteredSubscription) Close() {
	select {
	case <-fs.done:
		return
	default:
		close(fs.done)
	}
	fs.sub.Close()
}
