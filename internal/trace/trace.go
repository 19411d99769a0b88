// Package trace provides the append-only execution trace the Manager writes
// one JSON line per significant pipeline event to, generalized from the
// teacher's durable runlog.Store down to a single local JSONL sink (no
// durable multi-node store is needed here; see DESIGN.md).
package trace

import (
	"encoding/json"
	"time"
)

// Kind classifies one traced event.
type Kind string

const (
	KindComplexityClassification Kind = "complexity_classification"
	KindPlanning                 Kind = "planning"
	KindLLMTurn                  Kind = "llm_turn"
	KindToolExecution            Kind = "tool_execution"
	KindExecutionLoopComplete    Kind = "execution_loop_complete"
	KindClarificationAsked       Kind = "clarification_asked"
	KindClarificationAnswered    Kind = "clarification_answered"
	KindClarificationTimedOut    Kind = "clarification_timed_out"
	KindDirectExecution          Kind = "direct_execution"
	KindCommitMessageGen         Kind = "commit_message_gen"
)

// Event is one immutable trace record.
type Event struct {
	Timestamp  time.Time       `json:"timestamp"`
	SessionID  string          `json:"sessionId"`
	AgentID    string          `json:"agentId"`
	Type       Kind            `json:"type"`
	DurationMs int64           `json:"durationMs,omitempty"`
	CostUSD    float64         `json:"costUsd,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// Sink appends trace events. Write failures are surfaced so callers can
// decide how to handle a broken sink (the Manager logs and continues rather
// than failing a pipeline over a tracing write — see internal/manager).
type Sink interface {
	Append(e Event) error
	Close() error
}
