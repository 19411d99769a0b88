// Package model defines the provider-agnostic message and streaming types
// shared by the provider registry, the tool registry, and the manager's
// execution loop. Messages are modeled as typed parts (text, thinking, tool
// use/result) grouped under a conversation role, mirroring how the upstream
// providers themselves structure turns.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole identifies the speaker for a Message.
type ConversationRole string

const (
	// RoleSystem is the role for the system prompt.
	RoleSystem ConversationRole = "system"
	// RoleUser is the role for user and tool-result messages.
	RoleUser ConversationRole = "user"
	// RoleAssistant is the role for model-generated messages.
	RoleAssistant ConversationRole = "assistant"
	// RoleTool is the role used on the wire/store side for a completed tool
	// call result keyed by tool_call_id (see session.Message).
	RoleTool ConversationRole = "tool"
)

type (
	// Part is a marker interface implemented by every message content block.
	Part interface {
		isPart()
	}

	// TextPart is plain assistant- or user-visible text.
	TextPart struct {
		Text string
	}

	// ThinkingPart carries provider-issued reasoning content. Callers treat
	// Signature/Redacted as opaque and forward them unmodified on replay.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
		Index     int
		Final     bool
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		// ID uniquely identifies this call within the turn.
		ID string
		// Name is the tool identifier as announced to the model.
		Name string
		// Input is the canonical JSON arguments supplied by the model.
		Input json.RawMessage
	}

	// ToolResultPart carries a tool result fed back to the model, correlated
	// to a prior ToolUsePart via ToolUseID.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// Message is a single ordered-parts turn in a conversation.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes a tool exposed to the model for a given turn.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolChoiceMode controls how a provider should use the announced tools.
	ToolChoiceMode string

	// ToolChoice optionally constrains tool-use behavior for a Request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// TokenUsage tracks token counts for a single model call, with model
	// attribution filled in by provider adapters or stamped by the runtime
	// when the adapter leaves it empty.
	TokenUsage struct {
		Model            string
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures the inputs to a single model invocation.
	Request struct {
		RunID       string
		Model       string
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		ToolChoice  *ToolChoice
		MaxTokens   int
		Stream      bool
		Thinking    *ThinkingOptions
	}

	// ThinkingOptions configures provider reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		BudgetTokens int
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content    []Message
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// ToolCall is a tool invocation requested by the model, decoded from the
	// final streamed or unary response.
	ToolCall struct {
		ID      string
		Name    string
		Payload json.RawMessage
	}

	// ToolCallDelta is a best-effort, incremental tool-call argument
	// fragment streamed while the provider is still constructing the final
	// input JSON. Fragments are not guaranteed to parse on their own.
	ToolCallDelta struct {
		ID    string
		Name  string
		Delta string
	}

	// Chunk is a single streaming event from a provider.
	Chunk struct {
		Type          ChunkType
		Message       *Message
		ToolCall      *ToolCall
		ToolCallDelta *ToolCallDelta
		UsageDelta    *TokenUsage
		StopReason    string
	}

	// ChunkType classifies a streamed Chunk.
	ChunkType string

	// Client is the provider-agnostic model client every adapter implements.
	Client interface {
		// Complete performs a non-streaming invocation.
		Complete(ctx context.Context, req *Request) (*Response, error)
		// Stream performs a streaming invocation.
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental output from a streaming call. Callers
	// must drain Recv until io.EOF (or another terminal error) and then
	// Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}
)

const (
	// ToolChoiceAuto lets the provider decide whether to call a tool.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceNone disables tool use for the request.
	ToolChoiceNone ToolChoiceMode = "none"
	// ToolChoiceAny forces at least one tool call.
	ToolChoiceAny ToolChoiceMode = "any"
	// ToolChoiceTool forces the specific tool named in ToolChoice.Name.
	ToolChoiceTool ToolChoiceMode = "tool"
)

const (
	// ChunkText carries incremental assistant text.
	ChunkText ChunkType = "text"
	// ChunkThinking carries incremental reasoning content.
	ChunkThinking ChunkType = "thinking"
	// ChunkToolCall carries a finalized tool invocation.
	ChunkToolCall ChunkType = "tool_call"
	// ChunkToolCallDelta carries an incremental tool-call argument fragment.
	ChunkToolCallDelta ChunkType = "tool_call_delta"
	// ChunkUsage carries an incremental usage delta.
	ChunkUsage ChunkType = "usage"
	// ChunkStop is the terminal chunk of a stream.
	ChunkStop ChunkType = "stop"
)

// ErrStreamingUnsupported indicates the provider adapter does not support
// streaming invocations.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Callers should treat this as transient and let the fallback
// chain advance rather than retrying in a tight loop.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// LastAssistantText concatenates all TextPart content from the last
// assistant message in msgs, in document order. It returns "" if msgs has
// no assistant message.
func LastAssistantText(msgs []*Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] == nil || msgs[i].Role != RoleAssistant {
			continue
		}
		var out string
		for _, p := range msgs[i].Parts {
			if tp, ok := p.(TextPart); ok {
				out += tp.Text
			}
		}
		return out
	}
	return ""
}

// Max returns the larger of two TokenUsage snapshots, field by field. It is
// used to enforce the monotonic-usage testable property (P2): successive
// usage_update events for the same (session, agent, model) must report
// non-decreasing counters even if a provider resends a smaller delta.
func Max(a, b TokenUsage) TokenUsage {
	return TokenUsage{
		Model:            pickNonEmpty(a.Model, b.Model),
		InputTokens:      maxInt(a.InputTokens, b.InputTokens),
		OutputTokens:     maxInt(a.OutputTokens, b.OutputTokens),
		TotalTokens:      maxInt(a.TotalTokens, b.TotalTokens),
		CacheReadTokens:  maxInt(a.CacheReadTokens, b.CacheReadTokens),
		CacheWriteTokens: maxInt(a.CacheWriteTokens, b.CacheWriteTokens),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func pickNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
