package manager

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/streamevent"
	"github.com/kory-ai/workbench-core/internal/tools"
	"github.com/kory-ai/workbench-core/internal/trace"
)

// loopResult summarizes one runExecutionLoop call for its caller (the fast
// or complex path), which decides what to do with the final text and
// whether the run was interrupted.
type loopResult struct {
	FinalText string
	Turns     int
	Cancelled bool
}

// runExecutionLoop drives the turn-by-turn conversation described in spec
// §4.9's Execution loop: one model call per turn via
// provider.Registry.ExecuteWithRetry, routing each streamed chunk onto the
// event bus, then executing every completed tool call and feeding its
// result back before the next turn. The loop ends when a turn produces no
// tool calls, maxTurns is reached, or ctx is cancelled.
func (m *Manager) runExecutionLoop(
	ctx context.Context,
	sessionID, agentID string,
	role tools.Role,
	route routeTarget,
	systemPrompt string,
	seed []*model.Message,
	tc *tools.Context,
	maxTurns int,
	thinking *model.ThinkingOptions,
) (loopResult, error) {
	conversation := make([]*model.Message, 0, len(seed)+1)
	conversation = append(conversation, &model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrompt}}})
	conversation = append(conversation, seed...)

	maxTokens := 4096
	if m.deps.Config != nil {
		maxTokens = m.deps.Config.Safety.MaxTokens()
	}

	var usage model.TokenUsage
	var finalText string
	turn := 0

	for ; turn < maxTurns; turn++ {
		if ctx.Err() != nil {
			return loopResult{FinalText: finalText, Turns: turn, Cancelled: true}, nil
		}

		req := &model.Request{
			Model:     route.Model,
			Messages:  conversation,
			Tools:     m.deps.Tools.GetToolDefsForRole(role),
			MaxTokens: maxTokens,
			Thinking:  thinking,
		}

		turnText, toolCalls, turnUsage, lastModel, lastProvider, err := m.runOneTurn(ctx, sessionID, agentID, route, req)
		if err != nil {
			return loopResult{}, err
		}
		if turnUsage != (model.TokenUsage{}) {
			usage = model.Max(usage, turnUsage)
			usage.Model = lastModel
			m.deps.Bus.Publish(streamevent.NewUsage(sessionID, agentID, lastProvider, usage, true, false, 0))
		}

		finalText = turnText
		assistantParts := make([]model.Part, 0, 1+len(toolCalls))
		if finalText != "" {
			assistantParts = append(assistantParts, model.TextPart{Text: finalText})
		}
		for _, c := range toolCalls {
			assistantParts = append(assistantParts, model.ToolUsePart{ID: c.ID, Name: c.Name, Input: c.Payload})
		}
		conversation = append(conversation, &model.Message{Role: model.RoleAssistant, Parts: assistantParts})

		if role == tools.RoleManager {
			m.persistAssistant(ctx, sessionID, finalText, lastModel, lastProvider, toolCalls)
		}

		m.appendTrace(sessionID, agentID, trace.KindLLMTurn, map[string]any{"turn": turn, "toolCalls": len(toolCalls)})

		if len(toolCalls) == 0 {
			turn++
			break
		}

		for _, call := range toolCalls {
			if ctx.Err() != nil {
				return loopResult{FinalText: finalText, Turns: turn + 1, Cancelled: true}, nil
			}
			result := m.executeToolCall(ctx, sessionID, agentID, role, tc, call)
			conversation = append(conversation, &model.Message{
				Role:  model.RoleUser,
				Parts: []model.Part{model.ToolResultPart{ToolUseID: call.ID, Content: result.Output, IsError: result.IsError}},
			})
			m.persistToolResult(ctx, sessionID, call.ID, result.Output)
		}
	}

	return loopResult{FinalText: finalText, Turns: turn}, nil
}

// runOneTurn opens a single streaming model call (with provider fallback
// already handled inside ExecuteWithRetry) and drains it into accumulated
// text, finalized tool calls, and the turn's usage delta.
func (m *Manager) runOneTurn(ctx context.Context, sessionID, agentID string, route routeTarget, req *model.Request) (text string, calls []model.ToolCall, usage model.TokenUsage, lastModel, lastProvider string, err error) {
	events, err := m.deps.Providers.ExecuteWithRetry(ctx, req, route.Provider)
	if err != nil {
		return "", nil, model.TokenUsage{}, "", "", fmt.Errorf("manager: open model stream: %w", err)
	}

	var textBuf string
	for ev := range events {
		if ev.Err != nil {
			return "", nil, model.TokenUsage{}, "", "", fmt.Errorf("manager: model call failed: %w", ev.Err)
		}
		lastModel, lastProvider = ev.Model, ev.Provider

		switch ev.Chunk.Type {
		case model.ChunkText:
			if ev.Chunk.Message == nil {
				continue
			}
			delta := textOfParts(ev.Chunk.Message.Parts)
			textBuf += delta
			m.deps.Bus.Publish(streamevent.NewDelta(sessionID, agentID, delta, ev.Model))
		case model.ChunkThinking:
			if ev.Chunk.Message == nil {
				continue
			}
			m.deps.Bus.Publish(streamevent.NewThinking(sessionID, agentID, textOfParts(ev.Chunk.Message.Parts)))
		case model.ChunkToolCall:
			if ev.Chunk.ToolCall == nil {
				continue
			}
			calls = append(calls, *ev.Chunk.ToolCall)
			m.deps.Bus.Publish(streamevent.NewToolCall(sessionID, agentID, streamevent.ToolCallInfo{
				ID:    ev.Chunk.ToolCall.ID,
				Name:  ev.Chunk.ToolCall.Name,
				Input: decodeJSON(ev.Chunk.ToolCall.Payload),
			}))
		case model.ChunkUsage:
			if ev.Chunk.UsageDelta != nil {
				usage = model.Max(usage, *ev.Chunk.UsageDelta)
			}
		}
	}

	return textBuf, calls, usage, lastModel, lastProvider, nil
}

// executeToolCall validates the call's argument JSON, runs it through the
// tool registry, and publishes the outcome. An invalid-JSON payload never
// reaches the tool implementation (spec §9): it is synthesized into an
// error Result instead.
func (m *Manager) executeToolCall(ctx context.Context, sessionID, agentID string, role tools.Role, tc *tools.Context, call model.ToolCall) tools.Result {
	if !json.Valid(call.Payload) {
		result := tools.Result{Output: "tool arguments were not valid JSON", IsError: true}
		m.publishToolResult(sessionID, agentID, call, result)
		return result
	}

	result := m.deps.Tools.Execute(ctx, tc, role, call)
	m.publishToolResult(sessionID, agentID, call, result)
	m.appendTrace(sessionID, agentID, trace.KindToolExecution, map[string]any{
		"tool": call.Name, "isError": result.IsError, "durationMs": result.DurationMs,
	})
	return result
}

func (m *Manager) publishToolResult(sessionID, agentID string, call model.ToolCall, result tools.Result) {
	m.deps.Bus.Publish(streamevent.NewToolResult(sessionID, agentID, streamevent.ToolResultInfo{
		CallID:     call.ID,
		Name:       call.Name,
		Output:     result.Output,
		IsError:    result.IsError,
		DurationMs: result.DurationMs,
	}))
}
