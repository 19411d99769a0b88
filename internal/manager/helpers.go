package manager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/streamevent"
	"github.com/kory-ai/workbench-core/internal/trace"
)

// completeManager issues a single non-streaming call against the manager's
// resolved route, used for the clarify/classify/commit-message steps that
// don't need to stream to the UI.
func (m *Manager) completeManager(ctx context.Context, route routeTarget, systemPrompt, userText string) (*model.Response, error) {
	prov, _, ok := m.deps.Providers.ResolveProvider(route.Model, route.Provider)
	if !ok {
		return nil, fmt.Errorf("manager: no provider resolves model %q", route.Model)
	}
	req := &model.Request{
		Model:     route.Model,
		MaxTokens: 512,
		Messages: []*model.Message{
			{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrompt}}},
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: userText}}},
		},
	}
	return prov.Client.Complete(ctx, req)
}

func responseText(resp *model.Response) string {
	var b strings.Builder
	for _, msg := range resp.Content {
		b.WriteString(textOfParts(msg.Parts))
	}
	return b.String()
}

func textOfParts(parts []model.Part) string {
	var b strings.Builder
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			b.WriteString(v.Text)
		case model.ThinkingPart:
			b.WriteString(v.Text)
		}
	}
	return b.String()
}

func decodeJSON(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// thinkingOptionsFor maps the coarse reasoningLevel string accepted by
// Process into a provider-agnostic token budget. An empty/unknown level
// disables extended thinking.
func thinkingOptionsFor(level string) *model.ThinkingOptions {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return &model.ThinkingOptions{Enable: true, BudgetTokens: 1024}
	case "medium":
		return &model.ThinkingOptions{Enable: true, BudgetTokens: 4096}
	case "high":
		return &model.ThinkingOptions{Enable: true, BudgetTokens: 16384}
	default:
		return nil
	}
}

func randomSuffix(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("0", n)
	}
	s := hex.EncodeToString(b)
	return s[:n]
}

// historyToMessages replays stored session.Message rows as model.Message
// turns so a fast-path run carries prior conversation context.
func historyToMessages(history []session.Message) []*model.Message {
	out := make([]*model.Message, 0, len(history))
	for _, h := range history {
		if h.Role == session.RoleTool {
			out = append(out, &model.Message{
				Role:  model.RoleUser,
				Parts: []model.Part{model.ToolResultPart{ToolUseID: h.ToolCallID, Content: h.Content}},
			})
			continue
		}

		role := model.RoleUser
		switch h.Role {
		case session.RoleAssistant:
			role = model.RoleAssistant
		case session.RoleSystem:
			role = model.RoleSystem
		}
		parts := []model.Part{model.TextPart{Text: h.Content}}
		for _, tc := range h.ToolCalls {
			parts = append(parts, model.ToolUsePart{ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Args)})
		}
		out = append(out, &model.Message{Role: role, Parts: parts})
	}
	return out
}

func toolCallRecords(calls []model.ToolCall) []session.ToolCallRecord {
	if len(calls) == 0 {
		return nil
	}
	out := make([]session.ToolCallRecord, 0, len(calls))
	for _, c := range calls {
		out = append(out, session.ToolCallRecord{ID: c.ID, Name: c.Name, Args: string(c.Payload)})
	}
	return out
}

func (m *Manager) persistAssistant(ctx context.Context, sessionID, content, modelID, providerName string, calls []model.ToolCall) {
	msg := session.Message{
		SessionID: sessionID,
		Role:      session.RoleAssistant,
		Content:   content,
		Model:     modelID,
		Provider:  providerName,
		ToolCalls: toolCallRecords(calls),
	}
	if _, err := m.deps.Sessions.AddMessage(ctx, msg); err != nil {
		m.deps.Logger.Warn(ctx, "persist assistant message failed", "sessionId", sessionID, "err", err)
	}
}

func (m *Manager) persistToolResult(ctx context.Context, sessionID, toolCallID string, output any) {
	msg := session.Message{
		SessionID:  sessionID,
		Role:       session.RoleTool,
		Content:    fmt.Sprintf("%v", output),
		ToolCallID: toolCallID,
	}
	if _, err := m.deps.Sessions.AddMessage(ctx, msg); err != nil {
		m.deps.Logger.Warn(ctx, "persist tool result message failed", "sessionId", sessionID, "err", err)
	}
}

func (m *Manager) appendTrace(sessionID, agentID string, kind trace.Kind, details map[string]any) {
	if m.deps.Trace == nil {
		return
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return
	}
	event := trace.Event{Timestamp: time.Now().UTC(), SessionID: sessionID, AgentID: agentID, Type: kind, Details: raw}
	if err := m.deps.Trace.Append(event); err != nil && m.deps.Logger != nil {
		m.deps.Logger.Warn(context.Background(), "trace append failed", "sessionId", sessionID, "err", err)
	}
}

// askUserFunc builds the tools.Context.AskUser callback for one session. In
// yolo mode, tool-initiated prompts are auto-confirmed rather than parked
// on the pending-prompt table (see SetYoloMode's doc comment).
func (m *Manager) askUserFunc(sessionID string) func(ctx context.Context, question string, options []string, allowOther bool) (string, error) {
	return func(ctx context.Context, question string, options []string, allowOther bool) (string, error) {
		if m.yolo.Load() {
			if len(options) > 0 {
				return options[0], nil
			}
			return "yes", nil
		}

		reqID := m.deps.Prompts.NewRequest(sessionID)
		m.deps.Bus.Publish(streamevent.NewAskUser(sessionID, question, reqID, options, allowOther))
		reply, err := m.deps.Prompts.Wait(ctx, reqID, config.DefaultPendingPromptTimeout)
		if err != nil {
			return "", err
		}
		if reply.Selection != "" {
			return reply.Selection, nil
		}
		return reply.Text, nil
	}
}

// askManagerFunc builds the tools.Context.AskManager callback. This
// implementation runs every agent in-process under one pipeline rather than
// as independent services with their own message channel, so there is no
// separate "manager inbox" to route an escalation through; it is treated as
// an ask_user prompt instead, surfaced to whoever is operating the session.
func (m *Manager) askManagerFunc(sessionID string) func(ctx context.Context, question string) (string, error) {
	ask := m.askUserFunc(sessionID)
	return func(ctx context.Context, question string) (string, error) {
		return ask(ctx, question, nil, true)
	}
}
