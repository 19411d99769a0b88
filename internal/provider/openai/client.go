// Package openai implements model.Client on top of the OpenAI Chat
// Completions API via github.com/openai/openai-go — the teacher's declared
// dependency (goadesign-goa-ai's go.mod). The teacher's own
// features/model/openai/client.go is not grounding here: it imports
// github.com/sashabaranov/go-openai, a dependency absent from the
// teacher's own go.mod/go.sum (a stale, non-buildable fragment — see
// DESIGN.md). This adapter instead talks to openai-go directly, following
// the same Options{DefaultModel}/New/NewFromAPIKey constructor shape and
// request/response translation used by the Anthropic adapter in this
// package family.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/provider"
)

// ChatService is the subset of the OpenAI SDK this adapter uses, satisfied
// by the real client's Chat.Completions service so tests can substitute a
// fake.
type ChatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client against OpenAI Chat Completions. Streaming
// is not implemented; Stream returns model.ErrStreamingUnsupported, which
// Registry.ExecuteWithRetry does not retry and does not turn into a
// Complete call.
type Client struct {
	chat         ChatService
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds a Client from an explicit ChatService.
func New(chat ChatService, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	sdkClient := openai.NewClient(option.WithAPIKey(apiKey))
	return New(sdkClient.Chat.Completions, Options{DefaultModel: defaultModel})
}

func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, translateErr(err)
	}
	return translateResponse(resp), nil
}

// Stream is unimplemented for this adapter; the Chat Completions SSE
// surface is not wired here, matching the teacher's own openai client
// doc comment ("Callers should fall back to Complete").
func (c *Client) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) prepareRequest(req *model.Request) (*openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	} else if c.maxTok > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTok))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	} else if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	return params, nil
}

func encodeMessages(msgs []*model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := textOf(m)
		switch m.Role {
		case model.RoleSystem:
			if text != "" {
				out = append(out, openai.SystemMessage(text))
			}
		case model.RoleUser, model.RoleTool:
			if text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case model.RoleAssistant:
			if text != "" {
				out = append(out, openai.AssistantMessage(text))
			}
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func textOf(m *model.Message) string {
	var s string
	for _, p := range m.Parts {
		if tp, ok := p.(model.TextPart); ok {
			s += tp.Text
		}
	}
	return s
}

func encodeTools(defs []*model.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		var params map[string]any
		if data, err := json.Marshal(def.InputSchema); err == nil {
			_ = json.Unmarshal(data, &params)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

func translateErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		if apiErr.StatusCode >= 500 {
			return provider.Transient(fmt.Errorf("openai: %w", err))
		}
		return fmt.Errorf("openai: %w", err)
	}
	return provider.Transient(fmt.Errorf("openai: %w", err))
}

func translateResponse(resp *openai.ChatCompletion) *model.Response {
	out := &model.Response{}
	var toolCalls []model.ToolCall
	var parts []model.Part
	for _, choice := range resp.Choices {
		if choice.Message.Content != "" {
			parts = append(parts, model.TextPart{Text: choice.Message.Content})
		}
		for _, call := range choice.Message.ToolCalls {
			toolCalls = append(toolCalls, model.ToolCall{
				ID:      call.ID,
				Name:    call.Function.Name,
				Payload: json.RawMessage(call.Function.Arguments),
			})
		}
		out.StopReason = string(choice.FinishReason)
	}
	if len(parts) > 0 {
		out.Content = []model.Message{{Role: model.RoleAssistant, Parts: parts}}
	}
	out.ToolCalls = toolCalls
	out.Usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return out
}
