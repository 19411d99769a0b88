// Package anthropic implements model.Client on top of the Anthropic Claude
// Messages API, translating the shared internal/model request/response
// shapes into github.com/anthropics/anthropic-sdk-go calls. Adapted from
// the teacher's features/model/anthropic/client.go: same MessagesClient
// seam (so tests can substitute a fake), same Options{DefaultModel,...}
// construction, same model.ErrRateLimited detection on 429 responses.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/provider"
)

// MessagesClient is the subset of the Anthropic SDK client this adapter
// uses, satisfied by *sdk.MessageService so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client against Anthropic Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds a Client from an explicit MessagesClient, letting tests
// substitute a fake.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	sdkClient := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&sdkClient.Messages, Options{DefaultModel: defaultModel})
}

func (c *Client) resolveModel(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.defaultModel
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.maxTok > 0 {
		return c.maxTok
	}
	return 4096
}

// Complete issues a non-streaming Messages.New call.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, translateErr(err)
	}
	return translateMessage(msg), nil
}

// Stream issues a Messages.NewStreaming call and adapts it to model.Streamer.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, translateErr(err)
	}
	return newStreamer(stream), nil
}

func (c *Client) prepareRequest(req *model.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := c.resolveModel(req)
	if modelID == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	msgs, system := encodeMessages(req.Messages)
	params := &sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		Messages:  msgs,
		MaxTokens: int64(c.effectiveMaxTokens(req.MaxTokens)),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	} else if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	if req.Thinking != nil && req.Thinking.Enable && req.Thinking.BudgetTokens > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(req.Thinking.BudgetTokens))
	}
	return params, nil
}

// translateErr maps an SDK error to the error vocabulary
// internal/provider.Registry.ExecuteWithRetry understands: a 429 becomes
// model.ErrRateLimited, a 5xx or network failure becomes a
// provider.Transient error (both advance the fallback chain), anything
// else is returned as-is so the Manager surfaces it synchronously.
func translateErr(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		if apiErr.StatusCode >= 500 {
			return provider.Transient(fmt.Errorf("anthropic: %w", err))
		}
		return fmt.Errorf("anthropic: %w", err)
	}
	return provider.Transient(fmt.Errorf("anthropic: %w", err))
}

func encodeMessages(msgs []*model.Message) ([]sdk.MessageParam, string) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	var system strings.Builder
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if tp, ok := p.(model.TextPart); ok {
					system.WriteString(tp.Text)
				}
			}
			continue
		}
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch v := p.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case model.ToolUsePart:
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Input, v.Name))
			case model.ToolResultPart:
				content, _ := toolResultString(v.Content)
				blocks = append(blocks, sdk.NewToolResultBlock(v.ToolUseID, content, v.IsError))
			}
		}
		role := sdk.MessageParamRoleUser
		if m.Role == model.RoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}
		out = append(out, sdk.MessageParam{Role: role, Content: blocks})
	}
	return out, system.String()
}

func toolResultString(content any) (string, bool) {
	if s, ok := content.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", content), false
}

func encodeTools(defs []*model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		schema, err := toolInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

// toolInputSchema marshals def.InputSchema (a map[string]any built by the
// tool registry from its JSON-schema input definition, per spec §4.4) into
// the SDK's schema param. ExtraFields carries the schema's "type"/
// "properties"/"required" keys through verbatim, mirroring the teacher's
// own toolInputSchema helper.
func toolInputSchema(schema any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateMessage(msg *sdk.Message) *model.Response {
	resp := &model.Response{StopReason: string(msg.StopReason)}
	var parts []model.Part
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, model.TextPart{Text: block.Text})
			}
		case "thinking":
			parts = append(parts, model.ThinkingPart{Text: block.Thinking, Signature: block.Signature})
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: block.ID, Name: block.Name, Payload: block.Input})
		}
	}
	if len(parts) > 0 {
		resp.Content = []model.Message{{Role: model.RoleAssistant, Parts: parts}}
	}
	u := msg.Usage
	if u.InputTokens != 0 || u.OutputTokens != 0 || u.CacheReadInputTokens != 0 || u.CacheCreationInputTokens != 0 {
		resp.Usage = model.TokenUsage{
			Model:            string(msg.Model),
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
	}
	return resp
}
