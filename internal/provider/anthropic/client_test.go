package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/model"
)

type scriptedMessages struct {
	resp       *sdk.Message
	err        error
	gotParams  sdk.MessageNewParams
}

func (s *scriptedMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.gotParams = body
	return s.resp, s.err
}

func (s *scriptedMessages) NewStreaming(context.Context, sdk.MessageNewParams, ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	return nil
}

func newTestClient(t *testing.T, msg *scriptedMessages) *Client {
	t.Helper()
	c, err := New(msg, Options{DefaultModel: "claude-sonnet-4"})
	require.NoError(t, err)
	return c
}

func userReq(text string) *model.Request {
	return &model.Request{Messages: []*model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
	}}
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := New(&scriptedMessages{}, Options{})
	assert.Error(t, err)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c := newTestClient(t, &scriptedMessages{})
	_, err := c.Complete(context.Background(), &model.Request{})
	assert.Error(t, err)
}

func TestCompleteUsesDefaultModel(t *testing.T) {
	msg := &scriptedMessages{resp: &sdk.Message{}}
	c := newTestClient(t, msg)

	_, err := c.Complete(context.Background(), userReq("hello"))
	require.NoError(t, err)
	assert.Equal(t, sdk.Model("claude-sonnet-4"), msg.gotParams.Model)
}

func TestCompleteTranslatesTextAndUsage(t *testing.T) {
	msg := &scriptedMessages{resp: &sdk.Message{
		StopReason: sdk.StopReasonEndTurn,
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "hello there"},
		},
		Usage: sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	c := newTestClient(t, msg)

	resp, err := c.Complete(context.Background(), userReq("hi"))
	require.NoError(t, err)
	assert.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hello there", resp.Content[0].Parts[0].(model.TextPart).Text)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCompleteWrapsRateLimitError(t *testing.T) {
	msg := &scriptedMessages{err: &sdk.Error{StatusCode: 429}}
	c := newTestClient(t, msg)

	_, err := c.Complete(context.Background(), userReq("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestCompleteForwardsToolInputSchema(t *testing.T) {
	msg := &scriptedMessages{resp: &sdk.Message{}}
	c := newTestClient(t, msg)

	req := userReq("what's the weather")
	req.Tools = []*model.ToolDefinition{{
		Name:        "get_weather",
		Description: "Look up the weather for a city.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []string{"city"},
		},
	}}

	_, err := c.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, msg.gotParams.Tools, 1)
	tool := msg.gotParams.Tools[0].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "get_weather", tool.Name)
	assert.Equal(t, "object", tool.InputSchema.ExtraFields["type"])
	assert.Contains(t, tool.InputSchema.ExtraFields, "properties")
}
