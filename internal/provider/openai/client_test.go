package openai

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/model"
)

type scriptedChat struct {
	resp      *openai.ChatCompletion
	err       error
	gotParams openai.ChatCompletionNewParams
}

func (s *scriptedChat) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.gotParams = body
	return s.resp, s.err
}

func newTestClient(t *testing.T, chat *scriptedChat) *Client {
	t.Helper()
	c, err := New(chat, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	return c
}

func userReq(text string) *model.Request {
	return &model.Request{Messages: []*model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
	}}
}

func TestCompleteTranslatesResponse(t *testing.T) {
	chat := &scriptedChat{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "hi there"}, FinishReason: "stop"},
		},
	}}
	c := newTestClient(t, chat)

	resp, err := c.Complete(context.Background(), userReq("hello"))
	require.NoError(t, err)
	assert.Equal(t, "stop", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hi there", resp.Content[0].Parts[0].(model.TextPart).Text)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c := newTestClient(t, &scriptedChat{})
	_, err := c.Complete(context.Background(), &model.Request{})
	assert.Error(t, err)
}

func TestStreamReturnsUnsupported(t *testing.T) {
	c := newTestClient(t, &scriptedChat{})
	_, err := c.Stream(context.Background(), userReq("hello"))
	assert.ErrorIs(t, err, model.ErrStreamingUnsupported)
}

func TestPrepareRequestUsesDefaultModel(t *testing.T) {
	chat := &scriptedChat{resp: &openai.ChatCompletion{}}
	c := newTestClient(t, chat)

	_, err := c.Complete(context.Background(), userReq("hello"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", chat.gotParams.Model)
}
