package provider_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/provider"
)

// scriptedClient replays a fixed queue of Stream outcomes, one per call, so
// tests can simulate a provider failing and then recovering without a real
// SDK.
type scriptedClient struct {
	completeErr error
	streamErrs  []error
	chunks      []model.Chunk
}

func (c *scriptedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return &model.Response{}, c.completeErr
}

func (c *scriptedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if len(c.streamErrs) > 0 {
		err := c.streamErrs[0]
		c.streamErrs = c.streamErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &scriptedStreamer{chunks: append([]model.Chunk(nil), c.chunks...)}, nil
}

type scriptedStreamer struct {
	chunks []model.Chunk
	i      int
}

func (s *scriptedStreamer) Recv() (model.Chunk, error) {
	if s.i >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *scriptedStreamer) Close() error { return nil }

func textChunk(s string) model.Chunk {
	return model.Chunk{Type: model.ChunkText, Message: &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: s}}}}
}

func TestResolveProviderPrefersNamedProvider(t *testing.T) {
	reg := provider.NewRegistry(&config.Config{})
	reg.Register("anthropic", &scriptedClient{}, []provider.ModelInfo{{ID: "claude-x"}})
	reg.Register("openai", &scriptedClient{}, []provider.ModelInfo{{ID: "claude-x"}})

	p, info, ok := reg.ResolveProvider("claude-x", "openai")
	require.True(t, ok)
	assert.Equal(t, "openai", p.Name)
	assert.Equal(t, "claude-x", info.ID)
}

func TestResolveProviderSkipsDisabledProvider(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"anthropic": {Disabled: true},
	}}
	reg := provider.NewRegistry(cfg)
	reg.Register("anthropic", &scriptedClient{}, []provider.ModelInfo{{ID: "claude-x"}})

	_, _, ok := reg.ResolveProvider("claude-x", "")
	assert.False(t, ok)
}

func TestResolveProviderUnknownModelReturnsFalse(t *testing.T) {
	reg := provider.NewRegistry(&config.Config{})
	reg.Register("anthropic", &scriptedClient{}, []provider.ModelInfo{{ID: "claude-x"}})

	_, _, ok := reg.ResolveProvider("nonexistent", "")
	assert.False(t, ok)
}

func TestExecuteWithRetryFallsBackOnTransientFailure(t *testing.T) {
	cfg := &config.Config{Fallbacks: map[string][]string{
		"model-a": {"model-b"},
	}}
	reg := provider.NewRegistry(cfg)
	reg.Register("primary", &scriptedClient{
		streamErrs: []error{provider.Transient(errors.New("503"))},
	}, []provider.ModelInfo{{ID: "model-a"}})
	reg.Register("secondary", &scriptedClient{
		chunks: []model.Chunk{textChunk("hello"), {Type: model.ChunkStop}},
	}, []provider.ModelInfo{{ID: "model-b"}})

	events, err := reg.ExecuteWithRetry(context.Background(), &model.Request{Model: "model-a"}, "primary")
	require.NoError(t, err)

	var got []provider.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.NoError(t, last.Err)
	assert.Equal(t, "secondary", last.Provider)
}

func TestExecuteWithRetryReturnsNonTransientErrorImmediately(t *testing.T) {
	cfg := &config.Config{Fallbacks: map[string][]string{"model-a": {"model-b"}}}
	reg := provider.NewRegistry(cfg)
	fatal := errors.New("invalid api key")
	reg.Register("primary", &scriptedClient{streamErrs: []error{fatal}}, []provider.ModelInfo{{ID: "model-a"}})
	reg.Register("secondary", &scriptedClient{
		chunks: []model.Chunk{textChunk("unreached")},
	}, []provider.ModelInfo{{ID: "model-b"}})

	events, err := reg.ExecuteWithRetry(context.Background(), &model.Request{Model: "model-a"}, "primary")
	require.NoError(t, err)

	ev := <-events
	assert.ErrorIs(t, ev.Err, fatal)
	assert.Equal(t, "primary", ev.Provider)
}

func TestExecuteWithRetryExhaustsChain(t *testing.T) {
	reg := provider.NewRegistry(&config.Config{})
	reg.Register("primary", &scriptedClient{
		streamErrs: []error{provider.Transient(errors.New("503"))},
	}, []provider.ModelInfo{{ID: "model-a"}})

	events, err := reg.ExecuteWithRetry(context.Background(), &model.Request{Model: "model-a"}, "primary")
	require.NoError(t, err)

	ev := <-events
	assert.ErrorIs(t, ev.Err, provider.ErrChainExhausted)
}

func TestExecuteWithRetrySkipsLegacyModels(t *testing.T) {
	cfg := &config.Config{Fallbacks: map[string][]string{"model-a": {"model-legacy"}}}
	reg := provider.NewRegistry(cfg)
	reg.Register("primary", &scriptedClient{
		streamErrs: []error{provider.Transient(errors.New("503"))},
	}, []provider.ModelInfo{{ID: "model-a"}})
	reg.Register("legacy-provider", &scriptedClient{}, []provider.ModelInfo{{ID: "model-legacy", IsLegacy: true}})

	events, err := reg.ExecuteWithRetry(context.Background(), &model.Request{Model: "model-a"}, "primary")
	require.NoError(t, err)

	ev := <-events
	assert.ErrorIs(t, ev.Err, provider.ErrChainExhausted)
}

func TestGetStatusReportsCircuitState(t *testing.T) {
	reg := provider.NewRegistry(&config.Config{})
	reg.Register("primary", &scriptedClient{completeErr: errors.New("boom")}, []provider.ModelInfo{{ID: "model-a"}})

	status := reg.GetStatus()
	require.Contains(t, status, "primary")
	assert.False(t, status["primary"].CircuitOpen)
}

func TestVerifyConnectionPropagatesClientError(t *testing.T) {
	reg := provider.NewRegistry(&config.Config{})
	boom := errors.New("unauthorized")
	reg.Register("primary", &scriptedClient{completeErr: boom}, []provider.ModelInfo{{ID: "model-a"}})

	err := reg.VerifyConnection(context.Background(), "primary")
	assert.ErrorIs(t, err, boom)
}

func TestSetCredentialsRejectsUnknownProvider(t *testing.T) {
	reg := provider.NewRegistry(&config.Config{})
	err := reg.SetCredentials("ghost", provider.Credentials{APIKey: "x"})
	assert.Error(t, err)
}
