package streamevent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/bus"
	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/streamevent"
)

func TestDefaultProfileAllowsEveryType(t *testing.T) {
	p := streamevent.DefaultProfile()
	types := []streamevent.Type{
		streamevent.TypeAgentSpawned, streamevent.TypeAgentStatus,
		streamevent.TypeDelta, streamevent.TypeThinking,
		streamevent.TypeToolCall, streamevent.TypeToolResult,
		streamevent.TypeFileDelta, streamevent.TypeFileComplete,
		streamevent.TypeUsage, streamevent.TypeThought, streamevent.TypeAskUser,
		streamevent.TypeSessionChanges, streamevent.TypeSessionAccept, streamevent.TypeSessionGitCommit,
		streamevent.TypeSystemError,
	}
	for _, ty := range types {
		assert.True(t, p.Allows(ty), "expected DefaultProfile to allow %s", ty)
	}
}

func TestMetricsProfileAllowsOnlyUsageAndErrors(t *testing.T) {
	p := streamevent.MetricsProfile()
	assert.True(t, p.Allows(streamevent.TypeUsage))
	assert.True(t, p.Allows(streamevent.TypeSystemError))
	assert.False(t, p.Allows(streamevent.TypeDelta))
	assert.False(t, p.Allows(streamevent.TypeFileDelta))
	assert.False(t, p.Allows(streamevent.TypeToolCall))
}

func TestChatProfileExcludesFileDelta(t *testing.T) {
	p := streamevent.ChatProfile()
	assert.True(t, p.Allows(streamevent.TypeDelta))
	assert.True(t, p.Allows(streamevent.TypeAskUser))
	assert.False(t, p.Allows(streamevent.TypeFileDelta))
	assert.False(t, p.Allows(streamevent.TypeFileComplete))
}

func TestFilteredSubscriptionDropsDisallowedEvents(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe()
	fs := streamevent.NewFilteredSubscription(sub, streamevent.MetricsProfile())
	defer fs.Close()

	b.Publish(streamevent.NewDelta("s1", "agent-1", "hi", "claude"))
	b.Publish(streamevent.NewUsage("s1", "agent-1", "anthropic", model.TokenUsage{}, true, false, 0))

	select {
	case ev := <-fs.Events():
		usage, ok := ev.(streamevent.Usage)
		require.True(t, ok, "expected a Usage event, got %T", ev)
		assert.Equal(t, streamevent.TypeUsage, usage.Type())
	case <-time.After(time.Second):
		t.Fatal("expected the allowed Usage event to arrive")
	}

	select {
	case ev := <-fs.Events():
		t.Fatalf("unexpected second event delivered: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
