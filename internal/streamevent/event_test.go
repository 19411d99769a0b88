package streamevent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kory-ai/workbench-core/internal/bus"
	"github.com/kory-ai/workbench-core/internal/model"
	"github.com/kory-ai/workbench-core/internal/streamevent"
)

func TestEventsSatisfyBusEvent(t *testing.T) {
	var _ bus.Event = streamevent.NewDelta("s1", "agent-1", "hi", "claude")
	var _ bus.Event = streamevent.NewAskUser("s1", "which file?", "req-1", nil, true)
	var _ bus.Event = streamevent.NewSystemError("s1", "boom")
}

func TestNewUsagePreservesAttribution(t *testing.T) {
	u := model.TokenUsage{Model: "claude-sonnet", InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	evt := streamevent.NewUsage("s1", "agent-1", "anthropic", u, true, true, 200000)
	assert.Equal(t, "s1", evt.SessionID())
	assert.Equal(t, streamevent.TypeUsage, evt.Type())
	assert.Equal(t, 10, evt.TokensIn)
	assert.True(t, evt.ContextKnown)
	assert.Equal(t, 200000, evt.ContextWindow)
}
