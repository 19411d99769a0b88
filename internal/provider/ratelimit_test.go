package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kory-ai/workbench-core/internal/model"
)

func TestAdaptiveRateLimiterBacksOffOnRateLimitError(t *testing.T) {
	l := NewAdaptiveRateLimiter(RateLimiterOptions{InitialTPM: 1000})
	start := l.CurrentTPM()

	l.observe(model.ErrRateLimited)
	assert.Less(t, l.CurrentTPM(), start)
}

func TestAdaptiveRateLimiterProbesOnSuccess(t *testing.T) {
	l := NewAdaptiveRateLimiter(RateLimiterOptions{InitialTPM: 1000, MaxTPM: 2000})
	l.currentTPM = 500
	l.limiter.SetLimit(l.limiter.Limit())

	l.observe(nil)
	assert.Greater(t, l.CurrentTPM(), 500.0)
}

func TestAdaptiveRateLimiterFloorsAtMinTPM(t *testing.T) {
	l := NewAdaptiveRateLimiter(RateLimiterOptions{InitialTPM: 100, MinTPM: 50})
	for i := 0; i < 10; i++ {
		l.observe(model.ErrRateLimited)
	}
	assert.GreaterOrEqual(t, l.CurrentTPM(), 50.0)
}

func TestEstimateTokensHasMinimumFloor(t *testing.T) {
	assert.Equal(t, 500, estimateTokens(&model.Request{}))
}

func TestEstimateTokensScalesWithTextLength(t *testing.T) {
	req := &model.Request{Messages: []*model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: string(make([]byte, 3000))}}},
	}}
	assert.Equal(t, 1500, estimateTokens(req))
}
