package provider

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kory-ai/workbench-core/internal/model"
)

// RateLimiterOptions configures an AdaptiveRateLimiter. Zero values apply
// the defaults noted on each field.
type RateLimiterOptions struct {
	// InitialTPM is the starting tokens-per-minute budget. Defaults to 60000.
	InitialTPM float64
	// MinTPM floors how low backoff can drive the budget. Defaults to 10%
	// of InitialTPM, floored at 1.
	MinTPM float64
	// MaxTPM caps how high recovery can raise the budget. Defaults to
	// InitialTPM.
	MaxTPM float64
	// RecoveryRate is how much TPM is added back per successful call.
	// Defaults to 5% of InitialTPM, floored at 1.
	RecoveryRate float64
}

// AdaptiveRateLimiter paces requests to one provider with an AIMD policy:
// additive increase on success, multiplicative decrease on a rate-limit
// error. Adapted from the teacher's features/model/middleware/ratelimit.go
// AdaptiveRateLimiter, with the Pulse/go-redis cluster-wide coordination
// (clusterMap/rmapClusterMap) stripped — this project has no multi-process
// deployment target for the rate limiter to coordinate across (see
// DESIGN.md dropped dependencies), so the limiter is process-local only.
type AdaptiveRateLimiter struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewAdaptiveRateLimiter returns a limiter seeded at InitialTPM (or its
// default).
func NewAdaptiveRateLimiter(opts RateLimiterOptions) *AdaptiveRateLimiter {
	initial := opts.InitialTPM
	if initial <= 0 {
		initial = 60000
	}
	minTPM := opts.MinTPM
	if minTPM <= 0 {
		minTPM = initial * 0.1
		if minTPM < 1 {
			minTPM = 1
		}
	}
	maxTPM := opts.MaxTPM
	if maxTPM <= 0 {
		maxTPM = initial
	}
	recovery := opts.RecoveryRate
	if recovery <= 0 {
		recovery = initial * 0.05
		if recovery < 1 {
			recovery = 1
		}
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initial/60.0), int(initial)),
		currentTPM:   initial,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recovery,
	}
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req *model.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, model.ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// CurrentTPM reports the limiter's current effective tokens-per-minute
// budget, surfaced via Registry.GetStatus.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens is a cheap heuristic for the token count of a request's
// text content, used to size the WaitN reservation. Mirrors the teacher's
// estimateTokens in shape: counts text content, converts with a fixed
// characters-per-token ratio, and adds a fixed overhead buffer.
func estimateTokens(req *model.Request) int {
	charCount := 0
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				charCount += len(tp.Text)
			}
		}
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}

// rateLimitedClient decorates a model.Client with an AdaptiveRateLimiter,
// mirroring the teacher's limitedClient: wait before the call, observe the
// outcome after.
type rateLimitedClient struct {
	inner   model.Client
	limiter *AdaptiveRateLimiter
}

func newRateLimitedClient(inner model.Client, limiter *AdaptiveRateLimiter) model.Client {
	return &rateLimitedClient{inner: inner, limiter: limiter}
}

func (c *rateLimitedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.inner.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (c *rateLimitedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	st, err := c.inner.Stream(ctx, req)
	c.limiter.observe(err)
	return st, err
}
