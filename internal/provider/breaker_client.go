package provider

import (
	"context"
	"fmt"

	"github.com/kory-ai/workbench-core/internal/model"
)

// circuitBreakingClient decorates a model.Client with a CircuitBreaker: a
// call is refused immediately (without reaching the inner client) while the
// breaker is open, and the outcome of every attempted call is recorded.
// Modeled in the same decorator style as the teacher's
// cacheConfiguredClient/eventDecoratedClient
// (runtime/agent/runtime/model_wrapper.go).
type circuitBreakingClient struct {
	inner   model.Client
	breaker *CircuitBreaker
}

func newCircuitBreakingClient(inner model.Client, breaker *CircuitBreaker) model.Client {
	return &circuitBreakingClient{inner: inner, breaker: breaker}
}

func (c *circuitBreakingClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if !c.breaker.Allow() {
		return nil, Transient(fmt.Errorf("provider: circuit open"))
	}
	resp, err := c.inner.Complete(ctx, req)
	c.breaker.Record(err)
	return resp, err
}

func (c *circuitBreakingClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if !c.breaker.Allow() {
		return nil, Transient(fmt.Errorf("provider: circuit open"))
	}
	st, err := c.inner.Stream(ctx, req)
	c.breaker.Record(err)
	return st, err
}
