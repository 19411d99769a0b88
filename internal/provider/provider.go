// Package provider implements the provider registry (C6): it resolves a
// model id to a streaming model.Client, builds the fallback hop chain
// described in spec §4.5, and wraps every hop with rate limiting and
// circuit breaking. The decorator shapes mirror the teacher's
// runtime/agent/runtime/model_wrapper.go (event-decorated, cache-configured
// client wrappers around model.Client); this package adds a
// rateLimitedClient and a circuitBreakingClient in the same style, and runs
// the fallback chain in Registry.ExecuteWithRetry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/model"
)

// ModelInfo describes one model identifier as served by a provider.
type ModelInfo struct {
	ID            string
	Provider      string
	IsLegacy      bool
	ContextKnown  bool
	ContextWindow int
}

// Credentials holds the secrets SetCredentials stores for a provider. Only
// the fields a given provider needs are populated.
type Credentials struct {
	APIKey    string
	AuthToken string
	BaseURL   string
}

// Provider is what ResolveProvider hands back: a name and a fully decorated
// client (rate-limited, circuit-breaking) ready for use.
type Provider struct {
	Name   string
	Client model.Client
}

// Status is one provider's entry in GetStatus/GetAvailable.
type Status struct {
	Name                string
	Disabled            bool
	CircuitOpen         bool
	ConsecutiveFailures int
	CurrentTPM          float64
	Models              []string
}

// ErrNoProvider is returned by ResolveProvider when modelID is not served by
// any registered, enabled provider.
var ErrNoProvider = errors.New("provider: no provider resolves this model")

// ErrChainExhausted is returned by ExecuteWithRetry when every hop in the
// fallback chain failed.
var ErrChainExhausted = errors.New("provider: fallback chain exhausted")

type entry struct {
	name    string
	raw     model.Client
	models  map[string]ModelInfo
	creds   Credentials
	limiter *AdaptiveRateLimiter
	breaker *CircuitBreaker
}

// Registry owns the set of registered providers, their model catalogues, and
// the rate limiter / circuit breaker state layered over each one.
type Registry struct {
	mu        sync.Mutex
	providers map[string]*entry
	cfg       *config.Config
}

// NewRegistry returns an empty Registry bound to cfg for fallback-chain and
// disabled-provider lookups.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{providers: make(map[string]*entry), cfg: cfg}
}

// Register adds or replaces a provider's raw client and model catalogue.
// Callers (cmd/orchestratord) construct the concrete SDK-backed model.Client
// (internal/provider/anthropic, .../openai, .../bedrock) and hand it here.
func (r *Registry) Register(name string, client model.Client, models []ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	catalogue := make(map[string]ModelInfo, len(models))
	for _, m := range models {
		m.Provider = name
		catalogue[m.ID] = m
	}
	r.providers[name] = &entry{
		name:    name,
		raw:     client,
		models:  catalogue,
		limiter: NewAdaptiveRateLimiter(RateLimiterOptions{}),
		breaker: NewCircuitBreaker(CircuitBreakerOptions{}),
	}
}

// SetCredentials records credentials for a registered provider. Provider
// adapters read these lazily (via their own config) rather than through this
// registry; this method exists so UIs can update them at runtime per the
// spec's provider-management surface.
func (r *Registry) SetCredentials(name string, creds Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.providers[name]
	if !ok {
		return fmt.Errorf("provider: unknown provider %q", name)
	}
	e.creds = creds
	return nil
}

// RemoveApiKey clears a provider's stored credentials.
func (r *Registry) RemoveApiKey(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.providers[name]; ok {
		e.creds = Credentials{}
	}
}

// VerifyConnection issues a minimal Complete call against the provider to
// confirm it is reachable with current credentials.
func (r *Registry) VerifyConnection(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.providers[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("provider: unknown provider %q", name)
	}
	var modelID string
	for id := range e.models {
		modelID = id
		break
	}
	_, err := e.raw.Complete(ctx, &model.Request{
		Model:     modelID,
		MaxTokens: 1,
		Messages: []*model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "ping"}}},
		},
	})
	return err
}

// GetAvailable lists every registered provider, noting which are disabled by
// config and which models they serve.
func (r *Registry) GetAvailable() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.providers))
	for name, e := range r.providers {
		models := make([]string, 0, len(e.models))
		for id := range e.models {
			models = append(models, id)
		}
		out = append(out, Status{
			Name:     name,
			Disabled: r.isDisabled(name),
			Models:   models,
		})
	}
	return out
}

// GetStatus reports circuit breaker and rate limiter state per provider, so
// callers can surface "degraded" status without re-deriving it from errors.
func (r *Registry) GetStatus() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Status, len(r.providers))
	for name, e := range r.providers {
		out[name] = Status{
			Name:                name,
			Disabled:            r.isDisabled(name),
			CircuitOpen:         e.breaker.Open(),
			ConsecutiveFailures: e.breaker.ConsecutiveFailures(),
			CurrentTPM:          e.limiter.CurrentTPM(),
		}
	}
	return out
}

func (r *Registry) isDisabled(name string) bool {
	if r.cfg == nil {
		return false
	}
	p, ok := r.cfg.Providers[name]
	return ok && p.Disabled
}

// ResolveProvider returns the registered, enabled provider that serves
// modelID. When preferredProvider is non-empty and registered, it takes
// precedence over any other provider serving the same model id.
func (r *Registry) ResolveProvider(modelID, preferredProvider string) (*Provider, ModelInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if preferredProvider != "" {
		if e, ok := r.providers[preferredProvider]; ok && !r.isDisabled(preferredProvider) {
			if info, ok := e.models[modelID]; ok {
				return &Provider{Name: e.name, Client: decorate(e)}, info, true
			}
		}
	}
	for name, e := range r.providers {
		if r.isDisabled(name) {
			continue
		}
		if info, ok := e.models[modelID]; ok {
			return &Provider{Name: e.name, Client: decorate(e)}, info, true
		}
	}
	return nil, ModelInfo{}, false
}

func decorate(e *entry) model.Client {
	return newCircuitBreakingClient(newRateLimitedClient(e.raw, e.limiter), e.breaker)
}
