package provider

import (
	"context"
	"errors"
	"io"

	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/model"
)

// StreamEvent is one item from ExecuteWithRetry's stream: either a decoded
// model.Chunk attributed to the hop that produced it, or a terminal error
// once every hop in the chain has failed.
type StreamEvent struct {
	Chunk    model.Chunk
	Provider string
	Model    string
	HopIndex int
	Switched bool
	Err      error
}

type hop struct {
	provider string
	model    string
	client   model.Client
}

// buildHopChain resolves modelID (preferring preferredProvider for the
// first hop when it serves modelID) and then appends each entry of
// config.fallbacks[modelID] in order, depth-first, deduped by (provider,
// model), bounded to maxHops, and skipping models flagged IsLegacy —
// mirroring spec §4.5's exact chain-construction rule.
func (r *Registry) buildHopChain(modelID, preferredProvider string, maxHops int) []hop {
	type candidate struct{ provider, model string }

	seen := make(map[candidate]bool)
	var order []candidate

	// providersFor returns every enabled, non-legacy (provider, model) pair
	// serving id, with preferredProvider sorted first when it serves id.
	providersFor := func(id string) []candidate {
		r.mu.Lock()
		defer r.mu.Unlock()
		var preferred, rest []candidate
		for name, e := range r.providers {
			info, ok := e.models[id]
			if !ok || info.IsLegacy || r.isDisabled(name) {
				continue
			}
			c := candidate{provider: name, model: id}
			if name == preferredProvider {
				preferred = append(preferred, c)
			} else {
				rest = append(rest, c)
			}
		}
		return append(preferred, rest...)
	}

	var walk func(id string)
	walk = func(id string) {
		if len(order) >= maxHops {
			return
		}
		for _, c := range providersFor(id) {
			if len(order) >= maxHops {
				return
			}
			if !seen[c] {
				seen[c] = true
				order = append(order, c)
			}
		}
		if r.cfg == nil {
			return
		}
		for _, next := range r.cfg.Fallbacks[id] {
			if len(order) >= maxHops {
				return
			}
			walk(next)
		}
	}
	walk(modelID)

	hops := make([]hop, 0, len(order))
	r.mu.Lock()
	for _, c := range order {
		e, ok := r.providers[c.provider]
		if !ok {
			continue
		}
		hops = append(hops, hop{provider: c.provider, model: c.model, client: decorate(e)})
	}
	r.mu.Unlock()
	return hops
}

// ExecuteWithRetry opens a streaming call against the fallback chain
// derived from req.Model and preferredProvider, advancing to the next hop
// on any transient failure (network, 5xx, rate-limit, provider quota
// errors per spec §4.5) and returning a channel of StreamEvent. The channel
// is closed once the stream (or chain) is exhausted.
func (r *Registry) ExecuteWithRetry(ctx context.Context, req *model.Request, preferredProvider string) (<-chan StreamEvent, error) {
	chain := r.buildHopChain(req.Model, preferredProvider, config.DefaultFallbackDepth)
	if len(chain) == 0 {
		return nil, ErrNoProvider
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		for i, h := range chain {
			hopReq := *req
			hopReq.Model = h.model
			st, err := h.client.Stream(ctx, &hopReq)
			if err != nil {
				if isTransient(err) {
					continue
				}
				out <- StreamEvent{Provider: h.provider, Model: h.model, HopIndex: i, Err: err}
				return
			}
			switched := i > 0
			for {
				chunk, rerr := st.Recv()
				if rerr != nil {
					st.Close()
					if !errors.Is(rerr, io.EOF) {
						out <- StreamEvent{Provider: h.provider, Model: h.model, HopIndex: i, Err: rerr}
					}
					return
				}
				out <- StreamEvent{Chunk: chunk, Provider: h.provider, Model: h.model, HopIndex: i, Switched: switched}
				switched = false
				if chunk.Type == model.ChunkStop {
					st.Close()
					return
				}
			}
		}
		out <- StreamEvent{Err: ErrChainExhausted}
	}()
	return out, nil
}
