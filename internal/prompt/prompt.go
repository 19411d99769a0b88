// Package prompt implements the pending-prompt table (C8): it correlates an
// out-of-band kory.ask_user request with the reply that eventually arrives
// through HandleUserInput, parking the asking goroutine on a channel rather
// than a workflow-engine signal. The teacher's equivalent
// (runtime/agent/runtime/workflow_await_queue.go) blocks on a Temporal
// signal channel through an interrupt.Controller; this project has no
// durable workflow engine (see DESIGN.md dropped dependencies), so the same
// "register an awaited id, unblock it exactly once" shape is expressed with
// a plain mutex-guarded map of channels instead.
package prompt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimedOut is returned by Wait when no reply arrives before deadline.
var ErrTimedOut = errors.New("prompt: timed out waiting for reply")

// ErrCancelled is returned to every pending Wait call for a session when
// CancelSession is invoked.
var ErrCancelled = errors.New("prompt: session cancelled")

// Reply is the correlated answer to one asked question.
type Reply struct {
	Selection string
	Text      string
}

type entry struct {
	sessionID string
	ch        chan Reply
	errCh     chan error
	once      sync.Once
}

// Table tracks pending prompts, keyed by request id, with a per-session
// ordered list to support the "no requestId, resolve most recent" fallback
// for legacy clients (spec §4.7).
type Table struct {
	mu       sync.Mutex
	byReq    map[string]*entry
	bySess   map[string][]string // ordered request ids, oldest first
}

// New returns an empty Table.
func New() *Table {
	return &Table{byReq: make(map[string]*entry), bySess: make(map[string][]string)}
}

// NewRequest registers a fresh request id for sessionID and returns it. The
// caller publishes a kory.ask_user event carrying this id before calling
// Wait.
func (t *Table) NewRequest(sessionID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	e := &entry{sessionID: sessionID, ch: make(chan Reply, 1), errCh: make(chan error, 1)}
	t.byReq[id] = e
	t.bySess[sessionID] = append(t.bySess[sessionID], id)
	return id
}

// Wait blocks until requestID is resolved via Resolve, the session is
// cancelled via CancelSession, timeout elapses, or ctx is cancelled.
func (t *Table) Wait(ctx context.Context, requestID string, timeout time.Duration) (Reply, error) {
	t.mu.Lock()
	e, ok := t.byReq[requestID]
	t.mu.Unlock()
	if !ok {
		return Reply{}, errors.New("prompt: unknown request id")
	}
	defer t.forget(requestID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-e.ch:
		return r, nil
	case err := <-e.errCh:
		return Reply{}, err
	case <-timer.C:
		return Reply{}, ErrTimedOut
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Resolve delivers reply to the awaiting Wait call for requestID. If
// requestID is empty, the most recently registered still-pending request
// for sessionID is resolved instead (legacy-client fallback). Returns false
// if no matching pending request was found.
func (t *Table) Resolve(sessionID, requestID string, reply Reply) bool {
	t.mu.Lock()
	id := requestID
	if id == "" {
		ids := t.bySess[sessionID]
		if len(ids) == 0 {
			t.mu.Unlock()
			return false
		}
		id = ids[len(ids)-1]
	}
	e, ok := t.byReq[id]
	t.mu.Unlock()
	if !ok || e.sessionID != sessionID {
		return false
	}

	e.once.Do(func() { e.ch <- reply })
	return true
}

// CancelSession unblocks every pending Wait call for sessionID with
// ErrCancelled.
func (t *Table) CancelSession(sessionID string) {
	t.mu.Lock()
	ids := append([]string(nil), t.bySess[sessionID]...)
	t.mu.Unlock()

	for _, id := range ids {
		t.mu.Lock()
		e, ok := t.byReq[id]
		t.mu.Unlock()
		if !ok {
			continue
		}
		e.once.Do(func() { e.errCh <- ErrCancelled })
	}
}

func (t *Table) forget(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byReq[requestID]
	if !ok {
		return
	}
	delete(t.byReq, requestID)
	ids := t.bySess[e.sessionID]
	for i, id := range ids {
		if id == requestID {
			t.bySess[e.sessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(t.bySess[e.sessionID]) == 0 {
		delete(t.bySess, e.sessionID)
	}
}
