// Package ledger tracks the pending, not-yet-accepted-or-rejected file
// changes made during one session's run (C7). The accept/reject policy
// itself — which needs the VCS adapter and snapshot store to actually
// restore files — lives in internal/manager; this package only owns the
// per-session bookkeeping, mirroring the teacher's narrow mutex-guarded-map
// store idiom (internal/session/inmem.store).
package ledger

import (
	"sync"

	"github.com/kory-ai/workbench-core/internal/streamevent"
)

// ChangeSummary mirrors streamevent.ChangeSummary; declared separately so
// callers needn't import streamevent just to append a change.
type ChangeSummary = streamevent.ChangeSummary

// Ledger holds the pending ChangeSummary list for every active session.
type Ledger struct {
	mu      sync.Mutex
	pending map[string][]ChangeSummary
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{pending: make(map[string][]ChangeSummary)}
}

// Append records one change against session. Repeated changes to the same
// path accumulate as separate entries; the Manager is responsible for
// merging/coalescing if it wants a single entry per path (spec property P3
// is expressed over the set of paths, not entry count).
func (l *Ledger) Append(session string, change ChangeSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[session] = append(l.pending[session], change)
}

// Get returns a snapshot of session's pending changes, oldest first.
func (l *Ledger) Get(session string) []ChangeSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.pending[session]
	out := make([]ChangeSummary, len(src))
	copy(out, src)
	return out
}

// Clear removes every pending change for session.
func (l *Ledger) Clear(session string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, session)
}

// Remove deletes every pending entry for session whose Path is in paths,
// returning the removed entries. Used by the Manager's ApplyChanges to
// implement acceptPaths/rejectPaths.
func (l *Ledger) Remove(session string, paths []string) []ChangeSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	toRemove := make(map[string]bool, len(paths))
	for _, p := range paths {
		toRemove[p] = true
	}

	var removed, kept []ChangeSummary
	for _, c := range l.pending[session] {
		if toRemove[c.Path] {
			removed = append(removed, c)
		} else {
			kept = append(kept, c)
		}
	}
	l.pending[session] = kept
	return removed
}
