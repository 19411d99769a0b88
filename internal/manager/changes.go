package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kory-ai/workbench-core/internal/ledger"
	"github.com/kory-ai/workbench-core/internal/streamevent"
	"github.com/kory-ai/workbench-core/internal/vcs"
)

// ChangeDecision is the caller's instruction for ApplySessionChanges: one
// of AcceptAll, RejectAll, or a per-path accept/reject split.
type ChangeDecision struct {
	AcceptAll   bool
	RejectAll   bool
	AcceptPaths []string
	RejectPaths []string
}

// ChangeResult reports what is left pending after an ApplySessionChanges
// call.
type ChangeResult struct {
	Remaining []ledger.ChangeSummary
}

// GetSessionChanges returns the current pending change set for sessionID
// (C7), for a status/diff endpoint to render.
func (m *Manager) GetSessionChanges(sessionID string) []ledger.ChangeSummary {
	return m.deps.Ledger.Get(sessionID)
}

// HandleSessionResponse is the convenience form of ApplySessionChanges used
// by a simple accept/reject UI affordance, spec §4.6.
func (m *Manager) HandleSessionResponse(ctx context.Context, sessionID string, accepted bool) (ChangeResult, error) {
	return m.ApplySessionChanges(ctx, sessionID, ChangeDecision{AcceptAll: accepted, RejectAll: !accepted})
}

// ApplySessionChanges implements spec §4.6's accept/reject policy over the
// session's ledger, coordinating with the VCS adapter (when the working
// directory is a repo) or the snapshot store (otherwise) to actually
// restore rejected files. Any restore failure aborts the whole batch — no
// partial commits — and the rejected entries are put back onto the ledger
// so the caller can retry or pick a different decision.
func (m *Manager) ApplySessionChanges(ctx context.Context, sessionID string, decision ChangeDecision) (ChangeResult, error) {
	workdir := m.deps.WorkDir(sessionID)
	adapter := vcs.Open(workdir)

	switch {
	case decision.AcceptAll:
		m.deps.Ledger.Clear(sessionID)
		m.deps.Bus.Publish(streamevent.NewSessionAcceptChanges(sessionID))
		return ChangeResult{}, nil

	case decision.RejectAll:
		if err := m.rejectAll(sessionID, workdir, adapter); err != nil {
			return ChangeResult{}, err
		}
		m.deps.Ledger.Clear(sessionID)
		m.deps.Bus.Publish(streamevent.NewSessionChanges(sessionID, nil))
		return ChangeResult{}, nil

	default:
		if len(decision.AcceptPaths) > 0 {
			m.deps.Ledger.Remove(sessionID, decision.AcceptPaths)
		}
		if len(decision.RejectPaths) > 0 {
			removed := m.deps.Ledger.Remove(sessionID, decision.RejectPaths)
			if err := m.restoreRemoved(sessionID, workdir, adapter, removed); err != nil {
				for _, c := range removed {
					m.deps.Ledger.Append(sessionID, c)
				}
				return ChangeResult{}, err
			}
		}
		remaining := m.deps.Ledger.Get(sessionID)
		m.deps.Bus.Publish(streamevent.NewSessionChanges(sessionID, remaining))
		return ChangeResult{Remaining: remaining}, nil
	}
}

// rejectAll restores the entire working tree to its state before the run.
// A VCS repo can do this with a single hard reset; without one, every
// pending created file is deleted and the other pending paths are restored
// from the pre-run snapshot (captured in runComplexPath), when one exists.
func (m *Manager) rejectAll(sessionID, workdir string, adapter *vcs.Adapter) error {
	if adapter.IsRepo() {
		hash, ok := m.lastGoodHash(sessionID)
		if !ok || hash == "" {
			return nil
		}
		if ok, out := adapter.Rollback(hash); !ok {
			return fmt.Errorf("manager: rollback failed: %s", out)
		}
		return nil
	}
	pending := m.deps.Ledger.Get(sessionID)
	var restore []string
	for _, c := range pending {
		if c.Operation == "create" {
			if err := os.Remove(filepath.Join(workdir, c.Path)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("manager: reject %s: %w", c.Path, err)
			}
			continue
		}
		restore = append(restore, c.Path)
	}
	if m.deps.Snapshots == nil || len(restore) == 0 {
		return nil
	}
	if _, _, err := m.deps.Snapshots.RestoreFiles(sessionID, "latest", workdir, restore); err != nil {
		return fmt.Errorf("manager: restore snapshot failed: %w", err)
	}
	return nil
}

// restoreRemoved reverts exactly the listed changes. A created file is
// simply deleted. An edited/deleted/moved file is restored from the
// snapshot store when one is configured, and from its HEAD content via
// vcs.Adapter.RestoreFile when the snapshot did not capture it or there is
// no snapshot store; both touch only that path (see DESIGN.md).
func (m *Manager) restoreRemoved(sessionID, workdir string, adapter *vcs.Adapter, removed []ledger.ChangeSummary) error {
	for _, c := range removed {
		if c.Operation == "create" {
			if err := os.Remove(filepath.Join(workdir, c.Path)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("manager: reject %s: %w", c.Path, err)
			}
			continue
		}

		switch {
		case m.deps.Snapshots != nil:
			_, missing, err := m.deps.Snapshots.RestoreFiles(sessionID, "latest", workdir, []string{c.Path})
			if err != nil {
				return fmt.Errorf("manager: reject %s: %w", c.Path, err)
			}
			if len(missing) > 0 && adapter.IsRepo() {
				if ok, out := adapter.RestoreFile(c.Path); !ok {
					return fmt.Errorf("manager: reject %s: %s", c.Path, out)
				}
			}
		case adapter.IsRepo():
			if ok, out := adapter.RestoreFile(c.Path); !ok {
				return fmt.Errorf("manager: reject %s: %s", c.Path, out)
			}
		default:
			return fmt.Errorf("manager: reject %s: no snapshot or VCS repo available to restore from", c.Path)
		}
	}
	return nil
}

func pathsOf(changes []ledger.ChangeSummary) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}
