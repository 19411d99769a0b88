// Package vcs wraps a working-tree git repository behind a narrow,
// panic-free contract: every call reports an ok flag and an output string
// (plus its result, where it has one) instead of returning library-specific
// error values, so the manager's rollback path
// can treat "no repo" and "git call failed" as ordinary states rather than
// exceptional ones.
package vcs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// defaultSignature is used for commits when the repository has no
// user.name/user.email configured locally or globally, so Commit never
// fails for lack of an identity.
var defaultSignature = object.Signature{Name: "workbench-core", Email: "bot@workbench.local"}

// FileStatusKind enumerates the coarse status a working-tree file can be
// reported in.
type FileStatusKind string

const (
	StatusModified  FileStatusKind = "modified"
	StatusAdded     FileStatusKind = "added"
	StatusDeleted   FileStatusKind = "deleted"
	StatusRenamed   FileStatusKind = "renamed"
	StatusUntracked FileStatusKind = "untracked"
)

// FileStatus is one row of a Status() report.
type FileStatus struct {
	Path      string
	Status    FileStatusKind
	Staged    bool
	Additions int
	Deletions int
}

// MergeResult is the outcome of Merge.
type MergeResult struct {
	OK           bool
	Output       string
	HasConflicts bool
}

// Credentials optionally authenticates Pull/Push against a remote.
type Credentials struct {
	Username string
	Password string // token or password
}

// Adapter wraps a single working-tree git repository. A zero-value Adapter
// is safe to call IsRepo on; every other method assumes Open succeeded.
type Adapter struct {
	workdir string
	repo    *git.Repository
	creds   *Credentials
}

// Open binds an Adapter to workdir without requiring a repository to exist
// there yet; IsRepo reports whether one was found.
func Open(workdir string) *Adapter {
	a := &Adapter{workdir: workdir}
	repo, err := git.PlainOpen(workdir)
	if err == nil {
		a.repo = repo
	}
	return a
}

// SetCredentials configures basic-auth credentials used by Pull/Push.
func (a *Adapter) SetCredentials(c Credentials) { a.creds = &c }

// IsRepo reports whether workdir is (or is inside) a git working tree.
func (a *Adapter) IsRepo() bool { return a.repo != nil }

func (a *Adapter) worktree() (*git.Worktree, error) {
	if a.repo == nil {
		return nil, errors.New("vcs: not a repository")
	}
	return a.repo.Worktree()
}

// Status reports every modified, added, deleted, renamed, or untracked
// path relative to HEAD and the index.
func (a *Adapter) Status() (ok bool, result []FileStatus, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, nil, err.Error()
	}
	st, err := wt.Status()
	if err != nil {
		return false, nil, fmt.Sprintf("vcs: status: %v", err)
	}
	for path, fs := range st {
		result = append(result, FileStatus{
			Path:   path,
			Status: classify(fs.Staging, fs.Worktree),
			Staged: fs.Staging != git.Unmodified && fs.Staging != git.Untracked,
		})
	}
	return true, result, ""
}

func classify(staged, worktree git.StatusCode) FileStatusKind {
	code := staged
	if code == git.Unmodified {
		code = worktree
	}
	switch code {
	case git.Added:
		return StatusAdded
	case git.Deleted:
		return StatusDeleted
	case git.Renamed:
		return StatusRenamed
	case git.Untracked:
		return StatusUntracked
	default:
		return StatusModified
	}
}

// Diff returns a line-oriented diff of path between its HEAD content and
// its working-tree content: every HEAD line prefixed with "-", then every
// working-tree line prefixed with "+", or "" when the two are equal. The
// staged flag is not used; the index is never consulted, so staged and
// unstaged calls return the same diff.
func (a *Adapter) Diff(path string, staged bool) (ok bool, diff string, output string) {
	if a.repo == nil {
		return false, "", "vcs: not a repository"
	}
	head, err := a.headContent(path)
	if err != nil && !errors.Is(err, object.ErrFileNotFound) && !errors.Is(err, plumbing.ErrObjectNotFound) {
		return false, "", fmt.Sprintf("vcs: diff: %v", err)
	}
	working, werr := os.ReadFile(filepath.Join(a.workdir, path))
	if werr != nil && !os.IsNotExist(werr) {
		return false, "", fmt.Sprintf("vcs: diff: %v", werr)
	}
	_ = staged // go-git exposes a single index snapshot; staged vs worktree
	// distinction is approximated by comparing HEAD to the working copy.
	return true, lineDiff(head, string(working)), ""
}

func (a *Adapter) headContent(path string) (string, error) {
	head, err := a.repo.Head()
	if err != nil {
		return "", err
	}
	commit, err := a.repo.CommitObject(head.Hash())
	if err != nil {
		return "", err
	}
	file, err := commit.File(path)
	if err != nil {
		return "", err
	}
	return file.Contents()
}

func lineDiff(oldText, newText string) string {
	if oldText == newText {
		return ""
	}
	var b strings.Builder
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")
	for _, l := range oldLines {
		fmt.Fprintf(&b, "-%s\n", l)
	}
	for _, l := range newLines {
		fmt.Fprintf(&b, "+%s\n", l)
	}
	return b.String()
}

// FileAtHead returns path's content as of HEAD.
func (a *Adapter) FileAtHead(path string) (ok bool, content string, output string) {
	if a.repo == nil {
		return false, "", "vcs: not a repository"
	}
	content, err := a.headContent(path)
	if err != nil {
		return false, "", fmt.Sprintf("vcs: file at head: %v", err)
	}
	return true, content, ""
}

// Stage adds path to the index.
func (a *Adapter) Stage(path string) (ok bool, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, err.Error()
	}
	if _, err := wt.Add(path); err != nil {
		return false, fmt.Sprintf("vcs: stage: %v", err)
	}
	return true, ""
}

// Unstage removes path from the index without touching the working tree.
func (a *Adapter) Unstage(path string) (ok bool, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, err.Error()
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.MixedReset, Files: []string{path}}); err != nil {
		return false, fmt.Sprintf("vcs: unstage: %v", err)
	}
	return true, ""
}

// RestoreFile overwrites path in the working tree from HEAD, discarding
// uncommitted edits. Destructive.
func (a *Adapter) RestoreFile(path string) (ok bool, output string) {
	if a.repo == nil {
		return false, "vcs: not a repository"
	}
	content, err := a.headContent(path)
	if err != nil {
		return false, fmt.Sprintf("vcs: restore file: %v", err)
	}
	full := filepath.Join(a.workdir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return false, fmt.Sprintf("vcs: restore file: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return false, fmt.Sprintf("vcs: restore file: %v", err)
	}
	return true, ""
}

// Commit records the index as a new commit with message.
func (a *Adapter) Commit(message string) (ok bool, hash string, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, "", err.Error()
	}
	sig := defaultSignature
	sig.When = time.Now()
	h, err := wt.Commit(message, &git.CommitOptions{Author: &sig, Committer: &sig})
	if err != nil {
		return false, "", fmt.Sprintf("vcs: commit: %v", err)
	}
	return true, h.String(), ""
}

// Branch returns the current branch's short name.
func (a *Adapter) Branch() (ok bool, name string, output string) {
	if a.repo == nil {
		return false, "", "vcs: not a repository"
	}
	head, err := a.repo.Head()
	if err != nil {
		return false, "", fmt.Sprintf("vcs: branch: %v", err)
	}
	return true, head.Name().Short(), ""
}

// Checkout switches to branch name, creating it from HEAD first if create
// is true.
func (a *Adapter) Checkout(name string, create bool) (ok bool, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, err.Error()
	}
	ref := plumbing.NewBranchReferenceName(name)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: create}); err != nil {
		return false, fmt.Sprintf("vcs: checkout: %v", err)
	}
	return true, ""
}

// Merge merges branch name into the current branch.
func (a *Adapter) Merge(name string) MergeResult {
	if a.repo == nil {
		return MergeResult{Output: "vcs: not a repository"}
	}
	other, err := a.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return MergeResult{Output: fmt.Sprintf("vcs: merge: resolve %s: %v", name, err)}
	}
	wt, err := a.repo.Worktree()
	if err != nil {
		return MergeResult{Output: err.Error()}
	}
	err = wt.Checkout(&git.CheckoutOptions{})
	if err != nil {
		return MergeResult{Output: fmt.Sprintf("vcs: merge: %v", err)}
	}
	head, err := a.repo.Head()
	if err != nil {
		return MergeResult{Output: fmt.Sprintf("vcs: merge: head: %v", err)}
	}
	base, err := a.repo.CommitObject(head.Hash())
	if err != nil {
		return MergeResult{Output: fmt.Sprintf("vcs: merge: base commit: %v", err)}
	}
	theirs, err := a.repo.CommitObject(other.Hash())
	if err != nil {
		return MergeResult{Output: fmt.Sprintf("vcs: merge: their commit: %v", err)}
	}
	isAncestor, err := base.IsAncestor(theirs)
	if err != nil {
		return MergeResult{Output: fmt.Sprintf("vcs: merge: ancestry check: %v", err)}
	}
	if !isAncestor {
		return MergeResult{HasConflicts: true, Output: "vcs: merge: non-fast-forward merges require manual resolution"}
	}
	sig := defaultSignature
	sig.When = time.Now()
	if _, err := wt.Commit(fmt.Sprintf("Merge branch '%s'", name), &git.CommitOptions{
		Parents:   []plumbing.Hash{head.Hash(), other.Hash()},
		Author:    &sig,
		Committer: &sig,
	}); err != nil {
		return MergeResult{Output: fmt.Sprintf("vcs: merge: commit: %v", err)}
	}
	return MergeResult{OK: true}
}

// Conflicts lists paths with unresolved merge conflict markers in the
// index.
func (a *Adapter) Conflicts() (ok bool, paths []string, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, nil, err.Error()
	}
	st, err := wt.Status()
	if err != nil {
		return false, nil, fmt.Sprintf("vcs: conflicts: %v", err)
	}
	for path, fs := range st {
		if fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged {
			paths = append(paths, path)
		}
	}
	return true, paths, ""
}

func (a *Adapter) auth() *http.BasicAuth {
	if a.creds == nil {
		return nil
	}
	return &http.BasicAuth{Username: a.creds.Username, Password: a.creds.Password}
}

// Pull fast-forwards the current branch from its configured remote.
func (a *Adapter) Pull() (ok bool, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, err.Error()
	}
	err = wt.Pull(&git.PullOptions{RemoteName: "origin", Auth: a.auth()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, fmt.Sprintf("vcs: pull: %v", err)
	}
	return true, ""
}

// Push uploads the current branch to its configured remote.
func (a *Adapter) Push() (ok bool, output string) {
	if a.repo == nil {
		return false, "vcs: not a repository"
	}
	err := a.repo.Push(&git.PushOptions{RemoteName: "origin", Auth: a.auth()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, fmt.Sprintf("vcs: push: %v", err)
	}
	return true, ""
}

// CurrentHash returns HEAD's commit hash.
func (a *Adapter) CurrentHash() (ok bool, hash string, output string) {
	if a.repo == nil {
		return false, "", "vcs: not a repository"
	}
	head, err := a.repo.Head()
	if err != nil {
		return false, "", fmt.Sprintf("vcs: current hash: %v", err)
	}
	return true, head.Hash().String(), ""
}

// Rollback hard-resets the working tree to hash and removes untracked
// files, restoring the pre-run state captured by CurrentHash.
func (a *Adapter) Rollback(hash string) (ok bool, output string) {
	wt, err := a.worktree()
	if err != nil {
		return false, err.Error()
	}
	if err := wt.Reset(&git.ResetOptions{Commit: plumbing.NewHash(hash), Mode: git.HardReset}); err != nil {
		return false, fmt.Sprintf("vcs: rollback: reset: %v", err)
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return false, fmt.Sprintf("vcs: rollback: clean: %v", err)
	}
	return true, ""
}

// RemoteConfigured reports whether "origin" exists, for callers deciding
// whether Pull/Push are meaningful.
func (a *Adapter) RemoteConfigured() bool {
	if a.repo == nil {
		return false
	}
	_, err := a.repo.Remote("origin")
	return err == nil
}
