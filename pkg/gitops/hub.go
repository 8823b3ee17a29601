// Package gitops stages generated hub documents, commits them on
// deterministic branches and pushes them when transmission is enabled.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/packagehub/hubsync/pkg/logme"
)

// ErrBranchDiverged is returned when a push is rejected because the remote
// branch holds history this run did not produce. Manual resolution is
// required; the repository is skipped for this run.
var ErrBranchDiverged = errors.New("branch diverged from remote")

const (
	committerName  = "hubsync"
	committerEmail = "hubsync@users.noreply.github.com"
)

// Hub is the local checkout of the registry repository, the engine's sole
// write target. All mutation happens through it, serialized by the caller.
type Hub struct {
	dir           string
	repo          *git.Repository
	defaultBranch string
	auth          transport.AuthMethod
}

// CloneHub clones the hub remote into dir and checks out the default
// branch.
func CloneHub(ctx context.Context, dir, remoteURL, defaultBranch string, auth transport.AuthMethod) (*Hub, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           remoteURL,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(defaultBranch),
	})
	if err != nil {
		return nil, fmt.Errorf("cloning hub %s: %w", remoteURL, err)
	}

	return &Hub{
		dir:           dir,
		repo:          repo,
		defaultBranch: defaultBranch,
		auth:          auth,
	}, nil
}

// OpenHub opens an existing hub working tree (tests and local runs).
func OpenHub(dir, defaultBranch string) (*Hub, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("opening hub at %s: %w", dir, err)
	}
	return &Hub{dir: dir, repo: repo, defaultBranch: defaultBranch}, nil
}

// Dir returns the hub working tree path.
func (h *Hub) Dir() string {
	return h.dir
}

// ReadFile reads a file from the working tree; a missing file returns
// os.ErrNotExist.
func (h *Hub) ReadFile(relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(h.dir, relPath))
}

// EnsureBranch checks out the named branch, creating it when it does not
// exist yet. A branch pushed by a prior run still exists on the remote;
// the new local branch is based on its head so new commits append instead
// of forking a conflicting duplicate. Only when the remote has no such
// branch either is it cut from the default branch head.
func (h *Hub) EnsureBranch(name string) error {
	wt, err := h.repo.Worktree()
	if err != nil {
		return err
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := h.repo.Reference(branchRef, true); err == nil {
		logme.DebugFln("reusing existing branch %s", name)
		return wt.Checkout(&git.CheckoutOptions{Branch: branchRef})
	}

	remoteRef, err := h.repo.Reference(plumbing.NewRemoteReferenceName("origin", name), true)
	if err == nil {
		logme.DebugFln("branching %s from origin/%s", name, name)
		return wt.Checkout(&git.CheckoutOptions{
			Hash:   remoteRef.Hash(),
			Branch: branchRef,
			Create: true,
		})
	}

	// branch from the default branch head
	if err := h.CheckoutDefault(); err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true})
}

// CheckoutDefault returns the working tree to the default branch.
func (h *Hub) CheckoutDefault() error {
	wt, err := h.repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(h.defaultBranch),
	})
}

// WriteFile writes a file into the working tree, creating directories as
// needed. The change is not staged until Commit.
func (h *Hub) WriteFile(relPath string, data []byte) error {
	path := filepath.Join(h.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Commit stages the given working-tree paths and commits them. An empty
// diff yields no commit and hasChanges is false.
func (h *Hub) Commit(message string, relPaths ...string) (hasChanges bool, err error) {
	wt, err := h.repo.Worktree()
	if err != nil {
		return false, err
	}

	for _, p := range relPaths {
		if _, err := wt.Add(filepath.ToSlash(p)); err != nil {
			return false, fmt.Errorf("staging %s: %w", p, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	if status.IsClean() {
		return false, nil
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  committerName,
			Email: committerEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, fmt.Errorf("committing: %w", err)
	}
	return true, nil
}

// Push transmits one branch to the remote. Transmission must be gated by
// the caller's push flag; this function always pushes.
func (h *Hub) Push(ctx context.Context, branch string) error {
	refSpec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))

	err := h.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       h.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		logme.DebugFln("branch %s already up to date", branch)
		return nil
	}
	if err != nil {
		if isNonFastForward(err) {
			return fmt.Errorf("pushing %s: %w", branch, ErrBranchDiverged)
		}
		return fmt.Errorf("pushing %s: %w", branch, err)
	}
	return nil
}

// isNonFastForward classifies a rejected push. go-git reports the ref
// update failure as a formatted status error, not the sentinel, so the
// message is inspected as well.
func isNonFastForward(err error) bool {
	if errors.Is(err, git.ErrNonFastForwardUpdate) {
		return true
	}
	return strings.Contains(err.Error(), "non-fast-forward")
}
