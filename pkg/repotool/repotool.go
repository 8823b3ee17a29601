// Package repotool handles the git plumbing for one run: an ephemeral
// working area, upstream clones, tag listing and reading files from the
// tree at a tag.
package repotool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// ErrFileNotFound is returned by FileAtTag and FileAtHead when the tree
// does not contain the requested file.
var ErrFileNotFound = errors.New("file not found in tree")

// Workspace is the per-run scratch area holding every clone. It is removed
// on every exit path, success or failure.
type Workspace struct {
	root string
}

func NewWorkspace() (*Workspace, func(), error) {
	root, err := os.MkdirTemp("", "hubsync")
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		os.RemoveAll(root)
	}

	return &Workspace{root: root}, cleanup, nil
}

// Dir returns a path inside the workspace for the given name.
func (w *Workspace) Dir(name string) string {
	return filepath.Join(w.root, name)
}

// TokenAuth returns the auth method for the given personal access token,
// or nil for anonymous access.
func TokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	// any non-empty username works for token auth over https
	return &githttp.BasicAuth{Username: "git", Password: token}
}

// Tag is a tag name plus the commit it ultimately points to.
type Tag struct {
	Name      string
	CommitSHA string
}

// Repo is a cloned repository inside the run workspace.
type Repo struct {
	repo *git.Repository
	dir  string
}

// Clone clones url into dir. The context bounds the whole transfer; a
// deadline converts into a per-entry skip at the call site.
func Clone(ctx context.Context, dir, url string, auth transport.AuthMethod) (*Repo, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  url,
		Auth: auth,
		Tags: git.AllTags,
	})
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}

	return &Repo{repo: repo, dir: dir}, nil
}

// Dir returns the working tree path of the clone.
func (r *Repo) Dir() string {
	return r.dir
}

// Tags lists all tags with their target commits. Annotated tags are
// resolved to the commit they point at.
func (r *Repo) Tags() ([]Tag, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		sha := ref.Hash()
		if tagObj, err := r.repo.TagObject(sha); err == nil {
			sha = tagObj.Target
		}
		tags = append(tags, Tag{
			Name:      ref.Name().Short(),
			CommitSHA: sha.String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}

	return tags, nil
}

// FileAtTag reads one file from the tree at the given tag without touching
// the working tree.
func (r *Repo) FileAtTag(tagName, path string) ([]byte, error) {
	ref, err := r.repo.Tag(tagName)
	if err != nil {
		return nil, fmt.Errorf("resolving tag %s: %w", tagName, err)
	}

	sha := ref.Hash()
	if tagObj, err := r.repo.TagObject(sha); err == nil {
		sha = tagObj.Target
	}

	return r.fileAtCommit(sha, path)
}

// FileAtHead reads one file from the tree at the default branch head.
func (r *Repo) FileAtHead(path string) ([]byte, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	return r.fileAtCommit(head.Hash(), path)
}

func (r *Repo) fileAtCommit(sha plumbing.Hash, path string) ([]byte, error) {
	commit, err := r.repo.CommitObject(sha)
	if err != nil {
		return nil, fmt.Errorf("resolving commit %s: %w", sha, err)
	}

	f, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s at %s: %w", path, sha, ErrFileNotFound)
		}
		return nil, err
	}

	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, sha, err)
	}
	return []byte(contents), nil
}
