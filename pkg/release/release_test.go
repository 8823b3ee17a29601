package release

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/packagehub/hubsync/pkg/catalog"
	"github.com/packagehub/hubsync/pkg/githubclient"
	"github.com/packagehub/hubsync/pkg/gitops"
)

const (
	listPullsURL   = "https://api.github.com/repos/packagehub/hub/pulls?state=open"
	createPullsURL = "https://api.github.com/repos/packagehub/hub/pulls"
)

// newFixture returns a hub working tree wired to a local bare remote, so
// pushes stay on disk.
func newFixture(t *testing.T) (*gitops.Hub, string) {
	t.Helper()

	remoteDir := t.TempDir()
	_, err := git.PlainInit(remoteDir, true)
	require.NoError(t, err)

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hub\n"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{remoteDir}})
	require.NoError(t, err)

	hub, err := gitops.OpenHub(dir, "master")
	require.NoError(t, err)
	return hub, remoteDir
}

func prepareBranch(t *testing.T, hub *gitops.Hub, branch string) {
	t.Helper()
	require.NoError(t, hub.EnsureBranch(branch))
	require.NoError(t, hub.WriteFile("data/packages/acme/anvils/versions/1.0.0.json", []byte("{}\n")))
	changed, err := hub.Commit("hubsync: add tag v1.0.0 for acme/anvils",
		"data/packages/acme/anvils/versions/1.0.0.json")
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, hub.CheckoutDefault())
}

func remoteHasBranch(t *testing.T, remoteDir, branch string) bool {
	t.Helper()
	remote, err := git.PlainOpen(remoteDir)
	require.NoError(t, err)
	_, err = remote.Reference(plumbing.NewBranchReferenceName(branch), false)
	return err == nil
}

func newOrchestrator(t *testing.T, hub *gitops.Hub, push bool) *Orchestrator {
	t.Helper()
	strategy, err := gitops.StrategyFor("repo")
	require.NoError(t, err)
	client := githubclient.NewClient(
		githubclient.WithToken("test-token"),
		githubclient.WithMaxElapsed(200*time.Millisecond),
	)
	return NewOrchestrator(client, hub, strategy, "packagehub", "hub", "master", push)
}

func TestPublishDryRunPushesNothing(t *testing.T) {
	hub, remoteDir := newFixture(t)
	prepareBranch(t, hub, "bump-acme-anvils")

	o := newOrchestrator(t, hub, false)
	err := o.Publish(context.Background(), Proposal{
		Entry:    catalog.Entry{Owner: "acme", Repo: "anvils"},
		Branch:   "bump-acme-anvils",
		Versions: []string{"1.0.0"},
	})
	require.NoError(t, err)
	require.False(t, remoteHasBranch(t, remoteDir, "bump-acme-anvils"))
}

func TestPublishSkipsEmptyProposal(t *testing.T) {
	hub, remoteDir := newFixture(t)

	o := newOrchestrator(t, hub, true)
	err := o.Publish(context.Background(), Proposal{
		Entry:  catalog.Entry{Owner: "acme", Repo: "anvils"},
		Branch: "bump-acme-anvils",
	})
	require.NoError(t, err)
	require.False(t, remoteHasBranch(t, remoteDir, "bump-acme-anvils"))
}

func TestPublishPushesAndOpensPullRequest(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, listPullsURL,
		httpmock.NewStringResponder(http.StatusOK, "[]"))
	httpmock.RegisterResponder(http.MethodPost, createPullsURL,
		httpmock.NewStringResponder(http.StatusCreated, `{"number": 7}`))

	hub, remoteDir := newFixture(t)
	prepareBranch(t, hub, "bump-acme-anvils")

	o := newOrchestrator(t, hub, true)
	err := o.Publish(context.Background(), Proposal{
		Entry:    catalog.Entry{Owner: "acme", Repo: "anvils"},
		Branch:   "bump-acme-anvils",
		Versions: []string{"1.0.0"},
	})
	require.NoError(t, err)
	require.True(t, remoteHasBranch(t, remoteDir, "bump-acme-anvils"))
	require.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+createPullsURL])
}

func TestPublishSuppressedByOpenPullRequest(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, listPullsURL,
		httpmock.NewStringResponder(http.StatusOK,
			`[{"number": 3, "title": "hubsync: bump acme/anvils", "head": {"ref": "bump-acme-anvils"}}]`))
	httpmock.RegisterResponder(http.MethodPost, createPullsURL,
		httpmock.NewStringResponder(http.StatusCreated, `{"number": 8}`))

	hub, remoteDir := newFixture(t)
	prepareBranch(t, hub, "bump-acme-anvils")

	o := newOrchestrator(t, hub, true)
	err := o.Publish(context.Background(), Proposal{
		Entry:    catalog.Entry{Owner: "acme", Repo: "anvils"},
		Branch:   "bump-acme-anvils",
		Versions: []string{"1.0.0"},
	})
	require.NoError(t, err)

	// the branch is still pushed so the open PR picks up the commits
	require.True(t, remoteHasBranch(t, remoteDir, "bump-acme-anvils"))
	require.Equal(t, 0, httpmock.GetCallCountInfo()["POST "+createPullsURL])
}

func TestPublishNotSuppressedBySiblingVersionBranch(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	// an open PR for another version's branch must not swallow this one
	httpmock.RegisterResponder(http.MethodGet, listPullsURL,
		httpmock.NewStringResponder(http.StatusOK,
			`[{"number": 3, "title": "hubsync: bump acme/anvils", "head": {"ref": "bump-acme-anvils-1.0.0"}}]`))
	httpmock.RegisterResponder(http.MethodPost, createPullsURL,
		httpmock.NewStringResponder(http.StatusCreated, `{"number": 8}`))

	hub, remoteDir := newFixture(t)
	prepareBranch(t, hub, "bump-acme-anvils-1.1.0")

	o := newOrchestrator(t, hub, true)
	err := o.Publish(context.Background(), Proposal{
		Entry:    catalog.Entry{Owner: "acme", Repo: "anvils"},
		Branch:   "bump-acme-anvils-1.1.0",
		Versions: []string{"1.1.0"},
	})
	require.NoError(t, err)
	require.True(t, remoteHasBranch(t, remoteDir, "bump-acme-anvils-1.1.0"))
	require.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+createPullsURL])
}

func TestPublishToleratesExistingPullRequest(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, listPullsURL,
		httpmock.NewStringResponder(http.StatusOK, "[]"))
	httpmock.RegisterResponder(http.MethodPost, createPullsURL,
		httpmock.NewStringResponder(http.StatusUnprocessableEntity,
			`{"message": "A pull request already exists"}`))

	hub, _ := newFixture(t)
	prepareBranch(t, hub, "bump-acme-anvils")

	o := newOrchestrator(t, hub, true)
	err := o.Publish(context.Background(), Proposal{
		Entry:    catalog.Entry{Owner: "acme", Repo: "anvils"},
		Branch:   "bump-acme-anvils",
		Versions: []string{"1.0.0"},
	})
	require.NoError(t, err)
}

func TestPublishDegradesWhenListingFails(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, listPullsURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))
	httpmock.RegisterResponder(http.MethodPost, createPullsURL,
		httpmock.NewStringResponder(http.StatusCreated, `{"number": 9}`))

	hub, remoteDir := newFixture(t)
	prepareBranch(t, hub, "bump-acme-anvils")

	o := newOrchestrator(t, hub, true)
	err := o.Publish(context.Background(), Proposal{
		Entry:    catalog.Entry{Owner: "acme", Repo: "anvils"},
		Branch:   "bump-acme-anvils",
		Versions: []string{"1.0.0"},
	})
	require.NoError(t, err)
	require.True(t, remoteHasBranch(t, remoteDir, "bump-acme-anvils"))
	require.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+createPullsURL])
}
