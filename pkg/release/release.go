// Package release publishes prepared branches: it pushes them to the hub
// remote and opens pull requests, skipping branches that already have one.
package release

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/packagehub/hubsync/pkg/catalog"
	"github.com/packagehub/hubsync/pkg/githubclient"
	"github.com/packagehub/hubsync/pkg/gitops"
	"github.com/packagehub/hubsync/pkg/logme"
)

// Proposal is one branch worth of new versions for a tracked repository.
type Proposal struct {
	Entry    catalog.Entry
	Branch   string
	Versions []string
}

// Orchestrator drives the push/PR lifecycle against the hub repository.
// Callers serialize Publish calls; the GitHub client is shared and rate
// limited.
type Orchestrator struct {
	client        *githubclient.Client
	hub           *gitops.Hub
	strategy      gitops.BranchStrategy
	hubOwner      string
	hubRepo       string
	defaultBranch string
	push          bool

	openPRs []githubclient.PullRequest
	loaded  bool
}

func NewOrchestrator(
	client *githubclient.Client,
	hub *gitops.Hub,
	strategy gitops.BranchStrategy,
	hubOwner, hubRepo, defaultBranch string,
	push bool,
) *Orchestrator {
	return &Orchestrator{
		client:        client,
		hub:           hub,
		strategy:      strategy,
		hubOwner:      hubOwner,
		hubRepo:       hubRepo,
		defaultBranch: defaultBranch,
		push:          push,
	}
}

// loadOpenPRs fetches the open pull requests once per run. An API failure
// degrades to assuming no PRs are open; the 422 on creation still prevents
// duplicates.
func (o *Orchestrator) loadOpenPRs(ctx context.Context) []githubclient.PullRequest {
	if o.loaded {
		return o.openPRs
	}
	o.loaded = true

	prs, err := o.client.OpenPullRequests(ctx, o.hubOwner, o.hubRepo)
	if err != nil {
		logme.WarnF("could not list open pull requests, assuming none: %v\n", err)
		return nil
	}
	o.openPRs = prs
	return o.openPRs
}

// hasOpenPR reports whether an open pull request already targets the
// branch. Keyed on the PR head ref so one repository's open proposal never
// suppresses a sibling branch for a different version.
func (o *Orchestrator) hasOpenPR(ctx context.Context, branch string) bool {
	for _, pr := range o.loadOpenPRs(ctx) {
		if pr.Head.Ref == branch {
			return true
		}
	}
	return false
}

// Publish pushes the proposal's branch and opens a pull request for it.
// With push disabled everything stays local. A proposal with no versions
// is skipped outright.
func (o *Orchestrator) Publish(ctx context.Context, p Proposal) error {
	if len(p.Versions) == 0 {
		logme.DebugFln("no changes on branch %s, skipping", p.Branch)
		return nil
	}

	if !o.push {
		logme.InfoF("dry run: not pushing branch %s (%s: %s)\n",
			p.Branch, p.Entry.Slug(), strings.Join(p.Versions, ", "))
		return nil
	}

	if o.hasOpenPR(ctx, p.Branch) {
		// new commits are already visible on the open PR once pushed
		logme.InfoF("pull request already open for branch %s, pushing only\n", p.Branch)
		return o.hub.Push(ctx, p.Branch)
	}

	if err := o.hub.Push(ctx, p.Branch); err != nil {
		return err
	}

	err := o.client.CreatePullRequest(ctx, o.hubOwner, o.hubRepo, githubclient.NewPullRequest{
		Title:               o.strategy.PullRequestTitle(p.Entry),
		Head:                p.Branch,
		Base:                o.defaultBranch,
		Body:                prBody(p),
		MaintainerCanModify: true,
	})
	if errors.Is(err, githubclient.ErrPullRequestExists) {
		logme.InfoF("pull request for %s already exists\n", p.Branch)
		return nil
	}
	return err
}

func prBody(p Proposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Auto-bumping from new releases at https://github.com/%s/releases\n\n", p.Entry.Slug())
	b.WriteString("Versions added:\n")
	for _, v := range p.Versions {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	return b.String()
}
