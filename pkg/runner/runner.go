// Package runner drives one synchronization run: for every catalog entry
// it discovers new upstream versions, assembles their spec documents,
// commits them to the hub working tree and hands the branches to the pull
// request orchestrator. Repositories are processed concurrently; the hub
// working tree is written by one repository at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"golang.org/x/sync/errgroup"

	"github.com/packagehub/hubsync/pkg/catalog"
	"github.com/packagehub/hubsync/pkg/diff"
	"github.com/packagehub/hubsync/pkg/fetch"
	"github.com/packagehub/hubsync/pkg/githubclient"
	"github.com/packagehub/hubsync/pkg/gitops"
	"github.com/packagehub/hubsync/pkg/hubstate"
	"github.com/packagehub/hubsync/pkg/logme"
	"github.com/packagehub/hubsync/pkg/pkgspec"
	"github.com/packagehub/hubsync/pkg/release"
	"github.com/packagehub/hubsync/pkg/repotool"
	"github.com/packagehub/hubsync/pkg/semver"
)

type Runner struct {
	cfg       Config
	strategy  gitops.BranchStrategy
	client    *githubclient.Client
	assembler *pkgspec.Assembler
	auth      transport.AuthMethod
	hubOwner  string
	hubRepo   string

	// hubMu serializes every write to the shared hub working tree.
	hubMu sync.Mutex
	hub   *gitops.Hub
	index *hubstate.Index
}

func New(cfg Config) (*Runner, error) {
	// callers constructing Config directly bypass ReadConfig; a zero
	// concurrency would deadlock the errgroup
	cfg.applyDefaults()

	owner, repo, err := parseRemote(cfg.HubRemote)
	if err != nil {
		return nil, err
	}

	strategy, err := gitops.StrategyFor(cfg.BranchStrategy)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:       cfg,
		strategy:  strategy,
		client:    githubclient.NewClient(),
		assembler: pkgspec.NewAssembler(fetch.NewFetcher()),
		auth:      repotool.TokenAuth(os.Getenv("GITHUB_TOKEN")),
		hubOwner:  owner,
		hubRepo:   repo,
	}, nil
}

// Run executes one full synchronization pass and returns one outcome per
// entry. It only errors when the run cannot start at all (hub unreachable,
// workspace unavailable); per-repository problems land in the outcomes.
func (r *Runner) Run(ctx context.Context, entries []catalog.Entry) ([]Outcome, error) {
	ws, cleanup, err := repotool.NewWorkspace()
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	defer cleanup()

	hub, err := gitops.CloneHub(ctx, ws.Dir("hub"), r.cfg.HubRemote, r.cfg.DefaultBranch, r.auth)
	if err != nil {
		return nil, err
	}
	r.hub = hub

	index, err := hubstate.Build(hub.Dir())
	if err != nil {
		return nil, err
	}
	r.index = index

	outcomes := make([]Outcome, len(entries))
	proposals := make([][]release.Proposal, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			outcomes[i], proposals[i] = r.process(ctx, ws, entry)
			return nil
		})
	}
	_ = g.Wait()

	// pushes and PR calls share one rate-limited client; keep them
	// sequential
	orch := release.NewOrchestrator(
		r.client, r.hub, r.strategy,
		r.hubOwner, r.hubRepo, r.cfg.DefaultBranch, r.cfg.Push,
	)
	for i, entry := range entries {
		for _, p := range proposals[i] {
			if err := orch.Publish(ctx, p); err != nil {
				logme.ErrorF("publishing %s: %v\n", p.Branch, err)
				outcomes[i] = Outcome{
					Entry:    entry,
					Kind:     Failed,
					Versions: outcomes[i].Versions,
					Reason:   fmt.Sprintf("publishing %s: %v", p.Branch, err),
				}
			}
		}
	}

	return outcomes, nil
}

// process handles one tracked repository end to end. Every failure is
// converted into an outcome; nothing here may abort the run.
func (r *Runner) process(ctx context.Context, ws *repotool.Workspace, entry catalog.Entry) (Outcome, []release.Proposal) {
	cloneCtx, cancel := context.WithTimeout(ctx, r.cfg.CloneTimeout)
	defer cancel()

	logme.InfoF("processing %s\n", entry.Slug())

	repo, err := repotool.Clone(cloneCtx, ws.Dir(entry.Owner+"_"+entry.Repo), entry.CloneURL(), r.auth)
	if err != nil {
		return failed(entry, err), nil
	}

	projPath := path.Join(entry.Subdir, r.cfg.ProjectFile)
	headProj, err := repo.FileAtHead(projPath)
	if errors.Is(err, repotool.ErrFileNotFound) {
		return skipped(entry, fmt.Sprintf("no %s", projPath)), nil
	}
	if err != nil {
		return failed(entry, err), nil
	}

	project, err := pkgspec.ParseProject(headProj)
	if err != nil {
		return skipped(entry, err.Error()), nil
	}
	pkgName := project.Name
	namespace := entry.HubNamespace()

	tags, err := repo.Tags()
	if err != nil {
		return failed(entry, err), nil
	}

	published := r.index.Published(namespace, pkgName)
	candidates, warnings := diff.Candidates(tags, published)
	for _, w := range warnings {
		logme.WarnF("%s: %s\n", entry.Slug(), w)
	}
	if len(candidates) == 0 {
		logme.InfoF("no new versions for %s\n", entry.Slug())
		return noChange(entry), nil
	}

	// assemble all specs before touching the shared hub tree; tarball
	// downloads are the slow part and safely concurrent across repos
	var builds []build
	for _, c := range candidates {
		spec, err := r.assembleVersion(ctx, entry, repo, pkgName, projPath, c)
		if err != nil {
			logme.ErrorF("%s: skipping version %s: %v\n", entry.Slug(), c.Version.Normalized, err)
			continue
		}
		builds = append(builds, build{candidate: c, spec: spec})
	}
	if len(builds) == 0 {
		return skipped(entry, "no publishable versions"), nil
	}

	all := r.allVersions(published, builds)

	r.hubMu.Lock()
	defer r.hubMu.Unlock()

	prs, err := r.commitBuilds(entry, pkgName, builds, all)
	if err != nil {
		return failed(entry, err), nil
	}

	var versions []string
	for _, p := range prs {
		versions = append(versions, p.Versions...)
	}
	if len(versions) == 0 {
		// everything was already committed on a pending branch
		return noChange(entry), nil
	}
	return updated(entry, versions), prs
}

type build struct {
	candidate diff.Candidate
	spec      *pkgspec.Spec
}

// assembleVersion builds the spec for one candidate from the descriptors
// at its tag. A missing or unparseable required descriptor skips exactly
// this version; malformed optional metadata degrades to none.
func (r *Runner) assembleVersion(
	ctx context.Context,
	entry catalog.Entry,
	repo *repotool.Repo,
	pkgName, projPath string,
	c diff.Candidate,
) (*pkgspec.Spec, error) {
	tag := c.Version.Tag

	projData, err := repo.FileAtTag(tag, projPath)
	if err != nil {
		return nil, fmt.Errorf("required descriptor: %w", err)
	}
	tagProject, err := pkgspec.ParseProject(projData)
	if err != nil {
		return nil, fmt.Errorf("required descriptor: %w", err)
	}
	if tagProject.Name != pkgName {
		// the hub entry is keyed on the current name; keep one identity
		logme.WarnF("%s: tag %s declares name %q, publishing as %q\n",
			entry.Slug(), tag, tagProject.Name, pkgName)
		tagProject.Name = pkgName
	}

	var deps []pkgspec.Dependency
	pkgsPath := path.Join(entry.Subdir, r.cfg.PackagesFile)
	if pkgsData, err := repo.FileAtTag(tag, pkgsPath); err == nil {
		deps, err = pkgspec.ParsePackages(pkgsData)
		if err != nil {
			logme.WarnF("%s: malformed %s at %s, publishing without dependency metadata: %v\n",
				entry.Slug(), pkgsPath, tag, err)
			deps = nil
		}
	}

	return r.assembler.Build(ctx, entry, tagProject, deps, c)
}

// allVersions merges the already-published set with the new builds for the
// package index document.
func (r *Runner) allVersions(published map[string]struct{}, builds []build) []semver.Version {
	var all []semver.Version
	for v := range published {
		if parsed, ok := semver.Parse(v); ok {
			all = append(all, parsed)
		}
	}
	for _, b := range builds {
		all = append(all, b.candidate.Version)
	}
	return all
}

// commitBuilds writes specs and the index document onto their branches.
// Caller holds hubMu. One commit per version keeps git history aligned
// with releases; the index rides along with the first commit of a branch.
func (r *Runner) commitBuilds(
	entry catalog.Entry,
	pkgName string,
	builds []build,
	all []semver.Version,
) ([]release.Proposal, error) {
	defer func() {
		if err := r.hub.CheckoutDefault(); err != nil {
			logme.ErrorF("returning hub to %s: %v\n", r.cfg.DefaultBranch, err)
		}
	}()

	namespace := entry.HubNamespace()
	indexPath := hubstate.IndexPath(namespace, pkgName)

	// group builds by target branch, preserving ascending version order
	var branches []string
	grouped := make(map[string][]build)
	for _, b := range builds {
		branch := r.strategy.BranchName(entry, b.spec.Version)
		if _, seen := grouped[branch]; !seen {
			branches = append(branches, branch)
		}
		grouped[branch] = append(grouped[branch], b)
	}

	var proposals []release.Proposal
	for _, branch := range branches {
		if err := r.hub.EnsureBranch(branch); err != nil {
			return nil, err
		}

		existing, _ := r.hub.ReadFile(indexPath)
		indexDoc, err := pkgspec.BuildIndex(entry, pkgName, existing, all)
		if err != nil {
			return nil, err
		}
		indexData, err := pkgspec.Marshal(indexDoc)
		if err != nil {
			return nil, err
		}
		if err := r.hub.WriteFile(indexPath, indexData); err != nil {
			return nil, err
		}

		var committed []string
		first := true
		for _, b := range grouped[branch] {
			specPath := hubstate.SpecPath(namespace, pkgName, b.spec.Version)
			specData, err := pkgspec.Marshal(b.spec)
			if err != nil {
				return nil, err
			}
			if err := r.hub.WriteFile(specPath, specData); err != nil {
				return nil, err
			}

			paths := []string{specPath}
			if first {
				paths = append(paths, indexPath)
				first = false
			}

			msg := fmt.Sprintf("hubsync: add tag %s for %s", b.candidate.Version.Tag, entry.Slug())
			changed, err := r.hub.Commit(msg, paths...)
			if err != nil {
				return nil, err
			}
			if changed {
				logme.InfoF("%s\n", msg)
				committed = append(committed, b.spec.Version)
			}
		}

		if len(committed) > 0 {
			proposals = append(proposals, release.Proposal{
				Entry:    entry,
				Branch:   branch,
				Versions: committed,
			})
		}
	}

	return proposals, nil
}
