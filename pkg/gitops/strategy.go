package gitops

import (
	"fmt"
	"strings"

	"github.com/packagehub/hubsync/pkg/catalog"
)

// BranchStrategy decides the branch granularity of a run: one proposal per
// tracked repository or one per release. Branch names are deterministic so
// a re-run after a push lands on the same branch instead of forking a
// duplicate.
type BranchStrategy interface {
	// BranchName names the branch holding the given version. Strategies
	// that accumulate a whole repository ignore the version.
	BranchName(entry catalog.Entry, version string) string
	// PullRequestTitle names the proposal for the branch.
	PullRequestTitle(entry catalog.Entry) string
}

// RepoBranches accumulates all new versions of one tracked repository on a
// single branch.
type RepoBranches struct{}

func (RepoBranches) BranchName(entry catalog.Entry, _ string) string {
	return fmt.Sprintf("bump-%s-%s", entry.Owner, entry.Repo)
}

func (RepoBranches) PullRequestTitle(entry catalog.Entry) string {
	return fmt.Sprintf("hubsync: bump %s", entry.Slug())
}

// VersionBranches cuts one branch per package version.
type VersionBranches struct{}

func (VersionBranches) BranchName(entry catalog.Entry, version string) string {
	return fmt.Sprintf("bump-%s-%s-%s", entry.Owner, entry.Repo, sanitizeRef(version))
}

func (VersionBranches) PullRequestTitle(entry catalog.Entry) string {
	return fmt.Sprintf("hubsync: bump %s", entry.Slug())
}

// StrategyFor maps the configured policy name to a strategy. The policy is
// selected once at run start and applied uniformly.
func StrategyFor(name string) (BranchStrategy, error) {
	switch name {
	case "", "repo":
		return RepoBranches{}, nil
	case "version":
		return VersionBranches{}, nil
	default:
		return nil, fmt.Errorf("unknown branch strategy %q", name)
	}
}

// sanitizeRef strips the characters git refuses in ref names.
func sanitizeRef(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '~', '^', ':', '?', '*', '[', '\\', ' ':
			return '-'
		}
		return r
	}, s)
}
