// Package diff computes, for one package, the versions present upstream
// but not yet published in the hub.
package diff

import (
	"fmt"
	"sort"

	"github.com/packagehub/hubsync/pkg/repotool"
	"github.com/packagehub/hubsync/pkg/semver"
)

// Candidate is a new version to publish: a grammar-passing tag with its
// resolved commit.
type Candidate struct {
	Version   semver.Version
	CommitSHA string
}

// Candidates filters tags through the version grammar, drops anything the
// hub already has and orders the rest ascending by semver precedence.
// Tags failing the grammar are discarded silently. When two tags normalize
// to the same version (1.0.0 vs v1.0.0) exactly one canonical tag is kept
// and a warning is returned; two specs for one version would corrupt the
// hub.
func Candidates(tags []repotool.Tag, published map[string]struct{}) ([]Candidate, []string) {
	byVersion := make(map[string]Candidate)
	var warnings []string

	for _, tag := range tags {
		v, ok := semver.Parse(tag.Name)
		if !ok {
			// not a release tag, not an error
			continue
		}

		c := Candidate{Version: v, CommitSHA: tag.CommitSHA}
		prev, dup := byVersion[v.Normalized]
		if !dup {
			byVersion[v.Normalized] = c
			continue
		}

		keep, drop := pick(prev, c)
		byVersion[v.Normalized] = keep
		warnings = append(warnings, fmt.Sprintf(
			"tags %q and %q both resolve to version %s; keeping %q",
			keep.Version.Tag, drop.Version.Tag, v.Normalized, keep.Version.Tag,
		))
	}

	var candidates []Candidate
	for normalized, c := range byVersion {
		if _, ok := published[normalized]; ok {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if c := candidates[i].Version.Compare(candidates[j].Version); c != 0 {
			return c < 0
		}
		return candidates[i].Version.Tag < candidates[j].Version.Tag
	})

	return candidates, warnings
}

// pick chooses the canonical tag for a duplicated version: prefer the
// un-prefixed form, otherwise the lexically smaller tag.
func pick(a, b Candidate) (keep, drop Candidate) {
	aPlain := a.Version.Tag == a.Version.Normalized
	bPlain := b.Version.Tag == b.Version.Normalized

	switch {
	case aPlain && !bPlain:
		return a, b
	case bPlain && !aPlain:
		return b, a
	case a.Version.Tag < b.Version.Tag:
		return a, b
	default:
		return b, a
	}
}
