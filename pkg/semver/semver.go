// Package semver implements the release tag grammar used by the hub.
//
// A tag is a release candidate when it is a semver triple with an optional
// pre-release or build suffix, optionally prefixed with a case-insensitive
// "v". Anything else (branch-like tags, "latest", "first-release") is not a
// release and is rejected without error.
package semver

import (
	"regexp"
	"sort"

	goversion "github.com/hashicorp/go-version"
)

// regex taken from the official semver documentation, extended with the
// optional leading v.
var tagPattern = regexp.MustCompile(
	`^[vV]?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`,
)

// Version is a release tag that passed the grammar.
type Version struct {
	// Tag is the tag exactly as it appears upstream.
	Tag string
	// Normalized is the tag with the leading v stripped. Spec file names
	// are keyed on this value.
	Normalized string
	// Prerelease is the pre-release suffix, empty for final releases.
	Prerelease string

	parsed *goversion.Version
}

// Parse classifies a raw tag. ok is false when the tag is not a release
// tag; that is an expected outcome, not an error.
func Parse(tag string) (Version, bool) {
	m := tagPattern.FindStringSubmatch(tag)
	if m == nil {
		return Version{}, false
	}

	normalized := tag
	if tag[0] == 'v' || tag[0] == 'V' {
		normalized = tag[1:]
	}

	parsed, err := goversion.NewSemver(normalized)
	if err != nil {
		return Version{}, false
	}

	return Version{
		Tag:        tag,
		Normalized: normalized,
		Prerelease: parsed.Prerelease(),
		parsed:     parsed,
	}, true
}

// IsStable reports whether the version is a final release.
func (v Version) IsStable() bool {
	return v.Prerelease == ""
}

// Compare returns -1, 0 or 1 following semver precedence. Pre-releases sort
// before their corresponding final release.
func (v Version) Compare(other Version) int {
	return v.parsed.Compare(other.parsed)
}

// Sort orders versions ascending by semver precedence.
func Sort(versions []Version) {
	sort.Slice(versions, func(i, j int) bool {
		if c := versions[i].Compare(versions[j]); c != 0 {
			return c < 0
		}
		// equal precedence (e.g. 1.0.0 vs v1.0.0), keep deterministic
		return versions[i].Tag < versions[j].Tag
	})
}

// Latest returns the newest final version if one exists, otherwise the
// newest pre-release. ok is false for an empty input.
func Latest(versions []Version) (Version, bool) {
	var best Version
	found := false
	for _, v := range versions {
		if !found {
			best, found = v, true
			continue
		}
		// final releases always beat pre-releases
		if v.IsStable() != best.IsStable() {
			if v.IsStable() {
				best = v
			}
			continue
		}
		if v.Compare(best) > 0 {
			best = v
		}
	}
	return best, found
}
