// Package pkgspec assembles the documents published into the hub: one spec
// file per package version and one index document per package.
package pkgspec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/packagehub/hubsync/pkg/catalog"
	"github.com/packagehub/hubsync/pkg/diff"
	"github.com/packagehub/hubsync/pkg/fetch"
	"github.com/packagehub/hubsync/pkg/semver"
)

// publishedAtPlaceholder is rewritten by hub tooling at merge time; the
// engine only guarantees a stable value so re-runs are byte-identical.
const publishedAtPlaceholder = "1970-01-01T00:00:00.000000+00:00"

// Spec is the canonical document for one package version. Field names are
// a public contract: the published-state check is keyed on these files.
type Spec struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Version              string       `json:"version"`
	PublishedAt          string       `json:"published_at"`
	Packages             []Dependency `json:"packages"`
	RequireEngineVersion []string     `json:"require_engine_version"`
	WorksWith            []string     `json:"works_with"`
	Source               Source       `json:"_source"`
	Downloads            Downloads    `json:"downloads"`
}

type Source struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Commit string `json:"commit"`
	Readme string `json:"readme"`
}

type Downloads struct {
	Tarball string `json:"tarball"`
	Format  string `json:"format"`
	SHA1    string `json:"sha1"`
}

// IndexDoc is the per-package index document, rewritten whenever new
// versions land. Description and assets survive from the previous copy.
type IndexDoc struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Description string            `json:"description"`
	Latest      string            `json:"latest"`
	Assets      map[string]string `json:"assets"`
}

// Assembler builds spec documents, downloading the release tarball to
// fingerprint each version.
type Assembler struct {
	fetcher *fetch.Fetcher
}

func NewAssembler(fetcher *fetch.Fetcher) *Assembler {
	return &Assembler{fetcher: fetcher}
}

// TarballURL returns the canonical source archive URL for a tag.
func TarballURL(entry catalog.Entry, tag string) string {
	return fmt.Sprintf("https://codeload.github.com/%s/%s/tar.gz/%s", entry.Owner, entry.Repo, tag)
}

// Build assembles the spec for one candidate version. project is the
// required descriptor parsed at the candidate's tag; deps may be nil when
// the optional descriptor is absent or malformed.
func (a *Assembler) Build(
	ctx context.Context,
	entry catalog.Entry,
	project *Project,
	deps []Dependency,
	candidate diff.Candidate,
) (*Spec, error) {
	tag := candidate.Version.Tag
	tarball := TarballURL(entry, tag)

	sha1, err := a.fetcher.SHA1(ctx, tarball)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", tarball, err)
	}

	if deps == nil {
		deps = []Dependency{}
	}
	require := project.RequireEngineVersion
	if require == nil {
		require = []string{}
	}

	return &Spec{
		ID:                   fmt.Sprintf("%s/%s/%s", entry.HubNamespace(), project.Name, candidate.Version.Normalized),
		Name:                 project.Name,
		Version:              candidate.Version.Normalized,
		PublishedAt:          publishedAtPlaceholder,
		Packages:             deps,
		RequireEngineVersion: require,
		WorksWith:            []string{},
		Source: Source{
			Type:   "github",
			URL:    fmt.Sprintf("https://github.com/%s/%s/tree/%s/", entry.Owner, entry.Repo, tag),
			Commit: candidate.CommitSHA,
			Readme: fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/README.md", entry.Owner, entry.Repo, tag),
		},
		Downloads: Downloads{
			Tarball: tarball,
			Format:  "tgz",
			SHA1:    sha1,
		},
	}, nil
}

// BuildIndex assembles the package index document. existing is the current
// index.json contents, or nil for a first publication; an unparseable
// existing document falls back to defaults. all must contain every version
// of the package, published and new.
func BuildIndex(entry catalog.Entry, packageName string, existing []byte, all []semver.Version) (*IndexDoc, error) {
	doc := &IndexDoc{
		Name:        packageName,
		Namespace:   entry.HubNamespace(),
		Description: fmt.Sprintf("Packages for %s", entry.Repo),
		Assets:      map[string]string{"logo": "logos/placeholder.svg"},
	}

	if len(existing) > 0 {
		var prev IndexDoc
		if err := json.Unmarshal(existing, &prev); err == nil {
			if prev.Description != "" {
				doc.Description = prev.Description
			}
			if len(prev.Assets) > 0 {
				doc.Assets = prev.Assets
			}
		}
	}

	latest, ok := semver.Latest(all)
	if !ok {
		return nil, fmt.Errorf("no versions for %s", packageName)
	}
	doc.Latest = latest.Normalized

	return doc, nil
}

// Marshal renders a hub document deterministically.
func Marshal(doc interface{}) ([]byte, error) {
	return json.MarshalIndent(doc, "", "    ")
}
