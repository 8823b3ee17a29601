// Package catalog loads the list of tracked upstream repositories.
//
// The catalog file maps an owner to its tracked repositories. An entry is
// either a plain repository name or an object carrying per-repository
// overrides (hub namespace, subdirectory holding the package descriptors).
// A second file lists exclusions: repositories that stay in the catalog for
// bookkeeping but must not be processed.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var catalogSchema string

// Entry identifies one tracked upstream repository. Immutable for the
// duration of a run.
type Entry struct {
	Owner     string
	Repo      string
	Namespace string // hub namespace, defaults to Owner
	Subdir    string // descriptor location inside the repo, defaults to the root
}

// HubNamespace returns the namespace the package is published under.
func (e Entry) HubNamespace() string {
	if e.Namespace != "" {
		return e.Namespace
	}
	return e.Owner
}

// Slug returns the owner/repo pair, the identity used in logs, branch
// names and pull request titles.
func (e Entry) Slug() string {
	return e.Owner + "/" + e.Repo
}

// CloneURL returns the https clone URL of the upstream repository.
func (e Entry) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", e.Owner, e.Repo)
}

// entrySpec is the on-disk shape of a catalog entry: a bare string or an
// object with overrides.
type entrySpec struct {
	Repo      string `json:"repo"`
	Namespace string `json:"namespace"`
	Subdir    string `json:"subdir"`
}

func (s *entrySpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		s.Repo = name
		return nil
	}

	type plain entrySpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = entrySpec(p)
	return nil
}

// Load reads and validates the catalog file, applies the exclusions file
// and returns the entries to process, ordered by owner then repository.
// Any malformation is a fatal configuration error.
func Load(catalogPath, exclusionsPath string) ([]Entry, error) {
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	if err := validate(data); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", catalogPath, err)
	}

	var raw map[string][]entrySpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", catalogPath, err)
	}

	excluded, err := loadExclusions(exclusionsPath)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for owner, specs := range raw {
		for _, s := range specs {
			if excluded[owner][s.Repo] {
				continue
			}
			entries = append(entries, Entry{
				Owner:     owner,
				Repo:      s.Repo,
				Namespace: s.Namespace,
				Subdir:    s.Subdir,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Owner != entries[j].Owner {
			return entries[i].Owner < entries[j].Owner
		}
		return entries[i].Repo < entries[j].Repo
	})

	return entries, nil
}

// loadExclusions tolerates a missing file: no exclusions is the common case.
func loadExclusions(path string) (map[string]map[string]bool, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading exclusions: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing exclusions %s: %w", path, err)
	}

	excluded := make(map[string]map[string]bool, len(raw))
	for owner, repos := range raw {
		excluded[owner] = make(map[string]bool, len(repos))
		for _, repo := range repos {
			excluded[owner][repo] = true
		}
	}
	return excluded, nil
}

func validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := result.Errors()
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation failed: %v", msgs)
	}
	return nil
}
