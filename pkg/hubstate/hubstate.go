// Package hubstate reads the published state out of the hub working tree.
//
// The hub lays out one spec file per package version:
//
//	data/packages/<namespace>/<package>/versions/<version>.json
//
// The working tree is the only state store; the index is rebuilt from it
// on every run.
package hubstate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// packagesDir is the root of the per-package layout inside the hub repo.
const packagesDir = "data/packages"

// Index maps namespace/package to the set of published version strings.
type Index struct {
	versions map[string]map[string]struct{}
}

// Build walks the hub working tree. A fresh hub with no data directory
// yields an empty index, not an error.
func Build(hubDir string) (*Index, error) {
	ix := &Index{versions: make(map[string]map[string]struct{})}

	root := filepath.Join(hubDir, packagesDir)
	namespaces, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return ix, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	for _, ns := range namespaces {
		if !ns.IsDir() {
			continue
		}
		pkgs, err := os.ReadDir(filepath.Join(root, ns.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading namespace %s: %w", ns.Name(), err)
		}
		for _, pkg := range pkgs {
			if !pkg.IsDir() {
				continue
			}
			if err := ix.readVersions(root, ns.Name(), pkg.Name()); err != nil {
				return nil, err
			}
		}
	}

	return ix, nil
}

func (ix *Index) readVersions(root, namespace, pkg string) error {
	dir := filepath.Join(root, namespace, pkg, "versions")
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		// package entry exists but has no published versions yet
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading versions of %s/%s: %w", namespace, pkg, err)
	}

	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".json") || name == "index.json" {
			continue
		}
		ix.add(namespace, pkg, strings.TrimSuffix(name, ".json"))
	}
	return nil
}

func (ix *Index) add(namespace, pkg, version string) {
	key := namespace + "/" + pkg
	if ix.versions[key] == nil {
		ix.versions[key] = make(map[string]struct{})
	}
	ix.versions[key][version] = struct{}{}
}

// Published returns the set of version strings already in the hub for the
// given package. The returned map is never nil.
func (ix *Index) Published(namespace, pkg string) map[string]struct{} {
	set := ix.versions[namespace+"/"+pkg]
	if set == nil {
		return map[string]struct{}{}
	}
	return set
}

// SpecPath returns the hub-relative path of the spec file for one version.
// The name is a deterministic function of package and version so repeated
// runs reproduce identical paths.
func SpecPath(namespace, pkg, version string) string {
	return filepath.Join(packagesDir, namespace, pkg, "versions", version+".json")
}

// IndexPath returns the hub-relative path of the package index document.
func IndexPath(namespace, pkg string) string {
	return filepath.Join(packagesDir, namespace, pkg, "index.json")
}
