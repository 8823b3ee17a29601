package pkgspec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Descriptor file names inside a tracked repository. The project file is
// required at every release tag; the packages file is optional.
const (
	DefaultProjectFile  = "project.yml"
	DefaultPackagesFile = "packages.yml"
)

// Project is the required descriptor. A release without a parseable
// project file declaring a name cannot be published.
type Project struct {
	Name                 string     `yaml:"name"`
	RequireEngineVersion StringList `yaml:"require-engine-version"`
}

// StringList accepts both a scalar and a sequence in YAML; descriptors in
// the wild use either form for version requirements.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	var single string
	if err := value.Decode(&single); err == nil {
		*l = StringList{single}
		return nil
	}

	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// ParseProject parses the required descriptor. A missing name is an error;
// the caller skips that version.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project descriptor: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("project descriptor declares no name")
	}
	return &p, nil
}

// Dependency is one entry of the optional packages descriptor, kept as an
// open map: the hub republishes it verbatim.
type Dependency map[string]interface{}

type packagesFile struct {
	Packages []Dependency `yaml:"packages"`
}

// ParsePackages parses the optional descriptor. Callers treat an error as
// a warning and publish with no dependency metadata.
func ParsePackages(data []byte) ([]Dependency, error) {
	var f packagesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing packages descriptor: %w", err)
	}
	return f.Packages, nil
}
