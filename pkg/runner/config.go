package runner

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/packagehub/hubsync/pkg/pkgspec"
)

// Config is the run configuration. Credentials are not part of it; the
// GitHub token comes from the GITHUB_TOKEN environment variable.
type Config struct {
	// HubRemote is the clone URL of the registry repository, the sole
	// write target.
	HubRemote     string `yaml:"hubRemote"`
	DefaultBranch string `yaml:"defaultBranch"`
	// BranchStrategy is "repo" (one branch per tracked repository) or
	// "version" (one branch per package version).
	BranchStrategy string `yaml:"branchStrategy"`
	// Push gates all transmission: branches and pull requests. Disabled
	// it is a dry run producing local git state only.
	Push        bool `yaml:"push"`
	Concurrency int  `yaml:"concurrency"`
	// CloneTimeout bounds the fetch of one upstream repository. A
	// timeout skips that repository for the current run.
	CloneTimeout time.Duration `yaml:"cloneTimeout"`
	ProjectFile  string        `yaml:"projectFile"`
	PackagesFile string        `yaml:"packagesFile"`
}

// ReadConfig loads and validates a YAML config file. Errors here are
// fatal: nothing is processed with a broken configuration.
func ReadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DefaultBranch == "" {
		c.DefaultBranch = "main"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.CloneTimeout <= 0 {
		c.CloneTimeout = 5 * time.Minute
	}
	if c.ProjectFile == "" {
		c.ProjectFile = pkgspec.DefaultProjectFile
	}
	if c.PackagesFile == "" {
		c.PackagesFile = pkgspec.DefaultPackagesFile
	}
}

func (c *Config) validate() error {
	if c.HubRemote == "" {
		return fmt.Errorf("hubRemote is required")
	}
	if _, _, err := parseRemote(c.HubRemote); err != nil {
		return err
	}
	return nil
}

// parseRemote extracts owner and repository from a GitHub remote URL,
// accepting both https and ssh forms.
func parseRemote(remote string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(remote, ".git")
	trimmed = strings.TrimPrefix(trimmed, "git@github.com:")
	trimmed = strings.TrimPrefix(trimmed, "ssh://git@github.com/")
	trimmed = strings.TrimPrefix(trimmed, "https://github.com/")
	trimmed = strings.Trim(trimmed, "/")

	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from remote %q", remote)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
