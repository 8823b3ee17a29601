package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "hubRemote: https://github.com/packagehub/hub.git\n")

	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "main", cfg.DefaultBranch)
	require.Equal(t, 4, cfg.Concurrency)
	require.Equal(t, 5*time.Minute, cfg.CloneTimeout)
	require.Equal(t, "project.yml", cfg.ProjectFile)
	require.Equal(t, "packages.yml", cfg.PackagesFile)
	require.False(t, cfg.Push)
}

func TestReadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
hubRemote: https://github.com/packagehub/hub.git
defaultBranch: trunk
branchStrategy: version
push: true
concurrency: 8
cloneTimeout: 30s
projectFile: pkg.yml
`)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "trunk", cfg.DefaultBranch)
	require.Equal(t, "version", cfg.BranchStrategy)
	require.True(t, cfg.Push)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, 30*time.Second, cfg.CloneTimeout)
	require.Equal(t, "pkg.yml", cfg.ProjectFile)
}

func TestReadConfigMissingRemote(t *testing.T) {
	path := writeConfig(t, "push: true\n")
	_, err := ReadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "hubRemote")
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestReadConfigMalformedYAML(t *testing.T) {
	path := writeConfig(t, "hubRemote: [unterminated\n")
	_, err := ReadConfig(path)
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	// a hand-built Config skips ReadConfig's defaulting; New must still
	// end up with a usable concurrency limit
	r, err := New(Config{HubRemote: "https://github.com/packagehub/hub.git"})
	require.NoError(t, err)
	require.Equal(t, 4, r.cfg.Concurrency)
	require.Equal(t, "main", r.cfg.DefaultBranch)
	require.Equal(t, "project.yml", r.cfg.ProjectFile)
	require.Equal(t, 5*time.Minute, r.cfg.CloneTimeout)
}

func TestParseRemote(t *testing.T) {
	for _, tc := range []struct {
		remote string
		owner  string
		repo   string
	}{
		{"https://github.com/packagehub/hub.git", "packagehub", "hub"},
		{"https://github.com/packagehub/hub", "packagehub", "hub"},
		{"git@github.com:packagehub/hub.git", "packagehub", "hub"},
		{"ssh://git@github.com/packagehub/hub.git", "packagehub", "hub"},
		{"/tmp/fixtures/packagehub/hub", "packagehub", "hub"},
	} {
		owner, repo, err := parseRemote(tc.remote)
		require.NoError(t, err, tc.remote)
		require.Equal(t, tc.owner, owner, tc.remote)
		require.Equal(t, tc.repo, repo, tc.remote)
	}

	for _, remote := range []string{"", "hub", "https://github.com/"} {
		_, _, err := parseRemote(remote)
		require.Error(t, err, remote)
	}
}
