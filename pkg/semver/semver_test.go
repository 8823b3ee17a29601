package semver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAcceptsReleaseTags(t *testing.T) {
	for tag, normalized := range map[string]string{
		"1.0.0":            "1.0.0",
		"v1.0.0":           "1.0.0",
		"V1.0.0":           "1.0.0",
		"0.9.12":           "0.9.12",
		"v2.0.0-rc.1":      "2.0.0-rc.1",
		"1.2.3-alpha":      "1.2.3-alpha",
		"1.2.3+build.7":    "1.2.3+build.7",
		"v10.20.30":        "10.20.30",
		"1.0.0-0.3.7":      "1.0.0-0.3.7",
		"1.0.0-beta+exp.1": "1.0.0-beta+exp.1",
	} {
		v, ok := Parse(tag)
		require.True(t, ok, "expected %q to parse", tag)
		require.Equal(t, normalized, v.Normalized)
		require.Equal(t, tag, v.Tag)
	}
}

func TestParseRejectsNonReleaseTags(t *testing.T) {
	for _, tag := range []string{
		"",
		"latest",
		"first-release",
		"release-candidate",
		"1.0",
		"1",
		"v1",
		"1.0.0.0",
		"01.0.0",
		"1.00.0",
		"vv1.0.0",
		"1.0.0-",
		"main",
		"2021-01-01",
	} {
		_, ok := Parse(tag)
		require.False(t, ok, "expected %q to be rejected", tag)
	}
}

func TestNormalizationIsIdempotent(t *testing.T) {
	v, ok := Parse("v1.2.0")
	require.True(t, ok)

	again, ok := Parse(v.Normalized)
	require.True(t, ok)
	require.Equal(t, v.Normalized, again.Normalized)

	plain, ok := Parse("1.2.0")
	require.True(t, ok)
	require.Equal(t, plain.Normalized, v.Normalized)
}

func TestCompare(t *testing.T) {
	parse := func(tag string) Version {
		v, ok := Parse(tag)
		require.True(t, ok)
		return v
	}

	require.Equal(t, -1, parse("0.9.0").Compare(parse("1.0.0")))
	require.Equal(t, 1, parse("1.1.0").Compare(parse("1.0.9")))
	require.Equal(t, 0, parse("v1.0.0").Compare(parse("1.0.0")))
	// pre-release sorts before its final release
	require.Equal(t, -1, parse("1.0.0-rc.1").Compare(parse("1.0.0")))
	require.Equal(t, -1, parse("1.0.0-alpha").Compare(parse("1.0.0-beta")))
}

func TestSortAscending(t *testing.T) {
	var versions []Version
	for _, tag := range []string{"1.1.0", "0.9.0", "1.0.0", "1.0.0-rc.1"} {
		v, ok := Parse(tag)
		require.True(t, ok)
		versions = append(versions, v)
	}

	Sort(versions)

	var got []string
	for _, v := range versions {
		got = append(got, v.Normalized)
	}
	require.Equal(t, []string{"0.9.0", "1.0.0-rc.1", "1.0.0", "1.1.0"}, got)
}

func TestLatestPrefersFinalOverPrerelease(t *testing.T) {
	parse := func(tag string) Version {
		v, ok := Parse(tag)
		require.True(t, ok)
		return v
	}

	latest, ok := Latest([]Version{parse("1.0.0"), parse("2.0.0-rc.1"), parse("0.9.0")})
	require.True(t, ok)
	require.Equal(t, "1.0.0", latest.Normalized)

	// only pre-releases: latest pre-release wins
	latest, ok = Latest([]Version{parse("1.0.0-rc.1"), parse("1.0.0-rc.2")})
	require.True(t, ok)
	require.Equal(t, "1.0.0-rc.2", latest.Normalized)

	_, ok = Latest(nil)
	require.False(t, ok)
}
