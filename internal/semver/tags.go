package semver

import (
	"sort"
	"strings"
)

// ParseTag splits a version tag at its last "/" into a package path and a
// version. A tag without "/" is a repository-root tag and yields an empty
// package path.
func ParseTag(tag string) (string, Version, bool) {
	pkgPath, rawVersion := "", tag
	if idx := strings.LastIndex(tag, "/"); idx >= 0 {
		pkgPath, rawVersion = tag[:idx], tag[idx+1:]
		if pkgPath == "" {
			return "", Version{}, false
		}
	}
	if !strings.HasPrefix(rawVersion, "v") {
		return "", Version{}, false
	}
	v, err := ParseVersion(rawVersion)
	if err != nil {
		return "", Version{}, false
	}
	return pkgPath, v, true
}

// ParseRootTag parses a repository-root tag. Tags containing "/" belong to
// nested packages and are rejected.
func ParseRootTag(tag string) (Version, bool) {
	if strings.Contains(tag, "/") {
		return Version{}, false
	}
	_, v, ok := ParseTag(tag)
	return v, ok
}

// ComputeTagPrefix combines an optional workspace subpath (the workspace root
// relative to the git root) with an optional package path. The result ends in
// "/v", or is the bare "v" for a root package of a root workspace.
func ComputeTagPrefix(relPath, workspaceSubpath string) string {
	var parts []string
	for _, p := range []string{workspaceSubpath, relPath} {
		p = strings.Trim(p, "/")
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "v"
	}
	return strings.Join(parts, "/") + "/v"
}

// BuildTagName joins a prefix from ComputeTagPrefix with a version.
func BuildTagName(prefix string, v Version) string {
	return prefix + v.String()
}

// FindLatestVersion returns the highest version among tags carrying prefix.
func FindLatestVersion(tags []string, prefix string) (Version, bool) {
	_, v, ok := findLatest(tags, prefix)
	return v, ok
}

// FindLatestTag returns the tag holding the highest version for prefix.
func FindLatestTag(tags []string, prefix string) (string, bool) {
	tag, _, ok := findLatest(tags, prefix)
	return tag, ok
}

// VersionsWithPrefix returns every version tagged under prefix, newest first.
func VersionsWithPrefix(tags []string, prefix string) []Version {
	var out []Version
	for _, tag := range tags {
		if v, ok := versionForPrefix(tag, prefix); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return Compare(out[i], out[j]) > 0
	})
	return out
}

func findLatest(tags []string, prefix string) (string, Version, bool) {
	var (
		bestTag string
		best    Version
		found   bool
	)
	for _, tag := range tags {
		v, ok := versionForPrefix(tag, prefix)
		if !ok {
			continue
		}
		if !found || Compare(v, best) > 0 {
			bestTag, best, found = tag, v, true
		}
	}
	return bestTag, best, found
}

// versionForPrefix parses the remainder of tag after prefix. The remainder
// must be a bare version so "a/v1.0.0" never matches prefix "v".
func versionForPrefix(tag, prefix string) (Version, bool) {
	rest, ok := strings.CutPrefix(tag, prefix)
	if !ok || rest == "" || rest[0] < '0' || rest[0] > '9' {
		return Version{}, false
	}
	v, err := ParseVersion(rest)
	if err != nil {
		return Version{}, false
	}
	return v, true
}
