package domain

import (
	"fmt"
	"strings"
)

// ReferenceKind discriminates the Reference variants.
type ReferenceKind int

const (
	// RefURL is a fully-qualified host/owner/repo[/sub/path] reference.
	RefURL ReferenceKind = iota

	// RefAlias is a short "@name[/subpath]" reference.
	RefAlias

	// RefLocalPath is a path relative to the referring file or the workspace.
	RefLocalPath
)

func (k ReferenceKind) String() string {
	switch k {
	case RefURL:
		return "url"
	case RefAlias:
		return "alias"
	case RefLocalPath:
		return "path"
	default:
		return "unknown"
	}
}

// Reference is a classified module reference. Build it with ClassifyReference.
type Reference struct {
	Kind ReferenceKind

	// Raw is the reference exactly as written in source.
	Raw string

	// Alias is the alias name without "@" (RefAlias only).
	Alias string

	// SubPath is the path after the alias name (RefAlias only).
	SubPath string

	// URL is the normalized host/owner/repo/... form (RefURL only).
	URL string

	// Path is the local path as written (RefLocalPath only).
	Path string
}

// ClassifyReference turns a raw reference string into a Reference.
//
//   - "@name" and "@name/sub/file.zen" are aliases;
//   - strings whose first segment looks like a host ("github.com/...") and
//     that carry at least host/owner/repo are URLs, with any "https://"
//     scheme stripped;
//   - everything else is a local path.
func ClassifyReference(raw string) (Reference, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Reference{}, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}

	if name, ok := strings.CutPrefix(s, "@"); ok {
		alias, sub, _ := strings.Cut(name, "/")
		if alias == "" {
			return Reference{}, fmt.Errorf("%w: empty alias in %q", ErrInvalidReference, raw)
		}
		return Reference{Kind: RefAlias, Raw: raw, Alias: alias, SubPath: sub}, nil
	}

	for _, scheme := range []string{"https://", "http://"} {
		if rest, ok := strings.CutPrefix(s, scheme); ok {
			return classifyURL(raw, rest)
		}
	}

	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "/") {
		return Reference{Kind: RefLocalPath, Raw: raw, Path: s}, nil
	}

	first, _, _ := strings.Cut(s, "/")
	if strings.Contains(first, ".") {
		if ref, err := classifyURL(raw, s); err == nil {
			return ref, nil
		}
	}

	return Reference{Kind: RefLocalPath, Raw: raw, Path: s}, nil
}

func classifyURL(raw, s string) (Reference, error) {
	u := strings.Trim(s, "/")
	if _, _, err := SplitRepoURL(u); err != nil {
		return Reference{}, err
	}
	return Reference{Kind: RefURL, Raw: raw, URL: u}, nil
}

// SplitRepoURL splits "host/owner/repo[/sub/path]" into the repository key
// "host/owner/repo" and the sub-path inside it. A ".git" suffix on the
// repository segment is dropped.
func SplitRepoURL(u string) (repo, subPath string, err error) {
	parts := strings.Split(strings.Trim(u, "/"), "/")
	if len(parts) < 3 || !strings.Contains(parts[0], ".") {
		return "", "", fmt.Errorf("%w: %q is not host/owner/repo[/path]", ErrInvalidReference, u)
	}
	for _, p := range parts[:3] {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q has an empty path segment", ErrInvalidReference, u)
		}
	}
	parts[2] = strings.TrimSuffix(parts[2], ".git")
	return strings.Join(parts[:3], "/"), strings.Join(parts[3:], "/"), nil
}

// JoinModulePath joins a repository key and a package path.
func JoinModulePath(repo, pkgPath string) string {
	pkgPath = strings.Trim(pkgPath, "/")
	switch {
	case repo == "":
		return pkgPath
	case pkgPath == "":
		return repo
	default:
		return repo + "/" + pkgPath
	}
}
