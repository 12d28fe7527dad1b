// Package domain defines the core entities, collaborator interfaces and error
// taxonomy of the dependency-resolution core. Apart from the version codec it
// has no dependencies on other packages of this module.
package domain

import (
	"path/filepath"
	"strings"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/lpm"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// File and directory names fixed by convention.
const (
	// ManifestFileName is the per-package manifest.
	ManifestFileName = "pcb.toml"

	// LockfileName is the workspace lockfile.
	LockfileName = "pcb.sum"

	// ForkDirName is the directory under the workspace root holding forks.
	ForkDirName = "fork"
)

// Manifest is the subset of a pcb.toml this core reads and writes.
// Extra carries every other top-level table so a rewrite preserves it.
type Manifest struct {
	// Path is the absolute path of the manifest file.
	Path string

	Workspace    *WorkspaceSection
	Dependencies map[string]DependencySpec
	Assets       map[string]string
	Patches      map[string]PatchSpec

	Extra map[string]any
}

// WorkspaceSection is the [workspace] table of a root manifest.
type WorkspaceSection struct {
	// Repository is the host/owner/repo the workspace is published under.
	Repository string

	// Path is the workspace root relative to the git root. When empty it is
	// derived from the git checkout.
	Path string

	Extra map[string]any
}

// DependencySpec is a [dependencies] entry: either a bare version string or
// a detailed table with a version field.
type DependencySpec struct {
	Version string

	// Detailed is set when the entry was written as a table.
	Detailed bool

	// Extra holds the other fields of a detailed entry.
	Extra map[string]any
}

// PatchSpec is a [patch] entry.
type PatchSpec struct {
	Path   string
	Branch string
	Rev    string
}

// HasDependency reports whether modulePath appears in [dependencies] or [assets].
func (m *Manifest) HasDependency(modulePath string) bool {
	if _, ok := m.Dependencies[modulePath]; ok {
		return true
	}
	_, ok := m.Assets[modulePath]
	return ok
}

// Dir returns the directory holding the manifest.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

// MemberPackage is a package physically present in the workspace, or a fork
// registered through [patch].
type MemberPackage struct {
	// ModulePath is the canonical module path of the package.
	ModulePath string

	// RelPath is the slash-separated package directory relative to the workspace root.
	RelPath string

	// Dir is the absolute package directory.
	Dir string

	ManifestPath string
	Manifest     *Manifest

	// Version is the latest published version; zero when unpublished.
	Version semver.Version

	// Dirty is set by the dirty-state auditor; nil means clean or not audited.
	Dirty *DirtyReason

	// Fork marks members synthesized from a [patch] override.
	Fork bool
}

// Workspace is the set of packages resolvable locally in one session.
type Workspace struct {
	// Root is the absolute workspace root directory.
	Root string

	RootManifestPath string
	RootManifest     *Manifest

	// Repository is the host/owner/repo key of the workspace; empty when unknown.
	Repository string

	// Subpath is the workspace root relative to the git root ("" at the git root).
	Subpath string

	// Members is keyed by module path.
	Members map[string]*MemberPackage

	// SourceFiles are absolute paths of source files found during the scan.
	SourceFiles []string
}

// MatchMember finds the member owning fileURL by longest-prefix match over
// member module paths. Members of a workspace without a repository have
// bare relative module paths and never own a URL.
func (w *Workspace) MatchMember(fileURL string) (*MemberPackage, bool) {
	members := lpm.MapLookup(w.Members)
	_, m, ok := lpm.MatchFile(fileURL, func(candidate string) (*MemberPackage, bool) {
		if !hostQualified(candidate) {
			return nil, false
		}
		return members(candidate)
	})
	return m, ok
}

func hostQualified(modulePath string) bool {
	first, _, _ := strings.Cut(modulePath, "/")
	return strings.Contains(first, ".")
}

// MemberForDir returns the member whose package directory contains dir.
func (w *Workspace) MemberForDir(dir string) (*MemberPackage, bool) {
	byDir := make(map[string]*MemberPackage, len(w.Members))
	for _, m := range w.Members {
		if !m.Fork {
			byDir[m.RelPath] = m
		}
	}
	rel, err := filepath.Rel(w.Root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, false
	}
	if rel == "." {
		rel = ""
	}
	_, m, ok := lpm.MatchDir(filepath.ToSlash(rel), lpm.MapLookup(byDir))
	return m, ok
}

// SortedMembers returns the members ordered by module path.
func (w *Workspace) SortedMembers() []*MemberPackage {
	out := make([]*MemberPackage, 0, len(w.Members))
	for _, m := range w.Members {
		out = append(out, m)
	}
	sortMembers(out)
	return out
}

// LockEntry is one resolved fact recorded in the lockfile.
type LockEntry struct {
	ModulePath   string
	Version      semver.Version
	ContentHash  string
	ManifestHash string
}

// RemotePackageIndex maps package paths in one repository to their latest version.
type RemotePackageIndex struct {
	Repository string
	Packages   map[string]semver.Version
}

// DiscoveryEntry is the persisted form of a RemotePackageIndex.
type DiscoveryEntry struct {
	Repository   string            `json:"repository"`
	Packages     map[string]string `json:"packages"`
	DiscoveredAt int64             `json:"discovered_at"`
}

// ResolutionSource names the tier that produced a Resolution.
type ResolutionSource string

// Resolution tiers in precedence order.
const (
	SourceAlias     ResolutionSource = "alias"
	SourceWorkspace ResolutionSource = "workspace"
	SourceLockfile  ResolutionSource = "lockfile"
	SourceCache     ResolutionSource = "cache"
	SourceRemote    ResolutionSource = "remote"
	SourceLocal     ResolutionSource = "local"
)

// Resolution is the outcome of resolving one reference.
type Resolution struct {
	Reference Reference

	// ModulePath is the package the reference resolved to.
	ModulePath string

	// Version is zero for unpublished workspace members and local paths.
	Version semver.Version

	Source ResolutionSource

	// Asset marks asset dependencies, written to [assets].
	Asset bool

	// Implicit marks toolchain-provided dependencies that are never written.
	Implicit bool

	Resolved bool

	// Diagnostic explains an unresolved outcome.
	Diagnostic string
}

// RawReference is one reference produced by the source parser.
type RawReference struct {
	Value string
	Span  SourceSpan
}

// SourceSpan locates a reference in its source file.
type SourceSpan struct {
	File   string
	Line   int
	Column int
}
