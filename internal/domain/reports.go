package domain

import (
	"fmt"
	"sort"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// DirtyKind is the closed set of reasons a member is dirty.
type DirtyKind int

const (
	// DirtyUnpublished means no matching version tag exists.
	DirtyUnpublished DirtyKind = iota + 1

	// DirtyUncommitted means the working tree has changes under the package.
	DirtyUncommitted

	// DirtyLegacyTag means the tag lacks the content/manifest hash annotation.
	DirtyLegacyTag

	// DirtyModified means current hashes differ from the tagged ones.
	DirtyModified
)

func (k DirtyKind) String() string {
	switch k {
	case DirtyUnpublished:
		return "unpublished"
	case DirtyUncommitted:
		return "uncommitted"
	case DirtyLegacyTag:
		return "legacy-tag"
	case DirtyModified:
		return "modified"
	default:
		return "unknown"
	}
}

// DirtyReason explains why a member is dirty. ContentHash and ManifestHash
// hold the current hashes for DirtyModified.
type DirtyReason struct {
	Kind         DirtyKind
	Tag          string
	ContentHash  string
	ManifestHash string
}

func (r DirtyReason) String() string {
	switch r.Kind {
	case DirtyModified:
		return fmt.Sprintf("modified since %s (content %s, manifest %s)", r.Tag, r.ContentHash, r.ManifestHash)
	case DirtyLegacyTag:
		return fmt.Sprintf("tag %s has no hash annotation", r.Tag)
	case DirtyUncommitted:
		return "uncommitted changes"
	default:
		return r.Kind.String()
	}
}

// ManifestChange is one addition or correction made to a manifest.
type ManifestChange struct {
	ModulePath string

	// Table is "dependencies" or "assets".
	Table string

	OldVersion string
	NewVersion string
}

func (c ManifestChange) String() string {
	if c.OldVersion == "" {
		return fmt.Sprintf("add %s %s = %q", c.Table, c.ModulePath, c.NewVersion)
	}
	return fmt.Sprintf("update %s %s %q -> %q", c.Table, c.ModulePath, c.OldVersion, c.NewVersion)
}

// ManifestScan groups the references of one manifest and their outcomes.
type ManifestScan struct {
	ManifestPath string

	// Member is the workspace member owning the manifest, if any.
	Member *MemberPackage

	Resolved       []Resolution
	UnknownAliases []Reference
	Unresolved     []Resolution
	LocalPaths     int
}

// ManifestReport is the per-manifest outcome of a sync.
type ManifestReport struct {
	ManifestScan

	Added     []ManifestChange
	Corrected []ManifestChange
}

// Changed reports whether the manifest was (or would be) modified.
func (r *ManifestReport) Changed() bool {
	return len(r.Added) > 0 || len(r.Corrected) > 0
}

// SyncInput parameters for a dependency sync.
type SyncInput struct {
	Start   string
	Offline bool
	Locked  bool
}

// SyncReport is the outcome of a dependency sync.
type SyncReport struct {
	WorkspaceRoot string
	Manifests     []ManifestReport
	Locked        bool
}

// ResolveInput parameters for resolving a single reference.
type ResolveInput struct {
	Start     string
	Reference string

	// FromFile is the referring file for local paths; defaults to Start.
	FromFile string

	Offline bool
}

// AuditInput parameters for the dirty-state audit.
type AuditInput struct {
	Start string
}

// AuditReport lists dirty members keyed by module path.
type AuditReport struct {
	Workspace *Workspace
	Dirty     map[string]DirtyReason
}

// ForkState tracks a fork through its state machine.
type ForkState int

const (
	ForkRequested ForkState = iota
	ForkVersionsDiscovered
	ForkVersionSelected
	ForkCachePopulated
	ForkCopied
	ForkPatchRegistered
)

func (s ForkState) String() string {
	return [...]string{
		"requested",
		"versions-discovered",
		"version-selected",
		"cache-populated",
		"copied-to-fork-dir",
		"patch-registered",
	}[s]
}

// ForkRequest parameters for a fork.
type ForkRequest struct {
	Start   string
	URL     string
	Version string
	Force   bool
	Offline bool
}

// ForkResult is the outcome of a fork.
type ForkResult struct {
	ModulePath string
	Version    semver.Version

	// ForkDir is the fork directory relative to the workspace root.
	ForkDir string

	// Replaced is set when --force replaced an existing patch.
	Replaced bool

	// Unchanged is set when the identical patch was already registered.
	Unchanged bool

	State ForkState
}

func sortMembers(ms []*MemberPackage) {
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].ModulePath < ms[j].ModulePath
	})
}
