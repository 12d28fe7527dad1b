package domain

import (
	"context"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// ManifestStore reads and writes manifests.
type ManifestStore interface {
	// Load decodes the manifest at path. Decode failures wrap ErrMalformedManifest.
	Load(path string) (*Manifest, error)

	// Save replaces the manifest file atomically.
	Save(m *Manifest) error
}

// WorkspaceRepository is the git repository holding the workspace.
type WorkspaceRepository interface {
	// Root returns the absolute root of the git working tree.
	Root() string

	// OriginRepository returns host/owner/repo derived from the origin remote.
	OriginRepository(ctx context.Context) (string, error)

	// ListTags returns every tag name in the repository.
	ListTags(ctx context.Context) ([]string, error)

	// TagAnnotation returns the message of an annotated tag, or "" for a
	// lightweight tag.
	TagAnnotation(ctx context.Context, tag string) (string, error)

	// UncommittedPaths returns slash-separated paths, relative to Root, that
	// differ from HEAD in the index or working tree, including untracked files.
	UncommittedPaths(ctx context.Context) ([]string, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryOpener opens the git repository containing path.
// It returns an error wrapping ErrRepositoryNotFound when there is none.
type RepositoryOpener func(path string) (WorkspaceRepository, error)

// RemoteRepositories gives access to remote repositories through local mirrors.
type RemoteRepositories interface {
	// FetchTags ensures an up-to-date local mirror of repo and lists its tags.
	// Failures to reach the remote wrap ErrDiscoveryUnavailable.
	FetchTags(ctx context.Context, repo string) ([]string, error)

	// Materialize writes the tree of tag, restricted to subPath, into dest.
	Materialize(ctx context.Context, repo, tag, subPath, dest string) error
}

// DiscoveryStore is the persistent discovery cache.
type DiscoveryStore interface {
	// Lookup returns the stored entry for repo.
	Lookup(ctx context.Context, repo string) (DiscoveryEntry, bool, error)

	// Upsert records entry, replacing any previous entry for the same repository.
	Upsert(ctx context.Context, entry DiscoveryEntry) error
}

// ContentHasher computes the integrity hashes recorded in tag annotations.
// HashDirectory must be deterministic, exclude nested-package subtrees and
// ignored files, and depend on both file contents and relative paths.
type ContentHasher interface {
	HashDirectory(dir string) (string, error)
	HashFile(path string) (string, error)
}

// ReferenceParser extracts raw module references from a source file.
type ReferenceParser interface {
	ParseReferences(ctx context.Context, path string) ([]RawReference, error)
}

// LockIndex answers prefix lookups against lockfile entries.
type LockIndex interface {
	FindByPrefix(fileURL string) (string, semver.Version, bool)
}

// WorkspaceLoader scans the workspace containing a start path.
type WorkspaceLoader interface {
	Scan(ctx context.Context, start string) (*Workspace, error)
}

// Syncer resolves every reference in a workspace and updates manifests.
type Syncer interface {
	Sync(ctx context.Context, input SyncInput) (*SyncReport, error)
}

// ReferenceResolver resolves one reference.
type ReferenceResolver interface {
	ResolveOne(ctx context.Context, input ResolveInput) (*Resolution, error)
}

// Auditor reports dirty workspace members.
type Auditor interface {
	Audit(ctx context.Context, input AuditInput) (*AuditReport, error)
}

// Forker pins a remote package to a local working copy.
type Forker interface {
	Fork(ctx context.Context, req ForkRequest) (*ForkResult, error)
}

// OutputWriter renders command results.
type OutputWriter interface {
	WriteSyncReport(report *SyncReport) error
	WriteResolution(res *Resolution) error
	WriteAuditReport(report *AuditReport) error
	WriteForkResult(res *ForkResult) error
	WriteMembers(ws *Workspace) error
}
