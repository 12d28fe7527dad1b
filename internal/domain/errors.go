package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Structural errors abort the whole operation.
var (
	// ErrWorkspaceNotFound indicates no manifest exists at or above the start path.
	ErrWorkspaceNotFound = errors.New("no workspace root found: no " + ManifestFileName + " at or above the given path")

	// ErrMalformedManifest indicates a manifest could not be decoded.
	ErrMalformedManifest = errors.New("malformed manifest")

	// ErrMalformedLockfile indicates a lockfile line could not be parsed.
	ErrMalformedLockfile = errors.New("malformed lockfile")
)

// Git repository errors.
var (
	// ErrRepositoryNotFound indicates the specified path is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrNoRemoteOrigin indicates no 'origin' remote is configured in the repository.
	ErrNoRemoteOrigin = errors.New("no 'origin' remote configured; cannot determine repository name")

	// ErrInvalidRemoteURL indicates the remote URL could not be parsed to extract host/owner/repo.
	ErrInvalidRemoteURL = errors.New("could not parse repository name from remote URL")

	// ErrTagNotFound indicates a tag is missing from a repository.
	ErrTagNotFound = errors.New("tag not found")
)

// Resolution errors. These never abort a batch scan.
var (
	// ErrInvalidReference indicates a reference string cannot be classified.
	ErrInvalidReference = errors.New("invalid module reference")

	// ErrUnresolved indicates a reference could not be resolved through any tier.
	ErrUnresolved = errors.New("unresolved module reference")

	// ErrDiscoveryUnavailable indicates a git or network failure during remote discovery.
	ErrDiscoveryUnavailable = errors.New("remote discovery unavailable")
)

// Fork/patch errors, fatal to a single fork operation.
var (
	// ErrPatchConflict indicates a different patch is already registered for the module.
	ErrPatchConflict = errors.New("a different patch is already registered for this module; use --force to replace it")

	// ErrForkAsset indicates the forked tree has no manifest and is an asset, not a package.
	ErrForkAsset = errors.New("target has no " + ManifestFileName + ": assets are plain file trees pinned in [assets] and cannot be forked as packages")

	// ErrNoVersions indicates no version tags exist for the path or any of its parents.
	ErrNoVersions = errors.New("no published versions found")

	// ErrVersionNotFound indicates the requested version is not published.
	ErrVersionNotFound = errors.New("requested version not found")
)

// ErrLockedDrift indicates locked mode would have modified a manifest.
var ErrLockedDrift = errors.New("dependencies are out of date and --locked was given")

// StructuralError ties a structural failure to the file that caused it.
type StructuralError struct {
	Path string
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// EntriesError reports a sentinel condition together with the entries that
// triggered it, one per line.
type EntriesError struct {
	Err     error
	Entries []string
}

func (e *EntriesError) Error() string {
	if len(e.Entries) == 0 {
		return e.Err.Error()
	}
	return e.Err.Error() + ":\n  " + strings.Join(e.Entries, "\n  ")
}

func (e *EntriesError) Unwrap() error {
	return e.Err
}

// ResolutionMiss reports a reference no tier could resolve. Err wraps
// ErrUnresolved, and the transport failure when discovery was attempted.
type ResolutionMiss struct {
	Reference  string
	Repository string
	Err        error
}

func (e *ResolutionMiss) Error() string {
	if e.Repository != "" {
		return fmt.Sprintf("%s (repository %s): %v", e.Reference, e.Repository, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Reference, e.Err)
}

func (e *ResolutionMiss) Unwrap() error {
	return e.Err
}
