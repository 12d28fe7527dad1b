package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// CopyTree copies a directory tree, creating dst.
type CopyTree func(src, dst string) error

// ForkManager pins a remote package to a working copy under the workspace
// fork directory and registers it in [patch].
type ForkManager struct {
	loader      domain.WorkspaceLoader
	remotes     domain.RemoteRepositories
	manifests   domain.ManifestStore
	copyTree    CopyTree
	packagesDir string
	logger      Logger
}

// NewForkManager creates a ForkManager. Materialized versions are cached
// under packagesDir/<module>/<version>.
func NewForkManager(
	loader domain.WorkspaceLoader,
	remotes domain.RemoteRepositories,
	manifests domain.ManifestStore,
	copyTree CopyTree,
	packagesDir string,
	log Logger,
) *ForkManager {
	return &ForkManager{
		loader:      loader,
		remotes:     remotes,
		manifests:   manifests,
		copyTree:    copyTree,
		packagesDir: packagesDir,
		logger:      log,
	}
}

// Fork runs one fork to completion. On failure the returned result (when
// non-nil) holds the last state reached.
func (f *ForkManager) Fork(ctx context.Context, req domain.ForkRequest) (*domain.ForkResult, error) {
	result := &domain.ForkResult{State: domain.ForkRequested}

	ref, err := domain.ClassifyReference(req.URL)
	if err != nil {
		return result, err
	}
	if ref.Kind != domain.RefURL {
		return result, fmt.Errorf("%w: %q is not a host/owner/repo[/path] URL", domain.ErrInvalidReference, req.URL)
	}
	repo, sub, err := domain.SplitRepoURL(ref.URL)
	if err != nil {
		return result, err
	}

	ws, err := f.loader.Scan(ctx, req.Start)
	if err != nil {
		return result, err
	}

	if req.Offline {
		return result, fmt.Errorf("%w: fork needs to list remote tags (offline)", domain.ErrDiscoveryUnavailable)
	}
	tags, err := f.remotes.FetchTags(ctx, repo)
	if err != nil {
		return result, fmt.Errorf("failed to list versions of %s: %w", repo, err)
	}

	pkgPath, versions := versionsFor(tags, sub)
	if len(versions) == 0 {
		return result, fmt.Errorf("%w: %s", domain.ErrNoVersions, ref.URL)
	}
	result.State = domain.ForkVersionsDiscovered
	result.ModulePath = domain.JoinModulePath(repo, pkgPath)

	version, err := selectVersion(versions, req.Version)
	if err != nil {
		return result, err
	}
	result.Version = version
	result.State = domain.ForkVersionSelected

	f.logger.Info(ctx, "forking package", map[string]any{
		"module":  result.ModulePath,
		"version": version.String(),
	})

	forkRel := path.Join(domain.ForkDirName, result.ModulePath, version.String())
	result.ForkDir = forkRel
	forkDir := filepath.Join(ws.Root, filepath.FromSlash(forkRel))

	root, err := f.manifests.Load(ws.RootManifestPath)
	if err != nil {
		return result, err
	}
	existing, hasPatch := root.Patches[result.ModulePath]
	want := domain.PatchSpec{Path: forkRel}
	switch {
	case hasPatch && existing == want && !req.Force && dirHasManifest(forkDir):
		result.Unchanged = true
		result.State = domain.ForkPatchRegistered
		return result, nil
	case hasPatch && existing != want && !req.Force:
		return result, fmt.Errorf("%w: %s is patched to %s", domain.ErrPatchConflict, result.ModulePath, describePatch(existing))
	}
	result.Replaced = hasPatch && existing != want

	cacheDir := filepath.Join(f.packagesDir, filepath.FromSlash(result.ModulePath), version.String())
	if _, err := os.Stat(cacheDir); errors.Is(err, os.ErrNotExist) {
		tag := semver.BuildTagName(semver.ComputeTagPrefix(pkgPath, ""), version)
		if err := f.remotes.Materialize(ctx, repo, tag, pkgPath, cacheDir); err != nil {
			return result, fmt.Errorf("failed to fetch %s at %s: %w", result.ModulePath, tag, err)
		}
	} else if err != nil {
		return result, fmt.Errorf("failed to inspect package cache: %w", err)
	}
	result.State = domain.ForkCachePopulated

	if req.Force {
		if err := os.RemoveAll(forkDir); err != nil {
			return result, fmt.Errorf("failed to clear %s: %w", forkDir, err)
		}
	}
	if !dirHasManifest(forkDir) {
		if err := f.copyTree(cacheDir, forkDir); err != nil {
			return result, fmt.Errorf("failed to copy %s to %s: %w", cacheDir, forkDir, err)
		}
	}
	result.State = domain.ForkCopied

	if !dirHasManifest(forkDir) {
		if err := os.RemoveAll(forkDir); err != nil {
			f.logger.Warn(ctx, "failed to remove rejected fork copy", map[string]any{
				"path":  forkDir,
				"error": err.Error(),
			})
		}
		return result, fmt.Errorf("%w: %s", domain.ErrForkAsset, result.ModulePath)
	}

	if root.Patches == nil {
		root.Patches = make(map[string]domain.PatchSpec)
	}
	root.Patches[result.ModulePath] = want
	if err := f.manifests.Save(root); err != nil {
		return result, fmt.Errorf("failed to register patch: %w", err)
	}
	result.State = domain.ForkPatchRegistered

	if result.Replaced {
		f.removeStaleFork(ctx, ws.Root, existing)
	}
	return result, nil
}

// removeStaleFork deletes the copy a replaced patch pointed at. Only
// directories under fork/ are touched; hand-written patches to other
// locations are left alone.
func (f *ForkManager) removeStaleFork(ctx context.Context, wsRoot string, old domain.PatchSpec) {
	rel := path.Clean(filepath.ToSlash(old.Path))
	if old.Path == "" || path.IsAbs(rel) || !strings.HasPrefix(rel, domain.ForkDirName+"/") {
		return
	}
	dir := filepath.Join(wsRoot, filepath.FromSlash(rel))
	if err := os.RemoveAll(dir); err != nil {
		f.logger.Warn(ctx, "failed to remove replaced fork copy", map[string]any{
			"path":  dir,
			"error": err.Error(),
		})
	}
}

// versionsFor walks from sub up to the repository root and returns the
// first package path that has version tags, with its versions newest first.
func versionsFor(tags []string, sub string) (string, []semver.Version) {
	pkgPath := sub
	for {
		if versions := semver.VersionsWithPrefix(tags, semver.ComputeTagPrefix(pkgPath, "")); len(versions) > 0 {
			return pkgPath, versions
		}
		if pkgPath == "" {
			return "", nil
		}
		pkgPath = path.Dir(pkgPath)
		if pkgPath == "." {
			pkgPath = ""
		}
	}
}

func selectVersion(versions []semver.Version, requested string) (semver.Version, error) {
	if requested == "" {
		return versions[0], nil
	}
	want, err := semver.ParseVersion(requested)
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: %w", domain.ErrVersionNotFound, err)
	}
	available := make([]string, 0, len(versions))
	for _, v := range versions {
		if v.Equal(want) {
			return v, nil
		}
		available = append(available, v.Tag())
	}
	return semver.Version{}, &domain.EntriesError{
		Err:     fmt.Errorf("%w: %s; available", domain.ErrVersionNotFound, want.Tag()),
		Entries: available,
	}
}

func describePatch(p domain.PatchSpec) string {
	switch {
	case p.Path != "":
		return p.Path
	case p.Branch != "":
		return "branch " + p.Branch
	case p.Rev != "":
		return "rev " + p.Rev
	default:
		return "an empty patch"
	}
}

func dirHasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, domain.ManifestFileName))
	return err == nil && info.Mode().IsRegular()
}

// Ensure ForkManager implements domain.Forker.
var _ domain.Forker = (*ForkManager)(nil)
