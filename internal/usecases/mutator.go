package usecases

import (
	"context"
	"fmt"
	"sort"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// Manifest tables written by the mutator.
const (
	tableDependencies = "dependencies"
	tableAssets       = "assets"
)

// ManifestMutator adds missing dependency entries and keeps the versions of
// workspace-member dependencies current.
type ManifestMutator struct {
	store  domain.ManifestStore
	logger Logger
}

// NewManifestMutator creates a ManifestMutator.
func NewManifestMutator(store domain.ManifestStore, log Logger) *ManifestMutator {
	return &ManifestMutator{store: store, logger: log}
}

// ApplyAndCorrect updates the manifest at manifestPath from resolved and
// members (keyed by module path). The file is rewritten only when something
// changed and dryRun is false, so a second run over an unchanged tree writes
// nothing.
//
// Entries already present in [dependencies] or [assets] are never added
// again; implicit, local and unversioned resolutions are not written.
func (m *ManifestMutator) ApplyAndCorrect(
	ctx context.Context,
	manifestPath string,
	resolved []domain.Resolution,
	members map[string]*domain.MemberPackage,
	dryRun bool,
) (added, corrected []domain.ManifestChange, err error) {
	manifest, err := m.store.Load(manifestPath)
	if err != nil {
		return nil, nil, err
	}

	for _, res := range resolved {
		if !res.Resolved || res.Implicit || res.Source == domain.SourceLocal || manifest.HasDependency(res.ModulePath) {
			continue
		}
		if res.Version.IsZero() {
			m.logger.Debug(ctx, "not adding unpublished dependency", map[string]any{
				"manifest": manifestPath,
				"module":   res.ModulePath,
			})
			continue
		}

		change := domain.ManifestChange{ModulePath: res.ModulePath, NewVersion: res.Version.String()}
		if res.Asset {
			if manifest.Assets == nil {
				manifest.Assets = make(map[string]string)
			}
			manifest.Assets[res.ModulePath] = change.NewVersion
			change.Table = tableAssets
		} else {
			if manifest.Dependencies == nil {
				manifest.Dependencies = make(map[string]domain.DependencySpec)
			}
			manifest.Dependencies[res.ModulePath] = domain.DependencySpec{Version: change.NewVersion}
			change.Table = tableDependencies
		}
		added = append(added, change)
	}

	names := make([]string, 0, len(manifest.Dependencies))
	for name := range manifest.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		member, ok := members[name]
		if !ok || member.Fork || member.Version.IsZero() {
			continue
		}
		spec := manifest.Dependencies[name]
		if spec.Detailed && spec.Version == "" {
			continue
		}
		if current, perr := semver.ParseVersion(spec.Version); perr == nil && current.Equal(member.Version) {
			continue
		}
		corrected = append(corrected, domain.ManifestChange{
			ModulePath: name,
			Table:      tableDependencies,
			OldVersion: spec.Version,
			NewVersion: member.Version.String(),
		})
		spec.Version = member.Version.String()
		manifest.Dependencies[name] = spec
	}

	if len(added) == 0 && len(corrected) == 0 {
		return nil, nil, nil
	}
	if dryRun {
		return added, corrected, nil
	}

	if err := m.store.Save(manifest); err != nil {
		return nil, nil, fmt.Errorf("failed to write %s: %w", manifestPath, err)
	}
	m.logger.Info(ctx, "updated manifest", map[string]any{
		"manifest":  manifestPath,
		"added":     len(added),
		"corrected": len(corrected),
	})
	return added, corrected, nil
}
