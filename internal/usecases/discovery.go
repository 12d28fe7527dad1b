package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/lpm"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// RemoteIndexCache holds one RemotePackageIndex per repository for the
// lifetime of a session. Concurrent requests for the same repository share a
// single build, and failed builds are remembered so an unreachable repository
// is only tried once.
type RemoteIndexCache struct {
	group singleflight.Group

	mu      sync.RWMutex
	indexes map[string]*domain.RemotePackageIndex
	errs    map[string]error
}

// NewRemoteIndexCache returns an empty cache.
func NewRemoteIndexCache() *RemoteIndexCache {
	return &RemoteIndexCache{
		indexes: make(map[string]*domain.RemotePackageIndex),
		errs:    make(map[string]error),
	}
}

// GetOrBuild returns the cached outcome for repo or runs build exactly once.
func (c *RemoteIndexCache) GetOrBuild(
	ctx context.Context,
	repo string,
	build func(ctx context.Context) (*domain.RemotePackageIndex, error),
) (*domain.RemotePackageIndex, error) {
	c.mu.RLock()
	idx, ok := c.indexes[repo]
	err, failed := c.errs[repo]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}
	if failed {
		return nil, err
	}

	v, err, _ := c.group.Do(repo, func() (any, error) {
		c.mu.RLock()
		idx, ok := c.indexes[repo]
		c.mu.RUnlock()
		if ok {
			return idx, nil
		}

		idx, err := build(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.errs[repo] = err
			return nil, err
		}
		c.indexes[repo] = idx
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.RemotePackageIndex), nil
}

// DiscoveryEngine builds package indexes from the tags of remote repositories.
type DiscoveryEngine struct {
	remotes domain.RemoteRepositories
	cache   *RemoteIndexCache
	logger  Logger
}

// NewDiscoveryEngine creates a DiscoveryEngine. The cache is injected so each
// session (and each test) owns its own.
func NewDiscoveryEngine(remotes domain.RemoteRepositories, cache *RemoteIndexCache, log Logger) *DiscoveryEngine {
	if cache == nil {
		cache = NewRemoteIndexCache()
	}
	return &DiscoveryEngine{remotes: remotes, cache: cache, logger: log}
}

// GetOrBuildIndex returns the package index of repo, fetching its tags at
// most once per session.
func (e *DiscoveryEngine) GetOrBuildIndex(ctx context.Context, repo string) (*domain.RemotePackageIndex, error) {
	return e.cache.GetOrBuild(ctx, repo, func(ctx context.Context) (*domain.RemotePackageIndex, error) {
		e.logger.Info(ctx, "discovering remote packages", map[string]any{"repository": repo})

		tags, err := e.remotes.FetchTags(ctx, repo)
		if err != nil {
			return nil, err
		}

		idx := BuildIndex(repo, tags)
		e.logger.Debug(ctx, "built remote package index", map[string]any{
			"repository": repo,
			"tags":       len(tags),
			"packages":   len(idx.Packages),
		})
		return idx, nil
	})
}

// BuildIndex folds version tags into package path -> latest version. Tags
// that do not parse are skipped.
func BuildIndex(repo string, tags []string) *domain.RemotePackageIndex {
	idx := &domain.RemotePackageIndex{
		Repository: repo,
		Packages:   make(map[string]semver.Version),
	}
	for _, tag := range tags {
		pkgPath, v, ok := semver.ParseTag(tag)
		if !ok {
			continue
		}
		if cur, seen := idx.Packages[pkgPath]; !seen || semver.Compare(v, cur) > 0 {
			idx.Packages[pkgPath] = v
		}
	}
	return idx
}

// DiscoveryService is the persistent discovery cache tier: it answers from the
// DiscoveryStore and, on a miss, discovers and records the repository.
type DiscoveryService struct {
	store  domain.DiscoveryStore
	engine *DiscoveryEngine
	logger Logger
	now    func() time.Time
}

// NewDiscoveryService creates a DiscoveryService.
func NewDiscoveryService(store domain.DiscoveryStore, engine *DiscoveryEngine, log Logger) *DiscoveryService {
	return &DiscoveryService{
		store:  store,
		engine: engine,
		logger: log,
		now:    time.Now,
	}
}

// FindRemotePackage resolves fileURL from the persistent cache only.
func (s *DiscoveryService) FindRemotePackage(ctx context.Context, fileURL string) (string, semver.Version, bool, error) {
	repo, sub, err := domain.SplitRepoURL(fileURL)
	if err != nil {
		return "", semver.Version{}, false, err
	}

	entry, ok, err := s.store.Lookup(ctx, repo)
	if err != nil {
		s.logger.Warn(ctx, "discovery cache lookup failed", map[string]any{
			"repository": repo,
			"error":      err.Error(),
		})
		return "", semver.Version{}, false, nil
	}
	if !ok {
		return "", semver.Version{}, false, nil
	}

	pkgPath, v, found := lpm.MatchFile(sub, entryLookup(entry))
	if !found {
		return "", semver.Version{}, false, nil
	}
	return domain.JoinModulePath(repo, pkgPath), v, true, nil
}

// FindOrDiscover is FindRemotePackage falling through to remote discovery.
// A discovered index is persisted whether or not it matches fileURL.
func (s *DiscoveryService) FindOrDiscover(ctx context.Context, fileURL string) (string, semver.Version, bool, error) {
	if modulePath, v, ok, err := s.FindRemotePackage(ctx, fileURL); err != nil || ok {
		return modulePath, v, ok, err
	}

	repo, sub, err := domain.SplitRepoURL(fileURL)
	if err != nil {
		return "", semver.Version{}, false, err
	}

	idx, err := s.engine.GetOrBuildIndex(ctx, repo)
	if err != nil {
		return "", semver.Version{}, false, fmt.Errorf("failed to discover %s: %w", repo, err)
	}

	if len(idx.Packages) > 0 {
		if err := s.store.Upsert(ctx, toEntry(idx, s.now())); err != nil {
			s.logger.Warn(ctx, "failed to persist discovery results", map[string]any{
				"repository": repo,
				"error":      err.Error(),
			})
		}
	}

	pkgPath, v, ok := lpm.MatchFile(sub, lpm.MapLookup(idx.Packages))
	if !ok {
		return "", semver.Version{}, false, nil
	}
	return domain.JoinModulePath(repo, pkgPath), v, true, nil
}

func entryLookup(entry domain.DiscoveryEntry) lpm.Lookup[semver.Version] {
	return func(candidate string) (semver.Version, bool) {
		raw, ok := entry.Packages[candidate]
		if !ok {
			return semver.Version{}, false
		}
		v, err := semver.ParseVersion(raw)
		if err != nil {
			return semver.Version{}, false
		}
		return v, true
	}
}

func toEntry(idx *domain.RemotePackageIndex, now time.Time) domain.DiscoveryEntry {
	pkgs := make(map[string]string, len(idx.Packages))
	for p, v := range idx.Packages {
		pkgs[p] = v.String()
	}
	return domain.DiscoveryEntry{
		Repository:   idx.Repository,
		Packages:     pkgs,
		DiscoveredAt: now.Unix(),
	}
}
