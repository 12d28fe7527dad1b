// Package workspace discovers the workspace root and its member packages.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/ignore"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// DefaultSourceExt is the extension of source files collected during a scan.
const DefaultSourceExt = ".zen"

// Logger defines the logging interface required by the scanner.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
}

// Scanner implements domain.WorkspaceLoader.
type Scanner struct {
	manifests domain.ManifestStore
	openRepo  domain.RepositoryOpener
	logger    Logger
	sourceExt string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSourceExt sets the extension of collected source files.
func WithSourceExt(ext string) Option {
	return func(s *Scanner) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.sourceExt = ext
	}
}

// NewScanner creates a Scanner. openRepo may be nil, in which case no git
// metadata is used and every member stays unpublished.
func NewScanner(manifests domain.ManifestStore, openRepo domain.RepositoryOpener, log Logger, opts ...Option) *Scanner {
	s := &Scanner{
		manifests: manifests,
		openRepo:  openRepo,
		logger:    log,
		sourceExt: DefaultSourceExt,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindRoot walks up from start. The first ancestor whose manifest declares a
// [workspace] table is the root; without one, the nearest manifest is.
func (s *Scanner) FindRoot(start string) (string, *domain.Manifest, error) {
	dir, err := startDir(start)
	if err != nil {
		return "", nil, err
	}

	var (
		nearestDir string
		nearest    *domain.Manifest
	)
	for {
		candidate := filepath.Join(dir, domain.ManifestFileName)
		if info, statErr := os.Stat(candidate); statErr == nil && info.Mode().IsRegular() {
			m, loadErr := s.manifests.Load(candidate)
			if loadErr != nil {
				return "", nil, loadErr
			}
			if m.Workspace != nil {
				return dir, m, nil
			}
			if nearest == nil {
				nearestDir, nearest = dir, m
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if nearest == nil {
		return "", nil, &domain.StructuralError{Path: start, Err: domain.ErrWorkspaceNotFound}
	}
	return nearestDir, nearest, nil
}

// Scan builds the Workspace containing start: members, forks registered
// through [patch], source files and published versions.
func (s *Scanner) Scan(ctx context.Context, start string) (*domain.Workspace, error) {
	root, rootManifest, err := s.FindRoot(start)
	if err != nil {
		return nil, err
	}

	ws := &domain.Workspace{
		Root:             root,
		RootManifestPath: rootManifest.Path,
		RootManifest:     rootManifest,
		Members:          make(map[string]*domain.MemberPackage),
	}

	var repo domain.WorkspaceRepository
	if s.openRepo != nil {
		repo, err = s.openRepo(root)
		if err != nil {
			s.logger.Debug(ctx, "workspace is not in a git repository; versions will be absent", map[string]any{
				"root":  root,
				"error": err.Error(),
			})
			repo = nil
		} else {
			defer repo.Close()
		}
	}

	ws.Repository = s.repository(ctx, rootManifest, repo)
	ws.Subpath = s.subpath(rootManifest, repo, root)

	if err := s.walk(ctx, ws); err != nil {
		return nil, err
	}
	if err := s.registerPatches(ctx, ws); err != nil {
		return nil, err
	}
	if repo != nil {
		s.enrichVersions(ctx, ws, repo)
	}

	s.logger.Debug(ctx, "scanned workspace", map[string]any{
		"root":         root,
		"repository":   ws.Repository,
		"members":      len(ws.Members),
		"source_files": len(ws.SourceFiles),
	})
	return ws, nil
}

func (s *Scanner) repository(ctx context.Context, rootManifest *domain.Manifest, repo domain.WorkspaceRepository) string {
	if rootManifest.Workspace != nil && rootManifest.Workspace.Repository != "" {
		return strings.Trim(rootManifest.Workspace.Repository, "/")
	}
	if repo == nil {
		return ""
	}
	name, err := repo.OriginRepository(ctx)
	if err != nil {
		s.logger.Debug(ctx, "could not derive repository from origin", map[string]any{"error": err.Error()})
		return ""
	}
	return name
}

func (s *Scanner) subpath(rootManifest *domain.Manifest, repo domain.WorkspaceRepository, root string) string {
	if rootManifest.Workspace != nil && rootManifest.Workspace.Path != "" {
		return strings.Trim(filepath.ToSlash(rootManifest.Workspace.Path), "/")
	}
	if repo == nil {
		return ""
	}
	rel, err := filepath.Rel(realPath(repo.Root()), realPath(root))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) walk(ctx context.Context, ws *domain.Workspace) error {
	matcher, err := ignore.Load(ws.Root)
	if err != nil {
		s.logger.Warn(ctx, "failed to read ignore files; scanning everything", map[string]any{"error": err.Error()})
		matcher = nil
	}
	forkRoot := filepath.Join(ws.Root, domain.ForkDirName)

	return filepath.WalkDir(ws.Root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p == ws.Root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || p == forkRoot || matcher.Ignored(p, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Ignored(p, false) {
			return nil
		}

		switch {
		case d.Name() == domain.ManifestFileName:
			return s.addMember(ws, p)
		case s.sourceExt != "" && filepath.Ext(p) == s.sourceExt:
			ws.SourceFiles = append(ws.SourceFiles, p)
		}
		return nil
	})
}

func (s *Scanner) addMember(ws *domain.Workspace, manifestPath string) error {
	dir := filepath.Dir(manifestPath)
	if dir == ws.Root && ws.RootManifest.Workspace != nil {
		return nil
	}

	m := ws.RootManifest
	if manifestPath != ws.RootManifestPath {
		var err error
		if m, err = s.manifests.Load(manifestPath); err != nil {
			return err
		}
	}

	rel, err := filepath.Rel(ws.Root, dir)
	if err != nil {
		return fmt.Errorf("failed to relativize %s: %w", dir, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = ""
	}

	member := &domain.MemberPackage{
		ModulePath:   domain.JoinModulePath(ws.Repository, rel),
		RelPath:      rel,
		Dir:          dir,
		ManifestPath: manifestPath,
		Manifest:     m,
	}
	ws.Members[member.ModulePath] = member
	return nil
}

// registerPatches adds every [patch] entry whose path holds a manifest as a
// fork member. A fork replaces a regular member with the same module path.
func (s *Scanner) registerPatches(ctx context.Context, ws *domain.Workspace) error {
	patches := ws.RootManifest.Patches
	modulePaths := make([]string, 0, len(patches))
	for modulePath := range patches {
		modulePaths = append(modulePaths, modulePath)
	}
	sort.Strings(modulePaths)

	for _, modulePath := range modulePaths {
		patch := patches[modulePath]
		if patch.Path == "" {
			continue
		}
		dir := patch.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(ws.Root, filepath.FromSlash(dir))
		}
		manifestPath := filepath.Join(dir, domain.ManifestFileName)
		if _, err := os.Stat(manifestPath); err != nil {
			s.logger.Warn(ctx, "patch target has no manifest; ignoring", map[string]any{
				"module": modulePath,
				"path":   patch.Path,
			})
			continue
		}

		m, err := s.manifests.Load(manifestPath)
		if err != nil {
			return err
		}

		rel := filepath.ToSlash(patch.Path)
		if r, relErr := filepath.Rel(ws.Root, dir); relErr == nil {
			rel = filepath.ToSlash(r)
		}
		version, _ := semver.ParseVersion(path.Base(filepath.ToSlash(dir)))

		ws.Members[modulePath] = &domain.MemberPackage{
			ModulePath:   modulePath,
			RelPath:      rel,
			Dir:          dir,
			ManifestPath: manifestPath,
			Manifest:     m,
			Version:      version,
			Fork:         true,
		}
	}
	return nil
}

func (s *Scanner) enrichVersions(ctx context.Context, ws *domain.Workspace, repo domain.WorkspaceRepository) {
	tags, err := repo.ListTags(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to list tags; versions will be absent", map[string]any{"error": err.Error()})
		return
	}
	for _, m := range ws.Members {
		if m.Fork {
			continue
		}
		if v, ok := semver.FindLatestVersion(tags, semver.ComputeTagPrefix(m.RelPath, ws.Subpath)); ok {
			m.Version = v
		}
	}
}

func startDir(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &domain.StructuralError{Path: start, Err: domain.ErrWorkspaceNotFound}
		}
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return filepath.Dir(abs), nil
	}
	return abs, nil
}

func realPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return p
}

// Ensure Scanner implements domain.WorkspaceLoader.
var _ domain.WorkspaceLoader = (*Scanner)(nil)
