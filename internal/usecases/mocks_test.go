package usecases

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/lpm"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// mockLogger implements the Logger interface for testing and records warnings.
type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(_ context.Context, _ string, _ map[string]any)  {}
func (m *mockLogger) Debug(_ context.Context, _ string, _ map[string]any) {}
func (m *mockLogger) Warn(_ context.Context, msg string, _ map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(_ context.Context, _ string, _ error, _ map[string]any) {}

// mockLoader implements domain.WorkspaceLoader.
type mockLoader struct {
	ws  *domain.Workspace
	err error
}

func (m *mockLoader) Scan(_ context.Context, _ string) (*domain.Workspace, error) {
	return m.ws, m.err
}

// mockRemotes implements domain.RemoteRepositories.
type mockRemotes struct {
	tags     map[string][]string
	fetchErr error

	// trees maps "repo@tag" to the files Materialize writes, keyed by
	// slash path relative to the materialized sub-path.
	trees map[string]map[string]string

	fetchCalls       atomic.Int32
	materializeCalls atomic.Int32
}

func (m *mockRemotes) FetchTags(_ context.Context, repo string) ([]string, error) {
	m.fetchCalls.Add(1)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.tags[repo], nil
}

func (m *mockRemotes) Materialize(_ context.Context, repo, tag, _ string, dest string) error {
	m.materializeCalls.Add(1)
	files, ok := m.trees[repo+"@"+tag]
	if !ok {
		return domain.ErrTagNotFound
	}
	for rel, content := range files {
		p := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return os.MkdirAll(dest, 0o755)
}

// mockDiscoveryStore implements domain.DiscoveryStore in memory.
type mockDiscoveryStore struct {
	mu        sync.Mutex
	entries   map[string]domain.DiscoveryEntry
	lookupErr error
	upserts   int
}

func newMockDiscoveryStore() *mockDiscoveryStore {
	return &mockDiscoveryStore{entries: make(map[string]domain.DiscoveryEntry)}
}

func (m *mockDiscoveryStore) Lookup(_ context.Context, repo string) (domain.DiscoveryEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return domain.DiscoveryEntry{}, false, m.lookupErr
	}
	e, ok := m.entries[repo]
	return e, ok, nil
}

func (m *mockDiscoveryStore) Upsert(_ context.Context, entry domain.DiscoveryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	m.entries[entry.Repository] = entry
	return nil
}

// mockManifestStore implements domain.ManifestStore in memory. Load hands
// out copies so unsaved edits never leak into the store.
type mockManifestStore struct {
	mu        sync.Mutex
	manifests map[string]*domain.Manifest
	saves     map[string]int
}

func newMockManifestStore(ms ...*domain.Manifest) *mockManifestStore {
	s := &mockManifestStore{
		manifests: make(map[string]*domain.Manifest),
		saves:     make(map[string]int),
	}
	for _, m := range ms {
		s.manifests[m.Path] = cloneManifest(m)
	}
	return s
}

func (m *mockManifestStore) Load(path string) (*domain.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.manifests[path]
	if !ok {
		return nil, &domain.StructuralError{Path: path, Err: os.ErrNotExist}
	}
	return cloneManifest(stored), nil
}

func (m *mockManifestStore) Save(manifest *domain.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[manifest.Path] = cloneManifest(manifest)
	m.saves[manifest.Path]++
	return nil
}

func (m *mockManifestStore) totalSaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.saves {
		n += c
	}
	return n
}

func cloneManifest(m *domain.Manifest) *domain.Manifest {
	out := *m
	if m.Dependencies != nil {
		out.Dependencies = make(map[string]domain.DependencySpec, len(m.Dependencies))
		for k, v := range m.Dependencies {
			out.Dependencies[k] = v
		}
	}
	if m.Assets != nil {
		out.Assets = make(map[string]string, len(m.Assets))
		for k, v := range m.Assets {
			out.Assets[k] = v
		}
	}
	if m.Patches != nil {
		out.Patches = make(map[string]domain.PatchSpec, len(m.Patches))
		for k, v := range m.Patches {
			out.Patches[k] = v
		}
	}
	return &out
}

// mockParser implements domain.ReferenceParser from a fixed table.
type mockParser struct {
	refs map[string][]string
	errs map[string]error
}

func (m *mockParser) ParseReferences(_ context.Context, path string) ([]domain.RawReference, error) {
	if err := m.errs[path]; err != nil {
		return nil, err
	}
	var out []domain.RawReference
	for i, v := range m.refs[path] {
		out = append(out, domain.RawReference{Value: v, Span: domain.SourceSpan{File: path, Line: i + 1, Column: 1}})
	}
	return out, nil
}

// mockLock implements domain.LockIndex over module path -> version.
type mockLock map[string]string

func (m mockLock) FindByPrefix(fileURL string) (string, semver.Version, bool) {
	return lpm.MatchFile(fileURL, func(candidate string) (semver.Version, bool) {
		v, ok := m[candidate]
		if !ok {
			return semver.Version{}, false
		}
		return semver.MustParseVersion(v), true
	})
}

func lockLoader(lock domain.LockIndex, err error) LockfileLoader {
	return func(string) (domain.LockIndex, error) { return lock, err }
}

// mockRepo implements domain.WorkspaceRepository.
type mockRepo struct {
	root        string
	tags        []string
	annotations map[string]string
	uncommitted []string
	closed      bool
}

func (m *mockRepo) Root() string { return m.root }
func (m *mockRepo) OriginRepository(context.Context) (string, error) {
	return "", domain.ErrNoRemoteOrigin
}
func (m *mockRepo) ListTags(context.Context) ([]string, error) { return m.tags, nil }
func (m *mockRepo) TagAnnotation(_ context.Context, tag string) (string, error) {
	body, ok := m.annotations[tag]
	if !ok {
		return "", nil
	}
	return body, nil
}
func (m *mockRepo) UncommittedPaths(context.Context) ([]string, error) { return m.uncommitted, nil }
func (m *mockRepo) Close() error                                       { m.closed = true; return nil }

// mockHasher implements domain.ContentHasher from fixed tables.
type mockHasher struct {
	dirs  map[string]string
	files map[string]string
}

func (m *mockHasher) HashDirectory(dir string) (string, error) {
	h, ok := m.dirs[dir]
	if !ok {
		return "", errors.New("unexpected directory " + dir)
	}
	return h, nil
}

func (m *mockHasher) HashFile(path string) (string, error) {
	h, ok := m.files[path]
	if !ok {
		return "", errors.New("unexpected file " + path)
	}
	return h, nil
}

// member builds a workspace member rooted under root.
func member(root, repo, rel, version string) *domain.MemberPackage {
	dir := filepath.Join(root, filepath.FromSlash(rel))
	m := &domain.MemberPackage{
		ModulePath:   domain.JoinModulePath(repo, rel),
		RelPath:      rel,
		Dir:          dir,
		ManifestPath: filepath.Join(dir, domain.ManifestFileName),
		Manifest:     &domain.Manifest{Path: filepath.Join(dir, domain.ManifestFileName)},
	}
	if version != "" {
		m.Version = semver.MustParseVersion(version)
	}
	return m
}

func newTestWorkspace(root, repo string, members ...*domain.MemberPackage) *domain.Workspace {
	ws := &domain.Workspace{
		Root:             root,
		RootManifestPath: filepath.Join(root, domain.ManifestFileName),
		RootManifest: &domain.Manifest{
			Path:      filepath.Join(root, domain.ManifestFileName),
			Workspace: &domain.WorkspaceSection{Repository: repo},
		},
		Repository: repo,
		Members:    make(map[string]*domain.MemberPackage),
	}
	for _, m := range members {
		ws.Members[m.ModulePath] = m
	}
	return ws
}
