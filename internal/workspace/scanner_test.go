package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/manifest"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, map[string]any) {}
func (nopLogger) Warn(context.Context, string, map[string]any)  {}

type fakeRepo struct {
	root   string
	origin string
	tags   []string
	closed bool
}

func (r *fakeRepo) Root() string { return r.root }
func (r *fakeRepo) OriginRepository(context.Context) (string, error) {
	if r.origin == "" {
		return "", domain.ErrNoRemoteOrigin
	}
	return r.origin, nil
}
func (r *fakeRepo) ListTags(context.Context) ([]string, error)            { return r.tags, nil }
func (r *fakeRepo) TagAnnotation(context.Context, string) (string, error) { return "", nil }
func (r *fakeRepo) UncommittedPaths(context.Context) ([]string, error)    { return nil, nil }
func (r *fakeRepo) Close() error                                          { r.closed = true; return nil }

func opener(repo *fakeRepo) domain.RepositoryOpener {
	return func(string) (domain.WorkspaceRepository, error) { return repo, nil }
}

func noRepo(string) (domain.WorkspaceRepository, error) {
	return nil, domain.ErrRepositoryNotFound
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newWorkspace lays out:
//
//	pcb.toml           [workspace]
//	boards/main/       member + main.zen
//	modules/psu/       member + psu.zen + docs/notes.zen
//	build/             gitignored, holds a manifest
//	.hidden/           holds a manifest
//	fork/...           fork copy, registered through [patch]
func newWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, filepath.Join(root, "pcb.toml"), `[workspace]
repository = "github.com/acme/ws"

[patch."github.com/acme/parts/res"]
path = "fork/github.com/acme/parts/res/1.2.0"
`)
	write(t, filepath.Join(root, ".gitignore"), "build/\n")
	write(t, filepath.Join(root, "boards", "main", "pcb.toml"), "[dependencies]\n")
	write(t, filepath.Join(root, "boards", "main", "main.zen"), "")
	write(t, filepath.Join(root, "modules", "psu", "pcb.toml"), "")
	write(t, filepath.Join(root, "modules", "psu", "psu.zen"), "")
	write(t, filepath.Join(root, "modules", "psu", "docs", "notes.zen"), "")
	write(t, filepath.Join(root, "modules", "psu", "README.md"), "")
	write(t, filepath.Join(root, "build", "pcb.toml"), "")
	write(t, filepath.Join(root, ".hidden", "pcb.toml"), "")
	write(t, filepath.Join(root, "fork", "github.com", "acme", "parts", "res", "1.2.0", "pcb.toml"), "")
	write(t, filepath.Join(root, "fork", "github.com", "acme", "parts", "res", "1.2.0", "R.zen"), "")
	return root
}

func moduleKeys(ws *domain.Workspace) []string {
	var keys []string
	for _, m := range ws.SortedMembers() {
		keys = append(keys, m.ModulePath)
	}
	return keys
}

func TestFindRoot_PrefersWorkspaceManifest(t *testing.T) {
	root := newWorkspace(t)
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	got, m, err := s.FindRoot(filepath.Join(root, "modules", "psu", "psu.zen"))

	require.NoError(t, err)
	assert.Equal(t, root, got)
	require.NotNil(t, m.Workspace)
	assert.Equal(t, "github.com/acme/ws", m.Workspace.Repository)
}

func TestFindRoot_NearestManifestWithoutWorkspace(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "pkg", "pcb.toml"), "")
	write(t, filepath.Join(root, "pkg", "sub", "x.zen"), "")
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	got, _, err := s.FindRoot(filepath.Join(root, "pkg", "sub"))

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pkg"), got)
}

func TestFindRoot_NotFound(t *testing.T) {
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	_, _, err := s.FindRoot(t.TempDir())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
	var structural *domain.StructuralError
	assert.True(t, errors.As(err, &structural))
}

func TestFindRoot_MissingStartPath(t *testing.T) {
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	_, _, err := s.FindRoot(filepath.Join(t.TempDir(), "does-not-exist"))

	assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
}

func TestScan_Members(t *testing.T) {
	root := newWorkspace(t)
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	ws, err := s.Scan(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, root, ws.Root)
	assert.Equal(t, "github.com/acme/ws", ws.Repository)
	assert.Equal(t, []string{
		"github.com/acme/parts/res",
		"github.com/acme/ws/boards/main",
		"github.com/acme/ws/modules/psu",
	}, moduleKeys(ws))

	psu := ws.Members["github.com/acme/ws/modules/psu"]
	assert.Equal(t, "modules/psu", psu.RelPath)
	assert.Equal(t, filepath.Join(root, "modules", "psu"), psu.Dir)
	assert.True(t, psu.Version.IsZero())
	assert.False(t, psu.Fork)

	fork := ws.Members["github.com/acme/parts/res"]
	assert.True(t, fork.Fork)
	assert.Equal(t, "fork/github.com/acme/parts/res/1.2.0", fork.RelPath)
	assert.Equal(t, "1.2.0", fork.Version.String())

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "boards", "main", "main.zen"),
		filepath.Join(root, "modules", "psu", "psu.zen"),
		filepath.Join(root, "modules", "psu", "docs", "notes.zen"),
	}, ws.SourceFiles)
}

func TestScan_RootWithoutWorkspaceIsMember(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "pcb.toml"), "")
	write(t, filepath.Join(root, "top.zen"), "")
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	ws, err := s.Scan(context.Background(), root)

	require.NoError(t, err)
	require.Len(t, ws.Members, 1)
	m := ws.Members[""]
	require.NotNil(t, m)
	assert.Equal(t, "", m.RelPath)
	assert.Same(t, ws.RootManifest, m.Manifest)
}

func TestScan_RepositoryFromOrigin(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "pcb.toml"), "[workspace]\n")
	write(t, filepath.Join(root, "foo", "pcb.toml"), "")
	repo := &fakeRepo{root: root, origin: "github.com/acme/boards"}
	s := NewScanner(manifest.NewStore(), opener(repo), nopLogger{})

	ws, err := s.Scan(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, "github.com/acme/boards", ws.Repository)
	assert.Contains(t, ws.Members, "github.com/acme/boards/foo")
	assert.True(t, repo.closed)
}

func TestScan_EnrichesVersions(t *testing.T) {
	root := newWorkspace(t)
	repo := &fakeRepo{
		root: root,
		tags: []string{
			"modules/psu/v0.1.0",
			"modules/psu/v0.2.0",
			"modules/psu/v0.10.0-rc.1",
			"boards/v1.0.0",
			"v3.0.0",
		},
	}
	s := NewScanner(manifest.NewStore(), opener(repo), nopLogger{})

	ws, err := s.Scan(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, "0.10.0-rc.1", ws.Members["github.com/acme/ws/modules/psu"].Version.String())
	assert.True(t, ws.Members["github.com/acme/ws/boards/main"].Version.IsZero())
	assert.Equal(t, "1.2.0", ws.Members["github.com/acme/parts/res"].Version.String(), "forks keep their path version")
}

func TestScan_WorkspaceSubpath(t *testing.T) {
	gitRoot := t.TempDir()
	root := filepath.Join(gitRoot, "hw")
	write(t, filepath.Join(root, "pcb.toml"), "[workspace]\nrepository = \"github.com/acme/mono\"\n")
	write(t, filepath.Join(root, "psu", "pcb.toml"), "")
	repo := &fakeRepo{root: gitRoot, tags: []string{"psu/v9.0.0", "hw/psu/v1.1.0"}}
	s := NewScanner(manifest.NewStore(), opener(repo), nopLogger{})

	ws, err := s.Scan(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, "hw", ws.Subpath)
	assert.Equal(t, "1.1.0", ws.Members["github.com/acme/mono/psu"].Version.String())
}

func TestScan_MalformedManifest(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "pcb.toml"), "[workspace]\n")
	write(t, filepath.Join(root, "bad", "pcb.toml"), "[dependencies\n")
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	_, err := s.Scan(context.Background(), root)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedManifest)
}

func TestScan_PatchWithoutManifestIgnored(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "pcb.toml"), `[workspace]

[patch."github.com/acme/parts/cap"]
path = "vendor/cap"
`)
	write(t, filepath.Join(root, "vendor", "cap", "C.zen"), "")
	s := NewScanner(manifest.NewStore(), noRepo, nopLogger{})

	ws, err := s.Scan(context.Background(), root)

	require.NoError(t, err)
	assert.NotContains(t, ws.Members, "github.com/acme/parts/cap")
}

func TestScan_CustomSourceExt(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "pcb.toml"), "")
	write(t, filepath.Join(root, "a.star"), "")
	write(t, filepath.Join(root, "b.zen"), "")
	s := NewScanner(manifest.NewStore(), nil, nopLogger{}, WithSourceExt("star"))

	ws, err := s.Scan(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.star")}, ws.SourceFiles)
}
