package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/pcb-deps/cmd"
	logadapter "github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/manifest"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

func nopLogger() cmd.Logger { return logadapter.NopLogger{} }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newWorkspace lays out a workspace with one board referencing a package
// pinned in pcb.sum.
func newWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pcb.toml"), "[workspace]\nrepository = \"github.com/acme/ws\"\n")
	writeFile(t, filepath.Join(root, "pcb.sum"), "github.com/acme/parts/res v1.2.0 h1:AAA=\n")
	writeFile(t, filepath.Join(root, "boards", "main", "pcb.toml"), "")
	writeFile(t, filepath.Join(root, "boards", "main", "main.zen"),
		"load(\"@stdlib/units.zen\", \"Ohm\")\nR1 = Module(\"github.com/acme/parts/res/R0402.zen\")\n")
	return root
}

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PCB_CACHE_DIR", t.TempDir())
	t.Setenv("PCB_OFFLINE", "true")
	t.Setenv("PCB_LOCKED", "")
	t.Setenv("PCB_WORKERS", "2")
	t.Setenv("PCB_SOURCE_EXT", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	root := cmd.NewRootCmdWithDeps(newDependencies(nopLogger, &stdout, &bytes.Buffer{}))
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return stdout.String(), err
}

func TestSync_EndToEnd(t *testing.T) {
	setEnv(t)
	root := newWorkspace(t)
	boardManifest := filepath.Join(root, "boards", "main", "pcb.toml")

	out, err := run(t, "sync", root)

	require.NoError(t, err)
	assert.Contains(t, out, "github.com/acme/parts/res")
	m, err := manifest.NewStore().Load(boardManifest)
	require.NoError(t, err)
	assert.Equal(t, domain.DependencySpec{Version: "1.2.0"}, m.Dependencies["github.com/acme/parts/res"])
	assert.NotContains(t, m.Dependencies, "github.com/diodeinc/stdlib", "implicit dependencies are not written")

	before, err := os.ReadFile(boardManifest)
	require.NoError(t, err)
	_, err = run(t, "sync", "--locked", root)
	require.NoError(t, err, "a synced workspace passes --locked")
	after, err := os.ReadFile(boardManifest)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSync_LockedDrift(t *testing.T) {
	setEnv(t)
	root := newWorkspace(t)

	_, err := run(t, "sync", "--locked", root)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockedDrift)
	data, err := os.ReadFile(filepath.Join(root, "boards", "main", "pcb.toml"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestResolve_EndToEnd(t *testing.T) {
	setEnv(t)
	root := newWorkspace(t)

	out, err := run(t, "resolve", "github.com/acme/parts/res/R0402.zen", "--from", root)
	require.NoError(t, err)
	assert.Contains(t, out, "github.com/acme/parts/res")
	assert.Contains(t, out, "1.2.0")

	_, err = run(t, "resolve", "github.com/ghost/repo/x.zen", "--from", root)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnresolved)
}

func TestMembers_EndToEnd(t *testing.T) {
	setEnv(t)
	root := newWorkspace(t)

	out, err := run(t, "members", root)

	require.NoError(t, err)
	assert.Contains(t, out, "github.com/acme/ws/boards/main")
}

func TestConfigLoader(t *testing.T) {
	setEnv(t)
	t.Setenv("PCB_WORKERS", "0")
	deps := newDependencies(nopLogger, &bytes.Buffer{}, &bytes.Buffer{})

	_, err := deps.ConfigLoader()

	require.Error(t, err)
}

func TestLoadLockfile(t *testing.T) {
	dir := t.TempDir()

	idx, err := loadLockfile(filepath.Join(dir, "missing.sum"))
	require.NoError(t, err)
	require.NotNil(t, idx)

	bad := filepath.Join(dir, "pcb.sum")
	writeFile(t, bad, "github.com/acme/parts\n")
	idx, err = loadLockfile(bad)
	require.Error(t, err)
	assert.Nil(t, idx, "a failed load must not return a typed nil")
}

func TestComponent(t *testing.T) {
	nop := nopLogger()
	assert.Equal(t, nop, component(nop, "x"), "non-adapter loggers are returned unchanged")

	adapter := logadapter.NewZapAdapter(logadapter.NopLogger{})
	tagged := component(adapter, "audit")
	assert.IsType(t, &logadapter.ZapAdapter{}, tagged)
	assert.NotSame(t, adapter, tagged)
}
