package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

const sampleManifest = `
[workspace]
repository = "github.com/acme/boards"
members = ["modules/*"]

[board]
name = "main"
layout = "layout/main"

[dependencies]
"github.com/acme/parts/psu" = "0.2.1"
"github.com/acme/parts/mcu" = { version = "1.0.0", features = ["usb"] }

[assets]
"gitlab.com/kicad/libraries/kicad-symbols" = "9.0.0"

[patch."github.com/other/lib/pkg"]
path = "fork/github.com/other/lib/pkg/0.1.0"
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), domain.ManifestFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_Load(t *testing.T) {
	path := writeManifest(t, sampleManifest)

	m, err := NewStore().Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, m.Path)
	require.NotNil(t, m.Workspace)
	assert.Equal(t, "github.com/acme/boards", m.Workspace.Repository)
	assert.Contains(t, m.Workspace.Extra, "members")

	assert.Equal(t, domain.DependencySpec{Version: "0.2.1"}, m.Dependencies["github.com/acme/parts/psu"])
	mcu := m.Dependencies["github.com/acme/parts/mcu"]
	assert.True(t, mcu.Detailed)
	assert.Equal(t, "1.0.0", mcu.Version)
	assert.Contains(t, mcu.Extra, "features")

	assert.Equal(t, "9.0.0", m.Assets["gitlab.com/kicad/libraries/kicad-symbols"])
	assert.Equal(t, "fork/github.com/other/lib/pkg/0.1.0", m.Patches["github.com/other/lib/pkg"].Path)
	assert.Contains(t, m.Extra, "board")
}

func TestStore_Load_Empty(t *testing.T) {
	m, err := NewStore().Load(writeManifest(t, ""))
	require.NoError(t, err)

	assert.Nil(t, m.Workspace)
	assert.Empty(t, m.Dependencies)
	assert.NotNil(t, m.Dependencies)
	assert.NotNil(t, m.Assets)
	assert.NotNil(t, m.Patches)
}

func TestStore_Load_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid toml", content: "[dependencies\n"},
		{name: "dependency is a number", content: "[dependencies]\n\"github.com/a/b/c\" = 3\n"},
		{name: "dependencies is not a table", content: "dependencies = \"x\"\n"},
		{name: "patch entry is a string", content: "[patch]\n\"github.com/a/b/c\" = \"fork\"\n"},
		{name: "repository is not a string", content: "[workspace]\nrepository = 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, tt.content)

			_, err := NewStore().Load(path)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedManifest)
			var structural *domain.StructuralError
			require.ErrorAs(t, err, &structural)
			assert.Equal(t, path, structural.Path)
		})
	}
}

func TestStore_Load_Missing(t *testing.T) {
	_, err := NewStore().Load(filepath.Join(t.TempDir(), domain.ManifestFileName))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_Save_PreservesUnknownTables(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	store := NewStore()

	m, err := store.Load(path)
	require.NoError(t, err)

	m.Dependencies["github.com/acme/parts/led"] = domain.DependencySpec{Version: "0.1.0"}
	mcu := m.Dependencies["github.com/acme/parts/mcu"]
	mcu.Version = "1.1.0"
	m.Dependencies["github.com/acme/parts/mcu"] = mcu
	require.NoError(t, store.Save(m))

	reloaded, err := store.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.1.0", reloaded.Dependencies["github.com/acme/parts/led"].Version)
	assert.Equal(t, "1.1.0", reloaded.Dependencies["github.com/acme/parts/mcu"].Version)
	assert.Equal(t, []any{"usb"}, reloaded.Dependencies["github.com/acme/parts/mcu"].Extra["features"])
	assert.Equal(t, m.Assets, reloaded.Assets)
	assert.Equal(t, m.Patches, reloaded.Patches)
	assert.Equal(t, "github.com/acme/boards", reloaded.Workspace.Repository)

	board, ok := reloaded.Extra["board"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "layout/main", board["layout"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestStore_Save_NoPath(t *testing.T) {
	err := NewStore().Save(&domain.Manifest{})
	assert.Error(t, err)
}

func TestEncode_OmitsEmptyTables(t *testing.T) {
	data, err := Encode(&domain.Manifest{
		Dependencies: map[string]domain.DependencySpec{},
		Patches:      map[string]domain.PatchSpec{"github.com/x/y/pkg": {Path: "fork/github.com/x/y/pkg/1.0.0"}},
	})
	require.NoError(t, err)

	out := string(data)
	assert.NotContains(t, out, "[dependencies]")
	assert.NotContains(t, out, "[assets]")
	assert.Contains(t, out, `path = "fork/github.com/x/y/pkg/1.0.0"`)
}
