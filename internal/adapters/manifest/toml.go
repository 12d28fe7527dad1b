// Package manifest reads and writes pcb.toml manifests.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/fsutil"
)

// Top-level tables this package interprets. Everything else is kept verbatim.
const (
	tableWorkspace    = "workspace"
	tableDependencies = "dependencies"
	tableAssets       = "assets"
	tablePatch        = "patch"
)

// Store implements domain.ManifestStore over TOML files.
type Store struct{}

// NewStore creates a new Store.
func NewStore() *Store {
	return &Store{}
}

// Load decodes the manifest at path.
// Decode failures are returned as *domain.StructuralError wrapping
// domain.ErrMalformedManifest.
func (s *Store) Load(path string) (*domain.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, &domain.StructuralError{Path: path, Err: err}
	}
	m.Path = path
	return m, nil
}

// Decode parses manifest bytes into a domain.Manifest. The returned error
// wraps domain.ErrMalformedManifest.
func Decode(data []byte) (*domain.Manifest, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedManifest, err)
	}

	m := &domain.Manifest{
		Dependencies: map[string]domain.DependencySpec{},
		Assets:       map[string]string{},
		Patches:      map[string]domain.PatchSpec{},
		Extra:        map[string]any{},
	}

	for key, value := range raw {
		var err error
		switch key {
		case tableWorkspace:
			m.Workspace, err = decodeWorkspace(value)
		case tableDependencies:
			m.Dependencies, err = decodeDependencies(value)
		case tableAssets:
			m.Assets, err = decodeAssets(value)
		case tablePatch:
			m.Patches, err = decodePatches(value)
		default:
			m.Extra[key] = value
		}
		if err != nil {
			return nil, fmt.Errorf("%w: [%s]: %w", domain.ErrMalformedManifest, key, err)
		}
	}
	return m, nil
}

func asTable(value any) (map[string]any, error) {
	t, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a table, got %T", value)
	}
	return t, nil
}

func decodeWorkspace(value any) (*domain.WorkspaceSection, error) {
	t, err := asTable(value)
	if err != nil {
		return nil, err
	}
	ws := &domain.WorkspaceSection{Extra: map[string]any{}}
	for k, v := range t {
		switch k {
		case "repository":
			if ws.Repository, err = asString(k, v); err != nil {
				return nil, err
			}
		case "path":
			if ws.Path, err = asString(k, v); err != nil {
				return nil, err
			}
		default:
			ws.Extra[k] = v
		}
	}
	return ws, nil
}

func decodeDependencies(value any) (map[string]domain.DependencySpec, error) {
	t, err := asTable(value)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]domain.DependencySpec, len(t))
	for name, v := range t {
		switch spec := v.(type) {
		case string:
			deps[name] = domain.DependencySpec{Version: spec}
		case map[string]any:
			d := domain.DependencySpec{Detailed: true, Extra: map[string]any{}}
			for k, fv := range spec {
				if k == "version" {
					if d.Version, err = asString(name+".version", fv); err != nil {
						return nil, err
					}
					continue
				}
				d.Extra[k] = fv
			}
			deps[name] = d
		default:
			return nil, fmt.Errorf("%s: expected a version string or table, got %T", name, v)
		}
	}
	return deps, nil
}

func decodeAssets(value any) (map[string]string, error) {
	t, err := asTable(value)
	if err != nil {
		return nil, err
	}
	assets := make(map[string]string, len(t))
	for name, v := range t {
		if assets[name], err = asString(name, v); err != nil {
			return nil, err
		}
	}
	return assets, nil
}

func decodePatches(value any) (map[string]domain.PatchSpec, error) {
	t, err := asTable(value)
	if err != nil {
		return nil, err
	}
	patches := make(map[string]domain.PatchSpec, len(t))
	for name, v := range t {
		pt, err := asTable(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		var p domain.PatchSpec
		for k, fv := range pt {
			var s string
			if s, err = asString(name+"."+k, fv); err != nil {
				return nil, err
			}
			switch k {
			case "path":
				p.Path = s
			case "branch":
				p.Branch = s
			case "rev":
				p.Rev = s
			}
		}
		patches[name] = p
	}
	return patches, nil
}

func asString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %T", field, v)
	}
	return s, nil
}

// Encode renders m as TOML. Tables this package does not interpret are
// written back from Extra; empty dependency, asset and patch tables are omitted.
func Encode(m *domain.Manifest) ([]byte, error) {
	doc := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		doc[k] = v
	}

	if m.Workspace != nil {
		ws := make(map[string]any, len(m.Workspace.Extra)+2)
		for k, v := range m.Workspace.Extra {
			ws[k] = v
		}
		if m.Workspace.Repository != "" {
			ws["repository"] = m.Workspace.Repository
		}
		if m.Workspace.Path != "" {
			ws["path"] = m.Workspace.Path
		}
		doc[tableWorkspace] = ws
	}

	if len(m.Dependencies) > 0 {
		deps := make(map[string]any, len(m.Dependencies))
		for name, d := range m.Dependencies {
			if !d.Detailed {
				deps[name] = d.Version
				continue
			}
			t := make(map[string]any, len(d.Extra)+1)
			for k, v := range d.Extra {
				t[k] = v
			}
			if d.Version != "" {
				t["version"] = d.Version
			}
			deps[name] = t
		}
		doc[tableDependencies] = deps
	}

	if len(m.Assets) > 0 {
		assets := make(map[string]any, len(m.Assets))
		for name, v := range m.Assets {
			assets[name] = v
		}
		doc[tableAssets] = assets
	}

	if len(m.Patches) > 0 {
		patches := make(map[string]any, len(m.Patches))
		for name, p := range m.Patches {
			t := map[string]any{}
			if p.Path != "" {
				t["path"] = p.Path
			}
			if p.Branch != "" {
				t["branch"] = p.Branch
			}
			if p.Rev != "" {
				t["rev"] = p.Rev
			}
			patches[name] = t
		}
		doc[tablePatch] = patches
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes m to m.Path through a temporary file in the same directory
// followed by a rename, so readers never observe a partial manifest.
func (s *Store) Save(m *domain.Manifest) error {
	if m.Path == "" {
		return errors.New("manifest has no path")
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(m.Path, data, 0o644)
}
