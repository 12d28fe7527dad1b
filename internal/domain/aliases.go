package domain

// Alias is an entry of the compiled-in alias table.
type Alias struct {
	// ModulePath is the canonical module path the alias expands to.
	ModulePath string

	// Version is the version pinned for the alias.
	Version string

	// Asset marks plain file trees (no manifest) that are pinned in [assets].
	Asset bool

	// Implicit marks aliases provided by the toolchain; they are never written
	// to manifests.
	Implicit bool
}

var builtinAliases = map[string]Alias{
	"stdlib": {
		ModulePath: "github.com/diodeinc/stdlib",
		Version:    "0.3.2",
		Implicit:   true,
	},
	"kicad-symbols": {
		ModulePath: "gitlab.com/kicad/libraries/kicad-symbols",
		Version:    "9.0.0",
		Asset:      true,
	},
	"kicad-footprints": {
		ModulePath: "gitlab.com/kicad/libraries/kicad-footprints",
		Version:    "9.0.0",
		Asset:      true,
	},
	"kicad-packages3D": {
		ModulePath: "gitlab.com/kicad/libraries/kicad-packages3D",
		Version:    "9.0.0",
		Asset:      true,
	},
}

// LookupAlias returns the alias table entry for name.
func LookupAlias(name string) (Alias, bool) {
	a, ok := builtinAliases[name]
	return a, ok
}
