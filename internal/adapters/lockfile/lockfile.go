// Package lockfile reads pcb.sum and answers prefix lookups against it.
//
// Each non-blank, non-comment line has the form
//
//	<module_path> <version> h1:<hash>
//	<module_path> <version>/pcb.toml h1:<hash>
//
// where the second form records the manifest hash of the entry named by the
// first. This package never writes the file.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/lpm"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

const manifestSuffix = "/" + domain.ManifestFileName

// Index is a read-only view of lockfile entries. The zero value is empty.
type Index struct {
	entries []domain.LockEntry

	// latest maps a module path to the highest version recorded for it.
	latest map[string]semver.Version
}

// Load reads the lockfile at path. A missing file yields an empty index.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Index{}, nil
		}
		return nil, fmt.Errorf("failed to open lockfile %s: %w", path, err)
	}
	defer f.Close()

	idx, err := Parse(f)
	if err != nil {
		return nil, &domain.StructuralError{Path: path, Err: err}
	}
	return idx, nil
}

// Parse reads lockfile lines from r, preserving their order.
func Parse(r io.Reader) (*Index, error) {
	idx := &Index{latest: map[string]semver.Version{}}
	// positions keys entries by module path and version string so manifest
	// lines can be attached to the entry they belong to.
	positions := map[string]int{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 || !strings.HasPrefix(fields[2], "h1:") {
			return nil, fmt.Errorf("%w: line %d: expected \"<module> <version> h1:<hash>\"", domain.ErrMalformedLockfile, lineNo)
		}
		modulePath, versionField, hash := fields[0], fields[1], fields[2]

		rawVersion, isManifest := strings.CutSuffix(versionField, manifestSuffix)
		v, err := semver.ParseVersion(rawVersion)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", domain.ErrMalformedLockfile, lineNo, err)
		}

		key := modulePath + "@" + v.String()
		pos, seen := positions[key]
		if !seen {
			pos = len(idx.entries)
			positions[key] = pos
			idx.entries = append(idx.entries, domain.LockEntry{ModulePath: modulePath, Version: v})
		}
		if isManifest {
			idx.entries[pos].ManifestHash = hash
		} else {
			idx.entries[pos].ContentHash = hash
		}

		if cur, ok := idx.latest[modulePath]; !ok || semver.Compare(v, cur) > 0 {
			idx.latest[modulePath] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}
	return idx, nil
}

// FindByPrefix matches fileURL against the recorded module paths by
// longest prefix and returns the module path with its highest recorded version.
func (i *Index) FindByPrefix(fileURL string) (string, semver.Version, bool) {
	if i == nil || len(i.latest) == 0 {
		return "", semver.Version{}, false
	}
	return lpm.MatchFile(fileURL, lpm.MapLookup(i.latest))
}

// Entries returns the entries in file order.
func (i *Index) Entries() []domain.LockEntry {
	if i == nil {
		return nil
	}
	out := make([]domain.LockEntry, len(i.entries))
	copy(out, i.entries)
	return out
}
