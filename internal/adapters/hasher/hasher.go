// Package hasher computes the "h1:" integrity hashes recorded in release tag
// annotations.
package hasher

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/mod/sumdb/dirhash"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/ignore"
)

// DirHasher implements domain.ContentHasher with dirhash.Hash1.
//
// A package hash covers every regular file under the package directory by
// its slash-separated relative path, excluding .git, nested package subtrees
// (directories holding their own manifest) and gitignored files.
type DirHasher struct {
	ignoreRoot string

	once    sync.Once
	ignores *ignore.Matcher
	loadErr error
}

// NewDirHasher creates a hasher whose gitignore rules are read from
// ignoreRoot, normally the git or workspace root. An empty ignoreRoot
// disables ignore handling.
func NewDirHasher(ignoreRoot string) *DirHasher {
	return &DirHasher{ignoreRoot: ignoreRoot}
}

func (h *DirHasher) matcher() (*ignore.Matcher, error) {
	h.once.Do(func() {
		if h.ignoreRoot == "" {
			return
		}
		h.ignores, h.loadErr = ignore.Load(h.ignoreRoot)
	})
	return h.ignores, h.loadErr
}

// HashDirectory returns the content hash of the package rooted at dir.
func (h *DirHasher) HashDirectory(dir string) (string, error) {
	files, err := h.PackageFiles(dir)
	if err != nil {
		return "", err
	}
	sum, err := dirhash.Hash1(files, func(name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", dir, err)
	}
	return sum, nil
}

// HashFile returns the hash of a single file, named by its base name.
func (h *DirHasher) HashFile(path string) (string, error) {
	sum, err := dirhash.Hash1([]string{filepath.Base(path)}, func(string) (io.ReadCloser, error) {
		return os.Open(path)
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return sum, nil
}

// PackageFiles lists the files covered by the package hash of dir as
// slash-separated paths relative to dir.
func (h *DirHasher) PackageFiles(dir string) ([]string, error) {
	ignores, err := h.matcher()
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || ignores.Ignored(path, true) {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(path, domain.ManifestFileName)); err == nil {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignores.Ignored(path, false) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list package files in %s: %w", dir, err)
	}
	return files, nil
}

// Ensure DirHasher implements domain.ContentHasher.
var _ domain.ContentHasher = (*DirHasher)(nil)
