// Package store provides the persistent discovery cache.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/filelock"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/fsutil"
)

// File layout under the cache directory.
const (
	discoveryDir  = "discovery"
	indexFileName = "index.json"
	lockSuffix    = ".lock"

	// formatVersion is bumped when the on-disk layout changes; files with a
	// different version are treated as empty.
	formatVersion = 1
)

// Logger defines the logging interface for the store.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
}

// indexFile is the on-disk document.
type indexFile struct {
	Version      int                              `json:"version"`
	Repositories map[string]domain.DiscoveryEntry `json:"repositories"`
}

// FileStore implements domain.DiscoveryStore as a single JSON document.
// Writers serialize on an flock next to the file and replace it atomically,
// so concurrent readers never observe a partial document. A missing or
// corrupt file reads as empty.
type FileStore struct {
	path   string
	logger Logger

	mu      sync.Mutex
	entries map[string]domain.DiscoveryEntry
}

// NewFileStore creates a FileStore rooted at cacheDir.
func NewFileStore(cacheDir string, log Logger) *FileStore {
	return &FileStore{
		path:   filepath.Join(cacheDir, discoveryDir, indexFileName),
		logger: log,
	}
}

// Lookup returns the stored entry for repo. The file is read once and then
// served from memory for the rest of the session.
func (s *FileStore) Lookup(ctx context.Context, repo string) (domain.DiscoveryEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = s.read(ctx)
	}
	entry, ok := s.entries[repo]
	return entry, ok, nil
}

// Upsert records entry under an exclusive lock: the current file is re-read
// so entries written by other processes are kept, then replaced.
func (s *FileStore) Upsert(ctx context.Context, entry domain.DiscoveryEntry) error {
	if entry.Repository == "" {
		return errors.New("discovery entry has no repository")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := filelock.Acquire(s.path + lockSuffix)
	if err != nil {
		return fmt.Errorf("failed to lock discovery cache: %w", err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			s.logger.Warn(ctx, "failed to release discovery cache lock", map[string]any{
				"path":  s.path,
				"error": releaseErr.Error(),
			})
		}
	}()

	current := s.read(ctx)
	current[entry.Repository] = entry

	data, err := json.MarshalIndent(indexFile{Version: formatVersion, Repositories: current}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode discovery cache: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write discovery cache: %w", err)
	}
	s.entries = current

	s.logger.Debug(ctx, "persisted discovery entry", map[string]any{
		"repository": entry.Repository,
		"packages":   len(entry.Packages),
	})
	return nil
}

// read loads the index file, degrading to an empty map on any problem.
func (s *FileStore) read(ctx context.Context) map[string]domain.DiscoveryEntry {
	empty := map[string]domain.DiscoveryEntry{}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return empty
	}
	if err != nil {
		s.logger.Warn(ctx, "discovery cache unreadable; treating as empty", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
		return empty
	}

	var doc indexFile
	if err := json.Unmarshal(data, &doc); err != nil || doc.Version != formatVersion {
		fields := map[string]any{"path": s.path, "version": doc.Version}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Warn(ctx, "discovery cache corrupt; treating as empty", fields)
		return empty
	}
	if doc.Repositories == nil {
		return empty
	}
	return doc.Repositories
}

// Ensure FileStore implements domain.DiscoveryStore.
var _ domain.DiscoveryStore = (*FileStore)(nil)
