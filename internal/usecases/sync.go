package usecases

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

// SyncService brings every manifest of a workspace in line with the
// references its sources make.
type SyncService struct {
	loader       domain.WorkspaceLoader
	loadLockfile LockfileLoader
	scanner      *ImportScanner
	mutator      *ManifestMutator
	logger       Logger
}

// NewSyncService creates a SyncService.
func NewSyncService(
	loader domain.WorkspaceLoader,
	loadLockfile LockfileLoader,
	scanner *ImportScanner,
	mutator *ManifestMutator,
	log Logger,
) *SyncService {
	return &SyncService{
		loader:       loader,
		loadLockfile: loadLockfile,
		scanner:      scanner,
		mutator:      mutator,
		logger:       log,
	}
}

// Sync scans, resolves and updates manifests. In locked mode nothing is
// written; any change that would have been made fails with
// domain.ErrLockedDrift, and any unresolved reference with
// domain.ErrUnresolved. The report is returned alongside those errors.
func (s *SyncService) Sync(ctx context.Context, input domain.SyncInput) (*domain.SyncReport, error) {
	ws, err := s.loader.Scan(ctx, input.Start)
	if err != nil {
		return nil, err
	}

	lock, err := s.loadLockfile(filepath.Join(ws.Root, domain.LockfileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load lockfile: %w", err)
	}

	s.logger.Info(ctx, "syncing dependencies", map[string]any{
		"root":    ws.Root,
		"members": len(ws.Members),
		"files":   len(ws.SourceFiles),
		"offline": input.Offline,
		"locked":  input.Locked,
	})

	scans, err := s.scanner.Scan(ctx, ws, lock, input.Offline)
	if err != nil {
		return nil, err
	}

	report := &domain.SyncReport{WorkspaceRoot: ws.Root, Locked: input.Locked}
	var drift, misses []string
	for _, scan := range scans {
		added, corrected, err := s.mutator.ApplyAndCorrect(ctx, scan.ManifestPath, scan.Resolved, ws.Members, input.Locked)
		if err != nil {
			return nil, err
		}
		mr := domain.ManifestReport{ManifestScan: scan, Added: added, Corrected: corrected}
		report.Manifests = append(report.Manifests, mr)

		rel := relPath(ws.Root, scan.ManifestPath)
		for _, c := range append(append([]domain.ManifestChange{}, added...), corrected...) {
			drift = append(drift, rel+": "+c.String())
		}
		for _, ref := range scan.UnknownAliases {
			misses = append(misses, rel+": unknown alias "+ref.Raw)
		}
		for _, res := range scan.Unresolved {
			misses = append(misses, rel+": "+res.Reference.Raw)
		}
	}

	if !input.Locked {
		return report, nil
	}
	if len(drift) > 0 {
		return report, &domain.EntriesError{Err: domain.ErrLockedDrift, Entries: drift}
	}
	if len(misses) > 0 {
		return report, &domain.EntriesError{Err: domain.ErrUnresolved, Entries: misses}
	}
	return report, nil
}

func relPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

// Ensure SyncService implements domain.Syncer.
var _ domain.Syncer = (*SyncService)(nil)
