package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/lpm"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// HasherFactory returns the content hasher for a repository rooted at root.
type HasherFactory func(root string) domain.ContentHasher

// DirtyAuditor classifies workspace members against their latest tag.
type DirtyAuditor struct {
	loader    domain.WorkspaceLoader
	openRepo  domain.RepositoryOpener
	newHasher HasherFactory
	workers   int
	logger    Logger
}

// NewDirtyAuditor creates a DirtyAuditor auditing at most workers members
// concurrently.
func NewDirtyAuditor(
	loader domain.WorkspaceLoader,
	openRepo domain.RepositoryOpener,
	newHasher HasherFactory,
	workers int,
	log Logger,
) *DirtyAuditor {
	if workers < 1 {
		workers = 1
	}
	return &DirtyAuditor{
		loader:    loader,
		openRepo:  openRepo,
		newHasher: newHasher,
		workers:   workers,
		logger:    log,
	}
}

// Audit scans the workspace containing input.Start and audits every member.
func (a *DirtyAuditor) Audit(ctx context.Context, input domain.AuditInput) (*domain.AuditReport, error) {
	ws, err := a.loader.Scan(ctx, input.Start)
	if err != nil {
		return nil, err
	}

	repo, err := a.openRepo(ws.Root)
	if err != nil {
		return nil, fmt.Errorf("audit needs a git repository: %w", err)
	}
	defer repo.Close()

	dirty, err := a.AuditAll(ctx, ws, repo)
	if err != nil {
		return nil, err
	}
	return &domain.AuditReport{Workspace: ws, Dirty: dirty}, nil
}

// AuditAll returns the dirty members of ws keyed by module path and records
// each reason on the member. Forks are not audited. Tags and working-tree
// status are read once; members are then audited independently.
func (a *DirtyAuditor) AuditAll(ctx context.Context, ws *domain.Workspace, repo domain.WorkspaceRepository) (map[string]domain.DirtyReason, error) {
	tags, err := repo.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	changed, err := repo.UncommittedPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read working tree status: %w", err)
	}

	hasher := a.newHasher(repo.Root())

	members := make([]*domain.MemberPackage, 0, len(ws.Members))
	byGitPath := make(map[string]*domain.MemberPackage, len(ws.Members))
	for _, m := range ws.SortedMembers() {
		if m.Fork {
			continue
		}
		members = append(members, m)
		byGitPath[joinSlash(ws.Subpath, m.RelPath)] = m
	}

	// Each changed path dirties only the deepest member containing it.
	uncommitted := make(map[string]bool)
	for _, p := range changed {
		if _, m, ok := lpm.MatchFile(p, lpm.MapLookup(byGitPath)); ok {
			uncommitted[m.ModulePath] = true
		}
	}

	var (
		mu    sync.Mutex
		dirty = make(map[string]domain.DirtyReason)
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.workers)
	for _, m := range members {
		eg.Go(func() error {
			reason, err := a.auditMember(egCtx, ws, repo, hasher, tags, uncommitted[m.ModulePath], m)
			if err != nil {
				return fmt.Errorf("failed to audit %s: %w", m.ModulePath, err)
			}
			if reason == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			dirty[m.ModulePath] = *reason
			m.Dirty = reason
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "audited workspace members", map[string]any{
		"members": len(members),
		"dirty":   len(dirty),
	})
	return dirty, nil
}

func (a *DirtyAuditor) auditMember(
	ctx context.Context,
	ws *domain.Workspace,
	repo domain.WorkspaceRepository,
	hasher domain.ContentHasher,
	tags []string,
	uncommitted bool,
	m *domain.MemberPackage,
) (*domain.DirtyReason, error) {
	tag, ok := semver.FindLatestTag(tags, semver.ComputeTagPrefix(m.RelPath, ws.Subpath))
	if !ok {
		return &domain.DirtyReason{Kind: domain.DirtyUnpublished}, nil
	}
	if uncommitted {
		return &domain.DirtyReason{Kind: domain.DirtyUncommitted, Tag: tag}, nil
	}

	body, err := repo.TagAnnotation(ctx, tag)
	if err != nil {
		return nil, err
	}
	wantContent, wantManifest, ok := ParseAnnotation(body, domain.ManifestFileName)
	if !ok {
		return &domain.DirtyReason{Kind: domain.DirtyLegacyTag, Tag: tag}, nil
	}

	content, err := hasher.HashDirectory(m.Dir)
	if err != nil {
		return nil, err
	}
	manifest, err := hasher.HashFile(m.ManifestPath)
	if err != nil {
		return nil, err
	}
	if content == wantContent && manifest == wantManifest {
		return nil, nil
	}

	a.logger.Debug(ctx, "member content differs from its tag", map[string]any{
		"module":           m.ModulePath,
		"tag":              tag,
		"content_hash":     content,
		"tag_content_hash": wantContent,
	})
	return &domain.DirtyReason{
		Kind:         domain.DirtyModified,
		Tag:          tag,
		ContentHash:  content,
		ManifestHash: manifest,
	}, nil
}

// ParseAnnotation extracts the content and manifest hashes from a tag
// annotation. Each non-empty line is split at its last " h1:"; the hash is
// the part from "h1:" on, and it is the manifest hash when the part before
// ends in "/"+manifestName. ok is false unless both hashes are present.
func ParseAnnotation(body, manifestName string) (content, manifest string, ok bool) {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.LastIndex(line, " h1:")
		if idx < 0 {
			continue
		}
		head, hash := line[:idx], line[idx+1:]
		if strings.HasSuffix(head, "/"+manifestName) {
			manifest = hash
		} else {
			content = hash
		}
	}
	return content, manifest, content != "" && manifest != ""
}

func joinSlash(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "/" + b
	}
}

// Ensure DirtyAuditor implements domain.Auditor.
var _ domain.Auditor = (*DirtyAuditor)(nil)
