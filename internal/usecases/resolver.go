// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/semver"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// LockfileLoader loads the lockfile at path; a missing file is an empty index.
type LockfileLoader func(path string) (domain.LockIndex, error)

// ResolveContext is everything a single resolution may consult.
type ResolveContext struct {
	Workspace *domain.Workspace
	Lockfile  domain.LockIndex

	// FromDir is the directory of the referring file; local paths starting
	// with "./" or "../" are relative to it.
	FromDir string

	Offline bool
}

// Orchestrator resolves references through the tiers in fixed order:
// alias table, workspace members, lockfile, discovery cache, and (online
// only) remote discovery.
type Orchestrator struct {
	discovery *DiscoveryService
	logger    Logger
}

// NewOrchestrator creates an Orchestrator. discovery may be nil, which
// disables both discovery tiers.
func NewOrchestrator(discovery *DiscoveryService, log Logger) *Orchestrator {
	return &Orchestrator{discovery: discovery, logger: log}
}

// Resolve never fails: misses, including transport failures, come back as an
// unresolved Resolution carrying a diagnostic.
func (o *Orchestrator) Resolve(ctx context.Context, ref domain.Reference, rc ResolveContext) domain.Resolution {
	switch ref.Kind {
	case domain.RefAlias:
		return o.resolveAlias(ref)
	case domain.RefLocalPath:
		return o.resolveLocal(ref, rc)
	default:
		return o.resolveURL(ctx, ref, rc)
	}
}

func (o *Orchestrator) resolveAlias(ref domain.Reference) domain.Resolution {
	alias, ok := domain.LookupAlias(ref.Alias)
	if !ok {
		return unresolved(ref, "unknown alias @"+ref.Alias)
	}
	v, err := semver.ParseVersion(alias.Version)
	if err != nil {
		return unresolved(ref, fmt.Sprintf("alias @%s pins an invalid version: %v", ref.Alias, err))
	}
	return domain.Resolution{
		Reference:  ref,
		ModulePath: alias.ModulePath,
		Version:    v,
		Source:     domain.SourceAlias,
		Asset:      alias.Asset,
		Implicit:   alias.Implicit,
		Resolved:   true,
	}
}

// resolveLocal maps a local path to the member owning it. Paths starting
// with "./" or "../" are relative to the referring file, other relative paths
// to the workspace root.
func (o *Orchestrator) resolveLocal(ref domain.Reference, rc ResolveContext) domain.Resolution {
	if rc.Workspace == nil {
		return unresolved(ref, "no workspace")
	}
	target := filepath.FromSlash(ref.Path)
	switch {
	case filepath.IsAbs(target):
	case strings.HasPrefix(ref.Path, "./") || strings.HasPrefix(ref.Path, "../"):
		base := rc.FromDir
		if base == "" {
			base = rc.Workspace.Root
		}
		target = filepath.Join(base, target)
	default:
		target = filepath.Join(rc.Workspace.Root, target)
	}

	member, ok := rc.Workspace.MemberForDir(filepath.Dir(target))
	if !ok {
		return unresolved(ref, "path is outside every workspace package")
	}
	return domain.Resolution{
		Reference:  ref,
		ModulePath: member.ModulePath,
		Version:    member.Version,
		Source:     domain.SourceLocal,
		Resolved:   true,
	}
}

func (o *Orchestrator) resolveURL(ctx context.Context, ref domain.Reference, rc ResolveContext) domain.Resolution {
	if rc.Workspace != nil {
		if m, ok := rc.Workspace.MatchMember(ref.URL); ok {
			return resolved(ref, m.ModulePath, m.Version, domain.SourceWorkspace)
		}
	}

	if rc.Lockfile != nil {
		if modulePath, v, ok := rc.Lockfile.FindByPrefix(ref.URL); ok {
			return resolved(ref, modulePath, v, domain.SourceLockfile)
		}
	}

	if o.discovery == nil {
		return unresolved(ref, "not found in workspace or lockfile")
	}

	modulePath, v, ok, err := o.discovery.FindRemotePackage(ctx, ref.URL)
	if err != nil {
		return unresolved(ref, err.Error())
	}
	if ok {
		return resolved(ref, modulePath, v, domain.SourceCache)
	}

	if rc.Offline {
		return unresolved(ref, "not found in workspace, lockfile or discovery cache (offline)")
	}

	modulePath, v, ok, err = o.discovery.FindOrDiscover(ctx, ref.URL)
	if err != nil {
		o.logger.Warn(ctx, "remote discovery failed", map[string]any{
			"reference": ref.Raw,
			"error":     err.Error(),
		})
		return unresolved(ref, err.Error())
	}
	if !ok {
		return unresolved(ref, "no published package contains this path")
	}
	return resolved(ref, modulePath, v, domain.SourceRemote)
}

func resolved(ref domain.Reference, modulePath string, v semver.Version, source domain.ResolutionSource) domain.Resolution {
	return domain.Resolution{
		Reference:  ref,
		ModulePath: modulePath,
		Version:    v,
		Source:     source,
		Resolved:   true,
	}
}

func unresolved(ref domain.Reference, diagnostic string) domain.Resolution {
	return domain.Resolution{Reference: ref, Diagnostic: diagnostic}
}

// ReferenceService resolves a single reference against the workspace
// containing a start path.
type ReferenceService struct {
	loader       domain.WorkspaceLoader
	loadLockfile LockfileLoader
	orchestrator *Orchestrator
	logger       Logger
}

// NewReferenceService creates a ReferenceService.
func NewReferenceService(
	loader domain.WorkspaceLoader,
	loadLockfile LockfileLoader,
	orchestrator *Orchestrator,
	log Logger,
) *ReferenceService {
	return &ReferenceService{
		loader:       loader,
		loadLockfile: loadLockfile,
		orchestrator: orchestrator,
		logger:       log,
	}
}

// ResolveOne resolves input.Reference. An unresolved reference returns the
// Resolution together with a *domain.ResolutionMiss.
func (s *ReferenceService) ResolveOne(ctx context.Context, input domain.ResolveInput) (*domain.Resolution, error) {
	ref, err := domain.ClassifyReference(input.Reference)
	if err != nil {
		return nil, err
	}

	ws, err := s.loader.Scan(ctx, input.Start)
	if err != nil {
		return nil, err
	}
	lock, err := s.loadLockfile(filepath.Join(ws.Root, domain.LockfileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load lockfile: %w", err)
	}

	from := input.FromFile
	if from == "" {
		from = input.Start
	}

	res := s.orchestrator.Resolve(ctx, ref, ResolveContext{
		Workspace: ws,
		Lockfile:  lock,
		FromDir:   dirOf(from),
		Offline:   input.Offline,
	})

	s.logger.Debug(ctx, "resolved reference", map[string]any{
		"reference": ref.Raw,
		"resolved":  res.Resolved,
		"source":    string(res.Source),
	})

	if !res.Resolved {
		miss := &domain.ResolutionMiss{Reference: ref.Raw, Err: domain.ErrUnresolved}
		if ref.Kind == domain.RefURL {
			miss.Repository, _, _ = domain.SplitRepoURL(ref.URL)
		}
		if res.Diagnostic != "" {
			miss.Err = fmt.Errorf("%w: %s", domain.ErrUnresolved, res.Diagnostic)
		}
		return &res, miss
	}
	return &res, nil
}

// dirOf returns p when it is a directory, else its parent.
func dirOf(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	info, err := os.Stat(abs)
	if err == nil && info.IsDir() {
		return abs
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return abs
	}
	return filepath.Dir(abs)
}

// Ensure ReferenceService implements domain.ReferenceResolver.
var _ domain.ReferenceResolver = (*ReferenceService)(nil)
