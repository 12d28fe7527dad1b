package usecases

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

// ImportScanner gathers the references of every workspace source file,
// groups them by owning manifest and resolves each group on its own worker.
type ImportScanner struct {
	parser       domain.ReferenceParser
	orchestrator *Orchestrator
	workers      int
	logger       Logger
}

// NewImportScanner creates an ImportScanner running at most workers groups
// concurrently.
func NewImportScanner(parser domain.ReferenceParser, orchestrator *Orchestrator, workers int, log Logger) *ImportScanner {
	if workers < 1 {
		workers = 1
	}
	return &ImportScanner{
		parser:       parser,
		orchestrator: orchestrator,
		workers:      workers,
		logger:       log,
	}
}

// manifestGroup is the deduplicated reference set of one manifest.
type manifestGroup struct {
	manifestPath string
	member       *domain.MemberPackage
	refs         map[string]groupRef
	localPaths   int
}

type groupRef struct {
	ref     domain.Reference
	fromDir string
}

// Scan returns one ManifestScan per non-fork member manifest, plus one for
// any other manifest owning referencing files, ordered by manifest path.
func (s *ImportScanner) Scan(ctx context.Context, ws *domain.Workspace, lock domain.LockIndex, offline bool) ([]domain.ManifestScan, error) {
	groups := make(map[string]*manifestGroup)
	group := func(manifestPath string) *manifestGroup {
		g, ok := groups[manifestPath]
		if !ok {
			g = &manifestGroup{manifestPath: manifestPath, refs: make(map[string]groupRef)}
			groups[manifestPath] = g
		}
		return g
	}

	for _, m := range ws.Members {
		if !m.Fork {
			group(m.ManifestPath).member = m
		}
	}

	finder := newManifestFinder(ws.Root)
	for _, file := range ws.SourceFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raws, err := s.parser.ParseReferences(ctx, file)
		if err != nil {
			s.logger.Warn(ctx, "failed to parse source file; skipping", map[string]any{
				"file":  file,
				"error": err.Error(),
			})
			continue
		}
		if len(raws) == 0 {
			continue
		}

		manifestPath, ok := finder.nearest(filepath.Dir(file))
		if !ok {
			s.logger.Debug(ctx, "source file has no owning manifest", map[string]any{"file": file})
			continue
		}
		g := group(manifestPath)
		for _, raw := range raws {
			ref, err := domain.ClassifyReference(raw.Value)
			if err != nil {
				s.logger.Debug(ctx, "ignoring invalid reference", map[string]any{
					"reference": raw.Value,
					"file":      raw.Span.File,
					"line":      raw.Span.Line,
				})
				continue
			}
			if ref.Kind == domain.RefLocalPath {
				g.localPaths++
				continue
			}
			if _, seen := g.refs[ref.Raw]; !seen {
				g.refs[ref.Raw] = groupRef{ref: ref, fromDir: filepath.Dir(file)}
			}
		}
	}

	ordered := make([]*manifestGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].manifestPath < ordered[j].manifestPath
	})

	scans := make([]domain.ManifestScan, len(ordered))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for i, g := range ordered {
		eg.Go(func() error {
			scans[i] = s.resolveGroup(egCtx, ws, lock, offline, g)
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scans, nil
}

func (s *ImportScanner) resolveGroup(ctx context.Context, ws *domain.Workspace, lock domain.LockIndex, offline bool, g *manifestGroup) domain.ManifestScan {
	scan := domain.ManifestScan{
		ManifestPath: g.manifestPath,
		Member:       g.member,
		LocalPaths:   g.localPaths,
	}

	raws := make([]string, 0, len(g.refs))
	for raw := range g.refs {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	byModule := make(map[string]bool)
	for _, raw := range raws {
		gr := g.refs[raw]
		res := s.orchestrator.Resolve(ctx, gr.ref, ResolveContext{
			Workspace: ws,
			Lockfile:  lock,
			FromDir:   gr.fromDir,
			Offline:   offline,
		})

		switch {
		case !res.Resolved && gr.ref.Kind == domain.RefAlias:
			scan.UnknownAliases = append(scan.UnknownAliases, gr.ref)
		case !res.Resolved:
			scan.Unresolved = append(scan.Unresolved, res)
		case g.member != nil && res.ModulePath == g.member.ModulePath:
			// self-reference
		case byModule[res.ModulePath]:
			// already recorded from another file
		default:
			byModule[res.ModulePath] = true
			scan.Resolved = append(scan.Resolved, res)
		}
	}

	sort.Slice(scan.Resolved, func(i, j int) bool {
		return scan.Resolved[i].ModulePath < scan.Resolved[j].ModulePath
	})
	return scan
}

// manifestFinder memoizes the nearest-manifest walk, bounded by the
// workspace root.
type manifestFinder struct {
	root  string
	cache map[string]string
}

func newManifestFinder(root string) *manifestFinder {
	return &manifestFinder{root: root, cache: make(map[string]string)}
}

func (f *manifestFinder) nearest(dir string) (string, bool) {
	var visited []string
	found := ""
	for {
		if cached, ok := f.cache[dir]; ok {
			found = cached
			break
		}
		visited = append(visited, dir)
		candidate := filepath.Join(dir, domain.ManifestFileName)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			found = candidate
			break
		}
		if dir == f.root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	for _, d := range visited {
		f.cache[d] = found
	}
	return found, found != ""
}
