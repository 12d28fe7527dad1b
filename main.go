// Package main is the entry point for the pcb-deps CLI application.
// pcb-deps resolves module references of a pcb workspace and keeps its
// manifests in line with them.
package main

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/pcb-deps/cmd"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/git"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/hasher"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/lockfile"
	logadapter "github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/manifest"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/output"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/parser"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/adapters/store"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/fsutil"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/usecases"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/workspace"
)

// packagesDir is the cache subdirectory holding materialized package versions.
const packagesDir = "packages"

func main() {
	// The logger is created on first use so --verbose can adjust LOG_LEVEL
	// after flags are parsed.
	var (
		once    sync.Once
		adapter *logadapter.ZapAdapter
	)
	newLogger := func() cmd.Logger {
		once.Do(func() {
			adapter = logadapter.NewZapAdapter(logger.NewZapLoggerFromConfig())
		})
		return adapter
	}

	cmd.SetDefaultDependencies(newDependencies(newLogger, os.Stdout, os.Stderr))
	cmd.Execute()
}

// newDependencies wires the production adapters into cmd.Dependencies.
func newDependencies(newLogger func() cmd.Logger, stdout, stderr io.Writer) *cmd.Dependencies {
	manifests := manifest.NewStore()

	return &cmd.Dependencies{
		LoggerFactory: newLogger,

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return &cmd.AppConfig{
				CacheDir:   cfg.CacheDir,
				Offline:    cfg.Offline,
				Locked:     cfg.Locked,
				Workers:    cfg.Workers,
				SourceExt:  cfg.SourceExt,
				LogLevel:   cfg.LogLevel,
				LogAppName: cfg.LogAppName,
			}, nil
		},

		WorkspaceLoaderFactory: func(cfg *cmd.AppConfig, log cmd.Logger) domain.WorkspaceLoader {
			return newScanner(cfg, manifests, log)
		},

		SyncerFactory: func(cfg *cmd.AppConfig, log cmd.Logger) (domain.Syncer, error) {
			refParser, err := parser.NewStarlarkParser()
			if err != nil {
				return nil, err
			}
			scanner := newScanner(cfg, manifests, log)
			orchestrator := newOrchestrator(cfg, log)
			return usecases.NewSyncService(
				scanner,
				loadLockfile,
				usecases.NewImportScanner(refParser, orchestrator, cfg.Workers, component(log, "import-scan")),
				usecases.NewManifestMutator(manifests, component(log, "mutator")),
				log,
			), nil
		},

		ResolverFactory: func(cfg *cmd.AppConfig, log cmd.Logger) domain.ReferenceResolver {
			return usecases.NewReferenceService(
				newScanner(cfg, manifests, log),
				loadLockfile,
				newOrchestrator(cfg, log),
				log,
			)
		},

		AuditorFactory: func(cfg *cmd.AppConfig, log cmd.Logger) domain.Auditor {
			return usecases.NewDirtyAuditor(
				newScanner(cfg, manifests, log),
				git.OpenWorkspaceRepository(log),
				func(root string) domain.ContentHasher { return hasher.NewDirHasher(root) },
				cfg.Workers,
				component(log, "audit"),
			)
		},

		ForkerFactory: func(cfg *cmd.AppConfig, log cmd.Logger) domain.Forker {
			return usecases.NewForkManager(
				newScanner(cfg, manifests, log),
				git.NewMirrorCache(cfg.CacheDir, component(log, "mirror")),
				manifests,
				fsutil.CopyDir,
				filepath.Join(cfg.CacheDir, packagesDir),
				component(log, "fork"),
			)
		},

		OutputWriterFactory: func(out io.Writer) domain.OutputWriter {
			return output.NewWriterWithOutput(out)
		},

		Stdout: stdout,
		Stderr: stderr,
	}
}

func newScanner(cfg *cmd.AppConfig, manifests domain.ManifestStore, log cmd.Logger) *workspace.Scanner {
	return workspace.NewScanner(
		manifests,
		git.OpenWorkspaceRepository(log),
		component(log, "workspace"),
		workspace.WithSourceExt(cfg.SourceExt),
	)
}

// newOrchestrator builds the resolution tiers. The discovery tiers share one
// mirror cache and one discovery cache file under cfg.CacheDir.
func newOrchestrator(cfg *cmd.AppConfig, log cmd.Logger) *usecases.Orchestrator {
	discoveryLog := component(log, "discovery")
	engine := usecases.NewDiscoveryEngine(
		git.NewMirrorCache(cfg.CacheDir, component(log, "mirror")),
		usecases.NewRemoteIndexCache(),
		discoveryLog,
	)
	discovery := usecases.NewDiscoveryService(store.NewFileStore(cfg.CacheDir, discoveryLog), engine, discoveryLog)
	return usecases.NewOrchestrator(discovery, component(log, "resolver"))
}

// loadLockfile adapts lockfile.Load so a failed load never yields a typed nil.
func loadLockfile(path string) (domain.LockIndex, error) {
	idx, err := lockfile.Load(path)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// component tags every entry of log with the emitting component when log
// is the production adapter.
func component(log cmd.Logger, name string) cmd.Logger {
	if zl, ok := log.(*logadapter.ZapAdapter); ok {
		return zl.WithFields(map[string]any{"component": name})
	}
	return log
}
