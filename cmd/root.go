// Package cmd provides the CLI commands for pcb-deps.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

// Logger defines the logging interface used by the commands.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// Dependencies holds all injectable dependencies for the commands.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance. It is called after flags are
	// parsed, so --verbose is honored.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// WorkspaceLoaderFactory creates the workspace scanner.
	WorkspaceLoaderFactory func(cfg *AppConfig, log Logger) domain.WorkspaceLoader

	// SyncerFactory creates the sync use case.
	SyncerFactory func(cfg *AppConfig, log Logger) (domain.Syncer, error)

	// ResolverFactory creates the single-reference resolver.
	ResolverFactory func(cfg *AppConfig, log Logger) domain.ReferenceResolver

	// AuditorFactory creates the dirty-state auditor.
	AuditorFactory func(cfg *AppConfig, log Logger) domain.Auditor

	// ForkerFactory creates the fork manager.
	ForkerFactory func(cfg *AppConfig, log Logger) domain.Forker

	// OutputWriterFactory creates an OutputWriter writing to out.
	OutputWriterFactory func(out io.Writer) domain.OutputWriter

	// Stdout is the writer for command results.
	Stdout io.Writer

	// Stderr is the writer for standard error (for warnings/errors).
	Stderr io.Writer
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	CacheDir   string
	Offline    bool
	Locked     bool
	Workers    int
	SourceExt  string
	LogLevel   string
	LogAppName string
}

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for pcb-deps.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "pcb-deps",
		Short: "Resolve and maintain pcb package dependencies",
		Long: `pcb-deps keeps the pcb.toml manifests of a workspace in line with the
module references made by its source files.

References are resolved against workspace members first, then the pcb.sum
lockfile, then the discovery cache, and finally by listing the tags of the
remote repository. Aliases such as @stdlib and @kicad-symbols are expanded
before resolution.

Examples:
  # Add missing dependencies to every manifest of the workspace
  pcb-deps sync

  # Fail instead of writing when a manifest is out of date (CI)
  pcb-deps sync --locked

  # Show how one reference resolves
  pcb-deps resolve github.com/acme/parts/res/R0402.zen

  # List members that changed since their last release
  pcb-deps audit

  # Work on a local copy of a published package
  pcb-deps fork github.com/acme/parts/res v1.2.0`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if deps == nil {
				return errors.New("dependencies not configured")
			}
			if verbose {
				if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
					// Best-effort warning: ignore fprintf error as this is non-critical
					writeWarningf(stderrOf(deps), "warning: could not set log level: %v\n", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	rootCmd.AddCommand(
		newSyncCmd(deps),
		newResolveCmd(deps),
		newAuditCmd(deps),
		newForkCmd(deps),
		newMembersCmd(deps),
	)
	return rootCmd
}

// session is the per-invocation state shared by every command.
type session struct {
	ctx context.Context
	log Logger
	cfg *AppConfig
	out domain.OutputWriter
}

// startSession creates the logger, loads configuration and builds the
// output writer.
func startSession(cmd *cobra.Command, deps *Dependencies, name string, fields map[string]any) (*session, error) {
	if deps == nil {
		return nil, errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := deps.LoggerFactory()
	log.Info(ctx, "starting "+name, fields)

	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	stdout := deps.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	return &session{ctx: ctx, log: log, cfg: cfg, out: deps.OutputWriterFactory(stdout)}, nil
}

// userError maps sentinel errors shared by every command to user-facing
// messages. Unknown errors are returned unchanged.
func userError(err error, start string) error {
	var structural *domain.StructuralError
	switch {
	case errors.Is(err, domain.ErrWorkspaceNotFound):
		return fmt.Errorf("not inside a pcb workspace: %s", start)
	case errors.As(err, &structural):
		return fmt.Errorf("invalid file: %w", err)
	case errors.Is(err, domain.ErrRepositoryNotFound):
		return fmt.Errorf("not a git repository: %s", start)
	default:
		return err
	}
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func stderrOf(deps *Dependencies) io.Writer {
	if deps.Stderr == nil {
		return os.Stderr
	}
	return deps.Stderr
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; there is no recovery action if stderr
// writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		return
	}
}
