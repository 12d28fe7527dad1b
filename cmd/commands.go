package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func newSyncCmd(deps *Dependencies) *cobra.Command {
	var offline, locked bool

	cmd := &cobra.Command{
		Use:   "sync [path]",
		Short: "Add missing dependencies and correct workspace versions in every manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, deps, pathArg(args), offline, locked)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not contact remote repositories")
	cmd.Flags().BoolVar(&locked, "locked", false, "Fail instead of modifying manifests")
	return cmd
}

func runSync(cmd *cobra.Command, deps *Dependencies, start string, offline, locked bool) error {
	s, err := startSession(cmd, deps, "sync", map[string]any{"path": start})
	if err != nil {
		return err
	}

	syncer, err := deps.SyncerFactory(s.cfg, s.log)
	if err != nil {
		s.log.Error(s.ctx, "failed to initialize sync", err, nil)
		return fmt.Errorf("initialization error: %w", err)
	}

	report, err := syncer.Sync(s.ctx, domain.SyncInput{
		Start:   start,
		Offline: offline || s.cfg.Offline,
		Locked:  locked || s.cfg.Locked,
	})
	if report != nil {
		if werr := s.out.WriteSyncReport(report); werr != nil {
			s.log.Error(s.ctx, "failed to write output", werr, nil)
			return fmt.Errorf("output error: %w", werr)
		}
	}
	if err != nil {
		s.log.Error(s.ctx, "sync failed", err, nil)
		return userError(err, start)
	}
	return nil
}

func newResolveCmd(deps *Dependencies) *cobra.Command {
	var (
		from    string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <reference>",
		Short: "Resolve one module reference and show where it came from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, deps, args[0], from, offline)
		},
	}
	cmd.Flags().StringVar(&from, "from", ".", "File or directory the reference is made from")
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not contact remote repositories")
	return cmd
}

func runResolve(cmd *cobra.Command, deps *Dependencies, reference, from string, offline bool) error {
	s, err := startSession(cmd, deps, "resolve", map[string]any{"reference": reference, "from": from})
	if err != nil {
		return err
	}

	resolver := deps.ResolverFactory(s.cfg, s.log)
	res, err := resolver.ResolveOne(s.ctx, domain.ResolveInput{
		Start:     from,
		Reference: reference,
		FromFile:  from,
		Offline:   offline || s.cfg.Offline,
	})
	if res != nil {
		if werr := s.out.WriteResolution(res); werr != nil {
			s.log.Error(s.ctx, "failed to write output", werr, nil)
			return fmt.Errorf("output error: %w", werr)
		}
	}
	if err != nil {
		s.log.Error(s.ctx, "failed to resolve reference", err, map[string]any{"reference": reference})
		if errors.Is(err, domain.ErrInvalidReference) {
			return fmt.Errorf("not a module reference: %q", reference)
		}
		return userError(err, from)
	}
	return nil
}

func newAuditCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [path]",
		Short: "Report workspace members that changed since their latest release tag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, deps, pathArg(args))
		},
	}
}

func runAudit(cmd *cobra.Command, deps *Dependencies, start string) error {
	s, err := startSession(cmd, deps, "audit", map[string]any{"path": start})
	if err != nil {
		return err
	}

	report, err := deps.AuditorFactory(s.cfg, s.log).Audit(s.ctx, domain.AuditInput{Start: start})
	if err != nil {
		s.log.Error(s.ctx, "audit failed", err, nil)
		return userError(err, start)
	}
	if err := s.out.WriteAuditReport(report); err != nil {
		s.log.Error(s.ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}

func newForkCmd(deps *Dependencies) *cobra.Command {
	var (
		start   string
		force   bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "fork <url> [version]",
		Short: "Copy a published package into the workspace and patch it in",
		Long: `fork copies a published package version into fork/<module>/<version>
under the workspace root and registers it in the [patch] table of the root
pcb.toml. Without a version the latest release is used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := ""
			if len(args) > 1 {
				version = args[1]
			}
			return runFork(cmd, deps, domain.ForkRequest{
				Start:   start,
				URL:     args[0],
				Version: version,
				Force:   force,
				Offline: offline,
			})
		},
	}
	cmd.Flags().StringVar(&start, "path", ".", "Directory inside the workspace")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing patch and discard local fork edits")
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not contact remote repositories")
	return cmd
}

func runFork(cmd *cobra.Command, deps *Dependencies, req domain.ForkRequest) error {
	s, err := startSession(cmd, deps, "fork", map[string]any{
		"url":     req.URL,
		"version": req.Version,
		"force":   req.Force,
	})
	if err != nil {
		return err
	}
	req.Offline = req.Offline || s.cfg.Offline

	result, err := deps.ForkerFactory(s.cfg, s.log).Fork(s.ctx, req)
	if err != nil {
		fields := map[string]any{"url": req.URL}
		if result != nil {
			fields["state"] = result.State.String()
		}
		s.log.Error(s.ctx, "fork failed", err, fields)
		switch {
		case errors.Is(err, domain.ErrInvalidReference):
			return fmt.Errorf("not a package URL: %q", req.URL)
		case errors.Is(err, domain.ErrDiscoveryUnavailable) && req.Offline:
			return errors.New("fork needs network access; remove --offline or unset PCB_OFFLINE")
		case errors.Is(err, domain.ErrDiscoveryUnavailable):
			return fmt.Errorf("cannot reach the repository of %s: %w", req.URL, err)
		default:
			return userError(err, req.Start)
		}
	}

	if err := s.out.WriteForkResult(result); err != nil {
		s.log.Error(s.ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	s.log.Info(s.ctx, "fork complete", map[string]any{
		"module":   result.ModulePath,
		"version":  result.Version.String(),
		"fork_dir": result.ForkDir,
	})
	return nil
}

func newMembersCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "members [path]",
		Short: "List the packages of the workspace with their latest versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMembers(cmd, deps, pathArg(args))
		},
	}
}

func runMembers(cmd *cobra.Command, deps *Dependencies, start string) error {
	s, err := startSession(cmd, deps, "members", map[string]any{"path": start})
	if err != nil {
		return err
	}

	ws, err := deps.WorkspaceLoaderFactory(s.cfg, s.log).Scan(s.ctx, start)
	if err != nil {
		s.log.Error(s.ctx, "failed to scan workspace", err, nil)
		return userError(err, start)
	}
	if err := s.out.WriteMembers(ws); err != nil {
		s.log.Error(s.ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}
