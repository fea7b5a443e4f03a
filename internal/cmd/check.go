package cmd

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var clearCache bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check for a new application version",
		Long: `Check asks the update source for the latest release and reports whether
it is newer than the installed version.

Results are cached for cache_ttl seconds. Use --clear-cache to force a fresh
lookup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), svc, cmd.OutOrStdout(), clearCache)
		},
	}

	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Discard the cached result before checking")

	return cmd
}

func runCheck(ctx context.Context, svc *UpdateService, stdout io.Writer, clearCache bool) error {
	w := newWriter(stdout)

	if clearCache {
		if err := svc.manager.ClearCache(ctx); err != nil {
			return err
		}
		w.Printf("Update cache cleared.\n")
	}

	info, err := svc.manager.CheckForUpdate(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	return w.Write(checkView(info))
}

func newCheckScheduledCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-scheduled",
		Short: "Run the periodic update check",
		Long: `Check-scheduled is meant to be run by cron or a systemd timer.

It checks for updates and, when auto_update_enabled is set, installs the new
version. An unreachable update source is logged and treated as "no update".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			return svc.withLock(func() error {
				return runCheckScheduled(cmd.Context(), svc, cmd.OutOrStdout())
			})
		},
	}
}

// runCheckScheduled runs one scheduled check. The caller holds the lock.
func runCheckScheduled(ctx context.Context, svc *UpdateService, stdout io.Writer) error {
	w := newWriter(stdout)
	result := &ScheduledResult{}

	info, err := svc.manager.CheckForUpdate(ctx)
	if err != nil {
		log.Warnf("scheduled update check failed, treating as no update: %v", err)
		result.CheckError = err.Error()
		return w.Write(result)
	}
	result.Check = &info

	if !info.HasUpdate || !svc.cfg.AutoUpdateEnabled {
		if info.HasUpdate {
			log.Infof("update %s available, auto update is disabled", info.LatestVersion)
		}
		return w.Write(result)
	}

	res, err := svc.manager.PerformUpdate(ctx)
	result.Update = res
	if werr := w.Write(result); werr != nil {
		return werr
	}
	return updateExit(res, err)
}
