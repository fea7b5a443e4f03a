package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/keel/internal/backup"
	"github.com/adamancini/keel/internal/interactive"
	"github.com/adamancini/keel/internal/update"
)

func newRollbackCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore the most recent backup",
		Long: `Rollback restores the newest backup over the application root and
records the version it was taken from as the installed version.

Without --force, rollback asks for confirmation; it refuses to run
unattended unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			var prompter *interactive.Prompter
			if !force && interactive.IsTerminal() {
				prompter = interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return svc.withLock(func() error {
				return runRollback(cmd.Context(), svc, cmd.OutOrStdout(), prompter, force)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

// runRollback restores the latest backup. A nil prompter means no terminal
// is attached: the rollback then only proceeds with force.
func runRollback(ctx context.Context, svc *UpdateService, stdout io.Writer, prompter *interactive.Prompter, force bool) error {
	w := newWriter(stdout)

	if !force {
		if prompter == nil {
			if _, err := svc.backups.Latest(); errors.Is(err, backup.ErrNoBackups) {
				return noBackupsError(svc)
			}
			return &ExitError{Code: 1, Err: fmt.Errorf("refusing to roll back without confirmation: use --force when not running in a terminal")}
		}
		svc.manager.SetConfirm(func(rec *backup.Record) bool {
			return prompter.ConfirmRestore(rec, svc.cfg.AppRoot, svc.cfg.RestorePrune)
		})
	}

	res, err := svc.manager.Rollback(ctx, force)
	switch {
	case errors.Is(err, update.ErrNoBackupsAvailable):
		return noBackupsError(svc)
	case errors.Is(err, update.ErrRollbackDeclined):
		w.Printf("Rollback cancelled.\n")
		return &ExitError{Code: 1}
	case err != nil:
		return &ExitError{Code: 1, Err: err}
	}

	return w.Write(rollbackView(*res))
}

func noBackupsError(svc *UpdateService) error {
	return &ExitError{Code: 1, Err: fmt.Errorf("No backups found in %s", svc.backups.BackupDir())}
}
