package cmd

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamancini/keel/internal/backup"
	"github.com/adamancini/keel/internal/interactive"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage snapshots of the application tree",
		Long: `Backup manages snapshots of the application root.

Backups are stored in backup_dir (default <state_dir>/backups) and cover
every file under app_root except the paths in exclude_from_update. perform
takes one automatically before applying an update when backup_enabled is set.

Use 'keel backup restore' to return to a previous snapshot.`,
	}

	cmd.AddCommand(newBackupCreateCmd())
	cmd.AddCommand(newBackupListCmd())
	cmd.AddCommand(newBackupRestoreCmd())
	cmd.AddCommand(newBackupDeleteCmd())
	cmd.AddCommand(newBackupPruneCmd())

	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new backup",
		Long:  `Create snapshots the application root into the backup store.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			return svc.withLock(func() error {
				return runBackupCreate(cmd.Context(), svc, cmd.OutOrStdout(), note)
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Add a note to describe this backup")

	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all backups",
		Long:  `List displays all available backups, newest first, with their creation time, application version, note and size.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			return runBackupList(svc, cmd.OutOrStdout())
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore from a backup",
		Long: `Restore copies a backup back over the application root.

Use 'latest' as the ID to restore the most recent backup. Files created after
the backup are kept unless restore_prune is set.

This command prompts for confirmation unless --yes is given.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeBackupIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			var prompter *interactive.Prompter
			if !yes && interactive.IsTerminal() {
				prompter = interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return svc.withLock(func() error {
				return runBackupRestore(cmd.Context(), svc, cmd.OutOrStdout(), prompter, args[0], yes)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func newBackupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <id>",
		Short:             "Delete a backup",
		Long:              `Delete removes a backup by its ID.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeBackupIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			return runBackupDelete(svc, cmd.OutOrStdout(), args[0])
		},
	}
}

func newBackupPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old backups",
		Long: `Prune deletes old backups, keeping only the most recent N backups.

By default, keeps backup_retention backups.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				if svc.cfg.BackupRetention == 0 {
					newWriter(cmd.OutOrStdout()).Printf("backup_retention is 0, keeping every backup.\n")
					return nil
				}
				keep = svc.cfg.BackupRetention
			}
			return runBackupPrune(svc, cmd.OutOrStdout(), keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", backup.DefaultKeepCount, "Number of backups to keep")

	return cmd
}

// runBackupCreate creates a new backup. The caller holds the lock.
func runBackupCreate(ctx context.Context, svc *UpdateService, stdout io.Writer, note string) error {
	version, err := svc.versions.Current()
	if err != nil {
		return fmt.Errorf("failed to read installed version: %w", err)
	}

	rec, err := svc.backups.Create(ctx, version, note)
	if err != nil {
		return err
	}

	w := newWriter(stdout)
	if w.Structured() {
		return w.Write(rec)
	}
	w.Printf("Backup created: %s\n", rec.ID)
	if note != "" {
		w.Printf("Note: %s\n", note)
	}
	w.Printf("Files: %d (%s)\n", rec.Files(), formatSize(rec.Size))
	w.Printf("Location: %s\n", rec.Location)
	return nil
}

// runBackupList lists all backups.
func runBackupList(svc *UpdateService, stdout io.Writer) error {
	records, err := svc.backups.List()
	if err != nil {
		return err
	}

	w := newWriter(stdout)
	if w.Structured() {
		return w.Write(records)
	}
	return w.Write(backupListView{dir: svc.backups.BackupDir(), records: records})
}

// runBackupRestore restores a backup by ID or "latest". The caller holds
// the lock.
func runBackupRestore(ctx context.Context, svc *UpdateService, stdout io.Writer, prompter *interactive.Prompter, id string, skipConfirm bool) error {
	w := newWriter(stdout)

	rec, err := svc.backups.Get(id)
	if err != nil {
		return err
	}

	if !skipConfirm {
		if prompter == nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("refusing to restore without confirmation: use --yes when not running in a terminal")}
		}
		if !prompter.ConfirmRestore(rec, svc.cfg.AppRoot, svc.cfg.RestorePrune) {
			w.Printf("Restore cancelled.\n")
			return nil
		}
	}

	if _, err := svc.backups.Restore(ctx, rec.ID, backup.RestoreOptions{Prune: svc.cfg.RestorePrune}); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	if rec.AppVersion != "" {
		if err := svc.versions.SetCurrent(rec.AppVersion); err != nil {
			log.Warnf("failed to record restored version %s: %v", rec.AppVersion, err)
		}
	}
	if err := svc.manager.ClearCache(ctx); err != nil {
		log.Warnf("failed to clear update cache: %v", err)
	}

	if w.Structured() {
		return w.Write(rec)
	}
	w.Printf("Restored backup %s\n", rec.ID)
	if rec.AppVersion != "" {
		w.Printf("Installed version: %s\n", rec.AppVersion)
	}
	return nil
}

// runBackupDelete deletes a backup.
func runBackupDelete(svc *UpdateService, stdout io.Writer, id string) error {
	if err := svc.backups.Delete(id); err != nil {
		return err
	}

	newWriter(stdout).Printf("Backup deleted: %s\n", id)
	return nil
}

// runBackupPrune removes old backups.
func runBackupPrune(svc *UpdateService, stdout io.Writer, keep int) error {
	result, err := svc.backups.Prune(keep)
	if err != nil {
		return err
	}

	w := newWriter(stdout)
	if w.Structured() {
		return w.Write(result)
	}

	if len(result.Deleted) == 0 {
		w.Printf("No backups to prune. Keeping %d backups.\n", result.Kept)
		return nil
	}

	w.Printf("Pruned %d backup(s), keeping %d:\n", len(result.Deleted), result.Kept)
	for _, b := range result.Deleted {
		w.Printf("  - %s (%s)\n", b.ID, b.CreatedAt.Local().Format(timeLayout))
	}
	return nil
}
