package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/adamancini/keel/internal/backup"
	"github.com/adamancini/keel/internal/update"
)

const timeLayout = "2006-01-02 15:04:05"

// checkView renders an update check.
type checkView update.UpdateInfo

func (v checkView) RenderText(w io.Writer) error {
	if !v.HasUpdate {
		_, err := fmt.Fprintf(w, "Already running the latest version (%s)\n", v.CurrentVersion)
		return err
	}
	_, _ = fmt.Fprintf(w, "Current version: %s\n", v.CurrentVersion)
	_, _ = fmt.Fprintf(w, "Latest version:  %s available\n", v.LatestVersion)
	if v.ReleaseNotes != "" {
		_, _ = fmt.Fprintf(w, "\nRelease notes:\n%s\n", strings.TrimRight(v.ReleaseNotes, "\n"))
	}
	_, err := fmt.Fprintln(w, "\nRun 'keel perform' to install")
	return err
}

// resultView renders the outcome of an update attempt.
type resultView update.UpdateResult

func (v resultView) RenderText(w io.Writer) error {
	switch v.State {
	case update.StateIdle:
		_, _ = fmt.Fprintf(w, "Already up to date (%s)\n", v.FromVersion)
	case update.StateSucceeded:
		_, _ = fmt.Fprintf(w, "Updated from %s to %s in %s\n", v.FromVersion, v.ToVersion, v.Duration)
		if v.BackupID != "" {
			_, _ = fmt.Fprintf(w, "Backup: %s\n", v.BackupID)
		}
	case update.StateRolledBack:
		_, _ = fmt.Fprintf(w, "Update to %s failed and was rolled back to %s\n", v.ToVersion, v.FromVersion)
		_, _ = fmt.Fprintf(w, "Restored backup: %s\n", v.BackupID)
		_, _ = fmt.Fprintf(w, "Error: %s\n", v.Error)
	default:
		_, _ = fmt.Fprintln(w, "Update failed")
		_, _ = fmt.Fprintf(w, "Error: %s\n", v.Error)
		if v.Inconsistent {
			_, _ = fmt.Fprintln(w, "WARNING: the installation may be in an inconsistent state")
		}
	}
	return nil
}

// rollbackView renders a completed rollback.
type rollbackView update.RollbackResult

func (v rollbackView) RenderText(w io.Writer) error {
	_, _ = fmt.Fprintf(w, "Restored backup %s (created %s)\n", v.BackupID, v.CreatedAt.Local().Format(timeLayout))
	if v.Version != "" {
		_, _ = fmt.Fprintf(w, "Installed version: %s\n", v.Version)
	}
	_, err := fmt.Fprintf(w, "Files restored: %d\n", v.Files)
	return err
}

// ScheduledResult is the outcome of one scheduled check.
type ScheduledResult struct {
	Check      *update.UpdateInfo   `json:"check,omitempty" yaml:"check,omitempty"`
	CheckError string               `json:"check_error,omitempty" yaml:"check_error,omitempty"`
	Update     *update.UpdateResult `json:"update,omitempty" yaml:"update,omitempty"`
}

func (r *ScheduledResult) RenderText(w io.Writer) error {
	switch {
	case r.CheckError != "":
		_, _ = fmt.Fprintf(w, "Update check failed, treated as no update: %s\n", r.CheckError)
	case r.Update != nil:
		return resultView(*r.Update).RenderText(w)
	case r.Check != nil && r.Check.HasUpdate:
		_, _ = fmt.Fprintf(w, "Update available: %s -> %s (auto update disabled)\n", r.Check.CurrentVersion, r.Check.LatestVersion)
	case r.Check != nil:
		_, _ = fmt.Fprintf(w, "Already running the latest version (%s)\n", r.Check.CurrentVersion)
	}
	return nil
}

// backupListView renders the backup store.
type backupListView struct {
	dir     string
	records []backup.Record
}

func (v backupListView) RenderText(w io.Writer) error {
	if len(v.records) == 0 {
		_, _ = fmt.Fprintln(w, "No backups found.")
		_, err := fmt.Fprintf(w, "Backup directory: %s\n", v.dir)
		return err
	}

	_, _ = fmt.Fprintf(w, "Backups stored in %s:\n\n", v.dir)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCreated\tVersion\tNote\tSize")
	for _, b := range v.records {
		note := b.Note
		if note == "" {
			note = "-"
		}
		version := b.AppVersion
		if version == "" {
			version = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			b.ID,
			b.CreatedAt.Local().Format(timeLayout),
			version,
			note,
			formatSize(b.Size),
		)
	}
	return tw.Flush()
}

// formatSize formats a byte size as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
