package cmd

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamancini/keel/internal/update"
)

func newPerformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perform",
		Short: "Download and install the latest version",
		Long: `Perform runs the full update pipeline: check, download, verify, back up
and apply.

When the apply fails and a backup was taken, the backup is restored
automatically and perform exits 0 with the installation unchanged. Any
failure that leaves the previous version running without a rollback, or a
failed rollback, exits 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			return svc.withLock(func() error {
				return runPerform(cmd.Context(), svc, cmd.OutOrStdout())
			})
		},
	}
}

// runPerform runs the pipeline once. The caller holds the lock.
func runPerform(ctx context.Context, svc *UpdateService, stdout io.Writer) error {
	res, err := svc.manager.PerformUpdate(ctx)
	if werr := newWriter(stdout).Write(resultView(*res)); werr != nil {
		return werr
	}
	return updateExit(res, err)
}

// updateExit turns a pipeline outcome into the command's error.
func updateExit(res *update.UpdateResult, err error) error {
	if res.Healthy() {
		if err != nil {
			log.Warnf("update rolled back: %v", err)
		}
		return nil
	}
	return &ExitError{Code: 1, Err: err}
}
