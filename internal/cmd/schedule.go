package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamancini/keel/internal/fsatomic"
	"github.com/adamancini/keel/internal/schedule"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduled update checks in the foreground",
		Long: `Schedule runs check-scheduled on check_schedule until interrupted.

check_schedule is a five-field cron expression or a descriptor such as
"@hourly" or "@every 6h". A run that is still in progress when the next one
is due causes that run to be skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSchedule(ctx, svc, cmd.OutOrStdout())
		},
	}
}

func runSchedule(ctx context.Context, svc *UpdateService, stdout io.Writer) error {
	runner, err := schedule.New(svc.cfg.CheckSchedule, scheduledJob(svc, stdout))
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// scheduledJob is one scheduled run. A run that finds the lock taken is
// skipped rather than failed.
func scheduledJob(svc *UpdateService, stdout io.Writer) schedule.Job {
	return func(ctx context.Context) error {
		err := svc.withLock(func() error {
			return runCheckScheduled(ctx, svc, stdout)
		})
		if errors.Is(err, fsatomic.ErrLocked) {
			log.Warnf("skipping scheduled check: %v", err)
			return nil
		}
		return err
	}
}
