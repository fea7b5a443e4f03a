// Package schedule runs the scheduled update check on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job is one scheduled run. Errors are logged, they never stop the schedule.
type Job func(ctx context.Context) error

// Runner executes a Job on a schedule until its context is cancelled.
// A run that is still in progress when the next one is due causes that
// next run to be skipped.
type Runner struct {
	spec     string
	schedule cron.Schedule
	job      Job
	runs     atomic.Int64
}

// New parses spec (five-field cron or a descriptor such as "@every 6h")
func New(spec string, job Job) (*Runner, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return newRunner(spec, schedule, job), nil
}

func newRunner(spec string, schedule cron.Schedule, job Job) *Runner {
	return &Runner{spec: spec, schedule: schedule, job: job}
}

// Next returns the first run time after from
func (r *Runner) Next(from time.Time) time.Time {
	return r.schedule.Next(from)
}

// Runs returns how many runs have started
func (r *Runner) Runs() int64 {
	return r.runs.Load()
}

// Run blocks until ctx is cancelled, then waits for an in-flight run.
func (r *Runner) Run(ctx context.Context) error {
	logger := cron.PrintfLogger(log.WithField("component", "schedule"))
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() { r.runOnce(ctx) }))

	c.Start()
	log.WithField("schedule", r.spec).Infof("scheduler started, first run at %s", r.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	log.WithField("schedule", r.spec).Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

func (r *Runner) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n := r.runs.Add(1)
	entry := log.WithField("run", n)
	start := time.Now()

	entry.Debug("scheduled run started")
	if err := r.job(ctx); err != nil {
		entry.WithField("duration", time.Since(start).Round(time.Millisecond)).Errorf("scheduled run failed: %v", err)
		return
	}
	entry.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("scheduled run finished")
}
