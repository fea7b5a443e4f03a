package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/keel/internal/backup"
)

// ErrRollbackDeclined is returned when the rollback confirmation is refused
var ErrRollbackDeclined = errors.New("rollback cancelled")

// BackupStore is the part of backup.Manager the update pipeline uses
type BackupStore interface {
	Create(ctx context.Context, appVersion, note string) (*backup.Record, error)
	Latest() (*backup.Record, error)
	Restore(ctx context.Context, id string, opts backup.RestoreOptions) (*backup.Record, error)
	Prune(keep int) (*backup.PruneResult, error)
}

// Options controls the optional pipeline steps
type Options struct {
	BackupEnabled   bool
	VerifyChecksum  bool
	BackupRetention int // 0 keeps every backup
	RestorePrune    bool
	StagingDir      string
}

// UpdateResult is the outcome of PerformUpdate
type UpdateResult struct {
	State        State     `json:"state" yaml:"state"`
	FromVersion  string    `json:"from_version" yaml:"from_version"`
	ToVersion    string    `json:"to_version,omitempty" yaml:"to_version,omitempty"`
	BackupID     string    `json:"backup_id,omitempty" yaml:"backup_id,omitempty"`
	RolledBack   bool      `json:"rolled_back" yaml:"rolled_back"`
	Inconsistent bool      `json:"inconsistent,omitempty" yaml:"inconsistent,omitempty"`
	History      []State   `json:"history" yaml:"history"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
	Duration     Duration  `json:"duration" yaml:"duration"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`
}

// Updated reports whether a new version was installed
func (r *UpdateResult) Updated() bool {
	return r.State == StateSucceeded
}

// Healthy reports whether the attempt ended in a known-good state: already
// up to date, updated, or rolled back after a failed apply.
func (r *UpdateResult) Healthy() bool {
	switch r.State {
	case StateIdle, StateSucceeded, StateRolledBack:
		return true
	}
	return false
}

// RollbackResult is the outcome of Rollback
type RollbackResult struct {
	BackupID   string    `json:"backup_id" yaml:"backup_id"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	Version    string    `json:"version,omitempty" yaml:"version,omitempty"`
	Files      int       `json:"files" yaml:"files"`
	RestoredAt time.Time `json:"restored_at" yaml:"restored_at"`
}

// Duration renders as a Go duration string in json and yaml
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).Round(time.Millisecond).String() }

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Manager orchestrates check, download, verify, backup, apply and rollback.
//
// It holds no lock of its own: callers must not run two operations against
// one installation at the same time.
type Manager struct {
	checker    Checker
	downloader Downloader
	backups    BackupStore
	applier    Applier
	versions   VersionStore
	opts       Options

	observer func(from, to State)
	confirm  func(rec *backup.Record) bool
	now      func() time.Time
}

// NewManager creates a Manager
func NewManager(checker Checker, downloader Downloader, backups BackupStore, applier Applier, versions VersionStore, opts Options) *Manager {
	if opts.StagingDir == "" {
		opts.StagingDir = os.TempDir()
	}
	return &Manager{
		checker:    checker,
		downloader: downloader,
		backups:    backups,
		applier:    applier,
		versions:   versions,
		opts:       opts,
		now:        time.Now,
	}
}

// SetUpdateChecker replaces the checker used by subsequent operations
func (m *Manager) SetUpdateChecker(c Checker) {
	m.checker = c
}

// SetObserver registers a callback run on every state transition
func (m *Manager) SetObserver(fn func(from, to State)) {
	m.observer = fn
}

// SetConfirm registers the question asked before an unforced rollback
func (m *Manager) SetConfirm(fn func(rec *backup.Record) bool) {
	m.confirm = fn
}

// WithClock replaces the time source (for testing)
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CheckForUpdate delegates to the checker
func (m *Manager) CheckForUpdate(ctx context.Context) (UpdateInfo, error) {
	return m.checker.CheckForUpdate(ctx)
}

// ClearCache drops the cached check result
func (m *Manager) ClearCache(ctx context.Context) error {
	return m.checker.ClearCache(ctx)
}

// PerformUpdate runs the update pipeline once. The returned error, when
// not nil, is a *StageError; the result is always populated. An apply
// failure that was rolled back returns a result in StateRolledBack along
// with the apply error.
func (m *Manager) PerformUpdate(ctx context.Context) (*UpdateResult, error) {
	start := m.now()
	a := newAttempt(m.observer)
	res := &UpdateResult{}

	finish := func(err error) (*UpdateResult, error) {
		res.State = a.State()
		res.History = a.History()
		res.FinishedAt = m.now()
		res.Duration = Duration(res.FinishedAt.Sub(start))
		if err != nil {
			res.Error = err.Error()
		}
		return res, err
	}

	a.to(StateChecking)
	info, err := m.checker.CheckForUpdate(ctx)
	if err != nil {
		serr := stageErr(StateChecking, ErrCheckFailed, err)
		a.fail(serr)
		return finish(serr)
	}
	res.FromVersion = info.CurrentVersion
	if !info.HasUpdate {
		log.Infof("already up to date (%s)", info.CurrentVersion)
		a.to(StateIdle)
		return finish(nil)
	}
	res.ToVersion = info.LatestVersion
	log.Infof("updating from %s to %s", info.CurrentVersion, info.LatestVersion)

	// download
	a.to(StateDownloading)
	artifact := StagingPath(m.opts.StagingDir, info.LatestVersion, info.DownloadURL)
	if err := os.MkdirAll(m.opts.StagingDir, 0o755); err != nil {
		serr := stageErr(StateDownloading, ErrDownloadFailed, err)
		a.fail(serr)
		return finish(serr)
	}
	defer func() { _ = os.Remove(artifact) }()
	if err := m.downloader.Download(ctx, info.DownloadURL, artifact); err != nil {
		serr := stageErr(StateDownloading, ErrDownloadFailed, err)
		a.fail(serr)
		return finish(serr)
	}

	// verify
	a.to(StateVerifying)
	switch {
	case !m.opts.VerifyChecksum:
		log.Debug("checksum verification disabled")
	case info.Checksum == "":
		log.Warnf("release %s publishes no checksum, skipping verification", info.LatestVersion)
	default:
		if err := m.downloader.VerifyChecksum(artifact, info.Checksum); err != nil {
			serr := stageErr(StateVerifying, ErrVerificationFailed, err)
			a.fail(serr)
			return finish(serr)
		}
		log.Debugf("checksum verified for %s", getFilename(artifact))
	}

	// backup: the last safe point
	var rec *backup.Record
	if m.opts.BackupEnabled {
		a.to(StateBackingUp)
		rec, err = m.backups.Create(ctx, info.CurrentVersion, fmt.Sprintf("before update to %s", info.LatestVersion))
		if err != nil {
			serr := stageErr(StateBackingUp, ErrBackupFailed, err)
			a.fail(serr)
			return finish(serr)
		}
		res.BackupID = rec.ID
	}

	// apply; from here on cancellation is ignored
	a.to(StateApplying)
	applyCtx := context.WithoutCancel(ctx)
	report, err := m.applier.Apply(applyCtx, artifact)
	if err == nil {
		if verr := m.versions.SetCurrent(info.LatestVersion); verr != nil {
			err = fmt.Errorf("failed to record installed version: %w", verr)
		}
	}
	if err != nil {
		serr := m.recover(applyCtx, a, res, rec, report, err)
		return finish(serr)
	}
	a.to(StateSucceeded)
	log.Infof("updated to %s", info.LatestVersion)

	if err := m.checker.ClearCache(ctx); err != nil {
		log.Warnf("failed to clear update cache: %v", err)
	}
	if rec != nil && m.opts.BackupRetention > 0 {
		if pruned, err := m.backups.Prune(m.opts.BackupRetention); err != nil {
			log.Warnf("failed to apply backup retention: %v", err)
		} else if len(pruned.Deleted) > 0 {
			log.Infof("removed %d old backups", len(pruned.Deleted))
		}
	}
	return finish(nil)
}

// recover handles an apply failure: it restores the backup taken by this
// attempt and prunes everything the backup does not cover, including files
// the install command wrote before failing.
func (m *Manager) recover(ctx context.Context, a *Attempt, res *UpdateResult, rec *backup.Record, report *ApplyReport, applyErr error) error {
	failure := stageErr(StateApplying, ErrApplyFailed, applyErr)
	a.fail(failure)

	if rec == nil {
		res.Inconsistent = true
		log.Errorf("apply failed and no backup was taken, the installation may be inconsistent: %v", applyErr)
		return failure
	}

	log.Warnf("apply failed, restoring backup %s: %v", rec.ID, applyErr)
	opts := backup.RestoreOptions{Prune: true}
	if report != nil {
		opts.Remove = report.Created
	}
	if _, err := m.backups.Restore(ctx, rec.ID, opts); err != nil {
		res.Inconsistent = true
		log.Errorf("restore of backup %s failed: %v", rec.ID, err)
		return stageErr(StateApplying, ErrRestoreFailed, errors.Join(applyErr, err))
	}

	a.to(StateRolledBack)
	res.RolledBack = true
	log.Infof("rolled back to backup %s", rec.ID)
	return failure
}

// Rollback restores the most recent backup. Unless force is set, the
// confirmation registered with SetConfirm is asked first.
func (m *Manager) Rollback(ctx context.Context, force bool) (*RollbackResult, error) {
	rec, err := m.backups.Latest()
	if err != nil {
		if errors.Is(err, backup.ErrNoBackups) {
			return nil, ErrNoBackupsAvailable
		}
		return nil, fmt.Errorf("%w: %v", ErrRestoreFailed, err)
	}

	if !force && m.confirm != nil && !m.confirm(rec) {
		return nil, ErrRollbackDeclined
	}

	if _, err := m.backups.Restore(ctx, rec.ID, backup.RestoreOptions{Prune: m.opts.RestorePrune}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRestoreFailed, err)
	}

	if rec.AppVersion != "" {
		if err := m.versions.SetCurrent(rec.AppVersion); err != nil {
			log.Warnf("failed to record restored version %s: %v", rec.AppVersion, err)
		}
	}
	if err := m.checker.ClearCache(ctx); err != nil {
		log.Warnf("failed to clear update cache: %v", err)
	}

	return &RollbackResult{
		BackupID:   rec.ID,
		CreatedAt:  rec.CreatedAt,
		Version:    rec.AppVersion,
		Files:      rec.Files(),
		RestoredAt: m.now(),
	}, nil
}
