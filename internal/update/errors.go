package update

import (
	"errors"
	"fmt"

	"github.com/adamancini/keel/internal/backup"
)

// Error kinds. A failure returned by the Manager matches exactly one of
// these with errors.Is, in addition to its underlying cause.
var (
	ErrCheckFailed        = errors.New("update check failed")
	ErrDownloadFailed     = errors.New("artifact download failed")
	ErrVerificationFailed = errors.New("artifact verification failed")
	ErrBackupFailed       = errors.New("backup failed")
	ErrApplyFailed        = errors.New("apply failed")
	ErrRestoreFailed      = errors.New("restore failed")

	// ErrNoBackupsAvailable is returned by Rollback when the store is empty.
	// It is an expected outcome, not a fault.
	ErrNoBackupsAvailable = backup.ErrNoBackups
)

// StageError reports which pipeline stage failed, the error kind and the cause
type StageError struct {
	Stage State
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageErr(stage State, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
