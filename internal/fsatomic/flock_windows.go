//go:build windows

package fsatomic

import (
	"errors"
	"os"
	"path/filepath"
)

// TryLock on Windows approximates an exclusive advisory lock using
// create-excl of the lock file, removed on unlock. A lock file left behind
// by a crashed process has to be removed by hand.
func TryLock(lockPath string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, err
	}
	unlocked := false
	return func() {
		if unlocked {
			return
		}
		_ = f.Close()
		_ = os.Remove(lockPath)
		unlocked = true
	}, nil
}
