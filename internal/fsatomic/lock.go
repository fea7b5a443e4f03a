package fsatomic

import "errors"

// ErrLocked is returned by TryLock when the lock is already held
var ErrLocked = errors.New("another update is already in progress")

// WithLock runs fn while holding the lock at lockPath
func WithLock(lockPath string, fn func() error) error {
	unlock, err := TryLock(lockPath)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
