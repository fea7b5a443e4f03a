// Package fsatomic provides crash-safe file writes, tree copies and an
// advisory single-instance lock.
package fsatomic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// tmpSuffix marks in-flight writes.
const tmpSuffix = ".tmp"

// SaveJSON atomically writes v as pretty JSON to path with durability guarantees.
// It writes to a temp file in the same directory, fsyncs, renames into place,
// then fsyncs the parent directory. On any error the temp file is removed.
// If perm is 0, 0600 is used.
func SaveJSON(ctx context.Context, path string, v any, perm fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return WriteFile(path, b, perm)
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	return WriteReader(path, bytes.NewReader(data), perm)
}

// WriteReader atomically replaces path with the contents of r.
func WriteReader(path string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0o600
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := rename(tmp, path); err != nil {
		cleanup()
		return err
	}
	return fsyncDir(dir)
}

// rename moves tmp over path, with a Windows-friendly retry
func rename(tmp, path string) error {
	var err error
	for i := 0; i < 5; i++ {
		if err = os.Rename(tmp, path); err == nil {
			return nil
		}
		if runtime.GOOS != "windows" {
			return err
		}
		// On Windows, destination existing or transient file-in-use can cause failure
		_ = os.Remove(path)
		time.Sleep(time.Duration(10*(i+1)) * time.Millisecond)
	}
	return errors.Join(errors.New("rename failed after retries"), err)
}

// LoadJSON loads JSON from path into v. Returns exists=false if file is missing.
func LoadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// fsyncDir calls Sync on a directory to persist metadata; no-op on Windows.
func fsyncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// FsyncDir is an exported helper for callers needing to sync a directory.
func FsyncDir(dir string) error { return fsyncDir(dir) }
