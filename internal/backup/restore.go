package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/keel/internal/fsatomic"
)

// RestoreOptions tunes a restore
type RestoreOptions struct {
	// Prune removes files under the root that the backup does not cover.
	// Without it, files created after the backup are left untouched.
	Prune bool

	// Remove lists paths, relative to the root, to delete after the restore
	// when the backup does not cover them.
	Remove []string
}

// RestoreLatest restores the most recent backup.
func (m *Manager) RestoreLatest(ctx context.Context, opts RestoreOptions) (*Record, error) {
	rec, err := m.Latest()
	if err != nil {
		return nil, err
	}
	return rec, m.restore(ctx, rec, opts)
}

// Restore copies every path covered by backup id back over the tree.
func (m *Manager) Restore(ctx context.Context, id string, opts RestoreOptions) (*Record, error) {
	rec, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return rec, m.restore(ctx, rec, opts)
}

func (m *Manager) restore(ctx context.Context, rec *Record, opts RestoreOptions) error {
	src := filepath.Join(rec.Location, filesDir)
	if _, err := os.Stat(src); err != nil && len(rec.SourcePaths) > 0 {
		return fmt.Errorf("backup %s has no file tree: %w", rec.ID, err)
	}

	covered := make(map[string]struct{}, len(rec.SourcePaths))
	for _, rel := range rec.SourcePaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		covered[rel] = struct{}{}
		if m.exclude.Match(rel) {
			// excluded now; never required for a restore
			continue
		}

		info, err := os.Lstat(filepath.Join(src, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("backup %s is missing %s: %w", rec.ID, rel, err)
		}
		if err := fsatomic.CopyEntry(src, m.root, fsatomic.Entry{Rel: rel, Mode: info.Mode()}); err != nil {
			return fmt.Errorf("failed to restore %s: %w", rel, err)
		}
	}

	keep := make(map[string]struct{}, len(rec.EmptyDirs))
	for _, dir := range rec.EmptyDirs {
		keep[dir] = struct{}{}
	}

	if opts.Prune {
		if err := m.prune(covered, keep); err != nil {
			return err
		}
	}
	for _, rel := range opts.Remove {
		if _, ok := covered[rel]; ok || m.exclude.Match(rel) {
			continue
		}
		if err := removePath(m.root, rel, keep); err != nil {
			return err
		}
	}

	log.Infof("restored backup %s (%d files) into %s", rec.ID, len(rec.SourcePaths), m.root)
	return nil
}

// prune removes files under root that are neither covered nor excluded
func (m *Manager) prune(covered, keep map[string]struct{}) error {
	var extra []string
	err := fsatomic.Walk(m.root, m.exclude, func(e fsatomic.Entry) error {
		if _, ok := covered[e.Rel]; !ok {
			extra = append(extra, e.Rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", m.root, err)
	}

	for _, rel := range extra {
		if err := removePath(m.root, rel, keep); err != nil {
			return err
		}
		log.Debugf("pruned %s", rel)
	}
	return nil
}

// removePath deletes root/rel and any parent directories it leaves empty.
// The climb stops at directories listed in keep, which existed empty when
// the backup was taken.
func removePath(root, rel string, keep map[string]struct{}) error {
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}

	absRoot := filepath.Clean(root)
	for dir := filepath.Dir(path); dir != absRoot && len(dir) > len(absRoot); dir = filepath.Dir(dir) {
		if dirRel, err := filepath.Rel(absRoot, dir); err == nil {
			if _, ok := keep[filepath.ToSlash(dirRel)]; ok {
				break
			}
		}
		// os.Remove fails on non-empty directories, which ends the climb
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}
