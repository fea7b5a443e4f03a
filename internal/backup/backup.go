// Package backup handles point-in-time snapshots of the application tree.
//
// Each backup is a directory in the store holding a copy of the captured
// files and a backup.json record. A backup is assembled under a hidden
// ".partial" name and renamed into place only once complete, so a crash
// mid-backup never leaves a record behind.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/keel/internal/fsatomic"
)

const (
	recordFile    = "backup.json"
	filesDir      = "files"
	partialSuffix = ".partial"
	idLayout      = "20060102-150405.000000"
)

// ErrNoBackups is returned when a backup is requested from an empty store
var ErrNoBackups = errors.New("no backups found")

// Record describes a single backup snapshot.
type Record struct {
	ID          string    `json:"id" yaml:"id"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Note        string    `json:"note,omitempty" yaml:"note,omitempty"`
	AppVersion  string    `json:"app_version" yaml:"app_version"`
	KeelVersion string    `json:"keel_version" yaml:"keel_version"`
	SourceRoot  string    `json:"source_root" yaml:"source_root"`
	SourcePaths []string  `json:"source_paths" yaml:"-"`
	EmptyDirs   []string  `json:"empty_dirs,omitempty" yaml:"-"`
	Excludes    []string  `json:"excludes,omitempty" yaml:"excludes,omitempty"`
	Size        int64     `json:"size" yaml:"size"`

	// Location is the backup directory; derived when the record is loaded.
	Location string `json:"-" yaml:"location"`
}

// Files returns the number of captured paths
func (r *Record) Files() int {
	return len(r.SourcePaths)
}

// Manager handles backup operations for one application tree.
type Manager struct {
	root        string
	backupDir   string
	exclude     *fsatomic.Matcher
	keelVersion string
	now         func() time.Time
}

// NewManager creates a backup manager for root storing into backupDir.
// The store itself is always excluded when it lives inside root.
func NewManager(root, backupDir string, excludes []string) *Manager {
	m := &Manager{
		root:        root,
		backupDir:   backupDir,
		exclude:     fsatomic.NewMatcher(excludes...),
		keelVersion: "dev",
		now:         time.Now,
	}
	if rel, ok := within(root, backupDir); ok {
		m.exclude = m.exclude.With(rel)
	}
	return m
}

// WithKeelVersion records the keel version in new backups
func (m *Manager) WithKeelVersion(version string) *Manager {
	m.keelVersion = version
	return m
}

// WithClock replaces the time source (for testing)
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// BackupDir returns the backup directory path.
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// Create snapshots the application tree, minus exclusions.
func (m *Manager) Create(ctx context.Context, appVersion, note string) (*Record, error) {
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	m.cleanPartial()

	id := m.nextID()
	partial := filepath.Join(m.backupDir, "."+id+partialSuffix)
	final := filepath.Join(m.backupDir, id)

	rec := &Record{
		ID:          id,
		CreatedAt:   m.now(),
		Note:        note,
		AppVersion:  appVersion,
		KeelVersion: m.keelVersion,
		SourceRoot:  m.root,
		SourcePaths: []string{},
		Excludes:    m.exclude.Patterns(),
	}

	dst := filepath.Join(partial, filesDir)
	err := fsatomic.Walk(m.root, m.exclude, func(e fsatomic.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fsatomic.CopyEntry(m.root, dst, e); err != nil {
			return err
		}
		if info, err := os.Lstat(filepath.Join(dst, filepath.FromSlash(e.Rel))); err == nil {
			rec.Size += info.Size()
		}
		rec.SourcePaths = append(rec.SourcePaths, e.Rel)
		return nil
	})
	if err == nil {
		rec.EmptyDirs, err = fsatomic.EmptyDirs(m.root, m.exclude)
	}
	if err == nil {
		err = fsatomic.SaveJSON(ctx, filepath.Join(partial, recordFile), rec, 0o644)
	}
	if err == nil {
		err = os.Rename(partial, final)
	}
	if err == nil {
		err = fsatomic.FsyncDir(m.backupDir)
	}
	if err != nil {
		_ = os.RemoveAll(partial)
		return nil, fmt.Errorf("failed to create backup %s: %w", id, err)
	}

	rec.Location = final
	log.Infof("created backup %s (%d files, %d bytes)", id, len(rec.SourcePaths), rec.Size)
	return rec, nil
}

// nextID returns a timestamp ID that sorts after every existing backup
func (m *Manager) nextID() string {
	t := m.now().UTC()
	for {
		id := t.Format(idLayout)
		if _, err := os.Stat(filepath.Join(m.backupDir, id)); os.IsNotExist(err) {
			return id
		}
		t = t.Add(time.Microsecond)
	}
}

// cleanPartial removes backups abandoned by a crash
func (m *Manager) cleanPartial() {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") && strings.HasSuffix(entry.Name(), partialSuffix) {
			log.Warnf("removing incomplete backup %s", entry.Name())
			_ = os.RemoveAll(filepath.Join(m.backupDir, entry.Name()))
		}
	}
}

// List returns all backups sorted by creation time (newest first).
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []Record{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		rec, err := m.load(entry.Name())
		if err != nil {
			log.Debugf("skipping %s: %v", entry.Name(), err)
			continue
		}
		backups = append(backups, *rec)
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].ID > backups[j].ID
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Latest returns the most recent backup or ErrNoBackups.
func (m *Manager) Latest() (*Record, error) {
	backups, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, ErrNoBackups
	}
	return &backups[0], nil
}

// Get retrieves a backup by ID. Use "latest" to get the most recent backup.
func (m *Manager) Get(id string) (*Record, error) {
	if id == "latest" {
		return m.Latest()
	}
	if !validID(id) {
		return nil, fmt.Errorf("invalid backup id: %q", id)
	}
	return m.load(id)
}

// Delete removes a backup by ID.
func (m *Manager) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("invalid backup id: %q", id)
	}
	path := filepath.Join(m.backupDir, id)

	if _, err := os.Stat(filepath.Join(path, recordFile)); os.IsNotExist(err) {
		return fmt.Errorf("backup not found: %s", id)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	return nil
}

// load reads and parses a backup record.
func (m *Manager) load(id string) (*Record, error) {
	dir := filepath.Join(m.backupDir, id)
	var rec Record
	exists, err := fsatomic.LoadJSON(filepath.Join(dir, recordFile), &rec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backup record %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("backup not found: %s", id)
	}
	rec.Location = dir
	return &rec, nil
}

// validID rejects IDs that could escape the store
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// within returns target relative to root when target lies inside root
func within(root, target string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
