// Package state owns the installed-version marker of the application.
//
// The marker is a single JSON record in the keel state directory. It is the
// one place keel learns which version is installed; the configured
// current_version only seeds it until the first successful update.
package state

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adamancini/keel/internal/fsatomic"
)

// MarkerFile is the marker's file name inside the state directory.
const MarkerFile = "version.json"

// Marker records the installed application version.
type Marker struct {
	Version         string    `json:"version" yaml:"version"`
	PreviousVersion string    `json:"previous_version,omitempty" yaml:"previous_version,omitempty"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store reads and writes the marker file.
type Store struct {
	path string
	seed string
	now  func() time.Time
}

// NewStore creates a Store for stateDir. seed is reported as the version
// until a marker has been written.
func NewStore(stateDir, seed string) *Store {
	return &Store{
		path: filepath.Join(stateDir, MarkerFile),
		seed: seed,
		now:  time.Now,
	}
}

// WithClock replaces the time source (for testing)
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Path returns the marker file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored marker, or a marker holding the seed when none exists.
func (s *Store) Read() (*Marker, error) {
	var m Marker
	exists, err := fsatomic.LoadJSON(s.path, &m)
	if err != nil {
		return nil, fmt.Errorf("failed to read version marker %s: %w", s.path, err)
	}
	if !exists || strings.TrimSpace(m.Version) == "" {
		return &Marker{Version: s.seed}, nil
	}
	return &m, nil
}

// Write atomically replaces the marker.
func (s *Store) Write(m Marker) error {
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("version marker requires a version")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = s.now().UTC()
	}
	if err := fsatomic.SaveJSON(context.Background(), s.path, m, 0o644); err != nil {
		return fmt.Errorf("failed to write version marker %s: %w", s.path, err)
	}
	return nil
}

// Current returns the installed version.
func (s *Store) Current() (string, error) {
	m, err := s.Read()
	if err != nil {
		return "", err
	}
	return m.Version, nil
}

// SetCurrent records version as installed, remembering the one it replaced.
func (s *Store) SetCurrent(version string) error {
	prev, err := s.Current()
	if err != nil {
		// an unreadable marker is overwritten, not fatal
		prev = ""
	}
	if prev == version {
		prev = ""
	}
	return s.Write(Marker{Version: version, PreviousVersion: prev})
}
