// Package config handles Keelfile parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adamancini/keel/internal/types"
)

// Defaults applied to keys missing from the Keelfile.
const (
	DefaultCurrentVersion  = "0.0.0"
	DefaultHTTPTimeout     = 30
	DefaultDownloadRetries = 3
	DefaultCacheTTL        = 3600
	DefaultBackupRetention = 5
	DefaultInstallTimeout  = 600
	DefaultCheckSchedule   = "@every 6h"
	DefaultLogLevel        = "info"

	// StateDirName is the state directory created below app_root when
	// state_dir is not set.
	StateDirName = ".keel"
)

// DefaultExcludes are the paths never touched when exclude_from_update is not set.
func DefaultExcludes() []string {
	return []string{".git", "storage/logs", "storage/cache"}
}

// Keelfile represents the parsed configuration file with defaults applied.
// Relative paths are resolved against the directory holding the Keelfile.
type Keelfile struct {
	Version                int               `yaml:"version" toml:"version" json:"version"`
	AppRoot                string            `yaml:"app_root" toml:"app_root" json:"app_root"`
	CurrentVersion         string            `yaml:"current_version" toml:"current_version" json:"current_version"`
	StateDir               string            `yaml:"state_dir" toml:"state_dir" json:"state_dir"`
	UpdateSourceURL        string            `yaml:"update_source_url" toml:"update_source_url" json:"update_source_url"`
	UpdateSourceToken      string            `yaml:"update_source_token,omitempty" toml:"update_source_token,omitempty" json:"update_source_token,omitempty"`
	HTTPTimeout            int               `yaml:"http_timeout" toml:"http_timeout" json:"http_timeout"`
	DownloadRetries        int               `yaml:"download_retries" toml:"download_retries" json:"download_retries"`
	CacheTTL               int               `yaml:"cache_ttl" toml:"cache_ttl" json:"cache_ttl"`
	CacheDriver            types.CacheDriver `yaml:"cache_driver" toml:"cache_driver" json:"cache_driver"`
	CacheRedisURL          string            `yaml:"cache_redis_url,omitempty" toml:"cache_redis_url,omitempty" json:"cache_redis_url,omitempty"`
	BackupEnabled          bool              `yaml:"backup_enabled" toml:"backup_enabled" json:"backup_enabled"`
	BackupDir              string            `yaml:"backup_dir" toml:"backup_dir" json:"backup_dir"`
	BackupRetention        int               `yaml:"backup_retention" toml:"backup_retention" json:"backup_retention"`
	RestorePrune           bool              `yaml:"restore_prune" toml:"restore_prune" json:"restore_prune"`
	VerifyChecksum         bool              `yaml:"verify_checksum" toml:"verify_checksum" json:"verify_checksum"`
	ExcludeFromUpdate      []string          `yaml:"exclude_from_update" toml:"exclude_from_update" json:"exclude_from_update"`
	ComposerInstallCommand string            `yaml:"composer_install_command,omitempty" toml:"composer_install_command,omitempty" json:"composer_install_command,omitempty"`
	InstallTimeout         int               `yaml:"install_timeout" toml:"install_timeout" json:"install_timeout"`
	AutoUpdateEnabled      bool              `yaml:"auto_update_enabled" toml:"auto_update_enabled" json:"auto_update_enabled"`
	CheckSchedule          string            `yaml:"check_schedule" toml:"check_schedule" json:"check_schedule"`
	LogLevel               string            `yaml:"log_level" toml:"log_level" json:"log_level"`
	LogFile                string            `yaml:"log_file,omitempty" toml:"log_file,omitempty" json:"log_file,omitempty"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// HTTPTimeoutDuration returns http_timeout as a duration.
func (k *Keelfile) HTTPTimeoutDuration() time.Duration {
	return time.Duration(k.HTTPTimeout) * time.Second
}

// CacheTTLDuration returns cache_ttl as a duration. Zero disables caching.
func (k *Keelfile) CacheTTLDuration() time.Duration {
	return time.Duration(k.CacheTTL) * time.Second
}

// InstallTimeoutDuration returns install_timeout as a duration.
func (k *Keelfile) InstallTimeoutDuration() time.Duration {
	return time.Duration(k.InstallTimeout) * time.Second
}

// CacheDir is where the file cache driver keeps its entries.
func (k *Keelfile) CacheDir() string {
	return filepath.Join(k.StateDir, "cache")
}

// StagingDir is where artifacts are downloaded and extracted.
func (k *Keelfile) StagingDir() string {
	return filepath.Join(k.StateDir, "staging")
}

// LockPath is the single-instance lock file.
func (k *Keelfile) LockPath() string {
	return filepath.Join(k.StateDir, "keel.lock")
}

// Excludes returns the exclusion patterns for apply, backup and restore:
// the configured paths plus the state and backup directories when they live
// inside app_root.
func (k *Keelfile) Excludes() []string {
	out := append([]string(nil), k.ExcludeFromUpdate...)
	state, stateInside := relInside(k.AppRoot, k.StateDir)
	if stateInside {
		out = append(out, state)
	}
	if rel, ok := relInside(k.AppRoot, k.BackupDir); ok {
		if !stateInside || !strings.HasPrefix(rel+"/", state+"/") {
			out = append(out, rel)
		}
	}
	return out
}

// relInside returns path relative to root when path is strictly inside root.
func relInside(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// candidateNames are the Keelfile names tried in every search directory.
var candidateNames = []string{
	"Keelfile",
	"Keelfile.yaml",
	"Keelfile.yml",
	"Keelfile.toml",
	"Keelfile.json",
	".keel.yaml",
	".keel.yml",
	".keel.toml",
	".keel.json",
}

// FindConfig searches for a Keelfile in the standard locations.
// Returns the path to the first Keelfile found, or an error if none exists.
func FindConfig(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified Keelfile not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Check KEELFILE environment variable
	if envPath := os.Getenv("KEELFILE"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, dir := range searchDirs() {
		for _, name := range candidateNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("no Keelfile found in standard locations")
}

// searchDirs lists the directories searched, in order of precedence.
func searchDirs() []string {
	var dirs []string

	home, err := os.UserHomeDir()
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" && err == nil {
		xdgConfig = filepath.Join(home, ".config")
	}
	if xdgConfig != "" {
		dirs = append(dirs, filepath.Join(xdgConfig, "keel"))
	}
	if err == nil {
		dirs = append(dirs, filepath.Join(home, ".keel"))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}

// Load reads, parses and validates a Keelfile from the given path.
func Load(path string) (*Keelfile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Keelfile: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	keelfile, err := parse(content, format)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Keelfile path: %w", err)
	}
	keelfile.Path = abs
	keelfile.resolvePaths(filepath.Dir(abs))

	if err := Validate(keelfile); err != nil {
		return nil, err
	}

	return keelfile, nil
}

// resolvePaths makes every path absolute and fills the path defaults that
// depend on app_root.
func (k *Keelfile) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	k.AppRoot = abs(k.AppRoot)
	k.StateDir = abs(k.StateDir)
	k.BackupDir = abs(k.BackupDir)
	k.LogFile = abs(k.LogFile)

	if k.StateDir == "" && k.AppRoot != "" {
		k.StateDir = filepath.Join(k.AppRoot, StateDirName)
	}
	if k.BackupDir == "" && k.StateDir != "" {
		k.BackupDir = filepath.Join(k.StateDir, "backups")
	}
}
