package update

import (
	"context"
	"time"
)

// UpdateInfo describes the outcome of an update check. It is a value:
// every check produces a new one and nothing mutates it afterwards.
type UpdateInfo struct {
	HasUpdate      bool      `json:"has_update" yaml:"has_update"`
	CurrentVersion string    `json:"current_version" yaml:"current_version"`
	LatestVersion  string    `json:"latest_version" yaml:"latest_version"`
	DownloadURL    string    `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	Checksum       string    `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	ReleaseNotes   string    `json:"release_notes,omitempty" yaml:"release_notes,omitempty"`
	CheckedAt      time.Time `json:"checked_at" yaml:"checked_at"`
}

// NewUpdateInfo builds an UpdateInfo for a release seen from the given
// current version. HasUpdate is derived, never supplied.
func NewUpdateInfo(current string, rel Release, checkedAt time.Time) UpdateInfo {
	info := UpdateInfo{
		CurrentVersion: NormalizeVersion(current),
		LatestVersion:  NormalizeVersion(rel.Version),
		ReleaseNotes:   rel.Notes,
		CheckedAt:      checkedAt,
	}
	info.HasUpdate = IsNewer(info.LatestVersion, info.CurrentVersion)
	if info.HasUpdate {
		info.DownloadURL = rel.DownloadURL
		info.Checksum = rel.Checksum
	}
	return info
}

// Release is the metadata published by a remote source for its newest release
type Release struct {
	Version     string
	DownloadURL string
	Checksum    string // "<hex>", "sha256:<hex>" or "sha512:<hex>"; may be empty
	Notes       string
	PublishedAt time.Time
}

// Source fetches release metadata from a remote endpoint
type Source interface {
	Latest(ctx context.Context) (Release, error)
	// Identity names the endpoint; caches are keyed by it.
	Identity() string
}

// Checker checks for available updates
type Checker interface {
	CheckForUpdate(ctx context.Context) (UpdateInfo, error)
	ClearCache(ctx context.Context) error
}

// Downloader downloads and verifies artifacts
type Downloader interface {
	Download(ctx context.Context, url string, dst string) error
	VerifyChecksum(file, checksum string) error
}

// Applier installs a staged artifact over the application tree
type Applier interface {
	Apply(ctx context.Context, artifact string) (*ApplyReport, error)
}

// ApplyReport lists what an apply wrote, relative to the application root
type ApplyReport struct {
	Written []string // every file replaced or created
	Created []string // files that did not exist before the apply
}

// VersionStore owns the installed version marker
type VersionStore interface {
	Current() (string, error)
	SetCurrent(version string) error
}
