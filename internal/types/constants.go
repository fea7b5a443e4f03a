// Package types provides type-safe constants for the keel configuration system.
//
// This package centralizes the enumerated types used throughout the codebase,
// replacing magic strings with typed constants that provide validation methods.
//
// SYNC REQUIREMENT: These types must stay in sync with internal/config/validate.go.
package types

import (
	"fmt"
	"strings"
)

// CacheDriver selects where update check results are cached.
type CacheDriver string

const (
	// CacheDriverFile stores entries as JSON files in the state directory.
	CacheDriverFile CacheDriver = "file"
	// CacheDriverMemory keeps entries in process memory.
	CacheDriverMemory CacheDriver = "memory"
	// CacheDriverRedis shares entries through a redis server.
	CacheDriverRedis CacheDriver = "redis"
)

// Validate checks if the CacheDriver is a valid value.
// Empty is valid and means the default (file).
func (d CacheDriver) Validate() error {
	switch d {
	case CacheDriverFile, CacheDriverMemory, CacheDriverRedis, "":
		return nil
	default:
		return fmt.Errorf("invalid cache driver '%s' (must be file, memory, or redis)", d)
	}
}

// String returns the string representation of the CacheDriver.
func (d CacheDriver) String() string {
	return string(d)
}

// Default returns the default driver if empty, otherwise the current driver.
func (d CacheDriver) Default() CacheDriver {
	if d == "" {
		return CacheDriverFile
	}
	return d
}

// IsRedis returns true if the driver is redis.
func (d CacheDriver) IsRedis() bool {
	return d == CacheDriverRedis
}

// ParseCacheDriver parses a string into a CacheDriver.
// Returns an error if the string is not a valid driver.
func ParseCacheDriver(s string) (CacheDriver, error) {
	d := CacheDriver(strings.ToLower(strings.TrimSpace(s)))
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d.Default(), nil
}

// ArchiveFormat identifies a release artifact container.
type ArchiveFormat string

const (
	// ArchiveZip is a zip archive.
	ArchiveZip ArchiveFormat = "zip"
	// ArchiveTarGz is a gzip-compressed tar archive.
	ArchiveTarGz ArchiveFormat = "tar.gz"
)

// Validate checks if the ArchiveFormat is supported.
func (f ArchiveFormat) Validate() error {
	switch f {
	case ArchiveZip, ArchiveTarGz:
		return nil
	case "":
		return fmt.Errorf("archive format is required")
	default:
		return fmt.Errorf("unsupported archive format '%s' (must be zip or tar.gz)", f)
	}
}

// String returns the string representation of the ArchiveFormat.
func (f ArchiveFormat) String() string {
	return string(f)
}

// DetectArchiveFormat identifies an archive from its leading bytes.
func DetectArchiveFormat(header []byte) (ArchiveFormat, error) {
	switch {
	case len(header) >= 4 && header[0] == 'P' && header[1] == 'K' &&
		(header[2] == 3 && header[3] == 4 || header[2] == 5 && header[3] == 6):
		return ArchiveZip, nil
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		return ArchiveTarGz, nil
	default:
		return "", fmt.Errorf("unrecognized archive format (expected zip or tar.gz)")
	}
}

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// OutputText is human readable output.
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON.
	OutputJSON OutputFormat = "json"
	// OutputYAML is YAML.
	OutputYAML OutputFormat = "yaml"
)

// Validate checks if the OutputFormat is a valid value.
func (o OutputFormat) Validate() error {
	switch o {
	case OutputText, OutputJSON, OutputYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format '%s' (must be text, json, or yaml)", o)
	}
}

// String returns the string representation of the OutputFormat.
func (o OutputFormat) String() string {
	return string(o)
}

// ParseOutputFormat parses a string into an OutputFormat.
// Empty means text; "yml" is accepted for yaml.
func ParseOutputFormat(s string) (OutputFormat, error) {
	o := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case "":
		return OutputText, nil
	case "yml":
		return OutputYAML, nil
	}
	if err := o.Validate(); err != nil {
		return "", err
	}
	return o, nil
}
