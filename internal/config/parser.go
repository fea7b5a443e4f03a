package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/adamancini/keel/internal/types"
)

// Format represents the file format of a Keelfile.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// Content sniffing for extensionless files
	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	// The first meaningful line decides: "key = value" or a [table] is TOML,
	// "key: value" is YAML.
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			return FormatTOML
		}
		eq := strings.Index(line, "=")
		colon := strings.Index(line, ":")
		switch {
		case eq > 0 && (colon < 0 || eq < colon):
			return FormatTOML
		case colon > 0:
			return FormatYAML
		}
		return FormatUnknown
	}

	return FormatUnknown
}

// rawKeelfile is an intermediate representation for parsing. Pointer
// fields tell a missing key (take the default) from an explicit zero.
type rawKeelfile struct {
	Version                int       `yaml:"version" toml:"version" json:"version"`
	AppRoot                string    `yaml:"app_root" toml:"app_root" json:"app_root"`
	CurrentVersion         string    `yaml:"current_version" toml:"current_version" json:"current_version"`
	StateDir               string    `yaml:"state_dir" toml:"state_dir" json:"state_dir"`
	UpdateSourceURL        string    `yaml:"update_source_url" toml:"update_source_url" json:"update_source_url"`
	UpdateSourceToken      string    `yaml:"update_source_token" toml:"update_source_token" json:"update_source_token"`
	HTTPTimeout            *int      `yaml:"http_timeout" toml:"http_timeout" json:"http_timeout"`
	DownloadRetries        *int      `yaml:"download_retries" toml:"download_retries" json:"download_retries"`
	CacheTTL               *int      `yaml:"cache_ttl" toml:"cache_ttl" json:"cache_ttl"`
	CacheDriver            string    `yaml:"cache_driver" toml:"cache_driver" json:"cache_driver"`
	CacheRedisURL          string    `yaml:"cache_redis_url" toml:"cache_redis_url" json:"cache_redis_url"`
	BackupEnabled          *bool     `yaml:"backup_enabled" toml:"backup_enabled" json:"backup_enabled"`
	BackupDir              string    `yaml:"backup_dir" toml:"backup_dir" json:"backup_dir"`
	BackupRetention        *int      `yaml:"backup_retention" toml:"backup_retention" json:"backup_retention"`
	RestorePrune           bool      `yaml:"restore_prune" toml:"restore_prune" json:"restore_prune"`
	VerifyChecksum         *bool     `yaml:"verify_checksum" toml:"verify_checksum" json:"verify_checksum"`
	ExcludeFromUpdate      *[]string `yaml:"exclude_from_update" toml:"exclude_from_update" json:"exclude_from_update"`
	ComposerInstallCommand string    `yaml:"composer_install_command" toml:"composer_install_command" json:"composer_install_command"`
	InstallTimeout         *int      `yaml:"install_timeout" toml:"install_timeout" json:"install_timeout"`
	AutoUpdateEnabled      bool      `yaml:"auto_update_enabled" toml:"auto_update_enabled" json:"auto_update_enabled"`
	CheckSchedule          string    `yaml:"check_schedule" toml:"check_schedule" json:"check_schedule"`
	LogLevel               string    `yaml:"log_level" toml:"log_level" json:"log_level"`
	LogFile                string    `yaml:"log_file" toml:"log_file" json:"log_file"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
func expandEnvVars(content []byte) []byte {
	result := envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := os.Getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			// Use default value
			value = string(parts[2])
		}

		return []byte(value)
	})

	return result
}

// parse parses the content according to the specified format and applies
// defaults for every key the file omits.
func parse(content []byte, format Format) (*Keelfile, error) {
	// Expand environment variables first
	content = expandEnvVars(content)

	var raw rawKeelfile

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	k := &Keelfile{
		Version:                raw.Version,
		AppRoot:                raw.AppRoot,
		CurrentVersion:         strings.TrimSpace(raw.CurrentVersion),
		StateDir:               raw.StateDir,
		UpdateSourceURL:        strings.TrimSpace(raw.UpdateSourceURL),
		UpdateSourceToken:      raw.UpdateSourceToken,
		HTTPTimeout:            intOr(raw.HTTPTimeout, DefaultHTTPTimeout),
		DownloadRetries:        intOr(raw.DownloadRetries, DefaultDownloadRetries),
		CacheTTL:               intOr(raw.CacheTTL, DefaultCacheTTL),
		CacheDriver:            types.CacheDriver(strings.ToLower(strings.TrimSpace(raw.CacheDriver))).Default(),
		CacheRedisURL:          raw.CacheRedisURL,
		BackupEnabled:          boolOr(raw.BackupEnabled, true),
		BackupDir:              raw.BackupDir,
		BackupRetention:        intOr(raw.BackupRetention, DefaultBackupRetention),
		RestorePrune:           raw.RestorePrune,
		VerifyChecksum:         boolOr(raw.VerifyChecksum, true),
		ComposerInstallCommand: strings.TrimSpace(raw.ComposerInstallCommand),
		InstallTimeout:         intOr(raw.InstallTimeout, DefaultInstallTimeout),
		AutoUpdateEnabled:      raw.AutoUpdateEnabled,
		CheckSchedule:          strings.TrimSpace(raw.CheckSchedule),
		LogLevel:               strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		LogFile:                raw.LogFile,
	}

	if k.Version == 0 {
		k.Version = 1
	}
	if k.CurrentVersion == "" {
		k.CurrentVersion = DefaultCurrentVersion
	}
	if k.CheckSchedule == "" {
		k.CheckSchedule = DefaultCheckSchedule
	}
	if k.LogLevel == "" {
		k.LogLevel = DefaultLogLevel
	}
	if raw.ExcludeFromUpdate != nil {
		k.ExcludeFromUpdate = cleanExcludes(*raw.ExcludeFromUpdate)
	} else {
		k.ExcludeFromUpdate = DefaultExcludes()
	}

	return k, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// cleanExcludes normalizes exclusion patterns to slash-separated paths
// without leading "./" or trailing "/", dropping empty entries.
func cleanExcludes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(filepath.ToSlash(p))
		p = strings.TrimPrefix(p, "./")
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
