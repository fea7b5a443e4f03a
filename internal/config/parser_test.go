package config

import (
	"strings"
	"testing"

	"github.com/adamancini/keel/internal/types"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		content  string
		expected Format
	}{
		{"yaml extension", "Keelfile.yaml", "", FormatYAML},
		{"yml extension", "Keelfile.yml", "", FormatYAML},
		{"toml extension", "Keelfile.toml", "", FormatTOML},
		{"json extension", "Keelfile.json", "", FormatJSON},
		{"json content", "Keelfile", `{"version": 1}`, FormatJSON},
		{"yaml content", "Keelfile", `version: 1`, FormatYAML},
		{"toml content", "Keelfile", `version = 1`, FormatTOML},
		{"yaml with url value", "Keelfile", "# comment\nupdate_source_url: https://example.com/x?a=b", FormatYAML},
		{"toml with url value", "Keelfile", `update_source_url = "https://example.com/latest.json"`, FormatTOML},
		{"toml table", "Keelfile", "[settings]\nkey = 1", FormatTOML},
		{"unknown", "Keelfile", "just some words", FormatUnknown},
		{"empty", "Keelfile", "", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectFormat(tt.path, []byte(tt.content))
			if got != tt.expected {
				t.Errorf("detectFormat() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "${TEST_VAR}", "test_value"},
		{"var with default", "${MISSING_VAR:-default_value}", "default_value"},
		{"existing var ignores default", "${TEST_VAR:-default_value}", "test_value"},
		{"empty var uses default", "${EMPTY_VAR:-default_value}", "default_value"},
		{"missing var without default", "${MISSING_VAR}", ""},
		{"no var", "plain text", "plain text"},
		{"mixed content", "prefix ${TEST_VAR} suffix", "prefix test_value suffix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(expandEnvVars([]byte(tt.input)))
			if got != tt.expected {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseDefaults(t *testing.T) {
	k, err := parse([]byte("app_root: /srv/app\nupdate_source_url: https://example.com/latest.json\n"), FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if k.Version != 1 {
		t.Errorf("Version = %d, want 1", k.Version)
	}
	if k.CurrentVersion != DefaultCurrentVersion {
		t.Errorf("CurrentVersion = %s, want %s", k.CurrentVersion, DefaultCurrentVersion)
	}
	if k.HTTPTimeout != DefaultHTTPTimeout || k.DownloadRetries != DefaultDownloadRetries {
		t.Errorf("HTTPTimeout = %d, DownloadRetries = %d", k.HTTPTimeout, k.DownloadRetries)
	}
	if k.CacheTTL != DefaultCacheTTL {
		t.Errorf("CacheTTL = %d, want %d", k.CacheTTL, DefaultCacheTTL)
	}
	if k.CacheDriver != types.CacheDriverFile {
		t.Errorf("CacheDriver = %s, want file", k.CacheDriver)
	}
	if !k.BackupEnabled || !k.VerifyChecksum {
		t.Error("backup_enabled and verify_checksum default to true")
	}
	if k.RestorePrune || k.AutoUpdateEnabled {
		t.Error("restore_prune and auto_update_enabled default to false")
	}
	if k.BackupRetention != DefaultBackupRetention {
		t.Errorf("BackupRetention = %d, want %d", k.BackupRetention, DefaultBackupRetention)
	}
	if k.InstallTimeout != DefaultInstallTimeout {
		t.Errorf("InstallTimeout = %d, want %d", k.InstallTimeout, DefaultInstallTimeout)
	}
	if strings.Join(k.ExcludeFromUpdate, ",") != ".git,storage/logs,storage/cache" {
		t.Errorf("ExcludeFromUpdate = %v", k.ExcludeFromUpdate)
	}
	if k.CheckSchedule != DefaultCheckSchedule || k.LogLevel != DefaultLogLevel {
		t.Errorf("CheckSchedule = %q, LogLevel = %q", k.CheckSchedule, k.LogLevel)
	}
}

func TestParseExplicitZeros(t *testing.T) {
	content := []byte(`
app_root: /srv/app
update_source_url: https://example.com/latest.json
cache_ttl: 0
download_retries: 0
backup_enabled: false
verify_checksum: false
backup_retention: 0
exclude_from_update: []
`)

	k, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if k.CacheTTL != 0 || k.DownloadRetries != 0 || k.BackupRetention != 0 {
		t.Errorf("explicit zeros replaced by defaults: %+v", k)
	}
	if k.BackupEnabled || k.VerifyChecksum {
		t.Error("explicit false replaced by default true")
	}
	if len(k.ExcludeFromUpdate) != 0 {
		t.Errorf("ExcludeFromUpdate = %v, want empty", k.ExcludeFromUpdate)
	}
}

func TestParseYAML(t *testing.T) {
	content := []byte(`
version: 1
app_root: /srv/app
current_version: 1.2.0
update_source_url: https://updates.example.com/latest.json
update_source_token: abc
cache_ttl: 600
cache_driver: Redis
cache_redis_url: redis://localhost:6379/0
exclude_from_update:
  - ./storage/logs/
  - .env
  - ""
composer_install_command: composer install --no-dev
auto_update_enabled: true
check_schedule: "0 3 * * *"
log_level: DEBUG
`)

	k, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if k.CurrentVersion != "1.2.0" || k.UpdateSourceToken != "abc" || k.CacheTTL != 600 {
		t.Errorf("parse() = %+v", k)
	}
	if k.CacheDriver != types.CacheDriverRedis {
		t.Errorf("CacheDriver = %s, want redis", k.CacheDriver)
	}
	if strings.Join(k.ExcludeFromUpdate, ",") != "storage/logs,.env" {
		t.Errorf("ExcludeFromUpdate = %v", k.ExcludeFromUpdate)
	}
	if k.ComposerInstallCommand != "composer install --no-dev" || !k.AutoUpdateEnabled {
		t.Errorf("parse() = %+v", k)
	}
	if k.CheckSchedule != "0 3 * * *" || k.LogLevel != "debug" {
		t.Errorf("CheckSchedule = %q, LogLevel = %q", k.CheckSchedule, k.LogLevel)
	}
}

func TestParseTOML(t *testing.T) {
	content := []byte(`
version = 1
app_root = "/srv/app"
update_source_url = "https://updates.example.com/latest.json"
cache_ttl = 120
backup_enabled = false
exclude_from_update = ["vendor", "storage/logs"]
restore_prune = true
`)

	k, err := parse(content, FormatTOML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if k.AppRoot != "/srv/app" || k.CacheTTL != 120 {
		t.Errorf("parse() = %+v", k)
	}
	if k.BackupEnabled || !k.RestorePrune {
		t.Errorf("BackupEnabled = %v, RestorePrune = %v", k.BackupEnabled, k.RestorePrune)
	}
	if len(k.ExcludeFromUpdate) != 2 {
		t.Errorf("ExcludeFromUpdate = %v", k.ExcludeFromUpdate)
	}
}

func TestParseJSON(t *testing.T) {
	content := []byte(`{
  "version": 1,
  "app_root": "/srv/app",
  "update_source_url": "https://updates.example.com/latest.json",
  "http_timeout": 5,
  "install_timeout": 60,
  "verify_checksum": true
}`)

	k, err := parse(content, FormatJSON)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if k.HTTPTimeout != 5 || k.InstallTimeout != 60 || !k.VerifyChecksum {
		t.Errorf("parse() = %+v", k)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  Format
	}{
		{"yaml", "app_root: [unterminated", FormatYAML},
		{"toml", "app_root = ", FormatTOML},
		{"json", `{"app_root": }`, FormatJSON},
		{"wrong type", "cache_ttl: soon", FormatYAML},
		{"unknown", "x", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse([]byte(tt.content), tt.format); err == nil {
				t.Error("parse() expected error")
			}
		})
	}
}

func TestParseEnvVarExpansion(t *testing.T) {
	t.Setenv("KEEL_TEST_TOKEN", "s3cret")

	content := []byte(`
app_root: ${KEEL_TEST_ROOT:-/srv/app}
update_source_url: https://updates.example.com/latest.json
update_source_token: ${KEEL_TEST_TOKEN}
`)

	k, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if k.AppRoot != "/srv/app" {
		t.Errorf("AppRoot = %s, want /srv/app", k.AppRoot)
	}
	if k.UpdateSourceToken != "s3cret" {
		t.Errorf("UpdateSourceToken = %s, want s3cret", k.UpdateSourceToken)
	}
}
