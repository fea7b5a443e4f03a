package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/keel/internal/update"
)

// ValidationError represents a Keelfile validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatErrors renders all problems at once, one per line.
func formatErrors(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return fmt.Sprintf("validation errors:\n  - %s", strings.Join(lines, "\n  - "))
}

// Validate checks the Keelfile for required fields and valid values.
// Every problem is reported, not just the first.
func Validate(k *Keelfile) error {
	var result *multierror.Error
	add := func(field, format string, args ...any) {
		result = multierror.Append(result, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if k.Version != 1 {
		add("version", "unsupported version %d (must be 1)", k.Version)
	}

	switch {
	case k.AppRoot == "":
		add("app_root", "app_root is required")
	default:
		if info, err := os.Stat(k.AppRoot); err != nil {
			add("app_root", "directory %s does not exist", k.AppRoot)
		} else if !info.IsDir() {
			add("app_root", "%s is not a directory", k.AppRoot)
		}
	}

	if _, err := update.ParseVersion(k.CurrentVersion); err != nil {
		add("current_version", "invalid version %q", k.CurrentVersion)
	}

	if err := validateURL(k.UpdateSourceURL, "http", "https"); err != nil {
		add("update_source_url", "%v", err)
	}

	if k.HTTPTimeout <= 0 {
		add("http_timeout", "must be greater than 0")
	}
	if k.DownloadRetries < 0 {
		add("download_retries", "must not be negative")
	}
	if k.CacheTTL < 0 {
		add("cache_ttl", "must not be negative")
	}
	if k.BackupRetention < 0 {
		add("backup_retention", "must not be negative")
	}
	if k.InstallTimeout <= 0 {
		add("install_timeout", "must be greater than 0")
	}

	if err := k.CacheDriver.Validate(); err != nil {
		add("cache_driver", "%v", err)
	} else if k.CacheDriver.IsRedis() {
		if err := validateURL(k.CacheRedisURL, "redis", "rediss"); err != nil {
			add("cache_redis_url", "%v (required for the redis cache driver)", err)
		}
	}

	for i, p := range k.ExcludeFromUpdate {
		if strings.HasPrefix(p, "/") || path.Clean(p) == ".." || strings.HasPrefix(path.Clean(p), "../") {
			add(fmt.Sprintf("exclude_from_update[%d]", i), "%q must be a path inside app_root", p)
		}
	}

	if _, err := cron.ParseStandard(k.CheckSchedule); err != nil {
		add("check_schedule", "invalid schedule %q: %v", k.CheckSchedule, err)
	}

	if _, err := log.ParseLevel(k.LogLevel); err != nil {
		add("log_level", "%v", err)
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = formatErrors
	return result
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid url %q (scheme must be %s)", raw, strings.Join(schemes, " or "))
}
