// Package cmd contains the CLI command implementations.
package cmd

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/keel/internal/backup"
	"github.com/adamancini/keel/internal/config"
	"github.com/adamancini/keel/internal/fsatomic"
	"github.com/adamancini/keel/internal/logging"
	"github.com/adamancini/keel/internal/output"
	"github.com/adamancini/keel/internal/state"
	"github.com/adamancini/keel/internal/types"
	"github.com/adamancini/keel/internal/update"
)

// keelVersion is set during command initialization
var keelVersion = "dev"

// SetVersion sets the keel version recorded in backup metadata.
func SetVersion(version string) {
	keelVersion = version
}

// UpdateService wires the update pipeline for one Keelfile.
type UpdateService struct {
	cfg      *config.Keelfile
	manager  *update.Manager
	backups  *backup.Manager
	versions *state.Store
}

// NewUpdateService builds the production pipeline described by k.
func NewUpdateService(ctx context.Context, k *config.Keelfile) (*UpdateService, error) {
	cache, err := newCache(ctx, k)
	if err != nil {
		return nil, err
	}

	source := update.NewHTTPSource(k.UpdateSourceURL).
		WithToken(k.UpdateSourceToken).
		WithTimeout(k.HTTPTimeoutDuration()).
		WithRetries(k.DownloadRetries)
	versions := state.NewStore(k.StateDir, k.CurrentVersion)
	checker := update.NewCachingChecker(source, cache, versions, k.CacheTTLDuration())
	downloader := update.NewHTTPDownloader().
		WithToken(k.UpdateSourceToken).
		WithRetries(k.DownloadRetries)
	backups := backup.NewManager(k.AppRoot, k.BackupDir, k.Excludes()).WithKeelVersion(keelVersion)
	applier := update.NewArchiveApplier(k.AppRoot, k.StagingDir(), k.Excludes()).
		WithInstallCommand(k.ComposerInstallCommand, k.InstallTimeoutDuration())

	manager := update.NewManager(checker, downloader, backups, applier, versions, update.Options{
		BackupEnabled:   k.BackupEnabled,
		VerifyChecksum:  k.VerifyChecksum,
		BackupRetention: k.BackupRetention,
		RestorePrune:    k.RestorePrune,
		StagingDir:      k.StagingDir(),
	})
	manager.SetObserver(func(from, to update.State) {
		log.Debugf("update state %s -> %s", from, to)
	})

	return &UpdateService{
		cfg:      k,
		manager:  manager,
		backups:  backups,
		versions: versions,
	}, nil
}

// newCache returns the cache selected by cache_driver.
func newCache(ctx context.Context, k *config.Keelfile) (update.Cache, error) {
	switch k.CacheDriver.Default() {
	case types.CacheDriverMemory:
		return update.NewMemoryCache(), nil
	case types.CacheDriverRedis:
		return update.NewRedisCache(ctx, k.CacheRedisURL)
	default:
		return update.NewFileCache(k.CacheDir()), nil
	}
}

// withLock runs fn holding the single-instance lock of the installation.
func (s *UpdateService) withLock(fn func() error) error {
	return fsatomic.WithLock(s.cfg.LockPath(), fn)
}

// loadKeelfile finds and loads the Keelfile, then applies its logging settings.
func loadKeelfile() (*config.Keelfile, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find Keelfile: %w", err)
	}

	k, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	if err := logging.Init(effectiveLogLevel(k.LogLevel), k.LogFile); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	log.Debugf("loaded Keelfile %s", path)
	return k, nil
}

// loadService is the common preamble of every command that needs the pipeline.
func loadService(ctx context.Context) (*UpdateService, error) {
	k, err := loadKeelfile()
	if err != nil {
		return nil, err
	}
	return NewUpdateService(ctx, k)
}

// newWriter returns an output writer for the global --output flag.
func newWriter(w io.Writer) *output.Writer {
	format, err := types.ParseOutputFormat(outputFormat)
	if err != nil {
		format = types.OutputText
	}
	return output.NewWriter(w, format)
}
