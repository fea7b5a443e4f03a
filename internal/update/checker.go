package update

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// CachingChecker answers update checks from a Source, remembering the
// result for ttl so repeated checks do not hit the remote endpoint.
type CachingChecker struct {
	source   Source
	cache    Cache
	versions VersionStore
	ttl      time.Duration
	now      func() time.Time
}

// NewCachingChecker creates a checker. A nil cache or ttl <= 0 disables caching.
func NewCachingChecker(source Source, cache Cache, versions VersionStore, ttl time.Duration) *CachingChecker {
	return &CachingChecker{
		source:   source,
		cache:    cache,
		versions: versions,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source (for testing)
func (c *CachingChecker) WithClock(now func() time.Time) *CachingChecker {
	c.now = now
	return c
}

// CheckForUpdate implements Checker
func (c *CachingChecker) CheckForUpdate(ctx context.Context) (UpdateInfo, error) {
	current, err := c.versions.Current()
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("%w: reading installed version: %w", ErrCheckFailed, err)
	}

	key := CacheKey(c.source.Identity())
	if entry := c.lookup(ctx, key); entry != nil && entry.Payload.CurrentVersion == NormalizeVersion(current) {
		log.Debugf("using cached update info for %s (fetched %s)", c.source.Identity(), entry.FetchedAt.Format(time.RFC3339))
		return entry.Payload, nil
	}

	rel, err := c.source.Latest(ctx)
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	now := c.now()
	if _, perr := ParseVersion(rel.Version); perr != nil {
		log.Warnf("remote source reported malformed version %q, treating as no update", rel.Version)
	}
	info := NewUpdateInfo(current, rel, now)

	if c.cache != nil && c.ttl > 0 {
		entry := CacheEntry{FetchedAt: now, TTL: c.ttl, Payload: info}
		if err := c.cache.Put(ctx, key, entry); err != nil {
			log.Warnf("failed to cache update info: %v", err)
		}
	}

	return info, nil
}

// ClearCache implements Checker
func (c *CachingChecker) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, CacheKey(c.source.Identity()))
}

func (c *CachingChecker) lookup(ctx context.Context, key string) *CacheEntry {
	if c.cache == nil || c.ttl <= 0 {
		return nil
	}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Debugf("cache lookup failed: %v", err)
		return nil
	}
	if !entry.Valid(c.now()) {
		return nil
	}
	return entry
}
