package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adamancini/keel/internal/fsatomic"
)

// CacheEntry is one cached check result. Entries are replaced, never edited.
type CacheEntry struct {
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
	Payload   UpdateInfo    `json:"payload"`
}

// Valid reports whether the entry is still fresh at now
func (e *CacheEntry) Valid(now time.Time) bool {
	if e == nil || e.TTL <= 0 {
		return false
	}
	return now.Sub(e.FetchedAt) < e.TTL
}

// Cache stores the last check result per source identity.
// Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Put(ctx context.Context, key string, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
}

// CacheKey derives a stable cache key from a source identity
func CacheKey(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return "keel:update:" + hex.EncodeToString(sum[:8])
}

// FileCache keeps entries as JSON files so separate keel processes share them
type FileCache struct {
	dir string
}

// NewFileCache creates a cache rooted at dir
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

func (c *FileCache) path(key string) string {
	// keys contain ':' which is not portable in file names
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])+".json")
}

// Get implements Cache
func (c *FileCache) Get(_ context.Context, key string) (*CacheEntry, error) {
	var entry CacheEntry
	exists, err := fsatomic.LoadJSON(c.path(key), &entry)
	if err != nil {
		// A corrupt cache file is a miss; the next Put replaces it.
		return nil, nil
	}
	if !exists {
		return nil, nil
	}
	return &entry, nil
}

// Put implements Cache; the file is replaced atomically
func (c *FileCache) Put(ctx context.Context, key string, entry CacheEntry) error {
	if err := fsatomic.SaveJSON(ctx, c.path(key), entry, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete implements Cache
func (c *FileCache) Delete(_ context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

// encodeEntry and decodeEntry are shared by the store-backed caches
func encodeEntry(entry CacheEntry) ([]byte, error) {
	return json.Marshal(entry)
}

func decodeEntry(v any) (*CacheEntry, error) {
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return nil, fmt.Errorf("unexpected cache value type %T", v)
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
