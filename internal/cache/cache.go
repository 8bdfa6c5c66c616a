// Package cache stores short answers on disk so repeated requests skip the
// language model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/logging"
)

const entrySuffix = ".json"

// ErrMiss is returned by Get when no live entry exists for a key
var ErrMiss = errors.New(errors.ErrTypeNotFound, "cache miss")

// Entry is one cached answer
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Stats summarizes the cache directory and this process's lookups
type Stats struct {
	Directory string `json:"directory"`
	Entries   int    `json:"entries"`
	Expired   int    `json:"expired"`
	Bytes     int64  `json:"bytes"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
}

// FileCache keeps one JSON file per entry in a directory
type FileCache struct {
	directory  string
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	mu     sync.Mutex
	hits   int64
	misses int64
}

// Option configures a FileCache
type Option func(*FileCache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) { c.now = now }
}

// NewFileCache opens (creating if needed) a cache in directory. Entries live
// for ttl; a zero ttl keeps them until evicted. When more than maxEntries are
// stored the oldest are evicted; zero means unbounded.
func NewFileCache(directory string, maxEntries int, ttl time.Duration, opts ...Option) (*FileCache, error) {
	if strings.TrimSpace(directory) == "" {
		return nil, errors.NewConfigError("cache directory is empty", "cache.directory")
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to create cache directory %s", directory)
	}

	c := &FileCache{
		directory:  directory,
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewFileCacheFromConfig opens the cache described by cfg, or returns nil when
// caching is disabled
func NewFileCacheFromConfig(cfg config.CacheConfig) (*FileCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	return NewFileCache(cfg.Directory, cfg.MaxEntries, config.Duration(cfg.TTL))
}

// Key derives a stable key from its parts
func Key(parts ...string) string {
	h := sha256.New()

	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the live value stored for key or ErrMiss
func (c *FileCache) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.read(c.path(key))
	if err != nil || entry.Key != key {
		c.misses++
		return "", ErrMiss
	}

	if entry.expired(c.now()) {
		c.misses++
		_ = os.Remove(c.path(key))

		return "", ErrMiss
	}

	c.hits++

	return entry.Value, nil
}

// Set stores value under key, evicting old entries when the cache is full
func (c *FileCache) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := Entry{Key: key, Value: value, CreatedAt: now}

	if c.ttl > 0 {
		entry.ExpiresAt = now.Add(c.ttl)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeInternal, "failed to encode cache entry")
	}

	// Write then rename so readers never see a partial file
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrTypeFileSystem, "failed to write cache entry")
	}

	if err := os.Rename(tmp, c.path(key)); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.ErrTypeFileSystem, "failed to write cache entry")
	}

	return c.evict()
}

// Delete removes key; a missing entry is not an error
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrTypeFileSystem, "failed to delete cache entry")
	}

	return nil
}

// Clear removes every entry and returns how many were removed
func (c *FileCache) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.files()
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, f := range files {
		if err := os.Remove(f.path); err == nil {
			removed++
		}
	}

	c.hits, c.misses = 0, 0

	logging.Debugf("Cleared %d cache entries from %s", removed, c.directory)

	return removed, nil
}

// Cleanup removes expired and unreadable entries and returns how many went
func (c *FileCache) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.files()
	if err != nil {
		return 0, err
	}

	now := c.now()
	removed := 0

	for _, f := range files {
		entry, err := c.read(f.path)
		if err == nil && !entry.expired(now) {
			continue
		}

		if os.Remove(f.path) == nil {
			removed++
		}
	}

	return removed, nil
}

// Stats reports what is on disk plus this process's hit counts
func (c *FileCache) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.files()
	if err != nil {
		return nil, err
	}

	stats := &Stats{Directory: c.directory, Hits: c.hits, Misses: c.misses}
	now := c.now()

	for _, f := range files {
		stats.Entries++
		stats.Bytes += f.size

		if entry, err := c.read(f.path); err != nil || entry.expired(now) {
			stats.Expired++
		}
	}

	return stats, nil
}

// Directory returns where entries are stored
func (c *FileCache) Directory() string {
	return c.directory
}

type entryFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *FileCache) files() ([]entryFile, error) {
	dirEntries, err := os.ReadDir(c.directory)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to read cache directory %s", c.directory)
	}

	var files []entryFile

	for _, d := range dirEntries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), entrySuffix) {
			continue
		}

		info, err := d.Info()
		if err != nil {
			continue
		}

		files = append(files, entryFile{
			path:    filepath.Join(c.directory, d.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	return files, nil
}

// evict drops the oldest entries beyond maxEntries; caller holds mu
func (c *FileCache) evict() error {
	if c.maxEntries <= 0 {
		return nil
	}

	files, err := c.files()
	if err != nil {
		return err
	}

	if len(files) <= c.maxEntries {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files[:len(files)-c.maxEntries] {
		_ = os.Remove(f.path)
	}

	return nil
}

func (c *FileCache) read(path string) (Entry, error) {
	var entry Entry

	data, err := os.ReadFile(path)
	if err != nil {
		return entry, err
	}

	err = json.Unmarshal(data, &entry)

	return entry, err
}

func (c *FileCache) path(key string) string {
	name := key
	if len(name) > 32 {
		name = name[:32]
	}

	return filepath.Join(c.directory, name+entrySuffix)
}
