package panefs

import (
	"context"
	"io"
	"path"
	"sync"
	"time"
)

// ============================================================================
// Cache Interface
// ============================================================================

// Cache stores metadata for CachingFileSystem. Implementations must be safe
// for concurrent use.
type Cache interface {
	// Get returns the value and true if present and not expired.
	Get(key string) (any, bool)

	// Set stores a value. A TTL of 0 means no expiration.
	Set(key string, value any, ttl time.Duration)

	// Delete removes a value.
	Delete(key string)

	// Clear removes every value.
	Clear()
}

// CacheStatistics contains cache counters.
type CacheStatistics struct {
	Hits    int64
	Misses  int64
	Size    int64
	HitRate float64
}

// ============================================================================
// In-Memory Cache Implementation
// ============================================================================

type cacheEntry struct {
	value      any
	expiration time.Time
}

// MemoryCache is an in-memory Cache with TTL expiration.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

// Get implements Cache. Expired entries are dropped on access.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && !entry.expiration.IsZero() && time.Now().After(entry.expiration) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

// Set implements Cache.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiration = time.Now().Add(ttl)
	}
	c.entries[key] = entry
}

// Delete implements Cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear implements Cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats returns hit and miss counters.
func (c *MemoryCache) Stats() CacheStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStatistics{Hits: c.hits, Misses: c.misses, Size: int64(len(c.entries))}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

var _ Cache = (*MemoryCache)(nil)

// ============================================================================
// CachingFileSystem Decorator
// ============================================================================

// CachingFileSystem wraps a FileSystem and caches Stat and List results.
// Content is never cached. Mutations made through the wrapper invalidate
// the affected path and its ancestors; changes made by other clients are
// seen once the TTL expires, or at once when a Watch token fires.
//
//	fsys := panefs.NewCachingFileSystem(s3fs, panefs.NewMemoryCache(), time.Minute)
//	info, _ := fsys.Stat(ctx, "/reports/q3.csv") // backend
//	info, _ = fsys.Stat(ctx, "/reports/q3.csv")  // cache
type CachingFileSystem struct {
	fs    FileSystem
	cache Cache
	ttl   time.Duration
}

// NewCachingFileSystem wraps fs. A ttl of 0 caches until invalidated.
func NewCachingFileSystem(fs FileSystem, cache Cache, ttl time.Duration) *CachingFileSystem {
	return &CachingFileSystem{fs: fs, cache: cache, ttl: ttl}
}

// Unwrap returns the underlying FileSystem.
func (c *CachingFileSystem) Unwrap() FileSystem { return c.fs }

// Name reports the wrapped backend's name.
func (c *CachingFileSystem) Name() string { return c.fs.Name() }

func statKey(p string) string { return "stat:" + p }
func listKey(p string) string { return "list:" + p }

// invalidate drops p and every ancestor, whose listings may now differ.
func (c *CachingFileSystem) invalidate(p string) {
	p = cleanPath(p)
	for {
		c.cache.Delete(statKey(p))
		c.cache.Delete(listKey(p))
		if p == "/" {
			return
		}
		p = path.Dir(p)
	}
}

func (c *CachingFileSystem) Stat(ctx context.Context, p string) (*FileInfo, error) {
	p = cleanPath(p)
	if v, ok := c.cache.Get(statKey(p)); ok {
		info := *v.(*FileInfo)
		return &info, nil
	}
	info, err := c.fs.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	cached := *info
	c.cache.Set(statKey(p), &cached, c.ttl)
	return info, nil
}

// List caches the listing and the Stat of every child.
func (c *CachingFileSystem) List(ctx context.Context, p string) ([]FileInfo, error) {
	p = cleanPath(p)
	if v, ok := c.cache.Get(listKey(p)); ok {
		return append([]FileInfo(nil), v.([]FileInfo)...), nil
	}
	entries, err := c.fs.List(ctx, p)
	if err != nil {
		return nil, err
	}
	c.cache.Set(listKey(p), append([]FileInfo(nil), entries...), c.ttl)
	for i := range entries {
		info := entries[i]
		c.cache.Set(statKey(cleanPath(info.Path)), &info, c.ttl)
	}
	return entries, nil
}

func (c *CachingFileSystem) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return c.fs.Open(ctx, p)
}

// invalidatingWriter drops cached metadata again once the content is
// visible.
type invalidatingWriter struct {
	io.WriteCloser
	done func()
}

func (w *invalidatingWriter) Close() error {
	err := w.WriteCloser.Close()
	w.done()
	return err
}

func (c *CachingFileSystem) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	w, err := c.fs.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	c.invalidate(p)
	return &invalidatingWriter{WriteCloser: w, done: func() { c.invalidate(p) }}, nil
}

func (c *CachingFileSystem) Mkdir(ctx context.Context, p string) error {
	defer c.invalidate(p)
	return c.fs.Mkdir(ctx, p)
}

func (c *CachingFileSystem) Delete(ctx context.Context, p string) error {
	defer c.invalidate(p)
	return c.fs.Delete(ctx, p)
}

// Rename clears the whole cache: a moved directory takes its subtree along.
func (c *CachingFileSystem) Rename(ctx context.Context, src, dst string) error {
	defer c.cache.Clear()
	return c.fs.Rename(ctx, src, dst)
}

// Append delegates when the wrapped backend supports appends.
func (c *CachingFileSystem) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	a, ok := c.fs.(CanAppend)
	if !ok {
		return nil, Unsupported(c.fs.Name(), OpAppend)
	}
	w, err := a.Append(ctx, p)
	if err != nil {
		return nil, err
	}
	return &invalidatingWriter{WriteCloser: w, done: func() { c.invalidate(p) }}, nil
}

// OpenRandom delegates when the wrapped backend supports random reads.
func (c *CachingFileSystem) OpenRandom(ctx context.Context, p string) (RandomReader, error) {
	if rr, ok := c.fs.(CanRandomRead); ok {
		return rr.OpenRandom(ctx, p)
	}
	return nil, Unsupported(c.fs.Name(), OpRandomRead)
}

// OpenRandomWrite delegates when the wrapped backend supports random writes.
func (c *CachingFileSystem) OpenRandomWrite(ctx context.Context, p string) (RandomWriter, error) {
	rw, ok := c.fs.(CanRandomWrite)
	if !ok {
		return nil, Unsupported(c.fs.Name(), OpRandomWrite)
	}
	c.invalidate(p)
	return rw.OpenRandomWrite(ctx, p)
}

// Copy delegates when the wrapped backend copies server-side.
func (c *CachingFileSystem) Copy(ctx context.Context, src, dst string) error {
	copier, ok := c.fs.(CanCopy)
	if !ok {
		return Unsupported(c.fs.Name(), OpCopyRemote)
	}
	defer c.invalidate(dst)
	return copier.Copy(ctx, src, dst)
}

// Checksum delegates when the wrapped backend computes checksums.
func (c *CachingFileSystem) Checksum(ctx context.Context, p string, algorithm ChecksumAlgorithm) (string, error) {
	if checksummer, ok := c.fs.(CanChecksum); ok {
		return checksummer.Checksum(ctx, p, algorithm)
	}
	return "", Unsupported(c.fs.Name(), OpChecksum)
}

// Watch delegates to the wrapped backend and clears the cache when the
// token fires.
func (c *CachingFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	watcher, ok := c.fs.(CanWatch)
	if !ok {
		return nil, Unsupported(c.fs.Name(), OpWatch)
	}
	token, err := watcher.Watch(ctx, pattern)
	if err != nil {
		return nil, err
	}
	token.RegisterChangeCallback(c.cache.Clear)
	return token, nil
}

// Close releases the wrapped backend's session.
func (c *CachingFileSystem) Close() error {
	c.cache.Clear()
	return closeSession(c.fs)
}

var (
	_ FileSystem     = (*CachingFileSystem)(nil)
	_ CanAppend      = (*CachingFileSystem)(nil)
	_ CanRandomRead  = (*CachingFileSystem)(nil)
	_ CanRandomWrite = (*CachingFileSystem)(nil)
	_ CanCopy        = (*CachingFileSystem)(nil)
	_ CanChecksum    = (*CachingFileSystem)(nil)
	_ CanWatch       = (*CachingFileSystem)(nil)
)
