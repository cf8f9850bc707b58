package storage

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCacheBytes bounds a CachedStorage when no size is given.
const DefaultCacheBytes = 1 << 30

// CachedStorage keeps local copies of objects read from a remote backend.
// A copy is reused while the backend reports the same size and modification
// time; least recently used copies are removed once the total exceeds the
// configured maximum.
type CachedStorage struct {
	ObjectStorage

	dir string

	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	items    map[string]*list.Element
	order    *list.List // front = most recently used

	hits   int64
	misses int64
}

type cacheEntry struct {
	objectPath string
	localPath  string
	size       int64
	modTime    time.Time
}

// NewCachedStorage wraps backend with a cache held under dir.
func NewCachedStorage(backend ObjectStorage, dir string, maxBytes int64) (*CachedStorage, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &CachedStorage{
		ObjectStorage: backend,
		dir:           dir,
		maxBytes:      maxBytes,
		items:         make(map[string]*list.Element),
		order:         list.New(),
	}, nil
}

// Open serves the local copy of an object, downloading it first if the
// copy is missing or stale.
func (c *CachedStorage) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	info, err := c.ObjectStorage.Stat(ctx, objectPath)
	if err != nil {
		return nil, err
	}

	if local := c.get(objectPath, info); local != "" {
		if f, err := os.Open(local); err == nil {
			return f, nil
		}
	}

	local, err := c.download(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	c.put(objectPath, local, info)
	return os.Open(local)
}

// Put writes through to the backend and drops any local copy.
func (c *CachedStorage) Put(ctx context.Context, objectPath string, r io.Reader) error {
	c.mu.Lock()
	if elem, ok := c.items[objectPath]; ok {
		c.removeLocked(elem)
	}
	c.mu.Unlock()
	return c.ObjectStorage.Put(ctx, objectPath, r)
}

func (c *CachedStorage) download(ctx context.Context, objectPath string) (string, error) {
	rc, err := c.ObjectStorage.Open(ctx, objectPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: download %s: %v", ErrReadFailed, objectPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	local := c.localPath(objectPath)
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return local, nil
}

func (c *CachedStorage) localPath(objectPath string) string {
	sum := sha256.Sum256([]byte(objectPath))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16]))
}

// get returns the local copy of an object, or "" if there is no current copy.
func (c *CachedStorage) get(objectPath string, info ObjectInfo) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[objectPath]
	if !ok {
		c.misses++
		return ""
	}
	entry := elem.Value.(*cacheEntry)
	if entry.size != info.Size || !entry.modTime.Equal(info.ModTime) {
		c.removeLocked(elem)
		c.misses++
		return ""
	}
	if st, err := os.Stat(entry.localPath); err != nil || st.Size() != entry.size {
		c.removeLocked(elem)
		c.misses++
		return ""
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.localPath
}

func (c *CachedStorage) put(objectPath, localPath string, info ObjectInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[objectPath]; ok {
		old := elem.Value.(*cacheEntry)
		c.curBytes += info.Size - old.size
		old.localPath = localPath
		old.size = info.Size
		old.modTime = info.ModTime
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&cacheEntry{
			objectPath: objectPath,
			localPath:  localPath,
			size:       info.Size,
			modTime:    info.ModTime,
		})
		c.items[objectPath] = elem
		c.curBytes += info.Size
	}

	// The newest entry stays even when it alone exceeds the limit.
	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		c.removeLocked(c.order.Back())
	}
}

// removeLocked drops an entry and its file. Caller must hold c.mu.
func (c *CachedStorage) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.objectPath)
	c.curBytes -= entry.size
	os.Remove(entry.localPath)
}

// CacheStats reports cache occupancy and hit counts.
type CacheStats struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}

// Stats returns a snapshot of the cache counters.
func (c *CachedStorage) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.items), Bytes: c.curBytes, Hits: c.hits, Misses: c.misses}
}

// Clear removes every local copy.
func (c *CachedStorage) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.order.Len() > 0 {
		c.removeLocked(c.order.Back())
	}
}
