package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Pool shares database handles between sources that connect to the same
// database. Each *sql.DB already pools connections; Pool adds reference
// counting so several sources can hold one handle and it is closed only
// once nobody uses it.
type Pool struct {
	mu sync.Mutex

	// handles maps dialect and DSN to their entries
	handles map[string]*handleEntry

	// maxHandles is the maximum number of open handles
	maxHandles int

	// maxOpenConns is applied to every handle
	maxOpenConns int

	// connMaxIdleTime is applied to every handle
	connMaxIdleTime time.Duration

	closed bool
}

// handleEntry holds a handle and its metadata.
type handleEntry struct {
	db       *sql.DB
	refCount int
	lastUsed time.Time
}

// PoolConfig holds configuration for the pool.
type PoolConfig struct {
	// MaxHandles is the maximum number of distinct databases (default: 16)
	MaxHandles int

	// MaxOpenConns is the per-database connection limit (default: 8)
	MaxOpenConns int

	// ConnMaxIdleTime closes connections idle for this long (default: 5 minutes)
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxHandles:      16,
		MaxOpenConns:    8,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewPool creates a pool with the given configuration.
func NewPool(config PoolConfig) *Pool {
	defaults := DefaultPoolConfig()
	if config.MaxHandles <= 0 {
		config.MaxHandles = defaults.MaxHandles
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = defaults.MaxOpenConns
	}
	if config.ConnMaxIdleTime <= 0 {
		config.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	return &Pool{
		handles:         make(map[string]*handleEntry),
		maxHandles:      config.MaxHandles,
		maxOpenConns:    config.MaxOpenConns,
		connMaxIdleTime: config.ConnMaxIdleTime,
	}
}

func poolKey(d *Dialect, dsn string) string {
	return d.Name + "|" + dsn
}

// Get returns the handle for dsn, opening it if needed. The caller must call
// Release when done with it.
func (p *Pool) Get(ctx context.Context, d *Dialect, dsn string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("pool: pool is closed")
	}

	key := poolKey(d, dsn)
	if entry, ok := p.handles[key]; ok {
		entry.refCount++
		entry.lastUsed = time.Now()
		return entry.db, nil
	}

	if len(p.handles) >= p.maxHandles && !p.evictIdle() {
		return nil, fmt.Errorf("pool: maximum handles reached (%d)", p.maxHandles)
	}

	db, err := p.open(ctx, d, dsn)
	if err != nil {
		return nil, err
	}
	p.handles[key] = &handleEntry{db: db, refCount: 1, lastUsed: time.Now()}
	return db, nil
}

// Release gives back a handle obtained from Get.
func (p *Pool) Release(d *Dialect, dsn string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.handles[poolKey(d, dsn)]; ok && entry.refCount > 0 {
		entry.refCount--
		entry.lastUsed = time.Now()
	}
}

func (p *Pool) open(ctx context.Context, d *Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("pool: failed to open %s database: %w", d.Name, err)
	}
	db.SetMaxOpenConns(p.maxOpenConns)
	db.SetConnMaxIdleTime(p.connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pool: failed to ping %s database: %w", d.Name, err)
	}
	return db, nil
}

// evictIdle closes the least recently used unreferenced handle.
// Must be called with lock held.
func (p *Pool) evictIdle() bool {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range p.handles {
		if entry.refCount == 0 && (oldestKey == "" || entry.lastUsed.Before(oldestTime)) {
			oldestKey = key
			oldestTime = entry.lastUsed
		}
	}
	if oldestKey == "" {
		return false
	}
	p.handles[oldestKey].db.Close()
	delete(p.handles, oldestKey)
	return true
}

// Close closes every handle, referenced or not.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var lastErr error
	for key, entry := range p.handles {
		if err := entry.db.Close(); err != nil {
			lastErr = err
		}
		delete(p.handles, key)
	}
	return lastErr
}

// PoolStats describes the pool's handles.
type PoolStats struct {
	Handles int
	Active  int
	Idle    int
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Handles: len(p.handles)}
	for _, entry := range p.handles {
		if entry.refCount > 0 {
			stats.Active++
		} else {
			stats.Idle++
		}
	}
	return stats
}
