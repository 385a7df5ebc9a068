// Package cache is a bounded in-process cache for query results.
//
// Entries expire after a fixed TTL and are treated as absent once expired,
// even before the sweeper removes them. When the cache grows past its
// capacity the sweeper evicts the least used entries first (by access count,
// oldest insertion on ties). Entries are opportunistic: nothing may rely on
// a value being present.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	defaultTTL           = 5 * time.Minute
	defaultMaxEntries    = 1000
	defaultSweepInterval = time.Minute
)

type entry struct {
	value      any
	insertedAt time.Time
	hits       uint64
	seq        uint64
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64

	ttl           time.Duration
	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithSweepInterval sets how often the background sweep runs. Zero disables
// the background goroutine; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.sweepInterval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]*entry),
		ttl:           defaultTTL,
		maxEntries:    defaultMaxEntries,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		logger:        slog.New(slog.DiscardHandler),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the value stored under key. A hit counts as an access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return nil, false
	}
	e.hits++
	return e.value, true
}

// Set stores value under key, resetting its insertion time.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.insertedAt = c.now()
		e.seq = c.seq
		e.hits++
		return
	}
	c.entries[key] = &entry{
		value:      value,
		insertedAt: c.now(),
		hits:       1,
		seq:        c.seq,
	}
}

// IsValid reports whether key holds an unexpired entry. It does not count
// as an access.
func (c *Cache) IsValid(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && !c.expired(e)
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep drops expired entries, then evicts the least accessed entries until
// the cache is back at capacity.
func (c *Cache) Sweep() (expired, evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			expired++
		}
	}

	over := len(c.entries) - c.maxEntries
	if c.maxEntries <= 0 || over <= 0 {
		return expired, 0
	}

	type candidate struct {
		key  string
		hits uint64
		seq  uint64
	}
	candidates := make([]candidate, 0, len(c.entries))
	for key, e := range c.entries {
		candidates = append(candidates, candidate{key: key, hits: e.hits, seq: e.seq})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hits != candidates[j].hits {
			return candidates[i].hits < candidates[j].hits
		}
		return candidates[i].seq < candidates[j].seq
	})

	for _, cand := range candidates[:over] {
		delete(c.entries, cand.key)
		evicted++
	}
	return expired, evicted
}

// Stop ends the background sweep. It is safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().After(e.insertedAt.Add(c.ttl))
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			expired, evicted := c.Sweep()
			if expired > 0 || evicted > 0 {
				c.logger.Debug("cache sweep",
					"expired", expired,
					"evicted", evicted,
				)
			}
		}
	}
}
