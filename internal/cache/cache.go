// Package cache keeps recent order-book snapshots independent of the live books.
package cache

import (
	"container/list"
	"sync"
	"time"

	"arb_go/internal/domain"
	"arb_go/internal/orderbook"
)

// Key builds the canonical cache key for a venue book. Callers may use any other
// string as a key; InvalidateVenue matches on the stored snapshot's venue.
func Key(venue domain.VenueID, symbol domain.Symbol) string {
	return string(venue) + ":" + symbol.String()
}

// Stats is a point-in-time read model of the cache.
type Stats struct {
	Size          int       `json:"size"`
	MaxSize       int       `json:"max_size"`
	TotalAccesses uint64    `json:"total_accesses"`
	Hits          uint64    `json:"hits"`
	Misses        uint64    `json:"misses"`
	Evictions     uint64    `json:"evictions"`
	Expirations   uint64    `json:"expirations"`
	OldestEntry   time.Time `json:"oldest_entry"` // zero when empty
	NewestEntry   time.Time `json:"newest_entry"`
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	key         string
	snap        orderbook.Snapshot
	insertedAt  time.Time // insertion or last Put
	lastAccess  time.Time
	accessCount uint64
	ordinal     uint64 // first insertion order, for eviction ties

	recency *list.Element // in OrderBookCache.lru, front = most recent
	age     *list.Element // in OrderBookCache.byAge, front = oldest insertedAt
}

// Option configures an OrderBookCache.
type Option func(*OrderBookCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *OrderBookCache) {
		if now != nil {
			c.now = now
		}
	}
}

// OrderBookCache is a bounded LRU+TTL store of book snapshots.
// It has a single mutex and never calls into books or the registry.
type OrderBookCache struct {
	mu sync.Mutex

	maxSize int
	ttl     time.Duration // <= 0 disables expiry
	now     func() time.Time

	entries map[string]*entry
	lru     *list.List
	byAge   *list.List
	nextOrd uint64

	accesses    uint64
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// New creates a cache holding at most maxSize snapshots (minimum 1).
func New(maxSize int, ttl time.Duration, opts ...Option) *OrderBookCache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &OrderBookCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry, maxSize),
		lru:     list.New(),
		byAge:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxSize returns the configured capacity.
func (c *OrderBookCache) MaxSize() int { return c.maxSize }

// TTL returns the configured time-to-live.
func (c *OrderBookCache) TTL() time.Duration { return c.ttl }

// Put stores a deep copy of snap under key. Refreshing an existing key resets
// its TTL and recency without consuming capacity.
func (c *OrderBookCache) Put(key string, snap orderbook.Snapshot) {
	stored := snap.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.snap = stored
		e.insertedAt = now
		e.lastAccess = now
		c.lru.MoveToFront(e.recency)
		c.byAge.MoveToBack(e.age)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.nextOrd++
	e := &entry{
		key:        key,
		snap:       stored,
		insertedAt: now,
		lastAccess: now,
		ordinal:    c.nextOrd,
	}
	e.recency = c.lru.PushFront(e)
	e.age = c.byAge.PushBack(e)
	c.entries[key] = e
}

// Get returns the snapshot stored under key. The returned value shares memory
// with the cache and must be treated as read-only.
func (c *OrderBookCache) Get(key string) (orderbook.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return orderbook.Snapshot{}, false
	}
	now := c.now()
	if c.expiredLocked(e, now) {
		c.removeLocked(e)
		c.expirations++
		c.misses++
		return orderbook.Snapshot{}, false
	}

	e.lastAccess = now
	e.accessCount++
	c.lru.MoveToFront(e.recency)
	c.hits++
	c.accesses++
	return e.snap, true
}

// Invalidate removes key. It reports whether an entry was present.
func (c *OrderBookCache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// InvalidateVenue removes every snapshot taken from venue.
func (c *OrderBookCache) InvalidateVenue(venue domain.VenueID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if e.snap.Venue == venue {
			c.removeLocked(e)
			n++
		}
	}
	return n
}

// Clear drops all entries. Counters are kept.
func (c *OrderBookCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry, c.maxSize)
	c.lru.Init()
	c.byAge.Init()
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *OrderBookCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (c *OrderBookCache) PurgeExpired() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for el := c.byAge.Front(); el != nil; {
		e := el.Value.(*entry)
		if !c.expiredLocked(e, now) {
			break
		}
		el = el.Next()
		c.removeLocked(e)
		c.expirations++
		n++
	}
	return n
}

// Stats returns counters and the age bounds. O(1).
func (c *OrderBookCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:          len(c.entries),
		MaxSize:       c.maxSize,
		TotalAccesses: c.accesses,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
	}
	if el := c.byAge.Front(); el != nil {
		s.OldestEntry = el.Value.(*entry).insertedAt
	}
	if el := c.byAge.Back(); el != nil {
		s.NewestEntry = el.Value.(*entry).insertedAt
	}
	return s
}

func (c *OrderBookCache) expiredLocked(e *entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) >= c.ttl
}

// evictLocked removes the least recently used entry. Entries sharing the
// oldest access time are evicted in insertion order.
func (c *OrderBookCache) evictLocked() {
	tail := c.lru.Back()
	if tail == nil {
		return
	}
	victim := tail.Value.(*entry)
	for el := tail.Prev(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if !e.lastAccess.Equal(victim.lastAccess) {
			break
		}
		if e.ordinal < victim.ordinal {
			victim = e
		}
	}
	c.removeLocked(victim)
	c.evictions++
}

func (c *OrderBookCache) removeLocked(e *entry) {
	c.lru.Remove(e.recency)
	c.byAge.Remove(e.age)
	delete(c.entries, e.key)
}
