package engine

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"arb_go/internal/aggregator"
	"arb_go/internal/cache"
	"arb_go/internal/domain"
	"arb_go/internal/orderbook"
)

// BookKey addresses one book in the registry.
type BookKey struct {
	Venue  domain.VenueID `json:"venue"`
	Symbol domain.Symbol  `json:"symbol"`
}

func (k BookKey) String() string {
	return cache.Key(k.Venue, k.Symbol)
}

func bookKeyLess(a, b BookKey) bool {
	if a.Venue != b.Venue {
		return domain.VenueLess(a.Venue, b.Venue)
	}
	return a.Symbol.String() < b.Symbol.String()
}

// ManagerConfig is the configuration surface consumed by the manager.
type ManagerConfig struct {
	MaxDepth         int             // default per-side depth for new books
	DepthOverrides   map[BookKey]int // per-book max depth
	StaleAfter       time.Duration   // health check staleness window, <= 0 disables
	SnapshotOnUpdate bool            // refresh the cache after every accepted mutation
	Now              func() time.Time
}

// BookHealth is the health of one book at check time.
type BookHealth struct {
	Key        BookKey                 `json:"key"`
	Health     domain.Health           `json:"health"`
	Severity   domain.CrossingSeverity `json:"severity"`
	Sequence   uint64                  `json:"seq"`
	LastUpdate time.Time               `json:"last_update"`
	BidLevels  int                     `json:"bid_levels"`
	AskLevels  int                     `json:"ask_levels"`
}

// HealthReport holds the health of every registered book.
type HealthReport struct {
	CheckedAt time.Time              `json:"checked_at"`
	Books     map[BookKey]BookHealth `json:"-"`
}

// Anomalous returns the unhealthy books in deterministic order.
func (r HealthReport) Anomalous() []BookHealth {
	var out []BookHealth
	for _, h := range r.Books {
		if !h.Health.Healthy() {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bookKeyLess(out[i].Key, out[j].Key) })
	return out
}

// Counts returns the number of books carrying each flag.
func (r HealthReport) Counts() (crossed, incomplete, stale int) {
	for _, h := range r.Books {
		if h.Health.Crossed {
			crossed++
		}
		if h.Health.Incomplete {
			incomplete++
		}
		if h.Health.Stale {
			stale++
		}
	}
	return
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHistory records every cached snapshot into h as well.
func WithHistory(h *cache.History) ManagerOption {
	return func(m *Manager) { m.history = h }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager is the registry of live books keyed by (venue, symbol).
// The registry lock only guards lookup and insert; it is never held while a
// book is locked. Each book serializes its own writers.
type Manager struct {
	cfg     ManagerConfig
	cache   *cache.OrderBookCache
	history *cache.History
	log     *slog.Logger

	mu    sync.RWMutex
	books map[BookKey]*orderbook.OrderBook

	created atomic.Uint64
}

// NewManager creates a manager. c may be nil to run without a snapshot cache.
func NewManager(cfg ManagerConfig, c *cache.OrderBookCache, opts ...ManagerOption) *Manager {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = orderbook.DefaultMaxDepth
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		cfg:   cfg,
		cache: c,
		log:   slog.Default(),
		books: make(map[BookKey]*orderbook.OrderBook),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache returns the snapshot cache, or nil.
func (m *Manager) Cache() *cache.OrderBookCache { return m.cache }

// History returns the snapshot history, or nil.
func (m *Manager) History() *cache.History { return m.history }

// StaleAfter returns the configured staleness window.
func (m *Manager) StaleAfter() time.Duration { return m.cfg.StaleAfter }

func (m *Manager) depthFor(key BookKey) int {
	if d, ok := m.cfg.DepthOverrides[key]; ok && d > 0 {
		return d
	}
	return m.cfg.MaxDepth
}

// GetBook returns the book for (venue, symbol) without creating it.
func (m *Manager) GetBook(venue domain.VenueID, symbol domain.Symbol) (*orderbook.OrderBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[BookKey{Venue: venue, Symbol: symbol}]
	return b, ok
}

// GetOrCreateBook returns the registered book, creating it on first reference.
// Concurrent callers for the same key all receive the single instance built.
func (m *Manager) GetOrCreateBook(venue domain.VenueID, symbol domain.Symbol) (*orderbook.OrderBook, error) {
	key := BookKey{Venue: venue, Symbol: symbol}

	m.mu.RLock()
	b, ok := m.books[key]
	m.mu.RUnlock()
	if ok {
		return b, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.books[key]; ok {
		return b, nil
	}
	b, err := orderbook.NewBuilder().
		Venue(venue).
		Symbol(symbol).
		MaxDepth(m.depthFor(key)).
		WithClock(m.cfg.Now).
		Build()
	if err != nil {
		return nil, err
	}
	m.books[key] = b
	m.created.Add(1)

	m.log.Debug("📚 Order book created",
		slog.String("venue", string(venue)),
		slog.String("symbol", symbol.String()),
		slog.Int("max_depth", b.MaxDepth()))
	return b, nil
}

// Register inserts an externally built book. It fails with ErrBookExists when
// the key already has a book.
func (m *Manager) Register(b *orderbook.OrderBook) error {
	key := BookKey{Venue: b.Venue(), Symbol: b.Symbol()}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[key]; ok {
		return &domain.ValidationError{Field: key.String(), Err: domain.ErrBookExists}
	}
	m.books[key] = b
	return nil
}

// ApplySnapshot replaces the addressed book's state, creating the book if needed.
func (m *Manager) ApplySnapshot(venue domain.VenueID, symbol domain.Symbol, bids, asks []domain.PriceLevel, seq uint64) error {
	b, err := m.GetOrCreateBook(venue, symbol)
	if err != nil {
		return err
	}
	b.ApplySnapshot(bids, asks, seq)
	m.refreshCache(b)
	return nil
}

// ApplyUpdates applies a delta batch to the addressed book, creating it if needed.
// The registry lock is released before the book is locked.
func (m *Manager) ApplyUpdates(venue domain.VenueID, symbol domain.Symbol, batch []domain.Delta) (orderbook.UpdateResult, error) {
	b, err := m.GetOrCreateBook(venue, symbol)
	if err != nil {
		return orderbook.UpdateResult{}, err
	}
	res := b.ApplyUpdates(batch)
	if res.Applied > 0 {
		m.refreshCache(b)
	}
	return res, nil
}

// refreshCache runs after the book lock is released. Publish orders concurrent
// refreshes of one book, so an older snapshot never replaces a newer one.
func (m *Manager) refreshCache(b *orderbook.OrderBook) {
	if !m.cfg.SnapshotOnUpdate || (m.cache == nil && m.history == nil) {
		return
	}
	b.Publish(func(snap orderbook.Snapshot) {
		key := cache.Key(snap.Venue, snap.Symbol)
		if m.cache != nil {
			m.cache.Put(key, snap)
		}
		if m.history != nil {
			m.history.Add(key, snap)
		}
	})
}

// HealthCheck inspects every book, one book lock at a time.
func (m *Manager) HealthCheck() HealthReport {
	entries := m.entries()

	report := HealthReport{
		CheckedAt: m.cfg.Now(),
		Books:     make(map[BookKey]BookHealth, len(entries)),
	}
	for _, e := range entries {
		in := e.book.Inspect(m.cfg.StaleAfter)
		report.Books[e.key] = BookHealth{
			Key:        e.key,
			Health:     in.Health,
			Severity:   in.Severity,
			Sequence:   in.Sequence,
			LastUpdate: in.LastUpdate,
			BidLevels:  in.BidLevels,
			AskLevels:  in.AskLevels,
		}
	}
	return report
}

type bookEntry struct {
	key  BookKey
	book *orderbook.OrderBook
}

// entries copies the registry under the read lock.
func (m *Manager) entries() []bookEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]bookEntry, 0, len(m.books))
	for k, b := range m.books {
		out = append(out, bookEntry{key: k, book: b})
	}
	return out
}

// RemoveBook drops the book, its cached snapshot and its history.
func (m *Manager) RemoveBook(venue domain.VenueID, symbol domain.Symbol) bool {
	key := BookKey{Venue: venue, Symbol: symbol}

	m.mu.Lock()
	_, ok := m.books[key]
	delete(m.books, key)
	m.mu.Unlock()

	if ok && m.cache != nil {
		m.cache.Invalidate(key.String())
	}
	if ok && m.history != nil {
		m.history.Clear(key.String())
	}
	return ok
}

// ClearVenue drops every book of venue, e.g. after a feed disconnect.
func (m *Manager) ClearVenue(venue domain.VenueID) int {
	m.mu.Lock()
	n := 0
	for k := range m.books {
		if k.Venue == venue {
			delete(m.books, k)
			n++
		}
	}
	m.mu.Unlock()

	if m.cache != nil {
		m.cache.InvalidateVenue(venue)
	}
	if m.history != nil {
		m.history.ClearVenue(venue)
	}
	return n
}

// ClearAll drops every book, the whole cache and all history.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	m.books = make(map[BookKey]*orderbook.OrderBook)
	m.mu.Unlock()

	if m.cache != nil {
		m.cache.Clear()
	}
	if m.history != nil {
		m.history.ClearAll()
	}
}

// BookCount returns the number of registered books.
func (m *Manager) BookCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.books)
}

// BooksCreated returns how many books GetOrCreateBook has constructed.
func (m *Manager) BooksCreated() uint64 {
	return m.created.Load()
}

// HasBook reports whether (venue, symbol) is registered.
func (m *Manager) HasBook(venue domain.VenueID, symbol domain.Symbol) bool {
	_, ok := m.GetBook(venue, symbol)
	return ok
}

// Venues returns every venue with at least one book, in venue order.
func (m *Manager) Venues() []domain.VenueID {
	m.mu.RLock()
	seen := make(map[domain.VenueID]struct{})
	for k := range m.books {
		seen[k.Venue] = struct{}{}
	}
	m.mu.RUnlock()

	out := make([]domain.VenueID, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return domain.VenueLess(out[i], out[j]) })
	return out
}

// Symbols returns the symbols tracked on venue, sorted. An empty venue means all venues.
func (m *Manager) Symbols(venue domain.VenueID) []domain.Symbol {
	m.mu.RLock()
	seen := make(map[domain.Symbol]struct{})
	for k := range m.books {
		if venue == "" || k.Venue == venue {
			seen[k.Symbol] = struct{}{}
		}
	}
	m.mu.RUnlock()

	out := make([]domain.Symbol, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// VenuesFor returns the venues that have a book for symbol, in venue order.
func (m *Manager) VenuesFor(symbol domain.Symbol) []domain.VenueID {
	m.mu.RLock()
	var out []domain.VenueID
	for k := range m.books {
		if k.Symbol == symbol {
			out = append(out, k.Venue)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return domain.VenueLess(out[i], out[j]) })
	return out
}

// Snapshot returns a deep copy of the live book.
func (m *Manager) Snapshot(venue domain.VenueID, symbol domain.Symbol) (orderbook.Snapshot, bool) {
	b, ok := m.GetBook(venue, symbol)
	if !ok {
		return orderbook.Snapshot{}, false
	}
	return b.Snapshot(), true
}

// CachedSnapshot serves from the cache when possible and falls back to the live
// book, caching the result. The returned value must be treated as read-only.
func (m *Manager) CachedSnapshot(venue domain.VenueID, symbol domain.Symbol) (orderbook.Snapshot, bool) {
	key := cache.Key(venue, symbol)
	if m.cache != nil {
		if snap, ok := m.cache.Get(key); ok {
			return snap, true
		}
	}
	b, ok := m.GetBook(venue, symbol)
	if !ok {
		return orderbook.Snapshot{}, false
	}
	if m.cache == nil {
		return b.Snapshot(), true
	}
	var snap orderbook.Snapshot
	b.Publish(func(s orderbook.Snapshot) {
		snap = s
		m.cache.Put(key, s)
	})
	return snap, true
}

// Aggregator returns a cross-venue view of symbol over this registry.
func (m *Manager) Aggregator(symbol domain.Symbol, venues ...domain.VenueID) *aggregator.VenueAggregator {
	return aggregator.New(m, symbol, venues...)
}
