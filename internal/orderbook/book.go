package orderbook

import (
	"fmt"
	"sync"
	"time"

	"arb_go/internal/domain"
)

// DefaultMaxDepth bounds each side when no explicit depth is configured.
const DefaultMaxDepth = 1000

// State is the conceptual lifecycle state of a book.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateAnomalous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateActive:
		return "ACTIVE"
	case StateAnomalous:
		return "ANOMALOUS"
	default:
		return "UNKNOWN"
	}
}

// UpdateResult reports the outcome of a delta batch.
type UpdateResult struct {
	Applied   int           `json:"applied"`
	Skipped   int           `json:"skipped"`
	Anomalies domain.Health `json:"anomalies"` // flags that became set during the batch
}

// OrderBook is the depth state of one symbol on one venue.
// All access goes through its own RWMutex; the sequence is a plain integer
// guarded by that lock.
type OrderBook struct {
	mu    sync.RWMutex
	pubMu sync.Mutex // serializes Publish

	venue    domain.VenueID
	symbol   domain.Symbol
	bids     bookSide
	asks     bookSide
	sequence uint64
	maxDepth int

	lastUpdate time.Time // zero until the first accepted mutation
	now        func() time.Time
}

func newOrderBook(venue domain.VenueID, symbol domain.Symbol, maxDepth int, now func() time.Time) *OrderBook {
	if now == nil {
		now = time.Now
	}
	return &OrderBook{
		venue:    venue,
		symbol:   symbol,
		bids:     newBookSide(domain.Bid),
		asks:     newBookSide(domain.Ask),
		maxDepth: maxDepth,
		now:      now,
	}
}

// Venue returns the venue the book belongs to.
func (b *OrderBook) Venue() domain.VenueID { return b.venue }

// Symbol returns the traded pair.
func (b *OrderBook) Symbol() domain.Symbol { return b.symbol }

// MaxDepth returns the per-side depth bound.
func (b *OrderBook) MaxDepth() int { return b.maxDepth }

// ApplySnapshot replaces both sides with authoritative full state.
// The sequence is set unconditionally, even when lower than the current one.
func (b *OrderBook) ApplySnapshot(bids, asks []domain.PriceLevel, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids.replace(bids)
	b.asks.replace(asks)
	b.bids.trim(b.maxDepth)
	b.asks.trim(b.maxDepth)
	b.sequence = seq
	b.lastUpdate = b.now()

	b.verifyDepth()
}

// ApplyUpdate applies one delta. It is skipped (returns false) when its sequence
// is not strictly greater than the book's, or when it is malformed.
func (b *OrderBook) ApplyUpdate(d domain.Delta) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ok := b.applyLocked(d)
	b.verifyDepth()
	return ok
}

// ApplyUpdates applies a batch in one critical section. Each delta is accepted
// or rejected on its own; no other writer can interleave with the batch.
func (b *OrderBook) ApplyUpdates(batch []domain.Delta) UpdateResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	before := b.healthLocked(0)
	var res UpdateResult
	for _, d := range batch {
		if b.applyLocked(d) {
			res.Applied++
		} else {
			res.Skipped++
		}
	}
	b.verifyDepth()

	if res.Applied > 0 {
		res.Anomalies = b.healthLocked(0).Newly(before)
	}
	return res
}

func (b *OrderBook) applyLocked(d domain.Delta) bool {
	if d.Sequence <= b.sequence {
		return false
	}
	if d.Quantity.IsNegative() || !d.Side.Valid() {
		return false
	}

	side := &b.bids
	if d.Side == domain.Ask {
		side = &b.asks
	}
	side.set(d.Price, d.Quantity)
	side.trim(b.maxDepth)

	b.sequence = d.Sequence
	b.lastUpdate = b.now()
	return true
}

// verifyDepth panics on a depth accounting defect. Must be called with lock held.
func (b *OrderBook) verifyDepth() {
	if b.bids.len() > b.maxDepth || b.asks.len() > b.maxDepth {
		panic(fmt.Sprintf("BOOK_DEPTH_INVARIANT: %s %s bids=%d asks=%d max=%d",
			b.venue, b.symbol, b.bids.len(), b.asks.len(), b.maxDepth))
	}
}

// Sequence returns the last accepted sequence number.
// Readers can compare it between calls to detect changes cheaply.
func (b *OrderBook) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// SetSequence overrides the sequence for resynchronization or replay tooling.
// It is not part of the normal update path.
func (b *OrderBook) SetSequence(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequence = seq
}

// LastUpdate returns the time of the last accepted mutation (zero if none).
func (b *OrderBook) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// HealthCheck is a read-only inspection. staleAfter <= 0 disables the stale flag.
func (b *OrderBook) HealthCheck(staleAfter time.Duration) domain.Health {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.healthLocked(staleAfter)
}

func (b *OrderBook) healthLocked(staleAfter time.Duration) domain.Health {
	var h domain.Health
	bid, hasBid := b.bids.best()
	ask, hasAsk := b.asks.best()

	h.Incomplete = !hasBid || !hasAsk
	if hasBid && hasAsk {
		h.Crossed = bid.Price.GreaterThanOrEqual(ask.Price)
	}
	if staleAfter > 0 {
		h.Stale = b.lastUpdate.IsZero() || b.now().Sub(b.lastUpdate) > staleAfter
	}
	return h
}

// Inspection is a consistent health view of one book.
type Inspection struct {
	Health     domain.Health
	Severity   domain.CrossingSeverity
	Sequence   uint64
	LastUpdate time.Time
	BidLevels  int
	AskLevels  int
}

// Inspect reads health, crossing severity, sequence and level counts under a
// single read lock, so the fields never contradict each other.
func (b *OrderBook) Inspect(staleAfter time.Duration) Inspection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	in := Inspection{
		Health:     b.healthLocked(staleAfter),
		Severity:   domain.CrossingNone,
		Sequence:   b.sequence,
		LastUpdate: b.lastUpdate,
		BidLevels:  b.bids.len(),
		AskLevels:  b.asks.len(),
	}
	bid, hasBid := b.bids.best()
	ask, hasAsk := b.asks.best()
	if hasBid && hasAsk {
		in.Severity = domain.ClassifyCrossing(bid.Price, ask.Price)
	}
	return in
}

// State maps the book onto the Uninitialized -> Active -> Anomalous lifecycle.
func (b *OrderBook) State(staleAfter time.Duration) State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.lastUpdate.IsZero() {
		return StateUninitialized
	}
	if !b.healthLocked(staleAfter).Healthy() {
		return StateAnomalous
	}
	return StateActive
}

// BestBid returns the highest bid.
func (b *OrderBook) BestBid() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.best()
}

// BestAsk returns the lowest ask.
func (b *OrderBook) BestAsk() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.best()
}

// TopOfBook returns both best levels from one consistent read.
func (b *OrderBook) TopOfBook() (bid domain.PriceLevel, hasBid bool, ask domain.PriceLevel, hasAsk bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, hasBid = b.bids.best()
	ask, hasAsk = b.asks.best()
	return
}

// Bids returns a copy of the best depth bid levels; depth <= 0 returns all.
func (b *OrderBook) Bids(depth int) []domain.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.top(depth)
}

// Asks returns a copy of the best depth ask levels; depth <= 0 returns all.
func (b *OrderBook) Asks(depth int) []domain.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.top(depth)
}

// Depth returns copies of both sides from one consistent read.
func (b *OrderBook) Depth(depth int) (bids, asks []domain.PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.top(depth), b.asks.top(depth)
}

// Len returns the number of bid and ask levels.
func (b *OrderBook) Len() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.len(), b.asks.len()
}

// IsEmpty reports whether both sides are empty.
func (b *OrderBook) IsEmpty() bool {
	bids, asks := b.Len()
	return bids == 0 && asks == 0
}

// Clear empties both sides and resets the sequence.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = newBookSide(domain.Bid)
	b.asks = newBookSide(domain.Ask)
	b.sequence = 0
	b.lastUpdate = b.now()
}

// Snapshot returns an immutable deep copy of the book.
func (b *OrderBook) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Venue:     b.venue,
		Symbol:    b.symbol,
		Bids:      b.bids.top(0),
		Asks:      b.asks.top(0),
		Sequence:  b.sequence,
		Timestamp: b.lastUpdate,
	}
}

// Publish hands fn a fresh snapshot. Publishers are serialized per book, so
// successive calls observe snapshots in mutation order. fn runs outside the
// book lock and must not call Publish on the same book.
func (b *OrderBook) Publish(fn func(Snapshot)) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	fn(b.Snapshot())
}
