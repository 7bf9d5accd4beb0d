package cache

import (
	"sync"

	"arb_go/internal/domain"
	"arb_go/internal/orderbook"
)

// History keeps the most recent snapshots per key in a fixed-size ring.
type History struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

type ring struct {
	buf  []orderbook.Snapshot
	head int // next write position
	n    int
}

// NewHistory creates a history keeping up to perKey snapshots per key (minimum 1).
func NewHistory(perKey int) *History {
	if perKey < 1 {
		perKey = 1
	}
	return &History{size: perKey, rings: make(map[string]*ring)}
}

// Add appends a deep copy of snap, overwriting the oldest once the ring is full.
func (h *History) Add(key string, snap orderbook.Snapshot) {
	stored := snap.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings[key]
	if !ok {
		r = &ring{buf: make([]orderbook.Snapshot, h.size)}
		h.rings[key] = r
	}
	r.buf[r.head] = stored
	r.head = (r.head + 1) % h.size
	if r.n < h.size {
		r.n++
	}
}

// Latest returns the newest snapshot for key.
func (h *History) Latest(key string) (orderbook.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rings[key]
	if !ok || r.n == 0 {
		return orderbook.Snapshot{}, false
	}
	return r.latest(h.size), true
}

// All returns the stored snapshots for key, oldest first.
func (h *History) All(key string) []orderbook.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rings[key]
	if !ok {
		return nil
	}
	out := make([]orderbook.Snapshot, 0, r.n)
	start := (r.head - r.n + h.size) % h.size
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%h.size])
	}
	return out
}

// Clear drops the history of key.
func (h *History) Clear(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rings, key)
}

// ClearVenue drops the history of every key recorded for venue.
func (h *History) ClearVenue(venue domain.VenueID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for key, r := range h.rings {
		if r.latest(h.size).Venue == venue {
			delete(h.rings, key)
			n++
		}
	}
	return n
}

// ClearAll drops every recorded history.
func (h *History) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rings = make(map[string]*ring)
}

func (r *ring) latest(size int) orderbook.Snapshot {
	return r.buf[(r.head-1+size)%size]
}

// Keys returns the number of keys with recorded history.
func (h *History) Keys() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rings)
}
