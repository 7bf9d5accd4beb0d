package orderbook

import (
	"time"

	"arb_go/internal/domain"
)

// Snapshot is a point-in-time copy of a book. It shares no memory with the live book.
type Snapshot struct {
	Venue     domain.VenueID      `json:"venue"`
	Symbol    domain.Symbol       `json:"symbol"`
	Bids      []domain.PriceLevel `json:"bids"` // descending
	Asks      []domain.PriceLevel `json:"asks"` // ascending
	Sequence  uint64              `json:"seq"`
	Timestamp time.Time           `json:"ts"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Bids = append([]domain.PriceLevel(nil), s.Bids...)
	out.Asks = append([]domain.PriceLevel(nil), s.Asks...)
	return out
}

// BestBid returns the first bid level.
func (s Snapshot) BestBid() (domain.PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return domain.PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the first ask level.
func (s Snapshot) BestAsk() (domain.PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return domain.PriceLevel{}, false
	}
	return s.Asks[0], true
}

// IsEmpty reports whether both sides are empty.
func (s Snapshot) IsEmpty() bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0
}
