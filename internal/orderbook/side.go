package orderbook

import (
	"sort"

	"arb_go/internal/domain"

	"github.com/shopspring/decimal"
)

// bookSide is a sorted sequence of price levels with unique prices.
// Bids are kept in descending price order, asks in ascending order,
// so index 0 is always the best level and the tail is the worst.
type bookSide struct {
	side   domain.Side
	levels []domain.PriceLevel
}

func newBookSide(side domain.Side) bookSide {
	return bookSide{side: side}
}

// better reports whether price a ranks ahead of price b on this side.
func (s *bookSide) better(a, b decimal.Decimal) bool {
	if s.side == domain.Bid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// search returns the index of price, or the position where it would be inserted.
func (s *bookSide) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		return !s.better(s.levels[i].Price, price)
	})
	return i, i < len(s.levels) && s.levels[i].Price.Equal(price)
}

// set inserts, overwrites or (for zero quantity) removes the level at price.
// It returns true when the side changed.
func (s *bookSide) set(price, quantity decimal.Decimal) bool {
	i, found := s.search(price)
	if quantity.IsZero() {
		if !found {
			return false
		}
		s.levels = append(s.levels[:i], s.levels[i+1:]...)
		return true
	}
	if found {
		s.levels[i].Quantity = quantity
		return true
	}
	s.levels = append(s.levels, domain.PriceLevel{})
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = domain.PriceLevel{Price: price, Quantity: quantity}
	return true
}

// replace installs levels wholesale. Duplicate prices resolve last-write-wins
// (a later zero quantity removes the price); negative quantities are dropped.
func (s *bookSide) replace(levels []domain.PriceLevel) {
	s.levels = make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Quantity.IsNegative() {
			continue
		}
		s.set(l.Price, l.Quantity)
	}
}

// trim drops worst-priced levels until at most maxDepth remain.
func (s *bookSide) trim(maxDepth int) int {
	if maxDepth < 0 || len(s.levels) <= maxDepth {
		return 0
	}
	dropped := len(s.levels) - maxDepth
	clear(s.levels[maxDepth:])
	s.levels = s.levels[:maxDepth]
	return dropped
}

func (s *bookSide) best() (domain.PriceLevel, bool) {
	if len(s.levels) == 0 {
		return domain.PriceLevel{}, false
	}
	return s.levels[0], true
}

func (s *bookSide) len() int {
	return len(s.levels)
}

// top returns a copy of the best depth levels; depth <= 0 means all.
func (s *bookSide) top(depth int) []domain.PriceLevel {
	n := len(s.levels)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]domain.PriceLevel, n)
	copy(out, s.levels[:n])
	return out
}

func (s *bookSide) clone() bookSide {
	return bookSide{side: s.side, levels: s.top(0)}
}
