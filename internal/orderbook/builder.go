package orderbook

import (
	"fmt"
	"time"

	"arb_go/internal/domain"
)

// Builder constructs a validated OrderBook.
//
//	book, err := orderbook.NewBuilder().
//		Symbol(domain.NewSymbol("BTC", "USDT")).
//		Venue(domain.VenueBinance).
//		MaxDepth(50).
//		Build()
type Builder struct {
	symbol   domain.Symbol
	venue    domain.VenueID
	maxDepth int
	depthSet bool
	bids     []domain.PriceLevel
	asks     []domain.PriceLevel
	now      func() time.Time
}

// NewBuilder returns a builder with the default depth bound.
func NewBuilder() *Builder {
	return &Builder{maxDepth: DefaultMaxDepth}
}

func (b *Builder) Symbol(s domain.Symbol) *Builder {
	b.symbol = s
	return b
}

func (b *Builder) Venue(v domain.VenueID) *Builder {
	b.venue = v
	return b
}

func (b *Builder) MaxDepth(n int) *Builder {
	b.maxDepth = n
	b.depthSet = true
	return b
}

func (b *Builder) WithBids(levels []domain.PriceLevel) *Builder {
	b.bids = levels
	return b
}

func (b *Builder) WithAsks(levels []domain.PriceLevel) *Builder {
	b.asks = levels
	return b
}

// WithClock overrides the time source used for staleness (tests, replay).
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// FromSnapshot pre-fills venue, symbol and levels. The sequence is not copied:
// a built book always starts at sequence 0.
func (b *Builder) FromSnapshot(s Snapshot) *Builder {
	b.venue = s.Venue
	b.symbol = s.Symbol
	b.bids = s.Bids
	b.asks = s.Asks
	return b
}

// Build validates the parameters and returns the book. It never panics.
func (b *Builder) Build() (*OrderBook, error) {
	if b.symbol.IsZero() {
		return nil, &domain.ValidationError{Field: "symbol", Err: domain.ErrSymbolRequired}
	}
	if b.venue == "" {
		return nil, &domain.ValidationError{Field: "venue", Err: domain.ErrVenueRequired}
	}
	if b.maxDepth <= 0 {
		return nil, &domain.ValidationError{
			Field: "max_depth",
			Err:   fmt.Errorf("%w: got %d", domain.ErrInvalidDepth, b.maxDepth),
		}
	}
	if err := checkQuantities("bids", b.bids); err != nil {
		return nil, err
	}
	if err := checkQuantities("asks", b.asks); err != nil {
		return nil, err
	}

	book := newOrderBook(b.venue, b.symbol, b.maxDepth, b.now)
	book.bids.replace(b.bids)
	book.asks.replace(b.asks)
	book.bids.trim(book.maxDepth)
	book.asks.trim(book.maxDepth)
	return book, nil
}

func checkQuantities(field string, levels []domain.PriceLevel) error {
	for i, l := range levels {
		if l.Quantity.IsNegative() {
			return &domain.ValidationError{
				Field: fmt.Sprintf("%s[%d]", field, i),
				Err:   fmt.Errorf("%w: %s @ %s", domain.ErrNegativeQuantity, l.Quantity, l.Price),
			}
		}
	}
	return nil
}
