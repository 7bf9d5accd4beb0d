// Package aggregator computes consolidated views over the live books of one symbol.
package aggregator

import (
	"sort"

	"arb_go/internal/domain"
	"arb_go/internal/orderbook"

	"github.com/shopspring/decimal"
)

// BookSource resolves live books. It is satisfied by engine.Manager.
type BookSource interface {
	GetBook(venue domain.VenueID, symbol domain.Symbol) (*orderbook.OrderBook, bool)
	VenuesFor(symbol domain.Symbol) []domain.VenueID
}

// VenueQuote is the best level of one venue.
type VenueQuote struct {
	Venue domain.VenueID    `json:"venue"`
	Level domain.PriceLevel `json:"level"`
}

// VenueQuantity is one venue's contribution to an aggregated level.
type VenueQuantity struct {
	Venue    domain.VenueID  `json:"venue"`
	Quantity decimal.Decimal `json:"quantity"`
}

// AggregatedLevel is the sum of all venues' quantity at one price.
type AggregatedLevel struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Breakdown     []VenueQuantity `json:"breakdown"` // ordered by domain.VenueLess
}

// DepthView is the merged depth of both sides.
type DepthView struct {
	Bids []AggregatedLevel `json:"bids"`
	Asks []AggregatedLevel `json:"asks"`
}

// VenueAggregator reads books at call time and keeps no state of its own.
// Each book is read under its own lock, one book at a time.
type VenueAggregator struct {
	source BookSource
	symbol domain.Symbol
	venues []domain.VenueID // nil means every venue the source has for symbol
}

// New creates an aggregator for symbol. With no venues it covers every venue
// the source knows for the symbol at call time. Repeated venues count once.
func New(source BookSource, symbol domain.Symbol, venues ...domain.VenueID) *VenueAggregator {
	var vs []domain.VenueID
	if len(venues) > 0 {
		vs = append(vs, venues...)
		sort.Slice(vs, func(i, j int) bool { return domain.VenueLess(vs[i], vs[j]) })
		vs = compactVenues(vs)
	}
	return &VenueAggregator{source: source, symbol: symbol, venues: vs}
}

// compactVenues drops repeated venues from a sorted slice in place.
func compactVenues(vs []domain.VenueID) []domain.VenueID {
	out := vs[:0]
	for i, v := range vs {
		if i > 0 && v == vs[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Symbol returns the aggregated symbol.
func (a *VenueAggregator) Symbol() domain.Symbol { return a.symbol }

// books resolves the venue books in deterministic venue order.
func (a *VenueAggregator) books() []*orderbook.OrderBook {
	venues := a.venues
	if venues == nil {
		venues = a.source.VenuesFor(a.symbol)
		sort.Slice(venues, func(i, j int) bool { return domain.VenueLess(venues[i], venues[j]) })
		venues = compactVenues(venues)
	}
	out := make([]*orderbook.OrderBook, 0, len(venues))
	for _, v := range venues {
		if b, ok := a.source.GetBook(v, a.symbol); ok {
			out = append(out, b)
		}
	}
	return out
}

// BestBid returns the highest bid across venues. Ties go to the larger
// quantity, then to the venue ordered first by domain.VenueLess.
func (a *VenueAggregator) BestBid() (VenueQuote, bool) {
	return a.best(domain.Bid)
}

// BestAsk returns the lowest ask across venues with the same tie-breaks as BestBid.
func (a *VenueAggregator) BestAsk() (VenueQuote, bool) {
	return a.best(domain.Ask)
}

func (a *VenueAggregator) best(side domain.Side) (VenueQuote, bool) {
	var best VenueQuote
	found := false
	for _, b := range a.books() {
		var lvl domain.PriceLevel
		var ok bool
		if side == domain.Bid {
			lvl, ok = b.BestBid()
		} else {
			lvl, ok = b.BestAsk()
		}
		if !ok {
			continue
		}
		q := VenueQuote{Venue: b.Venue(), Level: lvl}
		if !found || quoteBetter(side, q, best) {
			best = q
			found = true
		}
	}
	return best, found
}

func quoteBetter(side domain.Side, a, b VenueQuote) bool {
	if !a.Level.Price.Equal(b.Level.Price) {
		if side == domain.Bid {
			return a.Level.Price.GreaterThan(b.Level.Price)
		}
		return a.Level.Price.LessThan(b.Level.Price)
	}
	if !a.Level.Quantity.Equal(b.Level.Quantity) {
		return a.Level.Quantity.GreaterThan(b.Level.Quantity)
	}
	return domain.VenueLess(a.Venue, b.Venue)
}

// Spread returns bestAsk - bestBid across venues. A negative spread is a
// cross-venue arbitrage signal, not an error. It returns false when either
// side is missing on every venue.
func (a *VenueAggregator) Spread() (decimal.Decimal, bool) {
	bid, ok := a.BestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := a.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Level.Price.Sub(bid.Level.Price), true
}

// AggregateDepth merges levels by identical price, truncated to depth entries
// per side (depth <= 0 means all levels).
func (a *VenueAggregator) AggregateDepth(depth int) DepthView {
	bidAcc := newAccumulator(domain.Bid)
	askAcc := newAccumulator(domain.Ask)
	for _, b := range a.books() {
		// each venue's top depth levels cover the merged top depth
		bids, asks := b.Depth(depth)
		bidAcc.add(b.Venue(), bids)
		askAcc.add(b.Venue(), asks)
	}
	return DepthView{Bids: bidAcc.result(depth), Asks: askAcc.result(depth)}
}

// TotalLiquidityAtPrice sums, across venues, the quantity available at prices
// at least as good as price.
func (a *VenueAggregator) TotalLiquidityAtPrice(side domain.Side, price decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, b := range a.books() {
		total = total.Add(b.LiquidityAtPrice(side, price))
	}
	return total
}

// CrossedVenues lists venues whose own book is crossed.
func (a *VenueAggregator) CrossedVenues() []domain.VenueID {
	var out []domain.VenueID
	for _, b := range a.books() {
		if b.IsCrossed() {
			out = append(out, b.Venue())
		}
	}
	return out
}

// Snapshots returns a consistent per-venue copy of every book, in venue order.
func (a *VenueAggregator) Snapshots() []orderbook.Snapshot {
	books := a.books()
	out := make([]orderbook.Snapshot, 0, len(books))
	for _, b := range books {
		out = append(out, b.Snapshot())
	}
	return out
}

type accumulator struct {
	side   domain.Side
	levels map[string]*AggregatedLevel
}

func newAccumulator(side domain.Side) *accumulator {
	return &accumulator{side: side, levels: make(map[string]*AggregatedLevel)}
}

func (acc *accumulator) add(venue domain.VenueID, levels []domain.PriceLevel) {
	for _, l := range levels {
		// normalized key so 100 and 100.0 merge
		key := l.Price.String()
		agg, ok := acc.levels[key]
		if !ok {
			agg = &AggregatedLevel{Price: l.Price, TotalQuantity: decimal.Zero}
			acc.levels[key] = agg
		}
		agg.TotalQuantity = agg.TotalQuantity.Add(l.Quantity)
		agg.Breakdown = append(agg.Breakdown, VenueQuantity{Venue: venue, Quantity: l.Quantity})
	}
}

func (acc *accumulator) result(depth int) []AggregatedLevel {
	out := make([]AggregatedLevel, 0, len(acc.levels))
	for _, agg := range acc.levels {
		sort.Slice(agg.Breakdown, func(i, j int) bool {
			return domain.VenueLess(agg.Breakdown[i].Venue, agg.Breakdown[j].Venue)
		})
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if acc.side == domain.Bid {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}
