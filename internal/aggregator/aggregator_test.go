package aggregator

import (
	"sync"
	"testing"

	"arb_go/internal/domain"
	"arb_go/internal/orderbook"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ethUSDT = domain.NewSymbol("ETH", "USDT")

// mapSource is a minimal BookSource. order controls VenuesFor output so tests
// can check that results do not depend on it.
type mapSource struct {
	mu    sync.RWMutex
	books map[domain.VenueID]*orderbook.OrderBook
	order []domain.VenueID
}

func newMapSource() *mapSource {
	return &mapSource{books: make(map[domain.VenueID]*orderbook.OrderBook)}
}

func (s *mapSource) GetBook(venue domain.VenueID, symbol domain.Symbol) (*orderbook.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[venue]
	if !ok || b.Symbol() != symbol {
		return nil, false
	}
	return b, true
}

func (s *mapSource) VenuesFor(symbol domain.Symbol) []domain.VenueID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.VenueID(nil), s.order...)
}

func (s *mapSource) add(t *testing.T, venue domain.VenueID, bids, asks []domain.PriceLevel) *orderbook.OrderBook {
	t.Helper()
	b, err := orderbook.NewBuilder().Symbol(ethUSDT).Venue(venue).Build()
	require.NoError(t, err)
	b.ApplySnapshot(bids, asks, 1)
	s.books[venue] = b
	s.order = append(s.order, venue)
	return b
}

func lv(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{Price: decimal.RequireFromString(price), Quantity: decimal.RequireFromString(qty)}
}

func levels(ls ...domain.PriceLevel) []domain.PriceLevel { return ls }

func TestVenueAggregator_BestBidQuantityTieBreak(t *testing.T) {
	src := newMapSource()
	src.add(t, "venue-a", levels(lv("100", "5")), nil)
	src.add(t, "venue-b", levels(lv("100", "10")), nil)

	best, ok := New(src, ethUSDT).BestBid()
	require.True(t, ok)
	assert.Equal(t, domain.VenueID("venue-b"), best.Venue)
	assert.True(t, best.Level.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestVenueAggregator_VenueOrderTieBreak(t *testing.T) {
	src := newMapSource()
	src.add(t, domain.VenueKraken, levels(lv("100", "5")), levels(lv("101", "2")))
	src.add(t, "custom", levels(lv("100", "5")), levels(lv("101", "2")))
	src.add(t, domain.VenueBinance, levels(lv("100", "5")), levels(lv("101", "2")))

	agg := New(src, ethUSDT)
	bid, ok := agg.BestBid()
	require.True(t, ok)
	assert.Equal(t, domain.VenueBinance, bid.Venue)

	ask, ok := agg.BestAsk()
	require.True(t, ok)
	assert.Equal(t, domain.VenueBinance, ask.Venue)
}

func TestVenueAggregator_BestAsk(t *testing.T) {
	src := newMapSource()
	src.add(t, domain.VenueBinance, nil, levels(lv("101", "1"), lv("102", "1")))
	src.add(t, domain.VenueCoinbase, nil, levels(lv("100.5", "1")))

	ask, ok := New(src, ethUSDT).BestAsk()
	require.True(t, ok)
	assert.Equal(t, domain.VenueCoinbase, ask.Venue)
	assert.Equal(t, "100.5", ask.Level.Price.String())
}

func TestVenueAggregator_Spread(t *testing.T) {
	t.Run("none when no venue has asks", func(t *testing.T) {
		src := newMapSource()
		src.add(t, domain.VenueBinance, levels(lv("100", "1")), nil)
		src.add(t, domain.VenueKraken, levels(lv("99", "1")), nil)

		_, ok := New(src, ethUSDT).Spread()
		assert.False(t, ok)
	})

	t.Run("negative spread is an arbitrage signal", func(t *testing.T) {
		src := newMapSource()
		src.add(t, domain.VenueBinance, levels(lv("102", "1")), levels(lv("103", "1")))
		src.add(t, domain.VenueKraken, levels(lv("99", "1")), levels(lv("101", "1")))

		spread, ok := New(src, ethUSDT).Spread()
		require.True(t, ok)
		assert.True(t, spread.Equal(decimal.NewFromInt(-1)))
	})

	t.Run("none without books", func(t *testing.T) {
		_, ok := New(newMapSource(), ethUSDT).Spread()
		assert.False(t, ok)
	})
}

func TestVenueAggregator_AggregateDepth(t *testing.T) {
	build := func(order []domain.VenueID) DepthView {
		src := newMapSource()
		data := map[domain.VenueID][2][]domain.PriceLevel{
			domain.VenueBinance: {levels(lv("100", "1"), lv("99", "2")), levels(lv("101", "1"), lv("102", "3"))},
			domain.VenueKraken:  {levels(lv("100.0", "4"), lv("98", "1")), levels(lv("101", "2"))},
			domain.VenueOKX:     {levels(lv("97", "1")), levels(lv("103", "1"))},
		}
		for _, v := range order {
			src.add(t, v, data[v][0], data[v][1])
		}
		return New(src, ethUSDT).AggregateDepth(3)
	}

	view := build([]domain.VenueID{domain.VenueBinance, domain.VenueKraken, domain.VenueOKX})

	require.Len(t, view.Bids, 3)
	assert.Equal(t, "100", view.Bids[0].Price.String())
	assert.True(t, view.Bids[0].TotalQuantity.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, []VenueQuantity{
		{Venue: domain.VenueBinance, Quantity: decimal.RequireFromString("1")},
		{Venue: domain.VenueKraken, Quantity: decimal.RequireFromString("4")},
	}, view.Bids[0].Breakdown)
	assert.Equal(t, "99", view.Bids[1].Price.String())
	assert.Equal(t, "98", view.Bids[2].Price.String())

	require.Len(t, view.Asks, 3)
	assert.Equal(t, "101", view.Asks[0].Price.String())
	assert.True(t, view.Asks[0].TotalQuantity.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "102", view.Asks[1].Price.String())
	assert.Equal(t, "103", view.Asks[2].Price.String())

	// iteration order over venues does not change the result
	reversed := build([]domain.VenueID{domain.VenueOKX, domain.VenueKraken, domain.VenueBinance})
	assert.Equal(t, view, reversed)
}

func TestVenueAggregator_ExplicitVenues(t *testing.T) {
	src := newMapSource()
	src.add(t, domain.VenueBinance, levels(lv("100", "1")), levels(lv("105", "1")))
	src.add(t, domain.VenueKraken, levels(lv("104", "1")), levels(lv("106", "1")))

	agg := New(src, ethUSDT, domain.VenueBinance, domain.VenueHuobi)
	bid, ok := agg.BestBid()
	require.True(t, ok)
	assert.Equal(t, domain.VenueBinance, bid.Venue)
	assert.Len(t, agg.Snapshots(), 1)
}

func TestVenueAggregator_RepeatedVenuesCountOnce(t *testing.T) {
	src := newMapSource()
	src.add(t, domain.VenueBinance, levels(lv("100", "5")), levels(lv("99", "1")))

	agg := New(src, ethUSDT, domain.VenueBinance, domain.VenueBinance)

	view := agg.AggregateDepth(10)
	require.Len(t, view.Bids, 1)
	assert.True(t, view.Bids[0].TotalQuantity.Equal(decimal.NewFromInt(5)))
	assert.Len(t, view.Bids[0].Breakdown, 1)
	assert.True(t, agg.TotalLiquidityAtPrice(domain.Bid, decimal.NewFromInt(100)).Equal(decimal.NewFromInt(5)))
	assert.Equal(t, []domain.VenueID{domain.VenueBinance}, agg.CrossedVenues())
	assert.Len(t, agg.Snapshots(), 1)
}

func TestVenueAggregator_LiquidityAndCrossed(t *testing.T) {
	src := newMapSource()
	src.add(t, domain.VenueBinance, levels(lv("100", "1"), lv("99", "2")), levels(lv("99.5", "1")))
	src.add(t, domain.VenueKraken, levels(lv("98", "4")), levels(lv("101", "1")))

	agg := New(src, ethUSDT)
	assert.True(t, agg.TotalLiquidityAtPrice(domain.Bid, decimal.NewFromInt(99)).Equal(decimal.NewFromInt(3)))
	assert.True(t, agg.TotalLiquidityAtPrice(domain.Ask, decimal.NewFromInt(101)).Equal(decimal.NewFromInt(2)))
	assert.Equal(t, []domain.VenueID{domain.VenueBinance}, agg.CrossedVenues())
}

func TestVenueAggregator_ConcurrentWriters(t *testing.T) {
	src := newMapSource()
	a := src.add(t, domain.VenueBinance, levels(lv("100", "1")), levels(lv("101", "1")))
	b := src.add(t, domain.VenueKraken, levels(lv("100", "1")), levels(lv("101", "1")))
	agg := New(src, ethUSDT)

	var wg sync.WaitGroup
	for _, book := range []*orderbook.OrderBook{a, b} {
		wg.Add(1)
		go func(book *orderbook.OrderBook) {
			defer wg.Done()
			for i := uint64(2); i < 300; i++ {
				book.ApplyUpdate(domain.Delta{
					Side:     domain.Bid,
					Price:    decimal.NewFromInt(int64(90 + i%10)),
					Quantity: decimal.NewFromInt(int64(i % 3)),
					Sequence: i,
				})
			}
		}(book)
	}
	for i := 0; i < 100; i++ {
		view := agg.AggregateDepth(5)
		assert.LessOrEqual(t, len(view.Bids), 5)
		_, _ = agg.Spread()
	}
	wg.Wait()
}
