package engine

import (
	"sync"
	"testing"

	"arb_go/internal/domain"
	"arb_go/internal/orderbook"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binanceBTC = BookKey{Venue: domain.VenueBinance, Symbol: btcUSDT}

type eventRecorder struct {
	mu     sync.Mutex
	events []BookEvent
}

func (r *eventRecorder) HandleBookEvent(ev BookEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []BookEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BookEventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind())
	}
	return out
}

func newEventBook(t *testing.T, bids, asks []domain.PriceLevel) *orderbook.OrderBook {
	t.Helper()
	b, err := orderbook.NewBuilder().Venue(domain.VenueBinance).Symbol(btcUSDT).Build()
	require.NoError(t, err)
	b.ApplySnapshot(bids, asks, 1)
	return b
}

func ofKind[T BookEvent](events []BookEvent) []T {
	var out []T
	for _, ev := range events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestEventProcessor_FirstPassHasNoChanges(t *testing.T) {
	rec := &eventRecorder{}
	p := NewEventProcessor(rec)
	b := newEventBook(t, []domain.PriceLevel{lvl("100", "1")}, []domain.PriceLevel{lvl("100.5", "1")})

	events := p.Process(binanceBTC, b)
	assert.Empty(t, events)

	// an unchanged book produces nothing either
	assert.Empty(t, p.Process(binanceBTC, b))
	assert.Empty(t, rec.kinds())
}

func TestEventProcessor_BestBidAskAndSpread(t *testing.T) {
	p := NewEventProcessor()
	b := newEventBook(t, []domain.PriceLevel{lvl("100", "1")}, []domain.PriceLevel{lvl("100.5", "1")})
	p.Process(binanceBTC, b)

	// quantity-only change moves the top level but not the spread
	b.ApplyUpdate(delta(domain.Bid, "100", "1.05", 2))
	events := p.Process(binanceBTC, b)
	require.Len(t, ofKind[BestBidAskEvent](events), 1)
	assert.Empty(t, ofKind[SpreadEvent](events))

	b.ApplyUpdate(delta(domain.Bid, "100.2", "1", 3))
	events = p.Process(binanceBTC, b)

	bba := ofKind[BestBidAskEvent](events)
	require.Len(t, bba, 1)
	assert.True(t, bba[0].BestBid.Price.Equal(decimal.RequireFromString("100.2")))
	assert.True(t, bba[0].PrevBestBid.Price.Equal(decimal.NewFromInt(100)))

	spread := ofKind[SpreadEvent](events)
	require.Len(t, spread, 1)
	assert.True(t, spread[0].Spread.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, spread[0].PrevSpread.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, spread[0].Mid.Equal(decimal.RequireFromString("100.35")))
	require.NotNil(t, spread[0].SpreadBps)
	assert.Equal(t, int64(29), *spread[0].SpreadBps) // 0.3 / 100.2 = 29.9 bps

	// removing the only ask makes the spread vanish
	b.ApplyUpdate(delta(domain.Ask, "100.5", "0", 4))
	spread = ofKind[SpreadEvent](p.Process(binanceBTC, b))
	require.Len(t, spread, 1)
	assert.Nil(t, spread[0].Spread)
	assert.NotNil(t, spread[0].PrevSpread)
}

func TestEventProcessor_Volume(t *testing.T) {
	p := NewEventProcessor()
	b := newEventBook(t, []domain.PriceLevel{lvl("100", "5")}, []domain.PriceLevel{lvl("101", "5")})
	p.Process(binanceBTC, b)

	// 10 -> 11 is exactly 10%, not above the threshold
	b.ApplyUpdate(delta(domain.Bid, "100", "6", 2))
	assert.Empty(t, ofKind[VolumeEvent](p.Process(binanceBTC, b)))

	// 11 -> 15 is +36%
	b.ApplyUpdate(delta(domain.Bid, "99", "4", 3))
	vol := ofKind[VolumeEvent](p.Process(binanceBTC, b))
	require.Len(t, vol, 1)
	assert.True(t, vol[0].BidVolume.Equal(decimal.NewFromInt(10)))
	assert.True(t, vol[0].AskVolume.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 10, vol[0].Depth)
	require.NotNil(t, vol[0].Imbalance)
	assert.Equal(t, "0.6667", vol[0].Imbalance.StringFixed(4))
}

func TestEventProcessor_PriceMovement(t *testing.T) {
	p := NewEventProcessor()
	b := newEventBook(t, []domain.PriceLevel{lvl("100", "1")}, []domain.PriceLevel{lvl("102", "1")})
	p.Process(binanceBTC, b)

	b.ApplyUpdates([]domain.Delta{
		delta(domain.Bid, "101", "1", 2), // bid up: improvement
		delta(domain.Ask, "103", "1", 3),
		delta(domain.Ask, "102", "0", 4), // ask up: degradation
	})
	moves := ofKind[PriceMovementEvent](p.Process(binanceBTC, b))
	require.Len(t, moves, 2)

	assert.Equal(t, domain.Bid, moves[0].Side)
	assert.Equal(t, MovementImprovement, moves[0].Movement)
	assert.Equal(t, int64(100), moves[0].ChangeBps)

	assert.Equal(t, domain.Ask, moves[1].Side)
	assert.Equal(t, MovementDegradation, moves[1].Movement)
	assert.Equal(t, int64(98), moves[1].ChangeBps) // 1/102 = 98.04 bps

	b.ApplyUpdate(delta(domain.Bid, "101", "0", 5))
	moves = ofKind[PriceMovementEvent](p.Process(binanceBTC, b))
	require.Len(t, moves, 1)
	assert.Equal(t, MovementDegradation, moves[0].Movement)
	assert.Equal(t, int64(-99), moves[0].ChangeBps)
}

func TestEventProcessor_Crossing(t *testing.T) {
	p := NewEventProcessor()
	b := newEventBook(t, []domain.PriceLevel{lvl("150", "1")}, []domain.PriceLevel{lvl("101", "1")})

	cross := ofKind[CrossingEvent](p.Process(binanceBTC, b))
	require.Len(t, cross, 1)
	assert.True(t, cross[0].CrossAmount.Equal(decimal.NewFromInt(49)))
	assert.Equal(t, domain.CrossingModerate, cross[0].Severity)

	// reported again while the book stays crossed
	assert.Len(t, ofKind[CrossingEvent](p.Process(binanceBTC, b)), 1)
}

func TestEventProcessor_LiquidityGaps(t *testing.T) {
	p := NewEventProcessor()
	b := newEventBook(t,
		[]domain.PriceLevel{lvl("100", "1"), lvl("99.5", "1"), lvl("95", "1")},
		[]domain.PriceLevel{lvl("101", "1"), lvl("102.01", "1"), lvl("102.5", "1")})

	gaps := ofKind[LiquidityGapEvent](p.Process(binanceBTC, b))
	require.Len(t, gaps, 1)

	// 99.5 -> 95 is 4.7% of 95; 101 -> 102.01 is exactly 1% and is not reported
	assert.Equal(t, domain.Bid, gaps[0].Side)
	assert.True(t, gaps[0].GapStart.Equal(decimal.NewFromInt(95)))
	assert.True(t, gaps[0].GapEnd.Equal(decimal.RequireFromString("99.5")))
	assert.True(t, gaps[0].GapSize.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, 2, gaps[0].Level)

	b.ApplyUpdate(delta(domain.Ask, "110", "1", 2))
	gaps = ofKind[LiquidityGapEvent](p.Process(binanceBTC, b))
	require.Len(t, gaps, 2)
	assert.Equal(t, domain.Ask, gaps[1].Side)
	assert.True(t, gaps[1].GapStart.Equal(decimal.RequireFromString("102.5")))
	assert.Equal(t, 3, gaps[1].Level)
}

func TestEventProcessor_StatePerBook(t *testing.T) {
	p := NewEventProcessor()
	a := newEventBook(t, []domain.PriceLevel{lvl("100", "1")}, []domain.PriceLevel{lvl("100.5", "1")})
	other := BookKey{Venue: domain.VenueKraken, Symbol: btcUSDT}
	b := newEventBook(t, []domain.PriceLevel{lvl("200", "1")}, []domain.PriceLevel{lvl("200.5", "1")})

	p.Process(binanceBTC, a)
	// first pass for another book never compares against binance
	assert.Empty(t, p.Process(other, b))
}

func TestIngestor_DerivesBookEvents(t *testing.T) {
	m := newTestManager(nil)
	rec := &eventRecorder{}
	in := NewIngestor("binance", 16, m, nil)
	in.SetEventProcessor(NewEventProcessor(rec))

	in.Process(snapshotEvent(domain.VenueBinance, 1,
		[]domain.PriceLevel{lvl("100", "1")}, []domain.PriceLevel{lvl("100.5", "1")}))
	assert.Empty(t, rec.kinds())

	in.Process(deltaEvent(domain.VenueBinance, delta(domain.Bid, "100.1", "1", 2)))
	kinds := rec.kinds()
	assert.Contains(t, kinds, KindBestBidAsk)
	assert.Contains(t, kinds, KindSpread)
	assert.Contains(t, kinds, KindPriceMovement)

	// a batch with nothing applied derives nothing
	n := len(kinds)
	in.Process(deltaEvent(domain.VenueBinance, delta(domain.Bid, "90", "1", 2)))
	assert.Len(t, rec.kinds(), n)
}
