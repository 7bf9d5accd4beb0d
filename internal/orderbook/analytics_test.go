package orderbook

import (
	"testing"

	"arb_go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleBook(t *testing.T) *OrderBook {
	t.Helper()
	book := newTestBook(t, 50, nil)
	book.ApplySnapshot(
		[]domain.PriceLevel{lvl("100", "1"), lvl("99", "2"), lvl("98", "3")},
		[]domain.PriceLevel{lvl("101", "1"), lvl("102", "2"), lvl("103", "4")},
		1,
	)
	return book
}

func TestAnalytics_TopOfBook(t *testing.T) {
	book := sampleBook(t)

	spread, ok := book.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(dec("1")))

	mid, ok := book.MidPrice()
	require.True(t, ok)
	assert.True(t, mid.Equal(dec("100.5")))

	bps, ok := book.SpreadBps()
	require.True(t, ok)
	assert.True(t, bps.Equal(dec("100")))

	assert.False(t, book.IsCrossed())
	assert.Equal(t, domain.CrossingNone, book.CrossingSeverity())

	empty := newTestBook(t, 10, nil)
	_, ok = empty.Spread()
	assert.False(t, ok)
	_, ok = empty.MidPrice()
	assert.False(t, ok)
}

func TestAnalytics_Volume(t *testing.T) {
	book := sampleBook(t)

	assert.True(t, book.TotalVolume(domain.Bid, 0).Equal(dec("6")))
	assert.True(t, book.TotalVolume(domain.Ask, 2).Equal(dec("3")))

	ratio, ok := book.ImbalanceRatio(2)
	require.True(t, ok)
	assert.True(t, ratio.Equal(dec("0.5")))

	assert.True(t, book.LiquidityAtPrice(domain.Bid, dec("99")).Equal(dec("3")))
	assert.True(t, book.LiquidityAtPrice(domain.Ask, dec("102.5")).Equal(dec("3")))
	assert.True(t, book.LiquidityAtPrice(domain.Ask, dec("100")).IsZero())
}

func TestAnalytics_VWAPAndSlippage(t *testing.T) {
	book := sampleBook(t)

	// 1 @ 101 + 2 @ 102 = 305 / 3
	avg, ok := book.VWAP(domain.Ask, dec("3"))
	require.True(t, ok)
	assert.Equal(t, "101.67", avg.StringFixed(2))

	_, ok = book.VWAP(domain.Ask, dec("100"))
	assert.False(t, ok)
	_, ok = book.VWAP(domain.Ask, decimal.Zero)
	assert.False(t, ok)

	// bids: 1 @ 100 + 1 @ 99 = 99.5, slippage 0.5%
	slip, ok := book.Slippage(domain.Bid, dec("2"))
	require.True(t, ok)
	assert.True(t, slip.Equal(dec("0.5")))
}

func TestAnalytics_CrossingSeverity(t *testing.T) {
	book := newTestBook(t, 10, nil)
	book.ApplySnapshot([]domain.PriceLevel{lvl("150", "1")}, []domain.PriceLevel{lvl("100", "1")}, 1)

	assert.True(t, book.IsCrossed())
	assert.Equal(t, domain.CrossingModerate, book.CrossingSeverity())

	spread, ok := book.Spread()
	require.True(t, ok)
	assert.True(t, spread.IsNegative())
}

func TestAnalytics_Checksum(t *testing.T) {
	a := sampleBook(t)
	b := sampleBook(t)
	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.True(t, b.ValidateChecksum(a.Checksum()))
	assert.Equal(t, a.Checksum(), a.Snapshot().Checksum())

	b.ApplyUpdate(bid("100", "1.5", 2))
	assert.NotEqual(t, a.Checksum(), b.Checksum())

	// deep books hash only the top window, live or snapshot
	c := sampleBook(t)
	before := c.Checksum()
	for i := int64(0); i < 15; i++ {
		c.ApplyUpdate(domain.Delta{
			Side:     domain.Bid,
			Price:    decimal.NewFromInt(80 - i),
			Quantity: decimal.NewFromInt(1),
			Sequence: uint64(10 + i),
		})
	}
	assert.NotEqual(t, before, c.Checksum())
	snap := c.Snapshot()
	require.Greater(t, len(snap.Bids), checksumDepth)
	assert.Equal(t, c.Checksum(), snap.Checksum())
}
