package orderbook

import (
	"encoding/binary"
	"hash/crc32"

	"arb_go/internal/domain"

	"github.com/shopspring/decimal"
)

// checksumDepth is the number of levels per side covered by Checksum.
const checksumDepth = 10

var (
	two         = decimal.NewFromInt(2)
	hundred     = decimal.NewFromInt(100)
	tenThousand = decimal.NewFromInt(10000)
)

// Spread returns bestAsk - bestBid. A negative value means the book is crossed.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, hasBid, ask, hasAsk := b.TopOfBook()
	if !hasBid || !hasAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// MidPrice returns (bestBid + bestAsk) / 2.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, hasBid, ask, hasAsk := b.TopOfBook()
	if !hasBid || !hasAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(two), true
}

// SpreadBps returns the spread relative to the best bid in basis points.
func (b *OrderBook) SpreadBps() (decimal.Decimal, bool) {
	bid, hasBid, ask, hasAsk := b.TopOfBook()
	if !hasBid || !hasAsk || !bid.Price.IsPositive() {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price).Div(bid.Price).Mul(tenThousand), true
}

// IsCrossed reports whether best bid >= best ask with both sides present.
func (b *OrderBook) IsCrossed() bool {
	return b.HealthCheck(0).Crossed
}

// CrossingSeverity grades the overlap of a crossed book.
func (b *OrderBook) CrossingSeverity() domain.CrossingSeverity {
	bid, hasBid, ask, hasAsk := b.TopOfBook()
	if !hasBid || !hasAsk {
		return domain.CrossingNone
	}
	return domain.ClassifyCrossing(bid.Price, ask.Price)
}

func (b *OrderBook) levels(side domain.Side, depth int) []domain.PriceLevel {
	if side == domain.Bid {
		return b.Bids(depth)
	}
	return b.Asks(depth)
}

// TotalVolume sums the quantity of the best depth levels; depth <= 0 means all.
func (b *OrderBook) TotalVolume(side domain.Side, depth int) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.levels(side, depth) {
		total = total.Add(l.Quantity)
	}
	return total
}

// ImbalanceRatio returns bidVolume / (bidVolume + askVolume) over the best depth levels.
func (b *OrderBook) ImbalanceRatio(depth int) (decimal.Decimal, bool) {
	bids, asks := b.Depth(depth)
	bidVol, askVol := decimal.Zero, decimal.Zero
	for _, l := range bids {
		bidVol = bidVol.Add(l.Quantity)
	}
	for _, l := range asks {
		askVol = askVol.Add(l.Quantity)
	}
	total := bidVol.Add(askVol)
	if total.IsZero() {
		return decimal.Zero, false
	}
	return bidVol.Div(total), true
}

// LiquidityAtPrice sums quantity at prices at least as good as target:
// bids priced >= target, asks priced <= target.
func (b *OrderBook) LiquidityAtPrice(side domain.Side, target decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.levels(side, 0) {
		if side == domain.Bid && l.Price.LessThan(target) {
			break
		}
		if side == domain.Ask && l.Price.GreaterThan(target) {
			break
		}
		total = total.Add(l.Quantity)
	}
	return total
}

// VWAP returns the volume-weighted price to fill quantity by walking the side.
// It returns false when the side lacks enough liquidity.
func (b *OrderBook) VWAP(side domain.Side, quantity decimal.Decimal) (decimal.Decimal, bool) {
	if !quantity.IsPositive() {
		return decimal.Zero, false
	}
	remaining := quantity
	cost := decimal.Zero
	for _, l := range b.levels(side, 0) {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(l.Quantity, remaining)
		cost = cost.Add(take.Mul(l.Price))
		remaining = remaining.Sub(take)
	}
	if !remaining.IsZero() {
		return decimal.Zero, false
	}
	return cost.Div(quantity), true
}

// Slippage returns |vwap - best| / best as a percentage for filling quantity.
func (b *OrderBook) Slippage(side domain.Side, quantity decimal.Decimal) (decimal.Decimal, bool) {
	var best domain.PriceLevel
	var ok bool
	if side == domain.Bid {
		best, ok = b.BestBid()
	} else {
		best, ok = b.BestAsk()
	}
	if !ok || best.Price.IsZero() {
		return decimal.Zero, false
	}
	avg, ok := b.VWAP(side, quantity)
	if !ok {
		return decimal.Zero, false
	}
	return avg.Sub(best.Price).Div(best.Price).Abs().Mul(hundred), true
}

// Checksum is a CRC32 over the top levels of both sides. It is stable for
// equal books regardless of the decimal exponent used to express a price.
func (b *OrderBook) Checksum() uint32 {
	bids, asks := b.Depth(checksumDepth)
	return levelsChecksum(bids, asks)
}

// ValidateChecksum compares the book against an expected checksum.
func (b *OrderBook) ValidateChecksum(expected uint32) bool {
	return b.Checksum() == expected
}

// Checksum computes the same digest as OrderBook.Checksum for a snapshot.
func (s Snapshot) Checksum() uint32 {
	n := func(l []domain.PriceLevel) []domain.PriceLevel {
		if len(l) > checksumDepth {
			return l[:checksumDepth]
		}
		return l
	}
	return levelsChecksum(n(s.Bids), n(s.Asks))
}

func levelsChecksum(bids, asks []domain.PriceLevel) uint32 {
	h := crc32.NewIEEE()
	var sep [8]byte
	write := func(levels []domain.PriceLevel, tag uint64) {
		binary.BigEndian.PutUint64(sep[:], tag)
		h.Write(sep[:])
		for _, l := range levels {
			h.Write([]byte(l.Price.String()))
			h.Write([]byte{':'})
			h.Write([]byte(l.Quantity.String()))
			h.Write([]byte{';'})
		}
	}
	write(bids, 1)
	write(asks, 2)
	return h.Sum32()
}
